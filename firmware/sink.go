// Package firmware pushes diagnostic levels down to the logging channels of
// the compute devices attached to the node.
package firmware

import (
	"fmt"
	"strings"

	"github.com/nodelog/slogd/data"
)

// ChannelType is a firmware log channel on a device
type ChannelType int

// Firmware channels
const (
	ChannelTS ChannelType = iota
	ChannelMCUDump
	ChannelLPM3
	ChannelIMP
	ChannelIMU
	ChannelISP
	ChannelSIS
	ChannelSISBist
	ChannelHSM
	channelCount
)

var channelNames = [channelCount]string{
	"ts", "mcu_dump", "lpm3", "imp", "imu", "isp", "sis", "sis_bist", "hsm",
}

// channelModules maps a channel to the module whose level it carries
var channelModules = [channelCount]string{
	"TS", "TSDUMP", "LP", "IMP", "IMU", "ISP", "SIS", "SIS", "HSM",
}

func (c ChannelType) String() string {
	if c < 0 || c >= channelCount {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// Module returns the name of the module owning the channel
func (c ChannelType) Module() string {
	if c < 0 || c >= channelCount {
		return ""
	}
	return channelModules[c]
}

// ParseChannelType returns the channel with the given name
func ParseChannelType(name string) (ChannelType, bool) {
	name = strings.ToLower(name)
	for i, n := range channelNames {
		if n == name {
			return ChannelType(i), true
		}
	}
	return 0, false
}

// Sink delivers a level to a firmware channel
type Sink interface {
	Devices() ([]int32, error)
	Channels(devID int32) ([]ChannelType, error)
	SetChannelSeverity(devID int32, ch ChannelType, sev data.Severity) error
}

// Sink kinds
const (
	SinkNone = "none"
	SinkProc = "proc"
	SinkHAL  = "hal"
)

// NewSink returns the sink selected by kind. root is the control directory
// for the proc sink and hal the device layer for the hal sink. A none sink
// is returned as nil.
func NewSink(kind, root string, hal HAL) (Sink, error) {
	switch kind {
	case "", SinkNone:
		return nil, nil
	case SinkProc:
		return NewProcSink(root), nil
	case SinkHAL:
		if hal == nil {
			return nil, fmt.Errorf("firmware sink hal selected but no HAL available")
		}
		return NewHALSink(hal), nil
	default:
		return nil, fmt.Errorf("unknown firmware sink: %v", kind)
	}
}
