package firmware

import (
	"github.com/nodelog/slogd/data"
	"github.com/pkg/errors"
)

// HAL is the device driver interface used on targets where firmware levels
// are set through direct driver calls
type HAL interface {
	DeviceCount() (int, error)
	DeviceID(index int) (int32, error)
	ChannelTypes(devID int32) ([]int, error)
	SetLogLevel(devID int32, channelType int, level int) error
}

// HALSink adapts a HAL to a Sink
type HALSink struct {
	hal HAL
}

// NewHALSink returns a sink on hal
func NewHALSink(hal HAL) *HALSink {
	return &HALSink{hal: hal}
}

// Devices enumerates devices through the HAL
func (h *HALSink) Devices() ([]int32, error) {
	n, err := h.hal.DeviceCount()
	if err != nil {
		return nil, errors.WithMessagef(data.ErrOpenFailed, "device count: %v", err)
	}

	ret := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		id, err := h.hal.DeviceID(i)
		if err != nil {
			return nil, errors.WithMessagef(data.ErrOpenFailed, "device %v id: %v", i, err)
		}
		ret = append(ret, id)
	}
	return ret, nil
}

// Channels returns the known channel types of a device
func (h *HALSink) Channels(devID int32) ([]ChannelType, error) {
	types, err := h.hal.ChannelTypes(devID)
	if err != nil {
		return nil, errors.WithMessagef(data.ErrOpenFailed, "channels of %v: %v", devID, err)
	}

	ret := make([]ChannelType, 0, len(types))
	for _, t := range types {
		if t >= 0 && t < int(channelCount) {
			ret = append(ret, ChannelType(t))
		}
	}
	return ret, nil
}

// SetChannelSeverity sets the level through the HAL
func (h *HALSink) SetChannelSeverity(devID int32, ch ChannelType, sev data.Severity) error {
	if err := h.hal.SetLogLevel(devID, int(ch), int(sev)); err != nil {
		return errors.WithMessagef(data.ErrSetLevel, "%v/%v: %v", devID, ch, err)
	}
	return nil
}
