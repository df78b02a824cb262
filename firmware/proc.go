package firmware

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nodelog/slogd/data"
	"github.com/pkg/errors"
)

// DefaultProcRoot is the firmware log control directory
const DefaultProcRoot = "/proc/slog_fw"

// ProcSink drives a control directory laid out as <root>/<devID>/<channel>.
// Each channel file holds the current level digit.
type ProcSink struct {
	root string
}

// NewProcSink returns a sink on root
func NewProcSink(root string) *ProcSink {
	if root == "" {
		root = DefaultProcRoot
	}
	return &ProcSink{root: root}
}

// Devices lists the attached devices
func (p *ProcSink) Devices() ([]int32, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, errors.WithMessagef(data.ErrOpenFailed, "enumerate devices: %v", err)
	}

	var ret []int32
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		ret = append(ret, int32(id))
	}

	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret, nil
}

func (p *ProcSink) devDir(devID int32) string {
	return filepath.Join(p.root, strconv.Itoa(int(devID)))
}

// Channels lists the channels of a device
func (p *ProcSink) Channels(devID int32) ([]ChannelType, error) {
	entries, err := os.ReadDir(p.devDir(devID))
	if err != nil {
		return nil, errors.WithMessagef(data.ErrOpenFailed, "enumerate channels of %v: %v",
			devID, err)
	}

	var ret []ChannelType
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if c, ok := ParseChannelType(e.Name()); ok {
			ret = append(ret, c)
		}
	}

	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret, nil
}

// Level reads the level currently set on a channel
func (p *ProcSink) Level(devID int32, ch ChannelType) (data.Severity, error) {
	buf, err := os.ReadFile(filepath.Join(p.devDir(devID), ch.String()))
	if err != nil {
		return data.SeverityInvalid, errors.WithMessagef(data.ErrReadFailed, "%v/%v: %v",
			devID, ch, err)
	}

	v, err := strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil {
		return data.SeverityInvalid, errors.WithMessagef(data.ErrReadFailed, "%v/%v: %v",
			devID, ch, err)
	}
	return data.Severity(v).Coerce(), nil
}

// SetChannelSeverity writes the level digit to the channel file. A channel
// already at sev is left alone.
func (p *ProcSink) SetChannelSeverity(devID int32, ch ChannelType, sev data.Severity) error {
	if !sev.Valid() {
		return errors.WithMessagef(data.ErrInputInvalid, "level %v", sev)
	}

	if cur, err := p.Level(devID, ch); err == nil && cur == sev {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(p.devDir(devID), ch.String()), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return errors.WithMessagef(data.ErrSetLevel, "%v/%v: %v", devID, ch, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(int(sev)) + "\n"); err != nil {
		return errors.WithMessagef(data.ErrSetLevel, "%v/%v: %v", devID, ch, err)
	}
	return nil
}
