package firmware

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nodelog/slogd/data"
)

// MemorySink records levels in memory
type MemorySink struct {
	lock     sync.Mutex
	channels map[int32][]ChannelType
	levels   map[int32]map[ChannelType]data.Severity
	fail     map[ChannelType]bool
	calls    int
}

// NewMemorySink returns a sink where every device has the given channels
func NewMemorySink(devices []int32, channels []ChannelType) *MemorySink {
	m := &MemorySink{
		channels: make(map[int32][]ChannelType),
		levels:   make(map[int32]map[ChannelType]data.Severity),
		fail:     make(map[ChannelType]bool),
	}
	for _, d := range devices {
		m.channels[d] = channels
		m.levels[d] = make(map[ChannelType]data.Severity)
	}
	return m
}

// FailChannel makes every set on ch fail
func (m *MemorySink) FailChannel(ch ChannelType) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.fail[ch] = true
}

// Level returns the last level set on a channel
func (m *MemorySink) Level(devID int32, ch ChannelType) (data.Severity, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	sev, ok := m.levels[devID][ch]
	return sev, ok
}

// Calls returns the number of SetChannelSeverity calls
func (m *MemorySink) Calls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.calls
}

// Devices returns the configured devices
func (m *MemorySink) Devices() ([]int32, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	ret := make([]int32, 0, len(m.channels))
	for d := range m.channels {
		ret = append(ret, d)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret, nil
}

// Channels returns the channels of a device
func (m *MemorySink) Channels(devID int32) ([]ChannelType, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	ch, ok := m.channels[devID]
	if !ok {
		return nil, fmt.Errorf("%w: no device %v", data.ErrOpenFailed, devID)
	}
	return ch, nil
}

// SetChannelSeverity records sev
func (m *MemorySink) SetChannelSeverity(devID int32, ch ChannelType, sev data.Severity) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.calls++
	if m.fail[ch] {
		return fmt.Errorf("%w: injected failure on %v/%v", data.ErrSetLevel, devID, ch)
	}
	if _, ok := m.levels[devID]; !ok {
		return fmt.Errorf("%w: no device %v", data.ErrSetLevel, devID)
	}
	m.levels[devID][ch] = sev
	return nil
}
