package firmware

import (
	"log"

	"github.com/VictoriaMetrics/metrics"
	"github.com/nodelog/slogd/data"
	"github.com/nodelog/slogd/level"
	"github.com/pkg/errors"
)

var firmwareErrors = metrics.NewCounter("slogd_firmware_errors_total")

// Propagator pushes diagnostic levels from a store to a sink
type Propagator struct {
	sink  Sink
	store *level.Store
}

// NewPropagator returns a propagator. A nil sink makes every call a no-op.
func NewPropagator(sink Sink, store *level.Store) *Propagator {
	return &Propagator{sink: sink, store: store}
}

// resolve returns the level for a channel on a device: the device slot of
// a per device module, otherwise the global level
func (p *Propagator) resolve(devID int32, ch ChannelType) data.Severity {
	global := p.store.GetGlobal(data.ChannelDiagnostic)

	m, ok := p.store.Registry().ByName(ch.Module())
	if !ok || !m.PerDevice {
		return global
	}
	return p.store.GetModuleForDevice(m.ID, devID, data.ChannelDiagnostic).Or(global)
}

// Propagate pushes levels to one device or, with data.AllDevices, to every
// attached device. Failures do not stop the remaining channels; the first
// one is returned wrapped in data.ErrSetLevel.
func (p *Propagator) Propagate(devID int32) error {
	if p.sink == nil {
		return nil
	}

	devices, err := p.sink.Devices()
	if err != nil {
		firmwareErrors.Inc()
		return errors.WithMessagef(data.ErrSetLevel, "enumerate devices: %v", err)
	}

	var first error
	fail := func(err error) {
		firmwareErrors.Inc()
		log.Println("firmware: ", err)
		if first == nil {
			first = err
		}
	}

	found := false
	for _, d := range devices {
		if devID != data.AllDevices && d != devID {
			continue
		}
		found = true

		if d < 0 || d >= data.MaxDevices {
			fail(errors.WithMessagef(data.ErrSetLevel, "device id %v out of range", d))
			continue
		}

		chans, err := p.sink.Channels(d)
		if err != nil {
			fail(errors.WithMessagef(data.ErrSetLevel, "%v", err))
			continue
		}

		for _, ch := range chans {
			sev := p.resolve(d, ch)
			if err := p.sink.SetChannelSeverity(d, ch, sev); err != nil {
				fail(errors.WithMessagef(data.ErrSetLevel, "device %v channel %v: %v", d, ch, err))
			}
		}
	}

	if !found && devID != data.AllDevices {
		fail(errors.WithMessagef(data.ErrSetLevel, "device %v not attached", devID))
	}

	return first
}

// DeviceCount returns the number of attached devices, 0 without a sink
func (p *Propagator) DeviceCount() (int, error) {
	if p.sink == nil {
		return 0, nil
	}
	d, err := p.sink.Devices()
	if err != nil {
		return 0, errors.WithMessagef(data.ErrOpenFailed, "enumerate devices: %v", err)
	}
	return len(d), nil
}

// OnlyOneDevice returns true if exactly one device is attached
func (p *Propagator) OnlyOneDevice() bool {
	n, err := p.DeviceCount()
	if err != nil {
		log.Println("firmware: ", err)
		return false
	}
	return n == 1
}
