package level

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nodelog/slogd/data"
)

type moduleState struct {
	scalar     data.Severity
	perDevice  [data.MaxDevices]data.Severity
	overridden bool
}

// state is never modified after it is published through Store.cur
type state struct {
	global  data.Severity
	event   bool
	modules []moduleState
}

func (st *state) clone() *state {
	n := &state{
		global:  st.global,
		event:   st.event,
		modules: make([]moduleState, len(st.modules)),
	}
	copy(n.modules, st.modules)
	return n
}

// Store is the process-wide severity state. Readers load an immutable state
// without locking; writers are serialized by mu and publish a new copy.
// The store does not publish or persist anything itself, callers check
// Dirty and push the state on.
type Store struct {
	reg   *data.Registry
	mu    sync.Mutex
	cur   atomic.Pointer[state]
	dirty atomic.Bool
}

// NewStore returns a store holding compiled-in defaults for every module
// in reg.
func NewStore(reg *data.Registry) *Store {
	st := &state{
		global:  data.DefaultGlobalSeverity,
		event:   data.DefaultEventEnabled,
		modules: make([]moduleState, reg.Count()),
	}

	for i := range st.modules {
		st.modules[i].scalar = data.DefaultModuleSeverity
		for d := range st.modules[i].perDevice {
			st.modules[i].perDevice[d] = data.DefaultModuleSeverity
		}
	}

	s := &Store{reg: reg}
	s.cur.Store(st)
	return s
}

// Registry returns the module catalog the store was built for
func (s *Store) Registry() *data.Registry {
	return s.reg
}

func (s *Store) update(f func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.cur.Load().clone()
	if err := f(n); err != nil {
		return err
	}
	s.cur.Store(n)
	s.dirty.Store(true)
	return nil
}

// GetGlobal returns the global severity for a channel. The operational
// channel is not configurable and always returns its compiled-in default.
func (s *Store) GetGlobal(ch data.Channel) data.Severity {
	if ch == data.ChannelOperational {
		return data.DefaultOperationalSeverity
	}
	return s.cur.Load().global
}

// SetGlobal stores a new global diagnostic severity and cascades it onto
// every module that has not been individually overridden. Out of range
// values are stored as SeverityInvalid. The IDs of modules that received
// the new value are returned.
func (s *Store) SetGlobal(sev data.Severity) []int {
	sev = sev.Coerce()
	var cascaded []int

	_ = s.update(func(st *state) error {
		st.global = sev
		for i := range st.modules {
			m := &st.modules[i]
			if m.overridden {
				continue
			}
			m.scalar = sev
			for d := range m.perDevice {
				m.perDevice[d] = sev
			}
			cascaded = append(cascaded, i)
		}
		return nil
	})

	return cascaded
}

// GetModule returns a module's scalar severity. Invalid IDs return the
// module default.
func (s *Store) GetModule(id int, ch data.Channel) data.Severity {
	if ch == data.ChannelOperational {
		return data.DefaultOperationalSeverity
	}
	st := s.cur.Load()
	if id < 0 || id >= len(st.modules) {
		return data.DefaultModuleSeverity
	}
	return st.modules[id].scalar
}

// SetModule sets a module's scalar severity and marks it overridden so a
// later SetGlobal leaves it alone.
func (s *Store) SetModule(id int, sev data.Severity) error {
	if !s.reg.Valid(id) {
		return fmt.Errorf("%w: module id %v", data.ErrInputInvalid, id)
	}
	sev = sev.Coerce()
	return s.update(func(st *state) error {
		st.modules[id].scalar = sev
		st.modules[id].overridden = true
		return nil
	})
}

// GetModuleForDevice returns the severity of a module on one device. For
// modules that are not per device scoped, or for an invalid device id, the
// module's scalar value is returned.
func (s *Store) GetModuleForDevice(id int, devID int32, ch data.Channel) data.Severity {
	if ch == data.ChannelOperational {
		return data.DefaultOperationalSeverity
	}
	desc, ok := s.reg.Module(id)
	if !ok {
		return data.DefaultModuleSeverity
	}
	st := s.cur.Load()
	if !desc.PerDevice || devID < 0 || devID >= data.MaxDevices {
		return st.modules[id].scalar
	}
	return st.modules[id].perDevice[devID]
}

// SetModuleForDevice sets the per device severity of a per device scoped
// module. devID may be data.AllDevices to set every slot. The scalar value
// is not touched.
func (s *Store) SetModuleForDevice(id int, devID int32, sev data.Severity) error {
	desc, ok := s.reg.Module(id)
	if !ok {
		return fmt.Errorf("%w: module id %v", data.ErrInputInvalid, id)
	}
	if !desc.PerDevice {
		return fmt.Errorf("%w: module %v is not per device", data.ErrInputInvalid, desc.Name)
	}
	if devID != data.AllDevices && (devID < 0 || devID >= data.MaxDevices) {
		return fmt.Errorf("%w: device id %v", data.ErrInputInvalid, devID)
	}

	sev = sev.Coerce()
	return s.update(func(st *state) error {
		m := &st.modules[id]
		if devID == data.AllDevices {
			for d := range m.perDevice {
				m.perDevice[d] = sev
			}
		} else {
			m.perDevice[devID] = sev
		}
		m.overridden = true
		return nil
	})
}

// GetEventEnabled returns the global event channel state
func (s *Store) GetEventEnabled() bool {
	return s.cur.Load().event
}

// SetEventEnabled sets the global event channel state
func (s *Store) SetEventEnabled(enabled bool) {
	_ = s.update(func(st *state) error {
		st.event = enabled
		return nil
	})
}

// LoadModule sets a module scalar (and per device slots) from the config
// file and clears the override mark.
func (s *Store) LoadModule(id int, sev data.Severity) error {
	if !s.reg.Valid(id) {
		return fmt.Errorf("%w: module id %v", data.ErrInputInvalid, id)
	}
	sev = sev.Coerce()
	return s.update(func(st *state) error {
		m := &st.modules[id]
		m.scalar = sev
		for d := range m.perDevice {
			m.perDevice[d] = sev
		}
		m.overridden = false
		return nil
	})
}

// Overridden returns true if a module was set individually
func (s *Store) Overridden(id int) bool {
	st := s.cur.Load()
	if id < 0 || id >= len(st.modules) {
		return false
	}
	return st.modules[id].overridden
}

// Dirty returns true if the store changed since the last ClearDirty
func (s *Store) Dirty() bool {
	return s.dirty.Load()
}

// ClearDirty resets the dirty flag and returns its previous value
func (s *Store) ClearDirty() bool {
	return s.dirty.Swap(false)
}
