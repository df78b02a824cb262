package level

import (
	"fmt"

	"github.com/nodelog/slogd/data"
)

// Snapshot layout, one byte each:
//
//	byte 0:      global bits 6..4 | event bits 3..2 | reserved bits 1..0
//	byte 1:      diagnostic default bits 6..4 | operational default bits 2..0
//	byte 2+n:    module n diagnostic bits 6..4 | module n operational bits 2..0
//
// A 3 bit field holds (severity+1)&7 and the event field holds
// (enabled+1)&3, so an all zero field always means unset.
const (
	headerLen = 2

	highShift  = 4
	eventShift = 2
	levelMask  = 0x7
	eventMask  = 0x3
)

// Event is the decoded event enable field
type Event int8

// Event field values
const (
	EventInvalid  Event = -1
	EventDisabled Event = 0
	EventEnabled  Event = 1
)

func eventFromBool(b bool) Event {
	if b {
		return EventEnabled
	}
	return EventDisabled
}

// ModuleLevels are the two channel levels of one module
type ModuleLevels struct {
	Diagnostic  data.Severity
	Operational data.Severity
}

// Snapshot is the decoded form of a level snapshot. Fields that decoded to
// the reserved zero pattern or out of range hold SeverityInvalid (or
// EventInvalid) and must be replaced before use.
type Snapshot struct {
	Global      data.Severity
	Event       Event
	Diagnostic  data.Severity
	Operational data.Severity
	Modules     []ModuleLevels
}

// SnapshotLen returns the encoded length for a registry with n modules
func SnapshotLen(n int) int {
	return headerLen + n
}

func encodeLevel(sev, def data.Severity) byte {
	return byte((uint32(sev.Or(def)) + 1) & levelMask)
}

func decodeLevel(b byte) data.Severity {
	v := b & levelMask
	if v == 0 {
		return data.SeverityInvalid
	}
	return data.Severity(v - 1).Coerce()
}

func encodeEvent(e Event) byte {
	if e != EventEnabled && e != EventDisabled {
		e = eventFromBool(data.DefaultEventEnabled)
	}
	return byte((uint32(e) + 1) & eventMask)
}

func decodeEvent(b byte) Event {
	switch b & eventMask {
	case 1:
		return EventDisabled
	case 2:
		return EventEnabled
	default:
		return EventInvalid
	}
}

// Encode packs a snapshot into a fixed-length buffer of
// SnapshotLen(len(s.Modules)) bytes. Invalid fields are replaced with the
// compiled-in defaults so the reserved zero pattern is never written.
func Encode(s Snapshot) []byte {
	buf := make([]byte, SnapshotLen(len(s.Modules)))

	buf[0] = encodeLevel(s.Global, data.DefaultGlobalSeverity)<<highShift |
		encodeEvent(s.Event)<<eventShift
	buf[1] = encodeLevel(s.Diagnostic, data.DefaultDiagnosticSeverity)<<highShift |
		encodeLevel(s.Operational, data.DefaultOperationalSeverity)

	for i, m := range s.Modules {
		buf[headerLen+i] = encodeLevel(m.Diagnostic, data.DefaultModuleSeverity)<<highShift |
			encodeLevel(m.Operational, data.DefaultOperationalSeverity)
	}

	return buf
}

// Decode unpacks a snapshot for a registry of moduleCount modules. The
// buffer must be exactly SnapshotLen(moduleCount) bytes; zero bytes are
// ordinary data.
func Decode(buf []byte, moduleCount int) (Snapshot, error) {
	if len(buf) != SnapshotLen(moduleCount) {
		return Snapshot{}, fmt.Errorf("%w: snapshot len %v, expected %v",
			data.ErrInputInvalid, len(buf), SnapshotLen(moduleCount))
	}

	s := Snapshot{
		Global:      decodeLevel(buf[0] >> highShift),
		Event:       decodeEvent(buf[0] >> eventShift),
		Diagnostic:  decodeLevel(buf[1] >> highShift),
		Operational: decodeLevel(buf[1]),
		Modules:     make([]ModuleLevels, moduleCount),
	}

	for i := range s.Modules {
		b := buf[headerLen+i]
		s.Modules[i] = ModuleLevels{
			Diagnostic:  decodeLevel(b >> highShift),
			Operational: decodeLevel(b),
		}
	}

	return s, nil
}

// Snapshot captures the current store state in snapshot form
func (s *Store) Snapshot() Snapshot {
	st := s.cur.Load()
	snap := Snapshot{
		Global:      st.global,
		Event:       eventFromBool(st.event),
		Diagnostic:  st.global,
		Operational: data.DefaultOperationalSeverity,
		Modules:     make([]ModuleLevels, len(st.modules)),
	}
	for i, m := range st.modules {
		snap.Modules[i] = ModuleLevels{
			Diagnostic:  m.scalar,
			Operational: data.DefaultOperationalSeverity,
		}
	}
	return snap
}

// Apply overwrites the store with a decoded snapshot. Invalid fields keep
// the value the store already holds. Per device slots take the module value. Module count must match the registry.
func (s *Store) Apply(snap Snapshot) error {
	if len(snap.Modules) != s.reg.Count() {
		return fmt.Errorf("%w: snapshot has %v modules, registry %v",
			data.ErrInputInvalid, len(snap.Modules), s.reg.Count())
	}

	return s.update(func(st *state) error {
		if snap.Global.Valid() {
			st.global = snap.Global
		}
		if snap.Event != EventInvalid {
			st.event = snap.Event == EventEnabled
		}
		for i, m := range snap.Modules {
			if !m.Diagnostic.Valid() {
				continue
			}
			// the snapshot carries one value per module
			st.modules[i].scalar = m.Diagnostic
			for d := range st.modules[i].perDevice {
				st.modules[i].perDevice[d] = m.Diagnostic
			}
		}
		return nil
	})
}

// EncodeStore encodes the whole store
func EncodeStore(s *Store) []byte {
	return Encode(s.Snapshot())
}

// DecodeInto decodes buf and applies it to s
func DecodeInto(s *Store, buf []byte) error {
	snap, err := Decode(buf, s.reg.Count())
	if err != nil {
		return err
	}
	return s.Apply(snap)
}
