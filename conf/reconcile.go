package conf

import (
	"log"
	"strconv"

	"github.com/nodelog/slogd/data"
	"github.com/nodelog/slogd/level"
)

func parseLevel(v string) (data.Severity, bool) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return data.SeverityInvalid, false
	}
	sev := data.Severity(n)
	return sev, sev.Valid()
}

// Reconcile loads global, event and module levels from the config file into
// s. Missing or invalid values keep what s already holds. Every module is
// first reset to the global level, then module keys in the file win, and
// runtime overrides are cleared.
func (f *File) Reconcile(s *level.Store) error {
	vals, err := f.Values()
	if err != nil {
		return err
	}

	global := s.GetGlobal(data.ChannelDiagnostic)
	if v, ok := vals[KeyGlobalLevel]; !ok {
		log.Printf("Config item %v not found, use default=%v\n", KeyGlobalLevel, global)
	} else if sev, ok := parseLevel(v); !ok {
		log.Printf("Config value of %v is out of range: %q, use default=%v\n", KeyGlobalLevel, v, global)
	} else {
		global = sev
	}

	s.SetGlobal(global)
	for id := 0; id < s.Registry().Count(); id++ {
		_ = s.LoadModule(id, global)
	}

	if v, ok := vals[KeyEnableEvent]; ok {
		switch v {
		case "0":
			s.SetEventEnabled(false)
		case "1":
			s.SetEventEnabled(true)
		default:
			log.Printf("Config value of %v is invalid: %q, use default=%v\n",
				KeyEnableEvent, v, data.EventName(s.GetEventEnabled()))
		}
	}

	for _, m := range s.Registry().Modules() {
		v, ok := vals[m.Name]
		if !ok {
			continue
		}
		sev, ok := parseLevel(v)
		if !ok {
			log.Printf("Config value of module %v is invalid: %q, use %v\n", m.Name, v,
				s.GetModule(m.ID, data.ChannelDiagnostic))
			continue
		}
		_ = s.LoadModule(m.ID, sev)
	}

	return nil
}
