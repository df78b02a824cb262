package data

import "strings"

// Severity is an ordered log verbosity. Lower values are more verbose.
type Severity int32

// Severity values. The ordinal is what is written to the config file and
// packed into the level snapshot.
const (
	SeverityDebug   Severity = 0 // DEBUG
	SeverityInfo    Severity = 1 // INFO
	SeverityWarning Severity = 2 // WARNING
	SeverityError   Severity = 3 // ERROR
	SeveritySilent  Severity = 4 // NULL
	SeverityInvalid Severity = 5 // INVALID
)

// Severity bounds
const (
	SeverityMin = SeverityDebug
	SeverityMax = SeveritySilent
)

// Compiled-in defaults
const (
	DefaultGlobalSeverity      = SeverityError
	DefaultDiagnosticSeverity  = SeverityError
	DefaultOperationalSeverity = SeverityInfo
	DefaultModuleSeverity      = SeverityError
	DefaultEventEnabled        = true
)

var severityNames = [...]string{
	SeverityDebug:   "DEBUG",
	SeverityInfo:    "INFO",
	SeverityWarning: "WARNING",
	SeverityError:   "ERROR",
	SeveritySilent:  "NULL",
	SeverityInvalid: "INVALID",
}

// Valid returns true if s lies in [SeverityMin, SeverityMax]
func (s Severity) Valid() bool {
	return s >= SeverityMin && s <= SeverityMax
}

// Coerce returns s if valid, else SeverityInvalid
func (s Severity) Coerce() Severity {
	if s.Valid() {
		return s
	}
	return SeverityInvalid
}

// Or returns s if valid, else def
func (s Severity) Or(def Severity) Severity {
	if s.Valid() {
		return s
	}
	return def
}

func (s Severity) String() string {
	if s.Valid() {
		return severityNames[s]
	}
	return severityNames[SeverityInvalid]
}

// ParseSeverity converts a level name (case insensitive) to a Severity.
// Returns SeverityInvalid and false if the name is unknown. INVALID is
// not accepted as an input name.
func ParseSeverity(name string) (Severity, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for i := SeverityMin; i <= SeverityMax; i++ {
		if severityNames[i] == n {
			return i, true
		}
	}
	return SeverityInvalid, false
}

// Channel selects one of the two filters each module has
type Channel int

// Channels
const (
	// ChannelDiagnostic is the runtime configurable debug log filter
	ChannelDiagnostic Channel = iota
	// ChannelOperational is the run log filter. It always resolves to
	// DefaultOperationalSeverity.
	ChannelOperational
)

func (c Channel) String() string {
	switch c {
	case ChannelDiagnostic:
		return "diagnostic"
	case ChannelOperational:
		return "operational"
	default:
		return "unknown"
	}
}

// Event enable names used on the wire
const (
	EventEnable  = "ENABLE"
	EventDisable = "DISABLE"
)

// EventName returns the wire name for an event enable flag
func EventName(enabled bool) string {
	if enabled {
		return EventEnable
	}
	return EventDisable
}

// ParseEvent parses ENABLE/DISABLE (case insensitive)
func ParseEvent(name string) (enabled bool, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case EventEnable:
		return true, true
	case EventDisable:
		return false, true
	}
	return false, false
}
