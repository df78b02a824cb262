package data

import "testing"

func TestParseSeverity(t *testing.T) {
	tests := map[string]Severity{
		"debug":   SeverityDebug,
		"INFO":    SeverityInfo,
		"Warning": SeverityWarning,
		" error ": SeverityError,
		"null":    SeveritySilent,
	}

	for in, want := range tests {
		got, ok := ParseSeverity(in)
		if !ok || got != want {
			t.Errorf("ParseSeverity(%q): got %v, %v", in, got, ok)
		}
	}

	for _, in := range []string{"INVALID", "", "TRACE", "3"} {
		if s, ok := ParseSeverity(in); ok || s != SeverityInvalid {
			t.Errorf("ParseSeverity(%q) should fail", in)
		}
	}
}

func TestSeverityString(t *testing.T) {
	if SeverityWarning.String() != "WARNING" {
		t.Error("wrong name: ", SeverityWarning)
	}
	if Severity(9).String() != "INVALID" || Severity(-1).String() != "INVALID" {
		t.Error("out of range severities should print INVALID")
	}
	if Severity(7).Coerce() != SeverityInvalid || SeverityInfo.Coerce() != SeverityInfo {
		t.Error("Coerce is wrong")
	}
	if Severity(7).Or(SeverityError) != SeverityError {
		t.Error("Or is wrong")
	}
}

func TestParseEvent(t *testing.T) {
	if e, ok := ParseEvent("enable"); !ok || !e {
		t.Error("enable failed")
	}
	if e, ok := ParseEvent("DISABLE"); !ok || e {
		t.Error("disable failed")
	}
	if _, ok := ParseEvent("on"); ok {
		t.Error("on should not parse")
	}
	if EventName(false) != EventDisable {
		t.Error("EventName is wrong")
	}
}
