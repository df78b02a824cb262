package level

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nodelog/slogd/data"
)

func testRegistry(t *testing.T) *data.Registry {
	t.Helper()
	reg, err := data.NewRegistry([]data.ModuleDescriptor{
		{Name: "SLOG"},
		{Name: "HCCL"},
		{Name: "TS", PerDevice: true, Group: data.GroupFirmware},
		{Name: "RUNTIME"},
	})
	if err != nil {
		t.Fatal("Error creating registry: ", err)
	}
	return reg
}

func TestEncodeLayout(t *testing.T) {
	snap := Snapshot{
		Global:      data.SeverityWarning,
		Event:       EventEnabled,
		Diagnostic:  data.SeverityWarning,
		Operational: data.SeverityInfo,
		Modules: []ModuleLevels{
			{Diagnostic: data.SeverityDebug, Operational: data.SeverityInfo},
			{Diagnostic: data.SeveritySilent, Operational: data.SeverityError},
		},
	}

	exp := []byte{0x38, 0x32, 0x12, 0x54}
	got := Encode(snap)
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatal("encoded bytes mismatch (-exp +got):\n", diff)
	}
}

func TestEncodeEventDisabled(t *testing.T) {
	got := Encode(Snapshot{Global: data.SeverityDebug, Event: EventDisabled})
	// global debug -> 001, event disabled -> 01
	if got[0] != 0x14 {
		t.Errorf("byte 0 is 0x%02x, expected 0x14", got[0])
	}
}

func TestFieldHelpers(t *testing.T) {
	for sev := data.SeverityMin; sev <= data.SeverityMax; sev++ {
		b := encodeLevel(sev, data.SeverityError)
		if b == 0 {
			t.Errorf("severity %v encoded to the reserved zero pattern", sev)
		}
		if got := decodeLevel(b); got != sev {
			t.Errorf("level field round trip: %v -> %v", sev, got)
		}
	}

	if decodeLevel(0) != data.SeverityInvalid {
		t.Error("zero level field should decode invalid")
	}

	for _, b := range []byte{6, 7} {
		if decodeLevel(b) != data.SeverityInvalid {
			t.Errorf("out of range field %v should decode invalid", b)
		}
	}

	if decodeEvent(0) != EventInvalid || decodeEvent(3) != EventInvalid {
		t.Error("reserved event patterns should decode invalid")
	}

	if decodeEvent(encodeEvent(EventDisabled)) != EventDisabled {
		t.Error("event disabled round trip failed")
	}
}

func TestRoundTrip(t *testing.T) {
	reg := testRegistry(t)

	for sev := data.SeverityMin; sev <= data.SeverityMax; sev++ {
		s := NewStore(reg)
		s.SetGlobal(sev)
		s.SetEventEnabled(sev%2 == 0)
		if err := s.SetModule(1, (sev+1)%(data.SeverityMax+1)); err != nil {
			t.Fatal("set module: ", err)
		}

		buf := EncodeStore(s)
		if len(buf) != SnapshotLen(reg.Count()) {
			t.Fatalf("encoded len %v, expected %v", len(buf), SnapshotLen(reg.Count()))
		}

		dec, err := Decode(buf, reg.Count())
		if err != nil {
			t.Fatal("decode: ", err)
		}

		if diff := cmp.Diff(s.Snapshot(), dec); diff != "" {
			t.Fatalf("round trip mismatch for %v (-exp +got):\n%v", sev, diff)
		}

		s2 := NewStore(reg)
		if err := DecodeInto(s2, buf); err != nil {
			t.Fatal("decode into: ", err)
		}
		if diff := cmp.Diff(s.Snapshot(), s2.Snapshot()); diff != "" {
			t.Fatal("decoded store mismatch:\n", diff)
		}
	}
}

func TestInvalidSubstitutedOnEncode(t *testing.T) {
	reg := testRegistry(t)
	s := NewStore(reg)
	s.SetGlobal(data.Severity(42))

	if s.GetGlobal(data.ChannelDiagnostic) != data.SeverityInvalid {
		t.Fatal("out of range global should be stored invalid")
	}

	buf := EncodeStore(s)
	for i, b := range buf {
		if b == 0 {
			t.Fatalf("byte %v encoded as zero", i)
		}
	}

	dec, err := Decode(buf, reg.Count())
	if err != nil {
		t.Fatal(err)
	}

	if dec.Global != data.DefaultGlobalSeverity {
		t.Errorf("global decoded as %v, expected default %v", dec.Global, data.DefaultGlobalSeverity)
	}

	for i, m := range dec.Modules {
		if m.Diagnostic != data.DefaultModuleSeverity {
			t.Errorf("module %v decoded as %v, expected default", i, m.Diagnostic)
		}
	}
}

func TestDecodeZeroBytes(t *testing.T) {
	reg := testRegistry(t)
	buf := []byte{0x38, 0x32, 0x00, 0x12, 0x00, 0x00}

	dec, err := Decode(buf, reg.Count())
	if err != nil {
		t.Fatal("decode: ", err)
	}

	if dec.Modules[0].Diagnostic != data.SeverityInvalid {
		t.Error("zero module byte should decode invalid")
	}

	if dec.Modules[1].Diagnostic != data.SeverityDebug {
		t.Error("module after a zero byte was lost: ", dec.Modules[1].Diagnostic)
	}

	// invalid slots keep the last known good value
	s := NewStore(reg)
	if err := s.SetModule(0, data.SeverityWarning); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(dec); err != nil {
		t.Fatal("apply: ", err)
	}
	if s.GetModule(0, data.ChannelDiagnostic) != data.SeverityWarning {
		t.Error("invalid slot overwrote last known good value")
	}
	if s.GetModule(1, data.ChannelDiagnostic) != data.SeverityDebug {
		t.Error("valid slot not applied")
	}
}

func TestDecodeBadLength(t *testing.T) {
	if _, err := Decode([]byte{0x38}, 4); err == nil {
		t.Fatal("expected error on short buffer")
	}
}
