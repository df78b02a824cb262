package level

import (
	"sync"
	"testing"

	"github.com/nodelog/slogd/data"
)

func TestStoreDefaults(t *testing.T) {
	s := NewStore(testRegistry(t))

	if s.GetGlobal(data.ChannelDiagnostic) != data.DefaultGlobalSeverity {
		t.Error("wrong default global level")
	}

	if !s.GetEventEnabled() {
		t.Error("event should default enabled")
	}

	if s.Dirty() {
		t.Error("new store should not be dirty")
	}
}

func TestOperationalIsFixed(t *testing.T) {
	s := NewStore(testRegistry(t))
	s.SetGlobal(data.SeverityDebug)
	if err := s.SetModule(0, data.SeverityDebug); err != nil {
		t.Fatal(err)
	}

	if s.GetGlobal(data.ChannelOperational) != data.DefaultOperationalSeverity {
		t.Error("operational global should ignore stored state")
	}
	if s.GetModule(0, data.ChannelOperational) != data.DefaultOperationalSeverity {
		t.Error("operational module should ignore stored state")
	}
	if s.GetModuleForDevice(2, 0, data.ChannelOperational) != data.DefaultOperationalSeverity {
		t.Error("operational device level should ignore stored state")
	}
}

func TestSetGlobalCascade(t *testing.T) {
	s := NewStore(testRegistry(t))

	if err := s.SetModule(1, data.SeverityDebug); err != nil {
		t.Fatal(err)
	}

	cascaded := s.SetGlobal(data.SeverityWarning)

	if len(cascaded) != 3 {
		t.Fatalf("expected 3 cascaded modules, got %v", cascaded)
	}

	for _, id := range []int{0, 2, 3} {
		if s.GetModule(id, data.ChannelDiagnostic) != data.SeverityWarning {
			t.Errorf("module %v did not receive the global level", id)
		}
	}

	if s.GetModule(1, data.ChannelDiagnostic) != data.SeverityDebug {
		t.Error("overridden module was reset by global set")
	}

	if s.GetModuleForDevice(2, 5, data.ChannelDiagnostic) != data.SeverityWarning {
		t.Error("per device slots should receive the global level")
	}

	if !s.ClearDirty() || s.Dirty() {
		t.Error("dirty flag not managed")
	}
}

func TestSetGlobalOutOfRange(t *testing.T) {
	s := NewStore(testRegistry(t))
	s.SetGlobal(data.Severity(-3))
	if s.GetGlobal(data.ChannelDiagnostic) != data.SeverityInvalid {
		t.Error("out of range global should be stored as invalid")
	}
}

func TestModuleIDRange(t *testing.T) {
	s := NewStore(testRegistry(t))

	if err := s.SetModule(99, data.SeverityInfo); err == nil {
		t.Error("expected error for out of range module")
	}
	if err := s.SetModule(-1, data.SeverityInfo); err == nil {
		t.Error("expected error for negative module")
	}
	if s.GetModule(99, data.ChannelDiagnostic) != data.DefaultModuleSeverity {
		t.Error("invalid module should read the default")
	}
	if s.Dirty() {
		t.Error("failed set marked store dirty")
	}
}

func TestPerDevice(t *testing.T) {
	s := NewStore(testRegistry(t))
	ts := 2

	if err := s.SetModuleForDevice(ts, 3, data.SeverityInfo); err != nil {
		t.Fatal("set per device: ", err)
	}

	if s.GetModuleForDevice(ts, 3, data.ChannelDiagnostic) != data.SeverityInfo {
		t.Error("device slot not set")
	}
	if s.GetModuleForDevice(ts, 4, data.ChannelDiagnostic) != data.DefaultModuleSeverity {
		t.Error("other device slot changed")
	}
	if s.GetModule(ts, data.ChannelDiagnostic) != data.DefaultModuleSeverity {
		t.Error("scalar changed by per device set")
	}

	// invalid device reads the scalar
	if s.GetModuleForDevice(ts, 1000, data.ChannelDiagnostic) != data.DefaultModuleSeverity {
		t.Error("invalid device should return module level")
	}

	if err := s.SetModuleForDevice(0, 0, data.SeverityInfo); err == nil {
		t.Error("per device set on scalar module should fail")
	}
	if err := s.SetModuleForDevice(ts, data.MaxDevices, data.SeverityInfo); err == nil {
		t.Error("per device set on invalid device should fail")
	}

	if err := s.SetModuleForDevice(ts, data.AllDevices, data.SeverityDebug); err != nil {
		t.Fatal(err)
	}
	for d := int32(0); d < data.MaxDevices; d++ {
		if s.GetModuleForDevice(ts, d, data.ChannelDiagnostic) != data.SeverityDebug {
			t.Fatalf("device %v not set by all devices write", d)
		}
	}
}

func TestConcurrentWriters(t *testing.T) {
	s := NewStore(testRegistry(t))
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.SetGlobal(data.Severity(j % 5))
				_ = s.SetModule(i%4, data.Severity(j%5))
				s.SetEventEnabled(j%2 == 0)
				_ = s.GetModule(i%4, data.ChannelDiagnostic)
			}
		}(i)
	}

	wg.Wait()

	if !s.GetGlobal(data.ChannelDiagnostic).Valid() {
		t.Error("global level corrupted")
	}
}
