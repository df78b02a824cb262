package client

import (
	"errors"
	"testing"
	"time"

	"github.com/nodelog/slogd/data"
	"github.com/nodelog/slogd/level"
	"github.com/nodelog/slogd/notify"
	"github.com/nodelog/slogd/shm"
)

func testRegistry(t *testing.T, names ...string) *data.Registry {
	var mods []data.ModuleDescriptor
	for _, n := range names {
		mods = append(mods, data.ModuleDescriptor{Name: n})
	}
	reg, err := data.NewRegistry(mods)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

type testNode struct {
	rs     *shm.MemoryStore
	sig    *notify.MemorySignal
	master *shm.Publisher
	store  *level.Store
}

func newTestNode(t *testing.T) *testNode {
	n := &testNode{
		rs:    shm.NewMemoryStore(),
		sig:   notify.NewMemorySignal(),
		store: level.NewStore(testRegistry(t, "SLOG", "HCCL", "RUNTIME")),
	}
	n.master = shm.NewPublisher(n.rs, "", data.AllDevices, "master")
	if err := n.master.Init("/etc/slog.conf"); err != nil {
		t.Fatal(err)
	}
	if err := n.master.PublishModuleCatalog(n.store.Registry().Names()); err != nil {
		t.Fatal(err)
	}
	return n
}

func (n *testNode) publish(t *testing.T) {
	if err := n.master.PublishLevels(level.EncodeStore(n.store)); err != nil {
		t.Fatal(err)
	}
	if err := n.sig.Endpoint(true).Publish(); err != nil {
		t.Fatal(err)
	}
}

func TestLevelClientRefresh(t *testing.T) {
	n := newTestNode(t)
	n.store.SetGlobal(data.SeverityWarning)
	n.store.SetEventEnabled(false)
	n.publish(t)

	local := level.NewStore(testRegistry(t, "SLOG", "HCCL", "RUNTIME"))
	c := NewLevelClient(shm.NewPublisher(n.rs, "", 2, "vf2"), local, n.sig.Endpoint(false))

	if err := c.Refresh(); err != nil {
		t.Fatal(err)
	}

	if c.GetGlobalLevel(data.ChannelDiagnostic) != data.SeverityWarning {
		t.Error("global: ", c.GetGlobalLevel(data.ChannelDiagnostic))
	}
	if c.GetGlobalLevel(data.ChannelOperational) != data.DefaultOperationalSeverity {
		t.Error("operational should be fixed")
	}
	if c.GetModuleLevel("hccl", data.ChannelDiagnostic) != data.SeverityWarning {
		t.Error("module: ", c.GetModuleLevel("HCCL", data.ChannelDiagnostic))
	}
	if c.GetModuleLevel("NOPE", data.ChannelDiagnostic) != data.SeverityInvalid {
		t.Error("unknown module should be invalid")
	}
	if c.GetEventEnabled() {
		t.Error("event should be disabled")
	}
	if local.Dirty() {
		t.Error("refresh should leave the store clean")
	}
}

func TestLevelClientCatalogMismatch(t *testing.T) {
	n := newTestNode(t)
	n.publish(t)

	local := level.NewStore(testRegistry(t, "SLOG", "RUNTIME", "HCCL"))
	c := NewLevelClient(shm.NewPublisher(n.rs, "", 2, "vf2"), local, n.sig.Endpoint(false))

	if err := c.Refresh(); !errors.Is(err, data.ErrShmUnavailable) {
		t.Fatal("expected ErrShmUnavailable, got: ", err)
	}
}

func TestLevelClientRun(t *testing.T) {
	n := newTestNode(t)
	n.publish(t)

	local := level.NewStore(testRegistry(t, "SLOG", "HCCL", "RUNTIME"))
	c := NewLevelClient(shm.NewPublisher(n.rs, "", 2, "vf2"), local, n.sig.Endpoint(false))

	done := make(chan error)
	go func() {
		done <- c.Run()
	}()

	deadline := time.Now().Add(5 * time.Second)
	for c.GetGlobalLevel(data.ChannelDiagnostic) != data.SeverityDebug {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for refresh")
		}
		n.store.SetGlobal(data.SeverityDebug)
		n.publish(t)
		time.Sleep(20 * time.Millisecond)
	}

	c.Stop(nil)
	c.Stop(nil)
	if err := <-done; err != nil {
		t.Error("run returned: ", err)
	}
}

func TestLevelClientStartBeforeMaster(t *testing.T) {
	rs := shm.NewMemoryStore()
	sig := notify.NewMemorySignal()

	local := level.NewStore(testRegistry(t, "SLOG", "HCCL", "RUNTIME"))
	c := NewLevelClient(shm.NewPublisher(rs, "", 2, "vf2"), local, sig.Endpoint(false))

	done := make(chan error)
	go func() {
		done <- c.Run()
	}()
	defer func() {
		c.Stop(nil)
		<-done
	}()

	// master comes up later and never signals
	store := level.NewStore(testRegistry(t, "SLOG", "HCCL", "RUNTIME"))
	store.SetGlobal(data.SeverityWarning)
	master := shm.NewPublisher(rs, "", data.AllDevices, "master")
	if err := master.Init("/etc/slog.conf"); err != nil {
		t.Fatal(err)
	}
	if err := master.PublishModuleCatalog(store.Registry().Names()); err != nil {
		t.Fatal(err)
	}
	if err := master.PublishLevels(level.EncodeStore(store)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(8 * time.Second)
	for c.GetGlobalLevel(data.ChannelDiagnostic) != data.SeverityWarning {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for start up refresh")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
