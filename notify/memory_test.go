package notify

import (
	"sync/atomic"
	"testing"
)

func TestMemorySignal(t *testing.T) {
	m := NewMemorySignal()
	master := m.Endpoint(true)
	vf := m.Endpoint(false)

	var count int32
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = vf.Watch(stop, func() { atomic.AddInt32(&count, 1) })
		close(done)
	}()

	if err := vf.Publish(); err != nil {
		t.Fatal(err)
	}
	if m.Published() != 0 {
		t.Fatal("vf publish counted")
	}

	waitChange(t, master.Publish, &count, 0)

	close(stop)
	<-done
}
