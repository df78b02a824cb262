package shm

import (
	"errors"
	"os"
	"runtime"
	"sync"
	"testing"

	"github.com/nodelog/slogd/data"
)

// testOwnerRace starts two claims at once from two live pids. Exactly one
// may win, every time.
func testOwnerRace(t *testing.T, newStore func() RegionStore) {
	if runtime.GOOS != "linux" {
		t.Skip("pid liveness check only exercised on linux")
	}

	pids := []int32{int32(os.Getpid()), int32(os.Getppid())}

	for i := 0; i < 50; i++ {
		rs := newStore()
		start := make(chan struct{})
		errs := make([]error, len(pids))

		var wg sync.WaitGroup
		for j, pid := range pids {
			wg.Add(1)
			go func(j int, pid int32) {
				defer wg.Done()
				<-start
				errs[j] = acquireOwner(rs, DefaultKey, "master", pid)
			}(j, pid)
		}
		close(start)
		wg.Wait()

		won := 0
		for _, err := range errs {
			switch {
			case err == nil:
				won++
			case !errors.Is(err, data.ErrOwnerConflict):
				t.Fatal("unexpected error: ", err)
			}
		}
		if won != 1 {
			t.Fatalf("iteration %v: %v owners, errors: %v", i, won, errs)
		}

		owner, err := ReadOwner(rs, DefaultKey)
		if err != nil {
			t.Fatal(err)
		}
		winner := pids[0]
		if errs[0] != nil {
			winner = pids[1]
		}
		if owner.PID != winner {
			t.Errorf("record pid %v, winner %v", owner.PID, winner)
		}
	}
}

func TestOwnerRaceMemory(t *testing.T) {
	testOwnerRace(t, func() RegionStore { return NewMemoryStore() })
}

func TestOwnerLiveRecordKept(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("pid liveness check only exercised on linux")
	}

	rs := NewMemoryStore()
	other := int32(os.Getppid())
	if err := acquireOwner(rs, DefaultKey, "first", other); err != nil {
		t.Fatal(err)
	}

	if err := acquireOwner(rs, DefaultKey, "second", int32(os.Getpid())); !errors.Is(err, data.ErrOwnerConflict) {
		t.Fatal("expected ErrOwnerConflict, got: ", err)
	}

	owner, err := ReadOwner(rs, DefaultKey)
	if err != nil {
		t.Fatal(err)
	}
	if owner.PID != other || owner.ID != "first" {
		t.Errorf("live record replaced: %+v", owner)
	}

	if err := releaseOwner(rs, DefaultKey, int32(os.Getpid())); !errors.Is(err, data.ErrNotMaster) {
		t.Error("release by a non owner should fail, got: ", err)
	}
	if !rs.Exists(ownerKey(DefaultKey)) {
		t.Error("record removed by a non owner")
	}
}
