package shm

import (
	"bytes"
	"encoding/binary"
	"log"

	"github.com/nodelog/slogd/data"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// the owner record lives in its own small segment next to the level segment
const (
	ownerSuffix = ".owner"
	ownerLen    = 64
	ownerIDLen  = ownerLen - 4
)

// Owner is the write owner of a segment
type Owner struct {
	PID int32
	ID  string
}

func ownerKey(key string) string {
	return key + ownerSuffix
}

// ReadOwner returns the current owner record of the segment key
func ReadOwner(rs RegionStore, key string) (Owner, error) {
	if !rs.Exists(ownerKey(key)) {
		return Owner{}, errors.WithMessagef(data.ErrShmUnavailable, "no owner for %v", key)
	}

	buf := make([]byte, ownerLen)
	if err := rs.ReadAt(ownerKey(key), buf, 0); err != nil {
		return Owner{}, err
	}

	id := buf[4:]
	if i := bytes.IndexByte(id, 0); i >= 0 {
		id = id[:i]
	}

	return Owner{
		PID: int32(binary.LittleEndian.Uint32(buf[0:4])),
		ID:  string(id),
	}, nil
}

// acquireOwner claims write ownership of key for the process self. The
// read, liveness check and write run under the owner lock so two masters
// starting together cannot both win. A record left by a process that no
// longer exists is taken over.
func acquireOwner(rs RegionStore, key, id string, self int32) error {
	unlock, err := rs.Lock(ownerKey(key))
	if err != nil {
		return err
	}
	defer unlock()

	cur, err := ReadOwner(rs, key)
	if err == nil && cur.PID != self && cur.PID > 0 {
		alive, err := process.PidExists(cur.PID)
		if err != nil {
			log.Printf("shm: error checking owner pid %v: %v", cur.PID, err)
		}
		if alive {
			return errors.WithMessagef(data.ErrOwnerConflict, "%v held by pid %v (%v)",
				key, cur.PID, cur.ID)
		}
		log.Printf("shm: taking over %v from stale owner pid %v (%v)", key, cur.PID, cur.ID)
	}

	if len(id) > ownerIDLen {
		id = id[:ownerIDLen]
	}

	buf := make([]byte, ownerLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(self))
	copy(buf[4:], id)

	if err := rs.Create(ownerKey(key), ownerLen); err != nil {
		return err
	}
	return rs.WriteAt(ownerKey(key), buf, 0)
}

// releaseOwner removes the owner record if self holds it
func releaseOwner(rs RegionStore, key string, self int32) error {
	unlock, err := rs.Lock(ownerKey(key))
	if err != nil {
		return err
	}
	defer unlock()

	cur, err := ReadOwner(rs, key)
	if err != nil {
		return nil
	}
	if cur.PID != self {
		return errors.WithMessagef(data.ErrNotMaster, "%v owned by pid %v", key, cur.PID)
	}
	return rs.Remove(ownerKey(key))
}
