package shm

import (
	"fmt"
	"sync"

	"github.com/nodelog/slogd/data"
)

// MemoryStore is an in-process RegionStore. Several publishers sharing one
// MemoryStore behave like processes sharing /dev/shm.
type MemoryStore struct {
	lock  sync.Mutex
	segs  map[string][]byte
	locks map[string]*sync.Mutex
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		segs:  make(map[string][]byte),
		locks: make(map[string]*sync.Mutex),
	}
}

// Create a zeroed segment
func (m *MemoryStore) Create(key string, size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: segment size %v", data.ErrInputInvalid, size)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.segs[key] = make([]byte, size)
	return nil
}

// Exists returns true if the segment exists
func (m *MemoryStore) Exists(key string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	_, ok := m.segs[key]
	return ok
}

func (m *MemoryStore) segment(key string, n, off int) ([]byte, error) {
	seg, ok := m.segs[key]
	if !ok {
		return nil, fmt.Errorf("%w: segment %v does not exist", data.ErrShmUnavailable, key)
	}
	if off < 0 || off+n > len(seg) {
		return nil, fmt.Errorf("%w: access %v@%v outside segment %v of size %v",
			data.ErrInputInvalid, n, off, key, len(seg))
	}
	return seg, nil
}

// ReadAt copies len(p) bytes at off out of the segment
func (m *MemoryStore) ReadAt(key string, p []byte, off int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	seg, err := m.segment(key, len(p), off)
	if err != nil {
		return err
	}
	copy(p, seg[off:])
	return nil
}

// WriteAt copies p into the segment at off
func (m *MemoryStore) WriteAt(key string, p []byte, off int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	seg, err := m.segment(key, len(p), off)
	if err != nil {
		return err
	}
	copy(seg[off:], p)
	return nil
}

// Remove deletes a segment. Removing a missing segment is not an error.
func (m *MemoryStore) Remove(key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.segs, key)
	return nil
}

// Lock takes the named lock
func (m *MemoryStore) Lock(key string) (func(), error) {
	m.lock.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.lock.Unlock()

	l.Lock()
	return l.Unlock, nil
}
