//go:build unix

package shm

import (
	"os"
	"path/filepath"

	"github.com/nodelog/slogd/data"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DefaultDir is where segments live on linux
const DefaultDir = "/dev/shm"

// FileStore keeps each segment in a file under Dir and maps it for every
// access.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.Dir, key)
}

// Create makes a new zeroed segment of size bytes
func (s *FileStore) Create(key string, size int) error {
	if size <= 0 {
		return errors.WithMessagef(data.ErrInputInvalid, "segment size %v", size)
	}

	p := s.path(key)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.WithMessagef(data.ErrShmUnavailable, "remove stale segment %v: %v", p, err)
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0640)
	if err != nil {
		return errors.WithMessagef(data.ErrShmUnavailable, "create segment %v: %v", p, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return errors.WithMessagef(data.ErrShmUnavailable, "size segment %v: %v", p, err)
	}

	return nil
}

// Exists returns true if the segment file exists
func (s *FileStore) Exists(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// attach maps the whole segment. The returned func unmaps and closes it.
func (s *FileStore) attach(key string, write bool) ([]byte, func(), error) {
	flag, prot := os.O_RDONLY, unix.PROT_READ
	if write {
		flag, prot = os.O_RDWR, unix.PROT_READ|unix.PROT_WRITE
	}

	p := s.path(key)
	f, err := os.OpenFile(p, flag, 0)
	if err != nil {
		return nil, nil, errors.WithMessagef(data.ErrShmUnavailable, "attach %v: %v", p, err)
	}

	st, err := f.Stat()
	if err != nil || st.Size() <= 0 {
		f.Close()
		return nil, nil, errors.WithMessagef(data.ErrShmUnavailable, "stat %v: %v", p, err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), prot, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, errors.WithMessagef(data.ErrShmUnavailable, "mmap %v: %v", p, err)
	}

	return mem, func() {
		_ = unix.Munmap(mem)
		f.Close()
	}, nil
}

// ReadAt copies len(p) bytes at off out of the segment
func (s *FileStore) ReadAt(key string, p []byte, off int) error {
	mem, detach, err := s.attach(key, false)
	if err != nil {
		return err
	}
	defer detach()

	if off < 0 || off+len(p) > len(mem) {
		return errors.WithMessagef(data.ErrInputInvalid, "read %v@%v outside segment of size %v",
			len(p), off, len(mem))
	}
	copy(p, mem[off:])
	return nil
}

// WriteAt copies p into the segment at off
func (s *FileStore) WriteAt(key string, p []byte, off int) error {
	mem, detach, err := s.attach(key, true)
	if err != nil {
		return err
	}
	defer detach()

	if off < 0 || off+len(p) > len(mem) {
		return errors.WithMessagef(data.ErrInputInvalid, "write %v@%v outside segment of size %v",
			len(p), off, len(mem))
	}
	copy(mem[off:], p)
	return nil
}

// Remove deletes the segment file
func (s *FileStore) Remove(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return errors.WithMessagef(data.ErrShmUnavailable, "remove %v: %v", s.path(key), err)
	}
	return nil
}

// Lock takes a flock on <key>.lock. The lock file is left in place; the
// kernel drops the lock if the holder dies.
func (s *FileStore) Lock(key string) (func(), error) {
	p := s.path(key) + ".lock"
	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, 0640)
	if err != nil {
		return nil, errors.WithMessagef(data.ErrShmUnavailable, "open lock %v: %v", p, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, errors.WithMessagef(data.ErrShmUnavailable, "lock %v: %v", p, err)
	}

	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
