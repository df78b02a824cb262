//go:build !unix

package shm

import (
	"os"
	"path/filepath"
	"time"

	"github.com/nodelog/slogd/data"
	"github.com/pkg/errors"
)

// DefaultDir is where segments live when /dev/shm is not available
var DefaultDir = filepath.Join(os.TempDir(), "slogd-shm")

// FileStore keeps each segment in a plain file under Dir
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
	if err := os.MkdirAll(s.Dir, 0750); err != nil {
		return errors.WithMessagef(data.ErrShmUnavailable, "mkdir %v: %v", s.Dir, err)
	}
	_ = os.Remove(s.path(key))
	f, err := os.OpenFile(s.path(key), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0640)
	if err != nil {
		return errors.WithMessagef(data.ErrShmUnavailable, "create segment: %v", err)
	}
	defer f.Close()
	if err := f.Truncate(int64(size)); err != nil {
		return errors.WithMessagef(data.ErrShmUnavailable, "size segment: %v", err)
	}
	return nil
}

// Exists returns true if the segment file exists
func (s *FileStore) Exists(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// ReadAt copies len(p) bytes at off out of the segment
func (s *FileStore) ReadAt(key string, p []byte, off int) error {
	f, err := os.Open(s.path(key))
	if err != nil {
		return errors.WithMessagef(data.ErrShmUnavailable, "attach: %v", err)
	}
	defer f.Close()
	if _, err := f.ReadAt(p, int64(off)); err != nil {
		return errors.WithMessagef(data.ErrInputInvalid, "read %v@%v: %v", len(p), off, err)
	}
	return nil
}

// WriteAt copies p into the segment at off
func (s *FileStore) WriteAt(key string, p []byte, off int) error {
	f, err := os.OpenFile(s.path(key), os.O_RDWR, 0)
	if err != nil {
		return errors.WithMessagef(data.ErrShmUnavailable, "attach: %v", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || int64(off+len(p)) > st.Size() {
		return errors.WithMessagef(data.ErrInputInvalid, "write %v@%v outside segment", len(p), off)
	}
	if _, err := f.WriteAt(p, int64(off)); err != nil {
		return errors.WithMessagef(data.ErrShmUnavailable, "write: %v", err)
	}
	return nil
}

// Remove deletes the segment file
func (s *FileStore) Remove(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return errors.WithMessagef(data.ErrShmUnavailable, "remove: %v", err)
	}
	return nil
}

// lockRetry is the poll interval while another holder has the lock file
const lockRetry = 10 * time.Millisecond

// Lock creates <key>.lock exclusively and removes it on unlock. Without
// flock a holder that dies leaves the file behind.
func (s *FileStore) Lock(key string) (func(), error) {
	if err := os.MkdirAll(s.Dir, 0750); err != nil {
		return nil, errors.WithMessagef(data.ErrShmUnavailable, "mkdir %v: %v", s.Dir, err)
	}

	p := s.path(key) + ".lock"
	for {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
		if err == nil {
			f.Close()
			return func() { _ = os.Remove(p) }, nil
		}
		if !os.IsExist(err) {
			return nil, errors.WithMessagef(data.ErrShmUnavailable, "lock %v: %v", p, err)
		}
		time.Sleep(lockRetry)
	}
}
