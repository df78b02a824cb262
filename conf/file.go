// Package conf keeps the key=value config file that holds log levels
// across daemon restarts.
package conf

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nodelog/slogd/data"
	"github.com/pkg/errors"
)

// Config keys that are not module names
const (
	KeyGlobalLevel = "global_level"
	KeyEnableEvent = "enableEvent"
)

// Limits
const (
	MaxFileSize = 10 * 1024
	MaxKeyLen   = 64
)

// File is a level config file. All writes from this process are serialized;
// writes from other processes are not detected.
type File struct {
	path      string
	allowDirs []string
	maxSize   int64
	lock      sync.Mutex
}

// NewFile returns a config file handle. The resolved file must live in one
// of allowDirs. If allowDirs is empty, only the directory of path is allowed.
func NewFile(path string, allowDirs []string) *File {
	if len(allowDirs) == 0 {
		allowDirs = []string{filepath.Dir(path)}
	}
	return &File{path: path, allowDirs: allowDirs, maxSize: MaxFileSize}
}

// Path returns the configured (unresolved) path
func (f *File) Path() string {
	return f.path
}

// resolve returns the canonical file path after checking it against the
// allow list
func (f *File) resolve() (string, error) {
	if f.path == "" {
		return "", errors.WithMessage(data.ErrArgumentNull, "config file path is empty")
	}

	abs, err := filepath.Abs(f.path)
	if err != nil {
		return "", errors.WithMessagef(data.ErrPathResolution, "file=%v: %v", f.path, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.WithMessagef(data.ErrPathResolution, "file=%v: %v", f.path, err)
	}

	dir := filepath.Dir(resolved)
	for _, d := range f.allowDirs {
		allowed, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		if r, err := filepath.EvalSymlinks(allowed); err == nil {
			allowed = r
		}
		if dir == allowed {
			return resolved, nil
		}
	}

	return "", errors.WithMessagef(data.ErrPathInvalid, "file=%v, realpath=%v", f.path, resolved)
}

// ReadAll validates the config path and size and returns the whole file
func (f *File) ReadAll() ([]byte, error) {
	resolved, err := f.resolve()
	if err != nil {
		return nil, err
	}

	fp, err := os.Open(resolved)
	if err != nil {
		return nil, errors.WithMessagef(data.ErrOpenFailed, "file=%v: %v", f.path, err)
	}
	defer fp.Close()

	st, err := fp.Stat()
	if err != nil {
		return nil, errors.WithMessagef(data.ErrReadFailed, "stat file=%v: %v", f.path, err)
	}

	if st.Size() <= 0 || st.Size() > f.maxSize {
		return nil, errors.WithMessagef(data.ErrReadFailed, "file size is invalid, file=%v, size=%v",
			f.path, st.Size())
	}

	buf := make([]byte, st.Size())
	if _, err := io.ReadFull(fp, buf); err != nil {
		return nil, errors.WithMessagef(data.ErrReadFailed, "file=%v: %v", f.path, err)
	}

	return buf, nil
}

func (f *File) write(buf []byte) error {
	resolved, err := f.resolve()
	if err != nil {
		return err
	}

	fp, err := os.OpenFile(resolved, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.WithMessagef(data.ErrOpenFailed, "file=%v: %v", f.path, err)
	}

	n, err := fp.Write(buf)
	cerr := fp.Close()
	if err != nil || n != len(buf) {
		return errors.WithMessagef(data.ErrSetLevel, "write file=%v, wrote %v of %v: %v",
			f.path, n, len(buf), err)
	}
	if cerr != nil {
		return errors.WithMessagef(data.ErrSetLevel, "close file=%v: %v", f.path, cerr)
	}

	return nil
}

// findValue returns the offset of the first value byte for key, or -1
func findValue(buf []byte, key string) int {
	pat := []byte(key + "=")
	if bytes.HasPrefix(buf, pat) {
		return len(pat)
	}
	i := bytes.Index(buf, append([]byte{'\n'}, pat...))
	if i < 0 {
		return -1
	}
	return i + 1 + len(pat)
}

// SetKey replaces the value of key with a single digit. The old value is
// blanked up to the end of line or a comment, so the file length does not
// change unless the old value was empty. A key that is not in the file is
// left alone and nil is returned.
func (f *File) SetKey(key string, digit int) error {
	if key == "" || len(key) > MaxKeyLen {
		return errors.WithMessagef(data.ErrInputInvalid, "config name is empty or too long, length=%v", len(key))
	}
	if digit < 0 || digit > 9 {
		return errors.WithMessagef(data.ErrInputInvalid, "config value %v is not a digit", digit)
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	buf, err := f.ReadAll()
	if err != nil {
		return err
	}

	start := findValue(buf, key)
	if start < 0 {
		return nil
	}

	end := start
	for end < len(buf) && !isValueEnd(buf[end]) {
		buf[end] = ' '
		end++
	}

	d := byte('0' + digit)
	if end == start {
		buf = append(buf[:start], append([]byte{d}, buf[start:]...)...)
	} else {
		buf[start] = d
	}

	return f.write(buf)
}

func isValueEnd(c byte) bool {
	return c == '\r' || c == '\n' || c == '#'
}

// ParseValues parses key=value lines. Text after '#' is a comment and
// surrounding white space is dropped. Later keys win.
func ParseValues(buf []byte) map[string]string {
	ret := make(map[string]string)

	for _, line := range strings.Split(string(buf), "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		ret[k] = strings.TrimSpace(v)
	}

	return ret
}

// Values reads and parses the config file
func (f *File) Values() (map[string]string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	buf, err := f.ReadAll()
	if err != nil {
		return nil, err
	}
	return ParseValues(buf), nil
}

// Exists returns true if the config file can be resolved
func (f *File) Exists() bool {
	_, err := f.resolve()
	if err != nil {
		log.Println("Config file not usable: ", err)
		return false
	}
	return true
}
