package notify

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nodelog/slogd/data"
)

// SentinelName is the sentinel file created in the workspace
const SentinelName = "level_notify"

// SentinelMode is the mode of the sentinel file
const SentinelMode os.FileMode = 0640

// DefaultPollInterval is used when the file watch cannot be set up
const DefaultPollInterval = 3 * time.Second

var errRearm = errors.New("sentinel removed")

// FileSignal signals a change by recreating a sentinel file. Readers watch
// the file with fsnotify and fall back to polling when the watch fails.
type FileSignal struct {
	path   string
	master bool

	// Available is polled when the watch is down. A nil return triggers
	// onChange.
	Available    func() error
	PollInterval time.Duration
}

// NewFileSignal returns a signal on the sentinel in workspace. Only a master
// signal writes the sentinel.
func NewFileSignal(workspace string, master bool, available func() error) *FileSignal {
	return &FileSignal{
		path:         filepath.Join(workspace, SentinelName),
		master:       master,
		Available:    available,
		PollInterval: DefaultPollInterval,
	}
}

// Path of the sentinel file
func (s *FileSignal) Path() string {
	return s.path
}

// Publish removes and recreates the sentinel. VF instances return nil
// without touching it.
func (s *FileSignal) Publish() error {
	if !s.master {
		return nil
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %v: %v", data.ErrNotifyFailed, s.path, err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, SentinelMode)
	if err != nil {
		return fmt.Errorf("%w: create %v: %v", data.ErrNotifyFailed, s.path, err)
	}
	defer f.Close()

	// umask may have stripped bits
	if err := f.Chmod(SentinelMode); err != nil {
		return fmt.Errorf("%w: chmod %v: %v", data.ErrNotifyFailed, s.path, err)
	}

	_, err = f.WriteString(strconv.FormatInt(time.Now().UnixNano(), 10))
	if err != nil {
		return fmt.Errorf("%w: write %v: %v", data.ErrNotifyFailed, s.path, err)
	}

	return nil
}

// Watch runs until stop is closed. A removed sentinel re-arms the watch,
// and onChange is called once the new watch is up since the recreate itself
// is a change.
func (s *FileSignal) Watch(stop <-chan struct{}, onChange func()) error {
	rearmed := false
	for {
		err := s.watch(stop, onChange, rearmed)
		if err == nil {
			return nil
		}

		rearmed = true
		if errors.Is(err, errRearm) {
			continue
		}

		log.Println("notify: watch failed, polling: ", err)

		select {
		case <-stop:
			return nil
		case <-time.After(s.PollInterval):
		}

		if s.Available == nil {
			continue
		}
		if err := s.Available(); err == nil {
			onChange()
		}
	}
}

// watch returns nil when stopped
func (s *FileSignal) watch(stop <-chan struct{}, onChange func(), rearmed bool) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", data.ErrNotifyInit, err)
	}
	defer w.Close()

	if err := w.Add(s.path); err != nil {
		return fmt.Errorf("%w: watch %v: %v", data.ErrNotifyInit, s.path, err)
	}

	if rearmed {
		onChange()
	}

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("%w: event channel closed", data.ErrNotifyInit)
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return errRearm
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) != 0 {
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("%w: error channel closed", data.ErrNotifyInit)
			}
			return fmt.Errorf("%w: %v", data.ErrNotifyInit, err)
		}
	}
}
