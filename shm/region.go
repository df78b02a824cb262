// Package shm publishes the level snapshot to a shared memory segment that
// unrelated processes on the node can read.
package shm

// RegionStore is a set of fixed-size shared memory segments addressed by
// key. Every ReadAt/WriteAt is an independent attach, copy, detach; there is
// no locking across processes.
type RegionStore interface {
	// Create makes a new zeroed segment, replacing any existing one
	Create(key string, size int) error
	Exists(key string) bool
	ReadAt(key string, p []byte, off int) error
	WriteAt(key string, p []byte, off int) error
	Remove(key string) error
	// Lock takes an exclusive lock named key, blocking until it is free.
	// The lock is dropped by the returned func or when the process dies.
	Lock(key string) (unlock func(), err error)
}
