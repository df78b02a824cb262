package notify

import "sync"

// MemorySignal is an in-process change signal shared by several instances.
// Each instance gets an Endpoint.
type MemorySignal struct {
	lock      sync.Mutex
	watchers  map[chan struct{}]struct{}
	published int
}

// NewMemorySignal returns a signal with no watchers
func NewMemorySignal() *MemorySignal {
	return &MemorySignal{watchers: make(map[chan struct{}]struct{})}
}

// Published returns the number of signals sent by master endpoints
func (m *MemorySignal) Published() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.published
}

func (m *MemorySignal) publish() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.published++
	for c := range m.watchers {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

func (m *MemorySignal) watch(stop <-chan struct{}, onChange func()) error {
	c := make(chan struct{}, 1)

	m.lock.Lock()
	m.watchers[c] = struct{}{}
	m.lock.Unlock()

	defer func() {
		m.lock.Lock()
		delete(m.watchers, c)
		m.lock.Unlock()
	}()

	for {
		select {
		case <-stop:
			return nil
		case <-c:
			onChange()
		}
	}
}

// Endpoint returns the Signal for one instance. Publish on a non master
// endpoint does nothing.
func (m *MemorySignal) Endpoint(master bool) Signal {
	return &memoryEndpoint{m: m, master: master}
}

type memoryEndpoint struct {
	m      *MemorySignal
	master bool
}

func (e *memoryEndpoint) Publish() error {
	if e.master {
		e.m.publish()
	}
	return nil
}

func (e *memoryEndpoint) Watch(stop <-chan struct{}, onChange func()) error {
	return e.m.watch(stop, onChange)
}
