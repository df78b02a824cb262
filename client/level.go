package client

import (
	"log"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/go-cmp/cmp"
	"github.com/nodelog/slogd/data"
	"github.com/nodelog/slogd/level"
	natsc "github.com/nodelog/slogd/nats"
	"github.com/nodelog/slogd/notify"
	"github.com/nodelog/slogd/shm"
	"github.com/pkg/errors"
)

var snapshotRefresh = metrics.NewCounter("slogd_snapshot_refresh_total")

// refresh retries when a snapshot is caught mid write
const (
	refreshAttempts = 3
	refreshRetry    = 20 * time.Millisecond
)

// maxStartBackoff caps the delay between start up refresh attempts while
// the master has not published yet
const maxStartBackoff = 30 * time.Second

// LevelClient keeps a local level store in sync with the snapshot the master
// publishes. It wakes on the change signal, reads the snapshot out of shared
// memory and decodes it into the store.
type LevelClient struct {
	pub      *shm.Publisher
	store    *level.Store
	signal   notify.Signal
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLevelClient returns a client that refreshes store from pub whenever
// signal fires
func NewLevelClient(pub *shm.Publisher, store *level.Store, signal notify.Signal) *LevelClient {
	return &LevelClient{
		pub:    pub,
		store:  store,
		signal: signal,
		stop:   make(chan struct{}),
	}
}

// Store returns the local store
func (c *LevelClient) Store() *level.Store {
	return c.store
}

func (c *LevelClient) refresh() error {
	names, err := c.pub.ReadModuleCatalog()
	if err != nil {
		return err
	}

	if diff := cmp.Diff(c.store.Registry().Names(), names); diff != "" {
		return errors.WithMessagef(data.ErrShmUnavailable, "module catalog mismatch (-local +published):\n%v", diff)
	}

	buf, err := c.pub.ReadLevels()
	if err != nil {
		return err
	}

	if err := level.DecodeInto(c.store, buf); err != nil {
		return err
	}

	c.store.ClearDirty()
	snapshotRefresh.Inc()
	return nil
}

// Refresh reads the published snapshot into the local store
func (c *LevelClient) Refresh() error {
	var err error
	for i := 0; i < refreshAttempts; i++ {
		err = c.refresh()
		if err == nil {
			return nil
		}
		time.Sleep(refreshRetry)
	}
	return err
}

// startRefresh retries until the first snapshot is read. A VF may start
// before the master has published anything.
func (c *LevelClient) startRefresh() {
	for attempt := 0; ; attempt++ {
		err := c.Refresh()
		if err == nil {
			return
		}
		if attempt == 0 {
			log.Println("Level client initial refresh, retrying: ", err)
		}
		if !natsc.Sleep(c.stop, natsc.ExpBackoff(attempt, maxStartBackoff)) {
			return
		}
	}
}

// Run refreshes on start up, then on every change signal until stopped
func (c *LevelClient) Run() error {
	go c.startRefresh()

	return c.signal.Watch(c.stop, func() {
		if err := c.Refresh(); err != nil {
			log.Println("Error refreshing levels: ", err)
		}
	})
}

// Stop the client
func (c *LevelClient) Stop(_ error) {
	c.stopOnce.Do(func() { close(c.stop) })
}

// GetGlobalLevel returns the global level of a channel
func (c *LevelClient) GetGlobalLevel(ch data.Channel) data.Severity {
	return c.store.GetGlobal(ch)
}

// GetModuleLevel returns a module's level by name. Unknown names return
// SeverityInvalid.
func (c *LevelClient) GetModuleLevel(name string, ch data.Channel) data.Severity {
	m, ok := c.store.Registry().ByName(name)
	if !ok {
		return data.SeverityInvalid
	}
	return c.store.GetModule(m.ID, ch)
}

// GetEventEnabled returns the event channel state
func (c *LevelClient) GetEventEnabled() bool {
	return c.store.GetEventEnabled()
}
