package client

import (
	"sync"

	"github.com/oklog/run"
)

// RunGroup runs a list of RunStop actors until one exits or Stop is called.
// It is a thin wrapper around run.Group that adds Stop.
type RunGroup struct {
	name     string
	stop     chan struct{}
	stopOnce sync.Once
	group    run.Group
}

// NewRunGroup creates a new group
func NewRunGroup(name string) *RunGroup {
	return &RunGroup{name: name, stop: make(chan struct{})}
}

// Add an actor to the group. All actors must be added before Run.
func (g *RunGroup) Add(actor RunStop) {
	g.group.Add(actor.Run, actor.Stop)
}

// Name of the group
func (g *RunGroup) Name() string {
	return g.name
}

// Run blocks until an actor exits or the group is stopped
func (g *RunGroup) Run() error {
	g.group.Add(func() error {
		<-g.stop
		return nil
	}, func(_ error) {
		g.Stop(nil)
	})

	return g.group.Run()
}

// Stop the group
func (g *RunGroup) Stop(_ error) {
	g.stopOnce.Do(func() { close(g.stop) })
}
