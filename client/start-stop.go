package client

// RunStop is implemented by long running actors such as the RPC loop and
// the level watcher.
// Stop may be called after Run has exited when used with run.Group, so Stop
// must never block.
type RunStop interface {
	Run() error
	Stop(error)
}
