// Package notify tells other processes on the node that the published level
// snapshot changed.
package notify

// Signal is a change signal. Publish is called by the writer after the
// snapshot is updated; Watch blocks calling onChange for every signal seen
// until stop is closed.
type Signal interface {
	Publish() error
	Watch(stop <-chan struct{}, onChange func()) error
}
