// Package client holds the consumer side of the level plane and the actor
// plumbing shared with the daemon.
package client
