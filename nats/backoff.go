package nats

import (
	"math"
	"math/rand"
	"time"
)

// ExpBackoff calculates an exponential delay capped at max, plus a random
// fraction of 1s
func ExpBackoff(attempts int, max time.Duration) time.Duration {
	delay := time.Duration(math.Exp2(float64(attempts))) * time.Second
	if delay > max || delay <= 0 {
		delay = max
	}
	// spread out clients reconnecting at once
	delay = delay + time.Duration(rand.Float32()*1000)*time.Millisecond
	return delay
}

// Sleep waits d or until stop is closed. Returns false if stopped.
func Sleep(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
