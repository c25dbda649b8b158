// Package lifecycle holds the process drain flag shared across handlers.
// Once draining, the gateway refuses new quest submissions and live
// sessions while in-flight work finishes.
package lifecycle

import "sync/atomic"

type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
