// Package sessions tracks active live tutoring connections so the server
// can cancel them and wait for cleanup during shutdown.
package sessions

import (
	"context"
	"sync"
)

type Tracker struct {
	mu     sync.Mutex
	active map[string]*entry
	wg     sync.WaitGroup
}

type entry struct {
	cancel func()
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*entry)}
}

// Register records a live connection under its session ID and returns the
// unregister func. Registering the same ID twice cancels the older
// connection.
func (t *Tracker) Register(sessionID string, cancel func()) (unregister func()) {
	if t == nil {
		return func() {}
	}

	e := &entry{cancel: cancel}

	t.mu.Lock()
	old := t.active[sessionID]
	t.active[sessionID] = e
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		if old.cancel != nil {
			old.cancel()
		}
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, e) }
}

func (t *Tracker) unregister(sessionID string, e *entry) {
	e.once.Do(func() {
		t.mu.Lock()
		if t.active[sessionID] == e {
			delete(t.active, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// CancelAll asks every live connection to shut down. Connections
// unregister themselves as their handlers return.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, e := range t.active {
		if e.cancel != nil {
			cancels = append(cancels, e.cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered connection has unregistered or the
// context expires. Returns false on timeout.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	if ctx == nil {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
