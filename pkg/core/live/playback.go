package live

import (
	"fmt"
	"time"
)

// ScheduledBuffer is one chunk of model audio placed on the playback
// timeline.
type ScheduledBuffer struct {
	ID       string
	StartAt  time.Time
	Duration time.Duration
}

// End returns the instant the buffer finishes playing.
func (b ScheduledBuffer) End() time.Time {
	return b.StartAt.Add(b.Duration)
}

// Scheduler places incoming audio chunks on a gapless timeline and tracks
// them until they complete or are flushed. Each chunk starts at
// max(now, cursor) and advances the cursor by its duration, so chunks that
// arrive faster than real time queue back to back with no gaps or overlap,
// and a chunk arriving after a silence starts immediately.
//
// Scheduler is not goroutine safe: the session run loop is its only caller.
type Scheduler struct {
	now     func() time.Time
	cursor  time.Time
	tracked map[string]ScheduledBuffer
	seq     int64
}

// NewScheduler builds a scheduler on the given clock. A nil clock uses
// time.Now.
func NewScheduler(now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		now:     now,
		tracked: make(map[string]ScheduledBuffer),
	}
}

// Schedule assigns the next start slot to a chunk of the given duration
// and tracks it until Prune or Flush removes it.
func (s *Scheduler) Schedule(d time.Duration) ScheduledBuffer {
	now := s.now()
	start := now
	if s.cursor.After(now) {
		start = s.cursor
	}
	s.cursor = start.Add(d)
	s.seq++
	buf := ScheduledBuffer{
		ID:       fmt.Sprintf("buf_%d", s.seq),
		StartAt:  start,
		Duration: d,
	}
	s.tracked[buf.ID] = buf
	return buf
}

// Prune drops buffers that have finished playing and returns how many
// remain scheduled or playing.
func (s *Scheduler) Prune() int {
	now := s.now()
	for id, buf := range s.tracked {
		if !buf.End().After(now) {
			delete(s.tracked, id)
		}
	}
	return len(s.tracked)
}

// Active returns the number of tracked buffers, including ones that
// already finished but have not been pruned.
func (s *Scheduler) Active() int {
	return len(s.tracked)
}

// DrainDeadline returns the instant the last tracked buffer finishes.
// ok is false when nothing is tracked.
func (s *Scheduler) DrainDeadline() (time.Time, bool) {
	var deadline time.Time
	found := false
	for _, buf := range s.tracked {
		if end := buf.End(); !found || end.After(deadline) {
			deadline = end
			found = true
		}
	}
	return deadline, found
}

// Flush discards every tracked buffer, played or not, and resets the
// cursor so the next chunk starts immediately. Returns the number of
// buffers discarded. This is the barge-in path: one synchronous sweep,
// no per-buffer scheduling decisions.
func (s *Scheduler) Flush() int {
	n := len(s.tracked)
	for id := range s.tracked {
		delete(s.tracked, id)
	}
	s.cursor = time.Time{}
	return n
}
