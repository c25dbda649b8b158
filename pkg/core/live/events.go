package live

import (
	"time"
)

// Event is emitted by a Session for its consumer (typically the WebSocket
// handler bridging to the browser).
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent reports a lifecycle transition.
type StateChangedEvent struct {
	From State `json:"from"`
	To   State `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state_changed" }

// AudioOutEvent carries one scheduled playback buffer of model audio.
type AudioOutEvent struct {
	// BufferID identifies the buffer until its completion or flush.
	BufferID string
	// PCM is 16-bit little-endian mono audio at the output sample rate.
	PCM []byte
	// StartAt is the absolute scheduled start.
	StartAt time.Time
	// Duration is the buffer's playback length.
	Duration time.Duration
}

func (e *AudioOutEvent) EventType() string { return "audio_out" }

// AudioResetEvent tells the consumer to drop everything it has scheduled.
type AudioResetEvent struct {
	// Reason is "interrupted" for barge-ins, "closing" on teardown.
	Reason string `json:"reason"`
	// Flushed is how many scheduled buffers were discarded.
	Flushed int `json:"flushed"`
}

func (e *AudioResetEvent) EventType() string { return "audio_reset" }

// LevelEvent reports capture energy for the client level meter.
type LevelEvent struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

func (e *LevelEvent) EventType() string { return "level" }

// TurnCompleteEvent reports that the model finished a response turn.
type TurnCompleteEvent struct{}

func (e *TurnCompleteEvent) EventType() string { return "turn_complete" }

// PlaybackDrainedEvent reports that all scheduled audio finished playing.
type PlaybackDrainedEvent struct{}

func (e *PlaybackDrainedEvent) EventType() string { return "playback_drained" }

// SessionErrorEvent reports a setup or transport failure.
type SessionErrorEvent struct {
	Err error `json:"-"`
}

func (e *SessionErrorEvent) EventType() string { return "session_error" }

// ClosedEvent is the final event on a session's channel.
type ClosedEvent struct{}

func (e *ClosedEvent) EventType() string { return "closed" }
