package live

import (
	"time"
)

// State is the live session lifecycle state.
type State int

const (
	// StateIdle is the initial state before Start.
	StateIdle State = iota
	// StateConnecting covers the credential check and the client media
	// acquisition.
	StateConnecting
	// StateAwaitingMedia is after capture is acquired, while the upstream
	// model connection is dialed.
	StateAwaitingMedia
	// StateStreaming is the steady duplex state: capture flows upstream,
	// nothing is being played back.
	StateStreaming
	// StateSpeaking is while scheduled model audio is still playing.
	StateSpeaking
	// StateInterrupted is the momentary state while a barge-in flushes
	// scheduled playback.
	StateInterrupted
	// StateClosing is while teardown runs.
	StateClosing
	// StateClosed is terminal after a clean teardown.
	StateClosed
	// StateFailed is terminal after a setup or transport failure. Resources
	// are still released by an explicit Close.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingMedia:
		return "AWAITING_MEDIA"
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StateSpeaking:
		return "SPEAKING"
	case StateInterrupted:
		return "INTERRUPTED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions can occur except Close.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Config holds the tunables of a live session.
type Config struct {
	// InputSampleRate is the rate expected by the model, after downsampling.
	InputSampleRate int `json:"input_sample_rate"`

	// OutputSampleRate is the rate of model audio scheduled for playback.
	OutputSampleRate int `json:"output_sample_rate"`

	// FrameSize is the number of samples per upstream audio frame.
	FrameSize int `json:"frame_size"`

	// VideoFrameInterval is how often the most recent camera frame is
	// forwarded upstream.
	VideoFrameInterval time.Duration `json:"video_frame_interval"`

	// MediaStartTimeout bounds client media acquisition.
	MediaStartTimeout time.Duration `json:"media_start_timeout"`

	// DialTimeout bounds the upstream connect.
	DialTimeout time.Duration `json:"dial_timeout"`

	// EventBuffer is the outbound event channel capacity.
	EventBuffer int `json:"event_buffer"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		InputSampleRate:    16000,
		OutputSampleRate:   24000,
		FrameSize:          DefaultFrameSize,
		VideoFrameInterval: 500 * time.Millisecond,
		MediaStartTimeout:  10 * time.Second,
		DialTimeout:        15 * time.Second,
		EventBuffer:        256,
	}
}
