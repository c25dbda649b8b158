package live

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/questlab/geminiquest/pkg/core"
)

// ServerMessage is one decoded message from the upstream model connection.
type ServerMessage struct {
	// Audio is 16-bit little-endian mono PCM at the output sample rate.
	Audio []byte
	// Interrupted reports that the model abandoned its current response
	// because the user spoke over it.
	Interrupted bool
	// TurnComplete reports the end of a model response turn.
	TurnComplete bool
}

// Upstream is a duplex connection to the model backend.
type Upstream interface {
	SendAudio(pcm []byte, sampleRateHz int) error
	SendVideo(data []byte, mime string) error
	// Receive blocks for the next message and errors when the connection
	// is gone.
	Receive() (*ServerMessage, error)
	Close() error
}

// Dialer opens upstream connections.
type Dialer interface {
	// CheckCredential fails fast when no usable API credential exists.
	// Called before any media or network work.
	CheckCredential() error
	Dial(ctx context.Context) (Upstream, error)
}

// VideoFrame is one camera capture from the client.
type VideoFrame struct {
	Data []byte
	MIME string
}

// MediaSource is the client capture leg: microphone samples and camera
// frames. Stop must cause both channels to close.
type MediaSource interface {
	Start(ctx context.Context) error
	// SampleRate is the capture rate of AudioFrames samples.
	SampleRate() int
	AudioFrames() <-chan []float64
	VideoFrames() <-chan VideoFrame
	Stop() error
}

type (
	cmdServerAudio   struct{ pcm []byte }
	cmdInterrupt     struct{ reason string }
	cmdTurnComplete  struct{}
	cmdLevel         struct{ rms, peak float64 }
	cmdUpstreamError struct{ err error }
	cmdClose         struct{}
)

// Session is one live tutoring conversation. All state transitions and all
// playback bookkeeping happen on a single run loop goroutine consuming an
// internal command channel; producers and the upstream reader only ever
// submit commands.
type Session struct {
	cfg    Config
	dialer Dialer
	media  MediaSource
	logger *zap.Logger
	clock  func() time.Time

	events   chan Event
	commands chan any
	done     chan struct{}
	stopProd chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64
	state     atomic.Int32

	upstream Upstream
	sched    *Scheduler
	started  bool

	drainTimer *time.Timer
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithClock injects the scheduling clock.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.clock = now }
}

// NewSession builds a live session. Start must be called to open it.
func NewSession(cfg Config, dialer Dialer, media MediaSource, opts ...Option) *Session {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	s := &Session{
		cfg:      cfg,
		dialer:   dialer,
		media:    media,
		logger:   zap.NewNop(),
		clock:    time.Now,
		events:   make(chan Event, cfg.EventBuffer),
		commands: make(chan any, 64),
		done:     make(chan struct{}),
		stopProd: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sched = NewScheduler(s.clock)
	return s
}

// Events is the session's outbound event stream. It is closed after the
// final ClosedEvent.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Dropped reports how many events were discarded because the consumer
// lagged.
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

// Start opens the session: credential check, media acquisition, upstream
// dial, in that order. Any failure releases whatever was acquired, leaves
// the session in StateFailed and returns the error.
func (s *Session) Start(ctx context.Context) error {
	if State(s.state.Load()) != StateIdle {
		return core.NewInvalidRequestError("session already started")
	}

	s.transition(StateConnecting)
	if err := s.dialer.CheckCredential(); err != nil {
		return s.failSetup(err, nil)
	}

	mediaCtx, cancel := context.WithTimeout(ctx, s.cfg.MediaStartTimeout)
	err := s.media.Start(mediaCtx)
	cancel()
	if err != nil {
		return s.failSetup(err, nil)
	}

	s.transition(StateAwaitingMedia)
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	upstream, err := s.dialer.Dial(dialCtx)
	cancel()
	if err != nil {
		return s.failSetup(err, s.media.Stop)
	}
	s.upstream = upstream

	s.transition(StateStreaming)
	s.started = true
	s.drainTimer = time.NewTimer(time.Hour)
	if !s.drainTimer.Stop() {
		<-s.drainTimer.C
	}

	go s.run()
	go s.readUpstream()
	go s.audioProducer()
	go s.videoProducer()
	return nil
}

// failSetup releases the partially acquired resources and parks the
// session in StateFailed.
func (s *Session) failSetup(err error, release func() error) error {
	if release != nil {
		if rerr := release(); rerr != nil {
			s.logger.Warn("release during failed setup", zap.Error(rerr))
		}
	}
	s.transition(StateFailed)
	s.emit(&SessionErrorEvent{Err: err})
	s.logger.Error("live session setup failed", zap.Error(err))
	return err
}

// Interrupt flushes scheduled playback in response to a client barge-in.
func (s *Session) Interrupt() {
	s.submit(cmdInterrupt{reason: "client"})
}

// Close tears the session down. Safe to call from any state and more than
// once; it blocks until teardown finished.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if !s.started {
			// Setup never completed; nothing is running.
			if !s.State().Terminal() {
				s.transition(StateClosing)
				if err := s.media.Stop(); err != nil {
					s.logger.Warn("media stop", zap.Error(err))
				}
				s.transition(StateClosed)
			}
			s.emit(&ClosedEvent{})
			close(s.events)
			close(s.done)
			return
		}
		s.submit(cmdClose{})
	})
	<-s.done
	return nil
}

// submit hands a command to the run loop without blocking forever if the
// loop already exited.
func (s *Session) submit(cmd any) {
	select {
	case s.commands <- cmd:
	case <-s.done:
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case cmd := <-s.commands:
			switch c := cmd.(type) {
			case cmdServerAudio:
				s.handleServerAudio(c.pcm)
			case cmdInterrupt:
				s.handleInterrupt(c.reason)
			case cmdTurnComplete:
				s.emit(&TurnCompleteEvent{})
			case cmdLevel:
				s.emit(&LevelEvent{RMS: c.rms, Peak: c.peak})
			case cmdUpstreamError:
				s.handleUpstreamError(c.err)
			case cmdClose:
				s.teardown()
				s.emit(&ClosedEvent{})
				close(s.events)
				return
			}
		case <-s.drainTimer.C:
			s.handleDrainTick()
		}
	}
}

func (s *Session) handleServerAudio(pcm []byte) {
	if s.State().Terminal() {
		return
	}
	d := DurationOfPCM(len(pcm), s.cfg.OutputSampleRate)
	buf := s.sched.Schedule(d)
	s.emit(&AudioOutEvent{
		BufferID: buf.ID,
		PCM:      pcm,
		StartAt:  buf.StartAt,
		Duration: buf.Duration,
	})
	if s.State() == StateStreaming {
		s.transition(StateSpeaking)
	}
	s.resetDrainTimer()
}

func (s *Session) handleInterrupt(reason string) {
	if s.State() != StateSpeaking && s.sched.Active() == 0 {
		return
	}
	s.transition(StateInterrupted)
	flushed := s.sched.Flush()
	s.stopDrainTimer()
	s.emit(&AudioResetEvent{Reason: "interrupted", Flushed: flushed})
	s.logger.Debug("playback flushed",
		zap.String("reason", reason),
		zap.Int("buffers", flushed),
	)
	s.transition(StateStreaming)
}

func (s *Session) handleDrainTick() {
	if s.sched.Prune() > 0 {
		s.resetDrainTimer()
		return
	}
	if s.State() == StateSpeaking {
		s.transition(StateStreaming)
		s.emit(&PlaybackDrainedEvent{})
	}
}

func (s *Session) handleUpstreamError(err error) {
	if s.State().Terminal() {
		return
	}
	s.logger.Error("upstream failed", zap.Error(err))
	s.transition(StateFailed)
	s.emit(&SessionErrorEvent{Err: err})
	// The session stays resident until the owner calls Close.
}

// teardown runs the ordered shutdown: producers, media, upstream, playback.
// Every step is attempted even if an earlier one errors.
func (s *Session) teardown() {
	s.transition(StateClosing)
	close(s.stopProd)
	if err := s.media.Stop(); err != nil {
		s.logger.Warn("media stop", zap.Error(err))
	}
	if s.upstream != nil {
		if err := s.upstream.Close(); err != nil {
			s.logger.Warn("upstream close", zap.Error(err))
		}
	}
	if flushed := s.sched.Flush(); flushed > 0 {
		s.emit(&AudioResetEvent{Reason: "closing", Flushed: flushed})
	}
	s.stopDrainTimer()
	s.transition(StateClosed)
}

func (s *Session) resetDrainTimer() {
	deadline, ok := s.sched.DrainDeadline()
	if !ok {
		return
	}
	s.stopDrainTimer()
	wait := deadline.Sub(s.clock())
	if wait < 0 {
		wait = 0
	}
	s.drainTimer.Reset(wait)
}

func (s *Session) stopDrainTimer() {
	if !s.drainTimer.Stop() {
		select {
		case <-s.drainTimer.C:
		default:
		}
	}
}

// readUpstream pumps model messages into the run loop.
func (s *Session) readUpstream() {
	for {
		msg, err := s.upstream.Receive()
		if err != nil {
			if !s.closed.Load() {
				s.submit(cmdUpstreamError{err: err})
			}
			return
		}
		if msg == nil {
			continue
		}
		if msg.Interrupted {
			s.submit(cmdInterrupt{reason: "model"})
		}
		if len(msg.Audio) > 0 {
			s.submit(cmdServerAudio{pcm: msg.Audio})
		}
		if msg.TurnComplete {
			s.submit(cmdTurnComplete{})
		}
	}
}

// audioProducer forwards captured microphone audio upstream in fixed-size
// frames, downsampled to the model input rate. It keeps running while the
// model speaks; echo handling is the client's concern.
func (s *Session) audioProducer() {
	captureRate := s.media.SampleRate()
	var pending []float64
	for {
		select {
		case <-s.stopProd:
			return
		case samples, ok := <-s.media.AudioFrames():
			if !ok {
				return
			}
			pending = append(pending, samples...)
			frames := Frames(pending, s.cfg.FrameSize)
			consumed := len(frames) * s.cfg.FrameSize
			pending = append(pending[:0], pending[consumed:]...)
			for _, frame := range frames {
				down := Downsample(frame, captureRate, s.cfg.InputSampleRate)
				pcm := EncodePCM16(down)
				s.submit(cmdLevel{
					rms:  CalculateRMSEnergy(pcm),
					peak: CalculatePeakAmplitude(pcm),
				})
				if err := s.upstream.SendAudio(pcm, s.cfg.InputSampleRate); err != nil {
					if !s.closed.Load() {
						s.submit(cmdUpstreamError{err: err})
					}
					return
				}
			}
		}
	}
}

// videoProducer forwards the most recent camera frame at a fixed cadence,
// independent of the audio path.
func (s *Session) videoProducer() {
	ticker := time.NewTicker(s.cfg.VideoFrameInterval)
	defer ticker.Stop()

	var latest *VideoFrame
	for {
		select {
		case <-s.stopProd:
			return
		case frame, ok := <-s.media.VideoFrames():
			if !ok {
				return
			}
			latest = &frame
		case <-ticker.C:
			if latest == nil {
				continue
			}
			frame := *latest
			latest = nil
			if err := s.upstream.SendVideo(frame.Data, frame.MIME); err != nil {
				if !s.closed.Load() {
					s.submit(cmdUpstreamError{err: err})
				}
				return
			}
		}
	}
}

func (s *Session) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.emit(&StateChangedEvent{From: from, To: to})
}

// emit delivers an event without ever blocking the run loop. Slow
// consumers lose events rather than stalling audio.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}
