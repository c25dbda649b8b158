package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/live"
	"github.com/questlab/geminiquest/pkg/gateway/config"
	"github.com/questlab/geminiquest/pkg/gateway/lifecycle"
	"github.com/questlab/geminiquest/pkg/gateway/live/protocol"
	"github.com/questlab/geminiquest/pkg/gateway/live/sessions"
	"github.com/questlab/geminiquest/pkg/gateway/mw"
)

// LiveHandler handles GET /v1/live websocket sessions. It bridges the
// socket to a live.Session: inbound audio/video frames feed the session's
// media source, session events become outbound protocol frames.
type LiveHandler struct {
	Config       config.Config
	Dialer       live.Dialer
	Logger       *zap.Logger
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		mw.WriteJSONError(w, http.StatusMethodNotAllowed, &core.Error{
			Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed", RequestID: reqID,
		})
		return
	}
	if h.Lifecycle.IsDraining() {
		mw.WriteJSONError(w, 529, &core.Error{
			Type: core.ErrOverloaded, Message: "gateway is draining", Code: "draining", RequestID: reqID,
		})
		return
	}
	if !h.Config.OriginAllowed(strings.TrimSpace(r.Header.Get("Origin"))) {
		mw.WriteJSONError(w, http.StatusForbidden, &core.Error{
			Type: core.ErrInvalidRequest, Message: "origin is not allowed", Param: "Origin", RequestID: reqID,
		})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}

	hello, ok := h.readHello(conn)
	if !ok {
		return
	}

	liveCfg := live.DefaultConfig()
	if hello.AudioOut.SampleRateHz != liveCfg.OutputSampleRate {
		h.writeHandshakeError(conn, "unsupported",
			fmt.Sprintf("audio_out.sample_rate_hz must be %d", liveCfg.OutputSampleRate))
		return
	}

	sessionID := "live_" + randHex(8)
	media := newWSMedia(hello.AudioIn.SampleRateHz)
	sess := live.NewSession(liveCfg, h.Dialer, media, live.WithLogger(
		logger.With(zap.String("session_id", sessionID), zap.String("request_id", reqID)),
	))

	if err := sess.Start(r.Context()); err != nil {
		coreErr := fromSetupError(err)
		h.writeHandshakeError(conn, coreErr.Code, coreErr.Message)
		_ = sess.Close()
		return
	}

	wc := &wsConn{conn: conn, timeout: h.Config.LiveWSWriteTimeout}
	_ = wc.writeJSON(protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       sessionID,
		AudioIn:         hello.AudioIn,
		AudioOut:        hello.AudioOut,
		Limits: &protocol.HelloAckLimits{
			MaxAudioFrameBytes:  h.Config.LiveMaxAudioFrameBytes,
			MaxJSONMessageBytes: int(h.Config.LiveMaxJSONMessageBytes),
		},
	})

	unregister := func() {}
	if h.LiveSessions != nil {
		unregister = h.LiveSessions.Register(sessionID, func() {
			_ = sess.Close()
			_ = conn.Close()
		})
	}
	defer unregister()
	defer func() { _ = sess.Close() }()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.pumpEvents(wc, sess, time.Now())
		// The event stream closed; drop the socket so the read loop exits.
		_ = conn.Close()
	}()

	stopPing := make(chan struct{})
	if h.Config.LiveWSPingInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.pingLoop(conn, stopPing)
		}()
	}

	h.readLoop(conn, wc, sess, media)
	close(stopPing)
	_ = sess.Close()
	wg.Wait()

	if n := sess.Dropped(); n > 0 {
		logger.Warn("live events dropped", zap.String("session_id", sessionID), zap.Int64("dropped", n))
	}
}

// readHello performs the handshake: the first frame must be a valid hello
// within the handshake timeout.
func (h LiveHandler) readHello(conn *websocket.Conn) (protocol.ClientHello, bool) {
	timeout := h.Config.LiveHandshakeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	messageType, frame, err := conn.ReadMessage()
	if err != nil {
		h.writeHandshakeError(conn, "bad_request", "failed to read hello")
		return protocol.ClientHello{}, false
	}
	if messageType != websocket.TextMessage {
		h.writeHandshakeError(conn, "bad_request", "first frame must be hello")
		return protocol.ClientHello{}, false
	}
	decoded, err := protocol.DecodeClientMessage(frame)
	if err != nil {
		var de *protocol.DecodeError
		code, msg := "bad_request", "invalid hello frame"
		if errors.As(err, &de) {
			code, msg = de.Code, de.Message
		}
		h.writeHandshakeError(conn, code, msg)
		return protocol.ClientHello{}, false
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeHandshakeError(conn, "bad_request", "first frame must be hello")
		return protocol.ClientHello{}, false
	}
	_ = conn.SetReadDeadline(time.Time{})
	return hello, true
}

// readLoop consumes client frames until the socket dies or the client ends
// the session.
func (h LiveHandler) readLoop(conn *websocket.Conn, wc *wsConn, sess *live.Session, media *wsMedia) {
	maxFrame := h.Config.LiveMaxAudioFrameBytes
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		decoded, err := protocol.DecodeClientMessage(frame)
		if err != nil {
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				_ = wc.writeJSON(protocol.ServerError{Type: "error", Code: de.Code, Message: de.Message, Param: de.Param})
			}
			continue
		}

		switch msg := decoded.(type) {
		case protocol.ClientAudioFrame:
			pcm, err := base64.StdEncoding.DecodeString(msg.DataB64)
			if err != nil {
				_ = wc.writeJSON(protocol.ServerError{Type: "error", Code: "bad_request", Message: "audio_frame.data_b64 is not valid base64", Param: "data_b64"})
				continue
			}
			if maxFrame > 0 && len(pcm) > maxFrame {
				_ = wc.writeJSON(protocol.ServerError{Type: "error", Code: "bad_request", Message: "audio frame too large", Param: "data_b64"})
				continue
			}
			media.PushAudio(live.DecodePCM16(pcm))
		case protocol.ClientVideoFrame:
			data, err := base64.StdEncoding.DecodeString(msg.DataB64)
			if err != nil {
				_ = wc.writeJSON(protocol.ServerError{Type: "error", Code: "bad_request", Message: "video_frame.data_b64 is not valid base64", Param: "data_b64"})
				continue
			}
			media.PushVideo(live.VideoFrame{Data: data, MIME: msg.MIME})
		case protocol.ClientControl:
			switch msg.Op {
			case "interrupt":
				sess.Interrupt()
			case "end_session":
				return
			}
		case protocol.ClientHello:
			_ = wc.writeJSON(protocol.ServerError{Type: "error", Code: "bad_request", Message: "unexpected hello"})
		}
	}
}

// pumpEvents translates session events into protocol frames until the
// event stream closes. Chunk start offsets are relative to the session
// epoch so the client can line up gapless playback.
func (h LiveHandler) pumpEvents(wc *wsConn, sess *live.Session, epoch time.Time) {
	var seq int64
	for ev := range sess.Events() {
		switch e := ev.(type) {
		case *live.StateChangedEvent:
			_ = wc.writeJSON(protocol.ServerStatus{Type: "status", State: e.To.String()})
		case *live.AudioOutEvent:
			seq++
			_ = wc.writeJSON(protocol.ServerAudioChunk{
				Type:       "audio_chunk",
				BufferID:   e.BufferID,
				Seq:        seq,
				StartAtMS:  e.StartAt.Sub(epoch).Milliseconds(),
				DurationMS: e.Duration.Milliseconds(),
				DataB64:    base64.StdEncoding.EncodeToString(e.PCM),
			})
		case *live.AudioResetEvent:
			_ = wc.writeJSON(protocol.ServerAudioReset{Type: "audio_reset", Reason: e.Reason, Flushed: e.Flushed})
		case *live.LevelEvent:
			_ = wc.writeJSON(protocol.ServerLevel{Type: "level", RMS: e.RMS, Peak: e.Peak})
		case *live.TurnCompleteEvent:
			_ = wc.writeJSON(protocol.ServerTurnComplete{Type: "turn_complete"})
		case *live.SessionErrorEvent:
			_ = wc.writeJSON(protocol.ServerError{Type: "error", Code: "upstream", Message: e.Err.Error(), Retryable: false})
		case *live.ClosedEvent:
			return
		}
	}
}

// pingLoop keeps idle connections alive through proxies. Control frames
// may be written concurrently with data frames.
func (h LiveHandler) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(h.Config.LiveWSPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.Config.LiveWSWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h LiveHandler) writeHandshakeError(conn *websocket.Conn, code, message string) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Code: code, Message: message, Close: true})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
}

// wsConn serializes writes; gorilla/websocket allows one writer at a time
// and both the read loop and the event pump emit frames.
type wsConn struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return c.conn.WriteJSON(v)
}

// wsMedia adapts inbound websocket frames to the session's MediaSource.
// Pushes never block: a full buffer drops the frame instead of stalling
// the read loop.
type wsMedia struct {
	rate int

	mu      sync.Mutex
	stopped bool
	audio   chan []float64
	video   chan live.VideoFrame
}

func newWSMedia(sampleRate int) *wsMedia {
	return &wsMedia{
		rate:  sampleRate,
		audio: make(chan []float64, 32),
		video: make(chan live.VideoFrame, 4),
	}
}

func (m *wsMedia) Start(ctx context.Context) error { return nil }

func (m *wsMedia) SampleRate() int { return m.rate }

func (m *wsMedia) AudioFrames() <-chan []float64 { return m.audio }

func (m *wsMedia) VideoFrames() <-chan live.VideoFrame { return m.video }

func (m *wsMedia) PushAudio(samples []float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	select {
	case m.audio <- samples:
		return true
	default:
		return false
	}
}

func (m *wsMedia) PushVideo(frame live.VideoFrame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	select {
	case m.video <- frame:
		return true
	default:
		return false
	}
}

func (m *wsMedia) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.audio)
		close(m.video)
	}
	return nil
}

func fromSetupError(err error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		if out.Code == "" {
			out.Code = string(out.Type)
		}
		return &out
	}
	return &core.Error{Type: core.ErrUpstream, Message: err.Error(), Code: "setup_failed"}
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
