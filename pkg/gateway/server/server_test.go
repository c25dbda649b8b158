package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/live"
	"github.com/questlab/geminiquest/pkg/core/quest"
	"github.com/questlab/geminiquest/pkg/gateway/assets"
	"github.com/questlab/geminiquest/pkg/gateway/config"
)

func testServer() *Server {
	return New(config.Config{}, nil, Deps{
		Store:  quest.NewStore(),
		Assets: assets.NewStore(time.Minute),
	})
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s := testServer()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_Healthz(t *testing.T) {
	s := testServer()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if body := rr.Body.String(); body != "ok\n" {
		t.Fatalf("body=%q", body)
	}
}

func TestServer_RequestIDAssigned(t *testing.T) {
	s := testServer()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rr, req)

	id := rr.Header().Get("X-Request-ID")
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("X-Request-ID=%q", id)
	}
}

func TestServer_ListQuestsRoute_Reachable(t *testing.T) {
	s := testServer()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/quests", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"sessions"`) {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestServer_AssetRoute_NotFound(t *testing.T) {
	s := testServer()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/assets/missing", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}

type stubUpstream struct {
	msgs chan *live.ServerMessage
}

func (u *stubUpstream) SendAudio(pcm []byte, rateHz int) error   { return nil }
func (u *stubUpstream) SendVideo(data []byte, mime string) error { return nil }

func (u *stubUpstream) Receive() (*live.ServerMessage, error) {
	msg, ok := <-u.msgs
	if !ok {
		return nil, core.NewUpstreamError("live receive", nil)
	}
	return msg, nil
}

func (u *stubUpstream) Close() error {
	close(u.msgs)
	return nil
}

type stubDialer struct{}

func (stubDialer) CheckCredential() error { return nil }

func (stubDialer) Dial(ctx context.Context) (live.Upstream, error) {
	return &stubUpstream{msgs: make(chan *live.ServerMessage)}, nil
}

// The access-log wrapper has to pass hijacking through, otherwise the
// websocket upgrade fails behind the full middleware chain.
func TestServer_LiveUpgrade_ThroughMiddlewareChain(t *testing.T) {
	s := New(config.Config{
		LiveHandshakeTimeout:    2 * time.Second,
		LiveWSWriteTimeout:      2 * time.Second,
		LiveMaxJSONMessageBytes: 1 << 20,
		LiveMaxAudioFrameBytes:  1 << 20,
	}, nil, Deps{
		Store:  quest.NewStore(),
		Assets: assets.NewStore(time.Minute),
		Dialer: stubDialer{},
	})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("upgrade failed: err=%v status=%d", err, status)
	}
	defer conn.Close()

	err = conn.WriteJSON(map[string]any{
		"type":             "hello",
		"protocol_version": "1",
		"audio_in":         map[string]any{"encoding": "pcm16", "sample_rate_hz": 48000, "channels": 1},
		"audio_out":        map[string]any{"encoding": "pcm16", "sample_rate_hz": 24000, "channels": 1},
	})
	if err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame["type"] != "hello_ack" {
		t.Fatalf("first frame type=%v", frame["type"])
	}
}
