package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlab/geminiquest/pkg/core"
	"github.com/questlab/geminiquest/pkg/core/quest"
	"github.com/questlab/geminiquest/pkg/gateway/assets"
	"github.com/questlab/geminiquest/pkg/gateway/lifecycle"
	"github.com/questlab/geminiquest/pkg/gateway/mw"
)

// fakeGateway scripts the remote backend for handler tests.
type fakeGateway struct {
	analyzeErr error
	chatReply  string
	chatErr    error
	emotion    *quest.Emotion
	emotionErr error
	editImg    *quest.Image
	editErr    error
}

func (f *fakeGateway) Analyze(ctx context.Context, in quest.AnalyzeInput) (*quest.AnalysisResult, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &quest.AnalysisResult{Title: "Topic", Explanation: "Because.", VideoPrompt: "clip"}, nil
}

func (f *fakeGateway) Narrate(ctx context.Context, text string) (*quest.Audio, error) {
	return &quest.Audio{Data: []byte("pcm"), MIME: "audio/mp3"}, nil
}

func (f *fakeGateway) WebSearch(ctx context.Context, topic string) (*quest.GroundedAnswer, error) {
	return &quest.GroundedAnswer{Text: "news"}, nil
}

func (f *fakeGateway) MapQuery(ctx context.Context, topic string, loc quest.LatLng) (*quest.GroundedAnswer, error) {
	return &quest.GroundedAnswer{Text: "nearby"}, nil
}

func (f *fakeGateway) GenerateVideo(ctx context.Context, req quest.VideoRequest) (*quest.Video, error) {
	return &quest.Video{Data: []byte("mp4"), MIME: "video/mp4"}, nil
}

func (f *fakeGateway) EditImage(ctx context.Context, imageB64, mime, instruction string) (*quest.Image, error) {
	return f.editImg, f.editErr
}

func (f *fakeGateway) DetectEmotion(ctx context.Context, imageB64, mime string) (*quest.Emotion, error) {
	return f.emotion, f.emotionErr
}

func (f *fakeGateway) Chat(ctx context.Context, history []quest.ChatTurn, message string) (string, error) {
	return f.chatReply, f.chatErr
}

type testEnv struct {
	gw       *fakeGateway
	store    *quest.Store
	pipeline *quest.Pipeline
	assets   *assets.Store
	life     *lifecycle.Lifecycle
	router   chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gw := &fakeGateway{}
	store := quest.NewStore()
	assetStore := assets.NewStore(time.Minute)
	pipeline := quest.NewPipeline(gw, store, assetStore, nil, quest.Options{ViralExportDelay: time.Millisecond})
	t.Cleanup(pipeline.Close)

	life := &lifecycle.Lifecycle{}
	r := chi.NewRouter()
	r.NotFound(NotFoundHandler{}.ServeHTTP)
	r.Method(http.MethodPost, "/v1/quests", SubmitQuestHandler{Pipeline: pipeline, Lifecycle: life})
	r.Method(http.MethodGet, "/v1/quests", ListQuestsHandler{Store: store})
	r.Method(http.MethodGet, "/v1/quests/{id}", GetQuestHandler{Store: store})
	r.Method(http.MethodPost, "/v1/quests/{id}/video", VideoHandler{Pipeline: pipeline, Store: store})
	r.Method(http.MethodPost, "/v1/quests/{id}/viral", ViralHandler{Pipeline: pipeline})
	r.Method(http.MethodPost, "/v1/quests/{id}/quiz", QuizHandler{Pipeline: pipeline})
	r.Method(http.MethodPost, "/v1/quests/{id}/chat", ChatHandler{Pipeline: pipeline})
	r.Method(http.MethodPost, "/v1/quests/{id}/style", StyleHandler{Pipeline: pipeline})
	r.Method(http.MethodPost, "/v1/monitor", MonitorHandler{Pipeline: pipeline})
	r.Method(http.MethodGet, "/v1/profile", ProfileHandler{Pipeline: pipeline})
	r.Method(http.MethodGet, "/v1/assets/{id}", AssetHandler{Assets: assetStore})

	return &testEnv{gw: gw, store: store, pipeline: pipeline, assets: assetStore, life: life, router: r}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(mw.WithRequestID(req.Context(), "req_test"))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeErrorEnvelope(t *testing.T, rr *httptest.ResponseRecorder) core.Error {
	t.Helper()
	var env struct {
		Error core.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env.Error
}

func TestSubmitQuest_ReturnsSessionID(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/v1/quests", map[string]string{"text": "why is the sky blue"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["session_id"])

	_, ok := env.store.Get(resp["session_id"])
	assert.True(t, ok, "session must exist immediately")
}

func TestSubmitQuest_EmptyInputs400(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/v1/quests", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, core.ErrInvalidRequest, decodeErrorEnvelope(t, rr).Type)
}

func TestSubmitQuest_Draining529(t *testing.T) {
	env := newTestEnv(t)
	env.life.SetDraining(true)

	rr := env.do(http.MethodPost, "/v1/quests", map[string]string{"text": "x"})
	require.Equal(t, 529, rr.Code)
	assert.Equal(t, "draining", decodeErrorEnvelope(t, rr).Code)
}

func TestGetQuest_Unknown404(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/v1/quests/missing", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, core.ErrNotFound, decodeErrorEnvelope(t, rr).Type)
}

func TestListQuests_NewestFirst(t *testing.T) {
	env := newTestEnv(t)

	first := submit(t, env, "first")
	second := submit(t, env, "second")
	env.pipeline.Wait()

	rr := env.do(http.MethodGet, "/v1/quests", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Sessions []quest.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 2)
	assert.Equal(t, second, resp.Sessions[0].ID)
	assert.Equal(t, first, resp.Sessions[1].ID)
}

func TestQuizHandler_AwardsOnce(t *testing.T) {
	env := newTestEnv(t)
	id := submit(t, env, "quizzable")
	env.pipeline.Wait()

	rr := env.do(http.MethodPost, "/v1/quests/"+id+"/quiz", map[string]int{"score": 3})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		XP      int  `json:"xp"`
		Awarded bool `json:"awarded"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 150, resp.XP)
	assert.True(t, resp.Awarded)

	rr = env.do(http.MethodPost, "/v1/quests/"+id+"/quiz", map[string]int{"score": 3})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Zero(t, resp.XP)
	assert.False(t, resp.Awarded)
}

func TestQuizHandler_MissingScore400(t *testing.T) {
	env := newTestEnv(t)
	id := submit(t, env, "quizzable")

	rr := env.do(http.MethodPost, "/v1/quests/"+id+"/quiz", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "score", decodeErrorEnvelope(t, rr).Param)
}

func TestChatHandler_ReturnsReply(t *testing.T) {
	env := newTestEnv(t)
	env.gw.chatReply = "Think about wavelengths."
	id := submit(t, env, "chatty")
	env.pipeline.Wait()

	rr := env.do(http.MethodPost, "/v1/quests/"+id+"/chat", map[string]string{"message": "why?"})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Think about wavelengths.", resp["reply"])
}

func TestChatHandler_UpstreamFailure502(t *testing.T) {
	env := newTestEnv(t)
	env.gw.chatErr = core.NewUpstreamError("chat", errors.New("boom"))
	id := submit(t, env, "chatty")
	env.pipeline.Wait()

	rr := env.do(http.MethodPost, "/v1/quests/"+id+"/chat", map[string]string{"message": "why?"})
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestStyleHandler_SurfacesErrors(t *testing.T) {
	env := newTestEnv(t)
	env.gw.editErr = core.NewUpstreamError("edit image", errors.New("refused"))
	id := submitWithImage(t, env)
	env.pipeline.Wait()

	rr := env.do(http.MethodPost, "/v1/quests/"+id+"/style", map[string]string{"instruction": "make it watercolor"})
	require.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, core.ErrUpstream, decodeErrorEnvelope(t, rr).Type)
}

func TestStyleHandler_ReturnsImage(t *testing.T) {
	env := newTestEnv(t)
	env.gw.editImg = &quest.Image{Data: []byte{9, 9}, MIME: "image/png"}
	id := submitWithImage(t, env)
	env.pipeline.Wait()

	rr := env.do(http.MethodPost, "/v1/quests/"+id+"/style", map[string]string{"instruction": "sketch"})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "image/png", resp["mime"])
	assert.NotEmpty(t, resp["image_b64"])
}

func TestMonitorHandler_AbsorbsFailure(t *testing.T) {
	env := newTestEnv(t)
	env.gw.emotionErr = errors.New("model unavailable")

	rr := env.do(http.MethodPost, "/v1/monitor", map[string]string{"image_b64": "AAAA"})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp quest.Emotion
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.IsConfused)
}

func TestMonitorHandler_RequiresImage(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/v1/monitor", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestVideoHandler_ConfigOverrideThenTrigger(t *testing.T) {
	env := newTestEnv(t)
	id := submit(t, env, "video me")
	env.pipeline.Wait()

	rr := env.do(http.MethodPost, "/v1/quests/"+id+"/video", map[string]string{"aspect_ratio": "9:16"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	env.pipeline.Wait()

	sess, ok := env.store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "9:16", sess.VideoConfig.AspectRatio)
	assert.NotEmpty(t, sess.GeneratedVideoURL)
	assert.False(t, sess.IsVideoLoading)
}

func TestAssetHandler_ServesStoredBytes(t *testing.T) {
	env := newTestEnv(t)
	url := env.assets.Put([]byte("audio-bytes"), "audio/mp3")

	rr := env.do(http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "audio/mp3", rr.Header().Get("Content-Type"))
	assert.Equal(t, "audio-bytes", rr.Body.String())

	rr = env.do(http.MethodGet, "/v1/assets/unknown", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProfileHandler(t *testing.T) {
	env := newTestEnv(t)
	id := submit(t, env, "quiz me")
	env.pipeline.Wait()
	_, _, err := env.pipeline.CompleteQuiz(id, 2)
	require.NoError(t, err)

	rr := env.do(http.MethodGet, "/v1/profile", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var prof quest.Profile
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &prof))
	assert.Equal(t, 100, prof.XP)
	assert.Equal(t, 1, prof.Level)
}

func submit(t *testing.T, env *testEnv, text string) string {
	t.Helper()
	rr := env.do(http.MethodPost, "/v1/quests", map[string]string{"text": text})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp["session_id"]
}

func submitWithImage(t *testing.T, env *testEnv) string {
	t.Helper()
	rr := env.do(http.MethodPost, "/v1/quests", map[string]string{"image_b64": "AAAA", "image_mime": "image/jpeg"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp["session_id"]
}
