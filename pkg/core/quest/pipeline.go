package quest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/questlab/geminiquest/pkg/core"
)

// Options tunes pipeline behavior.
type Options struct {
	// NarrationMaxChars caps the explanation text sent to speech synthesis.
	NarrationMaxChars int
	// DefaultAspectRatio seeds VideoConfig when the analysis result does
	// not imply one.
	DefaultAspectRatio string
	// ViralExportDelay simulates the remix render time before the viral
	// clip URL lands on the session.
	ViralExportDelay time.Duration
}

func (o *Options) applyDefaults() {
	if o.NarrationMaxChars <= 0 {
		o.NarrationMaxChars = 500
	}
	if o.DefaultAspectRatio == "" {
		o.DefaultAspectRatio = "16:9"
	}
	if o.ViralExportDelay <= 0 {
		o.ViralExportDelay = 1500 * time.Millisecond
	}
}

// Pipeline orchestrates quest submissions: synchronous session creation,
// one primary analyze call, then independent asynchronous enrichment.
type Pipeline struct {
	gw     Gateway
	store  *Store
	assets AssetStore
	logger *zap.Logger
	opts   Options

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	profileMu sync.Mutex
	profile   Profile
}

// NewPipeline wires a pipeline. The store must be shared with whatever
// surface reads session state.
func NewPipeline(gw Gateway, store *Store, assets AssetStore, logger *zap.Logger, opts Options) *Pipeline {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		gw:      gw,
		store:   store,
		assets:  assets,
		logger:  logger,
		opts:    opts,
		baseCtx: ctx,
		cancel:  cancel,
		profile: Profile{Level: 1},
	}
}

// Close stops background enrichment and waits for in-flight stages.
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}

// Wait blocks until all spawned enrichment goroutines finish.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Submit validates inputs, creates and registers the session, then starts
// the enrichment cascade in the background. The session id is returned
// before any remote call is made.
func (p *Pipeline) Submit(ctx context.Context, in Inputs) (string, error) {
	if in.Empty() {
		return "", core.NewInvalidRequestError("at least one of text, image or audio input is required")
	}

	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Inputs:    in,
	}
	p.store.Insert(sess)

	p.spawn(func(ctx context.Context) {
		p.runCascade(ctx, sess.ID, in)
	})
	return sess.ID, nil
}

// runCascade performs the primary analyze call and, on success, fans out
// the three independent enrichment stages.
func (p *Pipeline) runCascade(ctx context.Context, id string, in Inputs) {
	result, err := p.gw.Analyze(ctx, AnalyzeInput{
		Text:       in.Text,
		ImageB64:   in.ImageB64,
		ImageMIME:  in.ImageMIME,
		AudioB64:   in.AudioB64,
		AudioMIME:  in.AudioMIME,
		Hypothesis: in.Hypothesis,
	})
	if err != nil {
		// The record stays unresolved: no retry, no cleanup. The failure
		// is surfaced on the session so readers can tell it apart from a
		// still-running analysis.
		p.logger.Error("analysis failed", zap.String("session_id", id), zap.Error(err))
		p.store.Patch(id, func(sess *Session) {
			sess.AnalysisFailed = true
			sess.AnalysisError = err.Error()
		})
		return
	}

	hasLocation := in.Location != nil
	p.store.Patch(id, func(sess *Session) {
		sess.Result = result
		sess.VideoConfig = &VideoConfig{
			Prompt:        result.VideoPrompt,
			AspectRatio:   p.opts.DefaultAspectRatio,
			UseInputImage: in.ImageB64 != "",
		}
		sess.IsSearchLoading = true
		sess.IsMapLoading = hasLocation
	})

	// Each stage runs in its own goroutine and patches its own fields;
	// no failure blocks or delays the others.
	p.spawn(func(ctx context.Context) { p.narrate(ctx, id, result.Explanation) })
	p.spawn(func(ctx context.Context) { p.webGround(ctx, id, result.Title) })
	if hasLocation {
		p.spawn(func(ctx context.Context) { p.mapGround(ctx, id, result.Title, *in.Location) })
	}
}

func (p *Pipeline) narrate(ctx context.Context, id, explanation string) {
	text := explanation
	if runes := []rune(text); len(runes) > p.opts.NarrationMaxChars {
		text = string(runes[:p.opts.NarrationMaxChars]) + "..."
	}
	audio, err := p.gw.Narrate(ctx, text)
	if err != nil {
		p.logger.Warn("narration failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	url := p.assets.Put(audio.Data, audio.MIME)
	p.store.Patch(id, func(sess *Session) {
		sess.GeneratedAudioURL = url
	})
}

func (p *Pipeline) webGround(ctx context.Context, id, topic string) {
	answer, err := p.gw.WebSearch(ctx, topic)
	p.store.Patch(id, func(sess *Session) {
		sess.IsSearchLoading = false
		if err == nil && sess.Result != nil {
			sess.Result.SearchData = answer
		}
	})
	if err != nil {
		p.logger.Warn("web grounding failed", zap.String("session_id", id), zap.Error(err))
	}
}

func (p *Pipeline) mapGround(ctx context.Context, id, topic string, loc LatLng) {
	answer, err := p.gw.MapQuery(ctx, topic, loc)
	p.store.Patch(id, func(sess *Session) {
		sess.IsMapLoading = false
		if err == nil && sess.Result != nil {
			sess.Result.MapData = answer
		}
	})
	if err != nil {
		p.logger.Warn("map grounding failed", zap.String("session_id", id), zap.Error(err))
	}
}

// UpdateVideoConfig replaces the editable video parameters.
func (p *Pipeline) UpdateVideoConfig(id string, cfg VideoConfig) error {
	ok := p.store.Patch(id, func(sess *Session) {
		sess.VideoConfig = &cfg
	})
	if !ok {
		return core.NewNotFoundError("session not found")
	}
	return nil
}

// TriggerVideo starts on-demand video generation for a resolved session.
// Generation runs in the background; failures clear the loading flag and
// leave the URL absent.
func (p *Pipeline) TriggerVideo(id string) error {
	sess, ok := p.store.Get(id)
	if !ok {
		return core.NewNotFoundError("session not found")
	}
	if sess.Result == nil || sess.VideoConfig == nil {
		return core.NewInvalidRequestError("session has no analysis result yet")
	}
	if sess.IsVideoLoading {
		return core.NewInvalidRequestError("video generation already in progress")
	}

	p.store.Patch(id, func(s *Session) { s.IsVideoLoading = true })

	req := VideoRequest{
		Prompt:      sess.VideoConfig.Prompt,
		AspectRatio: sess.VideoConfig.AspectRatio,
	}
	if sess.VideoConfig.UseInputImage {
		req.ImageB64 = sess.Inputs.ImageB64
		req.ImageMIME = sess.Inputs.ImageMIME
	}

	p.spawn(func(ctx context.Context) {
		video, err := p.gw.GenerateVideo(ctx, req)
		if err != nil {
			p.logger.Warn("video generation failed", zap.String("session_id", id), zap.Error(err))
			p.store.Patch(id, func(s *Session) { s.IsVideoLoading = false })
			return
		}
		url := p.assets.Put(video.Data, video.MIME)
		p.store.Patch(id, func(s *Session) {
			s.GeneratedVideoURL = url
			s.IsVideoLoading = false
		})
	})
	return nil
}

// ExportViralClip produces the shareable remix of an already generated
// video. The render itself is a timed stub: after the delay the clip URL
// points at the source video.
func (p *Pipeline) ExportViralClip(id string) error {
	sess, ok := p.store.Get(id)
	if !ok {
		return core.NewNotFoundError("session not found")
	}
	if sess.GeneratedVideoURL == "" {
		return core.NewInvalidRequestError("no generated video to export")
	}
	if sess.IsViralLoading {
		return core.NewInvalidRequestError("viral export already in progress")
	}

	p.store.Patch(id, func(s *Session) { s.IsViralLoading = true })
	p.spawn(func(ctx context.Context) {
		select {
		case <-ctx.Done():
			// The render never finished; leave the clip URL absent.
			p.store.Patch(id, func(s *Session) { s.IsViralLoading = false })
			return
		case <-time.After(p.opts.ViralExportDelay):
		}
		p.store.Patch(id, func(s *Session) {
			s.GeneratedViralClipURL = sess.GeneratedVideoURL
			s.IsViralLoading = false
		})
	})
	return nil
}

// CompleteQuiz records a quiz outcome. Idempotent: only the first
// completion records a score and awards XP, every later call is a no-op.
func (p *Pipeline) CompleteQuiz(id string, score int) (xp int, awarded bool, err error) {
	if score < 0 {
		return 0, false, core.NewInvalidRequestErrorWithParam("score must be >= 0", "score")
	}
	found := p.store.Patch(id, func(sess *Session) {
		if sess.UserScore != nil {
			return
		}
		s := score
		sess.UserScore = &s
		awarded = true
	})
	if !found {
		return 0, false, core.NewNotFoundError("session not found")
	}
	if !awarded {
		return 0, false, nil
	}

	xp = score * XPPerQuizPoint
	p.profileMu.Lock()
	p.profile.XP += xp
	p.profile.Level = LevelForXP(p.profile.XP)
	p.profileMu.Unlock()
	return xp, true, nil
}

// GetProfile returns the current learner profile.
func (p *Pipeline) GetProfile() Profile {
	p.profileMu.Lock()
	defer p.profileMu.Unlock()
	prof := p.profile
	prof.Badges = append([]string(nil), p.profile.Badges...)
	return prof
}

// Chat appends a user turn, asks the model with the full history, and
// records the reply. The first exchange is prefixed with a topic context
// turn built from the analysis result so the tutor stays on subject. The
// user turn is kept even when the model call fails.
func (p *Pipeline) Chat(ctx context.Context, id, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", core.NewInvalidRequestErrorWithParam("message is required", "message")
	}
	sess, ok := p.store.Get(id)
	if !ok {
		return "", core.NewNotFoundError("session not found")
	}

	history := sess.ChatHistory
	if len(history) == 0 && sess.Result != nil {
		history = []ChatTurn{
			{Role: RoleUser, Text: "We are discussing the topic: " + sess.Result.Title + ". " + sess.Result.Explanation},
			{Role: RoleModel, Text: "Understood. Ask me anything about " + sess.Result.Title + "."},
		}
	}

	p.store.Patch(id, func(s *Session) {
		s.ChatHistory = append(s.ChatHistory, ChatTurn{Role: RoleUser, Text: message})
	})

	reply, err := p.gw.Chat(ctx, history, message)
	if err != nil {
		return "", err
	}
	p.store.Patch(id, func(s *Session) {
		s.ChatHistory = append(s.ChatHistory, ChatTurn{Role: RoleModel, Text: reply})
	})
	return reply, nil
}

// EditImage applies a style instruction to the session's input image.
// Errors surface to the caller.
func (p *Pipeline) EditImage(ctx context.Context, id, instruction string) (*Image, error) {
	sess, ok := p.store.Get(id)
	if !ok {
		return nil, core.NewNotFoundError("session not found")
	}
	if sess.Inputs.ImageB64 == "" {
		return nil, core.NewInvalidRequestError("session has no input image")
	}
	return p.gw.EditImage(ctx, sess.Inputs.ImageB64, sess.Inputs.ImageMIME, instruction)
}

// DetectEmotion classifies a monitoring frame. Failures are absorbed and
// reported as a calm reading so monitoring never interrupts a session.
func (p *Pipeline) DetectEmotion(ctx context.Context, imageB64, mime string) Emotion {
	emo, err := p.gw.DetectEmotion(ctx, imageB64, mime)
	if err != nil || emo == nil {
		if err != nil {
			p.logger.Debug("emotion detection failed", zap.Error(err))
		}
		return Emotion{}
	}
	return *emo
}

// spawn runs fn on the pipeline's background context and tracks it for
// Close/Wait.
func (p *Pipeline) spawn(fn func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(p.baseCtx)
	}()
}
