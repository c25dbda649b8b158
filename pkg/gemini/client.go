// Package gemini implements the remote AI gateway against the Gemini API:
// structured analysis, image editing, narration, video generation,
// grounded search, emotion detection, tutoring chat and the live duplex
// audio connection.
package gemini

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/questlab/geminiquest/pkg/core"
)

// Config carries the model names and tuning for all gateway calls.
type Config struct {
	APIKey string

	AnalyzeModel string
	ImageModel   string
	TTSModel     string
	VideoModel   string
	LiveModel    string
	Voice        string

	RequestTimeout       time.Duration
	VideoPollInterval    time.Duration
	VideoPollMaxAttempts uint
	// VideoSettleDelay is an extra wait after the operation reports done,
	// before fetching the asset. The CDN needs a moment to propagate.
	VideoSettleDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.AnalyzeModel == "" {
		c.AnalyzeModel = "gemini-2.5-flash"
	}
	if c.ImageModel == "" {
		c.ImageModel = "gemini-2.5-flash-image"
	}
	if c.TTSModel == "" {
		c.TTSModel = "gemini-2.5-flash-preview-tts"
	}
	if c.VideoModel == "" {
		c.VideoModel = "veo-3.1-fast-generate-preview"
	}
	if c.LiveModel == "" {
		c.LiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	}
	if c.Voice == "" {
		c.Voice = "Kore"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = time.Minute
	}
	if c.VideoPollInterval <= 0 {
		c.VideoPollInterval = 10 * time.Second
	}
	if c.VideoPollMaxAttempts == 0 {
		c.VideoPollMaxAttempts = 60
	}
	if c.VideoSettleDelay <= 0 {
		c.VideoSettleDelay = 2 * time.Second
	}
}

// Client talks to the Gemini API. It satisfies both the quest gateway and
// the live session dialer.
type Client struct {
	cfg    Config
	ai     *genai.Client
	http   *http.Client
	logger *zap.Logger
}

// New builds the client. A missing API key is not fatal here: every
// operation checks the credential per call, so the gateway starts and
// reports the absence on use instead of refusing to boot.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 5 * time.Minute},
		logger: logger,
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Warn("gemini api key is not configured; every model call will fail")
		return c, nil
	}
	ai, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewUpstreamError("create gemini client", err)
	}
	c.ai = ai
	return c, nil
}

// CheckCredential reports whether a usable API key is present. Every
// operation calls it first; the live session dialer also calls it before
// any media work.
func (c *Client) CheckCredential() error {
	if c.ai == nil {
		return core.NewCredentialError("gemini api key is not configured")
	}
	return nil
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}
