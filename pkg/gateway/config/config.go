package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the gateway configuration, loaded from the environment.
type Config struct {
	Addr     string `env:"ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// GeminiAPIKey is the backend credential. Request/response operations
	// fail per call without it; a live session refuses to open at all.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	// Model selection.
	AnalyzeModel string `env:"ANALYZE_MODEL" envDefault:"gemini-2.5-flash"`
	ImageModel   string `env:"IMAGE_MODEL" envDefault:"gemini-2.5-flash-image"`
	TTSModel     string `env:"TTS_MODEL" envDefault:"gemini-2.5-flash-preview-tts"`
	VideoModel   string `env:"VIDEO_MODEL" envDefault:"veo-3.1-fast-generate-preview"`
	LiveModel    string `env:"LIVE_MODEL" envDefault:"gemini-2.5-flash-native-audio-preview-09-2025"`
	Voice        string `env:"VOICE" envDefault:"Kore"`

	// Quest pipeline.
	NarrationMaxChars int           `env:"NARRATION_MAX_CHARS" envDefault:"500"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`

	// Video generation polling.
	VideoPollInterval    time.Duration `env:"VIDEO_POLL_INTERVAL" envDefault:"10s"`
	VideoPollMaxAttempts uint          `env:"VIDEO_POLL_MAX_ATTEMPTS" envDefault:"60"`
	VideoSettleDelay     time.Duration `env:"VIDEO_SETTLE_DELAY" envDefault:"2s"`

	// Generated asset cache.
	AssetTTL time.Duration `env:"ASSET_TTL" envDefault:"1h"`

	// Live WebSocket surface.
	LiveHandshakeTimeout    time.Duration `env:"LIVE_HANDSHAKE_TIMEOUT" envDefault:"5s"`
	LiveWSWriteTimeout      time.Duration `env:"LIVE_WS_WRITE_TIMEOUT" envDefault:"10s"`
	LiveWSPingInterval      time.Duration `env:"LIVE_WS_PING_INTERVAL" envDefault:"20s"`
	LiveMaxJSONMessageBytes int64         `env:"LIVE_MAX_JSON_MESSAGE_BYTES" envDefault:"1048576"`
	LiveMaxAudioFrameBytes  int           `env:"LIVE_MAX_AUDIO_FRAME_BYTES" envDefault:"65536"`

	// CORSAllowedOrigins is a comma separated list; empty disables CORS.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Load reads an optional .env file, parses the environment and validates
// the result.
func Load() (Config, error) {
	// Missing .env is fine; containerized deployments set vars externally.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks field-level constraints.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("ADDR must not be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	for _, m := range []struct{ name, value string }{
		{"ANALYZE_MODEL", c.AnalyzeModel},
		{"IMAGE_MODEL", c.ImageModel},
		{"TTS_MODEL", c.TTSModel},
		{"VIDEO_MODEL", c.VideoModel},
		{"LIVE_MODEL", c.LiveModel},
	} {
		if strings.TrimSpace(m.value) == "" {
			return fmt.Errorf("%s must not be empty", m.name)
		}
	}
	if c.NarrationMaxChars <= 0 {
		return fmt.Errorf("NARRATION_MAX_CHARS must be > 0, got %d", c.NarrationMaxChars)
	}
	if c.VideoPollInterval <= 0 {
		return fmt.Errorf("VIDEO_POLL_INTERVAL must be > 0, got %s", c.VideoPollInterval)
	}
	if c.VideoPollMaxAttempts == 0 {
		return fmt.Errorf("VIDEO_POLL_MAX_ATTEMPTS must be > 0")
	}
	if c.AssetTTL <= 0 {
		return fmt.Errorf("ASSET_TTL must be > 0, got %s", c.AssetTTL)
	}
	if c.LiveMaxJSONMessageBytes <= 0 {
		return fmt.Errorf("LIVE_MAX_JSON_MESSAGE_BYTES must be > 0, got %d", c.LiveMaxJSONMessageBytes)
	}
	if c.LiveMaxAudioFrameBytes <= 0 {
		return fmt.Errorf("LIVE_MAX_AUDIO_FRAME_BYTES must be > 0, got %d", c.LiveMaxAudioFrameBytes)
	}
	return nil
}

// OriginAllowed reports whether the Origin header value may open a live
// session. An empty allowlist only admits requests without an Origin.
func (c Config) OriginAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	for _, allowed := range c.CORSAllowedOrigins {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}
	return false
}
