package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:                    ":8080",
		LogLevel:                "info",
		AnalyzeModel:            "gemini-2.5-flash",
		ImageModel:              "gemini-2.5-flash-image",
		TTSModel:                "gemini-2.5-flash-preview-tts",
		VideoModel:              "veo-3.1-fast-generate-preview",
		LiveModel:               "gemini-2.5-flash-native-audio-preview-09-2025",
		Voice:                   "Kore",
		NarrationMaxChars:       500,
		RequestTimeout:          time.Minute,
		VideoPollInterval:       10 * time.Second,
		VideoPollMaxAttempts:    60,
		AssetTTL:                time.Hour,
		LiveMaxJSONMessageBytes: 1 << 20,
		LiveMaxAudioFrameBytes:  65536,
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = " " }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"empty analyze model", func(c *Config) { c.AnalyzeModel = "" }},
		{"empty live model", func(c *Config) { c.LiveModel = "" }},
		{"zero narration cap", func(c *Config) { c.NarrationMaxChars = 0 }},
		{"zero poll interval", func(c *Config) { c.VideoPollInterval = 0 }},
		{"zero poll attempts", func(c *Config) { c.VideoPollMaxAttempts = 0 }},
		{"zero asset ttl", func(c *Config) { c.AssetTTL = 0 }},
		{"zero json limit", func(c *Config) { c.LiveMaxJSONMessageBytes = 0 }},
		{"zero frame limit", func(c *Config) { c.LiveMaxAudioFrameBytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.CORSAllowedOrigins = []string{"https://quest.example", "https://dev.quest.example"}

	assert.True(t, cfg.OriginAllowed(""))
	assert.True(t, cfg.OriginAllowed("https://quest.example"))
	assert.False(t, cfg.OriginAllowed("https://evil.example"))

	// Empty allowlist only admits requests without an Origin.
	cfg.CORSAllowedOrigins = nil
	assert.True(t, cfg.OriginAllowed(""))
	assert.False(t, cfg.OriginAllowed("https://quest.example"))
}
