// clipstitch/config/config_test.go
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipstitch/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		cfg, err := config.Load()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, 2, cfg.MaxConcurrency)
		assert.Equal(t, 3, cfg.MaxClips)
		assert.Equal(t, false, cfg.AuthEnable)
		assert.Equal(t, "ffmpeg", cfg.FFBin)
		assert.Equal(t, "ffprobe", cfg.FFProbeBin)
		assert.Equal(t, 10*time.Minute, cfg.FFTimeout)
		assert.Equal(t, int64(200*1024*1024), cfg.MaxInputSize)
		assert.Equal(t, int64(5*1024*1024), cfg.MaxRequestSize)
		assert.Equal(t, int64(8*1024), cfg.DiagnosticLimit)
		assert.Equal(t, 1080, cfg.OutputWidth)
		assert.Equal(t, 30, cfg.OutputFPS)
		assert.Equal(t, 48000, cfg.AudioSampleRate)
		assert.Equal(t, "Anton", cfg.CaptionFont)
		assert.Equal(t, 1.0, cfg.CaptionStretch)
	})

	t.Run("overrides defaults with environment variables", func(t *testing.T) {
		t.Setenv("CLIPSTITCH_PORT", "9999")
		t.Setenv("CLIPSTITCH_MAX_CONCURRENCY", "10")
		t.Setenv("CLIPSTITCH_AUTH_ENABLE", "true")
		t.Setenv("CLIPSTITCH_AUTH_KEY", "newsecret")
		t.Setenv("CLIPSTITCH_MAX_INPUT_SIZE", "50MB")
		t.Setenv("CLIPSTITCH_FF_TIMEOUT", "90s")
		t.Setenv("CLIPSTITCH_MAX_REQUEST_SIZE", "64KB")

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, "9999", cfg.Port)
		assert.Equal(t, 10, cfg.MaxConcurrency)
		assert.Equal(t, true, cfg.AuthEnable)
		assert.Equal(t, "newsecret", cfg.AuthKey)
		assert.Equal(t, int64(50*1024*1024), cfg.MaxInputSize)
		assert.Equal(t, 90*time.Second, cfg.FFTimeout)
		assert.Equal(t, int64(64*1024), cfg.MaxRequestSize)
	})

	t.Run("reads an explicit yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		body := "OUTPUT_WIDTH: 720\nCAPTION_FONT: Inter\nJOB_RETENTION: 5m\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		cfg, err := config.LoadFile(path)
		require.NoError(t, err)

		assert.Equal(t, 720, cfg.OutputWidth)
		assert.Equal(t, "Inter", cfg.CaptionFont)
		assert.Equal(t, 5*time.Minute, cfg.JobRetention)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
