package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output", func(t *testing.T) {
		lg, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		require.NotNil(t, lg)
		defer lg.Close()

		assert.Equal(t, zerolog.InfoLevel, lg.GetZerolog().GetLevel())
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "parley.log")

		lg, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)
		defer lg.Close()

		zl := lg.GetZerolog()
		zl.Info().Str("thread_id", "t1").Msg("session created")

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "session created")
	})

	t.Run("file output creates directory", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "parley.log")

		lg, err := New(Config{Level: "info", File: logFile})
		require.NoError(t, err)
		defer lg.Close()

		_, err = os.Stat(filepath.Dir(logFile))
		assert.NoError(t, err)
	})

	t.Run("rotating file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "parley.log")

		lg, err := New(Config{Level: "info", File: logFile, MaxSizeMB: 1})
		require.NoError(t, err)
		defer lg.Close()

		zl := lg.GetZerolog()
		zl.Info().Msg("rotation enabled")

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "rotation enabled")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		lg, err := New(Config{Level: "shouting", Console: true})
		require.NoError(t, err)
		defer lg.Close()

		assert.Equal(t, zerolog.InfoLevel, lg.GetZerolog().GetLevel())
	})
}

func TestFileOutputScrubsSecrets(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "parley.log")

	lg, err := New(Config{Level: "info", File: logFile})
	require.NoError(t, err)
	defer lg.Close()

	zl := lg.GetZerolog()
	zl.Info().
		Str("key", "sk-ant-REDACTED").
		Msg("provider configured")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[REDACTED]")
	assert.NotContains(t, string(content), "sk-ant-")
}

func TestSetLevel(t *testing.T) {
	lg, err := New(Config{Level: "info", Console: true})
	require.NoError(t, err)
	defer lg.Close()

	lg.SetLevel("debug")
	assert.Equal(t, zerolog.DebugLevel, lg.GetZerolog().GetLevel())

	// Unknown levels keep the current one.
	lg.SetLevel("shouting")
	assert.Equal(t, zerolog.DebugLevel, lg.GetZerolog().GetLevel())
}

func TestCloseWithoutFile(t *testing.T) {
	lg, err := New(Config{Level: "info", Console: true})
	require.NoError(t, err)

	assert.NoError(t, lg.Close())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
}
