package logger

import (
	"os"
	"path/filepath"
	"testing"

	"rent360_assistant/src/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "assistant.log")

	logger, err := Build(model.LogConfig{Level: "WARN", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger.Info().Msg("dropped")
	logger.Warn().Str("tier", "provider").Msg("tier unavailable")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"tier unavailable"`)
	assert.Contains(t, string(data), `"service":"rent360-assistant"`)
	assert.NotContains(t, string(data), "dropped")
}

func TestBuildInvalidLevel(t *testing.T) {
	_, err := Build(model.LogConfig{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestInitLogger(t *testing.T) {
	previous, level, timeFormat := Logger, zerolog.GlobalLevel(), zerolog.TimeFieldFormat
	t.Cleanup(func() {
		Logger = previous
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = timeFormat
	})

	require.NoError(t, InitLogger(model.LogConfig{Level: "debug", Format: "console", Output: "stderr", TimeFormat: "unix"}))
	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())
	assert.Equal(t, zerolog.TimeFormatUnix, zerolog.TimeFieldFormat)
}
