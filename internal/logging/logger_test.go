package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelParsing(t *testing.T) {
	logger, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	// Unknown levels fall back to info rather than failing startup.
	logger, err = New(Config{Level: "chatty"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "credlens.log")

	logger, err := New(Config{Level: "info", OutputFile: path, JSONFormat: true})
	require.NoError(t, err)

	logger.WithField("event", "cleanup_performed").Info("retention cleanup completed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cleanup_performed")
	assert.Contains(t, string(data), `"level":"info"`)
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic or write anywhere visible.
	logger.WithField("k", "v").Error("dropped")
}
