package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, log.InfoLevel, l.GetLevel())

	l, err = New(Config{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, l.GetLevel())

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stonewatch.log")
	l, err := New(Config{Level: "info", File: path})
	require.NoError(t, err)

	l.Info("scan complete", "probes", 3)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "scan complete")
	assert.Contains(t, string(b), "probes=3")
}
