package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "babycode.log")

	log, closeLog, err := newLogger("info", path, false)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("shown", "tool", "read_file")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Contains(t, string(data), "shown")
	assert.Contains(t, string(data), "tool=read_file")
	assert.NotContains(t, string(data), "hidden")
	assert.NotContains(t, string(data), "\x1b[", "file output must not be colored")
}

func TestNewLogger_VerboseForcesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "babycode.log")

	log, closeLog, err := newLogger("error", path, true)
	require.NoError(t, err)
	log.Debug("debugging")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Contains(t, string(data), "debugging")
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, _, err := newLogger("loud", "", false)
	assert.Error(t, err)
}
