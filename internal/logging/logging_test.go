package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aristath/etlrun/internal/config"
)

func TestNewJSONToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "info", Format: "json", Output: "stdout"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("loaded", zap.Float64("total", 150))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"loaded"`)
	assert.Contains(t, out, `"total":150`)
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "etlrun.log")
	var buf bytes.Buffer

	logger, err := New(config.LogConfig{Level: "debug", Format: "console", Output: "both", FilePath: path, MaxSize: 1}, &buf)
	require.NoError(t, err)

	logger.Debug("written twice")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written twice"))
	assert.Contains(t, buf.String(), "written twice")
}

func TestNewInvalid(t *testing.T) {
	tests := []config.LogConfig{
		{Level: "loud"},
		{Format: "xml"},
		{Output: "syslog"},
		{Output: "file"},
	}
	for _, cfg := range tests {
		_, err := New(cfg, nil)
		assert.Error(t, err, "config %+v", cfg)
	}
}
