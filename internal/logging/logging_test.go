package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_Level(t *testing.T) {
	logger := log.New()
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	require.NoError(t, Configure(logger, "warn", Console))
	assert.Equal(t, log.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.WithField("component", "registry").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "component=registry")
}

func TestConfigure_BadLevel(t *testing.T) {
	logger := log.New()
	logger.SetOutput(&bytes.Buffer{})
	logger.SetLevel(log.InfoLevel)

	assert.Error(t, Configure(logger, "chatty", ""))
	assert.Equal(t, log.InfoLevel, logger.GetLevel())
}

func TestConfigure_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmcrypt.log")
	logger := log.New()

	require.NoError(t, Configure(logger, "debug", path))
	logger.Debug("consolidating")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "consolidating")
}
