//go:build linux

package capture

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerDefaults(t *testing.T) {
	log, err := NewLogger(LogConfig{DisableStdout: true})
	assert.NoError(t, err)
	assert.NotNil(t, log)
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewLoggerRejectsBadEncoding(t *testing.T) {
	_, err := NewLogger(LogConfig{Encoding: "xml"})
	assert.Error(t, err)
}

func TestNewLoggerFileOutput(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "capture.log")
	log, err := NewLogger(LogConfig{
		Level:         "debug",
		Encoding:      "json",
		FilePath:      path,
		DisableStdout: true,
	})
	assert.NoError(err)

	log.Info("hello")
	assert.NoError(log.Sync())
	assert.FileExists(path)
}
