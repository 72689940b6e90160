package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_WritesFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gallery-sync.log")
	var console bytes.Buffer

	l, err := New(Config{LogPath: path, Level: "debug", Console: true, ConsoleLevel: "warn", Writer: &console})
	require.NoError(t, err)

	l.Debug("debug only in file", zap.String("k", "v"))
	l.Warn("warning everywhere")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"debug only in file"`)
	assert.Contains(t, string(data), `"k":"v"`)

	assert.Contains(t, console.String(), "warning everywhere")
	assert.NotContains(t, console.String(), "debug only in file")
}

func TestLogger_WithAndHelpers(t *testing.T) {
	var console bytes.Buffer
	l, err := New(Config{Level: "debug", Console: true, Writer: &console})
	require.NoError(t, err)

	child := l.With(zap.String("operation_id", "op-1"))
	child.LogTransfer("upload", "sftp", "/a.jpg", "/r/a.jpg", 10, time.Second, nil)
	child.LogTransfer("upload", "sftp", "/b.jpg", "/r/b.jpg", 0, 0, errors.New("denied"))
	child.LogConnection("sftp", "host", 22, true, nil)

	out := console.String()
	assert.Contains(t, out, "op-1")
	assert.Contains(t, out, "transfer completed")
	assert.Contains(t, out, "transfer failed")
	assert.Contains(t, out, "denied")
	assert.Contains(t, out, "connected")
}

func TestUninitializedAndNopAreSafe(t *testing.T) {
	var l Logger
	l.Info("dropped")
	l.Errorf("dropped %d", 1)
	assert.Same(t, &l, l.With(zap.Int("n", 1)))
	assert.NoError(t, l.Close())

	NewNop().Warn("dropped")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("loud"))
}
