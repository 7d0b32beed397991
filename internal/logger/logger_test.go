package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncHandlerWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	handler := NewAsyncHandler(dir, slog.LevelInfo)
	log := slog.New(handler).With("handle", "h1")

	log.Debug("hidden")
	log.Info("session opened", "key", "process")
	require.NoError(t, handler.Close())

	data, err := os.ReadFile(filepath.Join(dir, time.Now().Format("2006-01-02")+".log"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "session opened")
	assert.Contains(t, text, "handle=h1")
	assert.Contains(t, text, "key=process")
	assert.False(t, strings.Contains(text, "hidden"))
}

func TestShutdownCallbackIsIdempotent(t *testing.T) {
	cb := &ShutdownCallback{handler: NewAsyncHandler(t.TempDir(), slog.LevelDebug)}
	require.NoError(t, cb.Invoke(context.Background()))
	require.NoError(t, cb.Invoke(context.Background()))
}
