package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	_, err := ReadConfigFrom(path)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "default file should have been written")

	cfg, err := ReadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, []string{"contacts.read", "contacts.write", "calllog.read", "calllog.write"}, cfg.Permissions["*"])
}

func TestReadConfigKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"debug_mode": true, "server": {"socket_path": "/tmp/x.sock"}}`), 0644))

	cfg, err := ReadConfigFrom(path)
	require.NoError(t, err)
	assert.True(t, cfg.DebugMode)
	assert.Equal(t, "/tmp/x.sock", cfg.Server.SocketPath)
	assert.Equal(t, "/tmp/.contacts-svc-subscribe.sock", cfg.Server.SubscribeSocketPath)

	got, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.sock", got.Server.SocketPath)
}

func TestReadConfigRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := ReadConfigFrom(path)
	assert.Error(t, err)
}
