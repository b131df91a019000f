package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultTCPPort, cfg.GetServerData().TCPPort)
	assert.Equal(t, "default", cfg.GetServerData().DefaultGroup)
	assert.FileExists(t, filepath.Join(dir, DefaultConfigFile))
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := `{"server_data": {"svr_name": "eu-lobby", "svr_tcp_port": 19933}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(partial), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	srv := cfg.GetServerData()
	assert.Equal(t, "eu-lobby", srv.Name)
	assert.Equal(t, 19933, srv.TCPPort)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, DefaultHTTPPort, srv.HTTPPort)
	assert.Equal(t, 120, cfg.GetApplicationData().Timers.SweepInterval)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{nope"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	srv := cfg.GetServerData()
	srv.Name = "na-lobby"
	srv.MaxRooms = 42
	cfg.SetServerData(srv)
	require.NoError(t, cfg.Save())

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "na-lobby", reloaded.GetServerData().Name)
	assert.Equal(t, 42, reloaded.GetServerData().MaxRooms)
}

func TestUpdateServerFieldByJSONKey(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.UpdateServerField("svr_name", "test-lobby"))
	require.NoError(t, cfg.UpdateServerField("lobby_max_rooms", 7))

	assert.Equal(t, "test-lobby", cfg.GetServerData().Name)
	assert.Equal(t, 7, cfg.GetServerData().MaxRooms)
}

func TestTimerDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout())
	assert.Equal(t, 30*time.Minute, cfg.RoomIdleTimeout())
	assert.Equal(t, 2*time.Minute, cfg.SweepInterval())
}

func TestSavedConfigIsValidJSON(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Save())

	data, err := os.ReadFile(cfg.Path())
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "server_data")
	assert.Contains(t, m, "application_data")
}
