package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ModerationDatabase {
	t.Helper()
	mdb, err := NewModerationDatabase(filepath.Join(t.TempDir(), "moderation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mdb.Close() })
	return mdb
}

func TestBanRoundTrip(t *testing.T) {
	mdb := newTestStore(t)
	ctx := context.Background()

	banned, _, err := mdb.IsBanned(ctx, "steam", "76561198000000001")
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, mdb.AddBan("steam", "76561198000000001", "griefing", "admin", nil))

	banned, reason, err := mdb.IsBanned(ctx, "steam", "76561198000000001")
	require.NoError(t, err)
	assert.True(t, banned)
	assert.Equal(t, "griefing", reason)

	// Same id under a different provider is a different account.
	banned, _, err = mdb.IsBanned(ctx, "garena", "76561198000000001")
	require.NoError(t, err)
	assert.False(t, banned)

	removed, err := mdb.RemoveBan("steam", "76561198000000001")
	require.NoError(t, err)
	assert.True(t, removed)

	banned, _, err = mdb.IsBanned(ctx, "steam", "76561198000000001")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestRemoveBanMissing(t *testing.T) {
	mdb := newTestStore(t)

	removed, err := mdb.RemoveBan("steam", "76561198000000002")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAddBanUpdatesExisting(t *testing.T) {
	mdb := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, mdb.AddBan("steam", "76561198000000003", "first", "admin", nil))
	require.NoError(t, mdb.AddBan("steam", "76561198000000003", "second", "admin", nil))

	_, reason, err := mdb.IsBanned(ctx, "steam", "76561198000000003")
	require.NoError(t, err)
	assert.Equal(t, "second", reason)

	bans, err := mdb.ListBans()
	require.NoError(t, err)
	assert.Len(t, bans, 1)
}

func TestExpiredBanNotEnforced(t *testing.T) {
	mdb := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	require.NoError(t, mdb.AddBan("steam", "76561198000000004", "temp", "admin", &past))

	banned, _, err := mdb.IsBanned(ctx, "steam", "76561198000000004")
	require.NoError(t, err)
	assert.False(t, banned)

	// The record stays visible to operators until explicitly removed.
	bans, err := mdb.ListBans()
	require.NoError(t, err)
	assert.Len(t, bans, 1)
}

func TestListBansNewestFirst(t *testing.T) {
	mdb := newTestStore(t)

	require.NoError(t, mdb.AddBan("steam", "76561198000000005", "a", "admin", nil))
	require.NoError(t, mdb.AddBan("steam", "76561198000000006", "b", "admin", nil))

	bans, err := mdb.ListBans()
	require.NoError(t, err)
	require.Len(t, bans, 2)
	for _, b := range bans {
		assert.Equal(t, "steam", b.Provider)
		assert.Equal(t, "admin", b.Actor)
	}
}

func TestAlertLifecycle(t *testing.T) {
	mdb := newTestStore(t)

	require.NoError(t, mdb.CreateAlert("sweep", "warning", "removed 12 stale sessions"))
	require.NoError(t, mdb.CreateAlert("login", "info", "ban rejected login"))

	alerts, err := mdb.GetUnacknowledgedAlerts()
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	require.NoError(t, mdb.AcknowledgeAlert(alerts[0].ID))

	alerts, err = mdb.GetUnacknowledgedAlerts()
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	require.NoError(t, mdb.CleanOldAlerts(30))
}
