package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ModerationDatabase holds the operator moderation data: the ban list
// consulted at login and the alert log. Lobby state itself never touches
// disk; only moderation decisions survive a restart.
type ModerationDatabase struct {
	db *Database
}

// Ban represents one ban list entry. Provider plus player id identify the
// account; a zero ExpiresAt means permanent.
type Ban struct {
	ID        int        `json:"id"`
	Provider  string     `json:"provider"`
	PlayerID  string     `json:"player_id"`
	Reason    string     `json:"reason"`
	Actor     string     `json:"actor"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Alert represents an alert record.
type Alert struct {
	ID        int       `json:"id"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NewModerationDatabase creates and initializes the moderation database.
func NewModerationDatabase(dbPath string) (*ModerationDatabase, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	mdb := &ModerationDatabase{db: database}

	if err := mdb.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate moderation database: %w", err)
	}

	return mdb, nil
}

// migrate creates the database schema.
func (mdb *ModerationDatabase) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS bans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider TEXT NOT NULL,
			player_id TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			actor TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME,
			UNIQUE (provider, player_id)
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			acknowledged INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_bans_player ON bans(provider, player_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type);
		CREATE INDEX IF NOT EXISTS idx_alerts_acknowledged ON alerts(acknowledged);
	`

	_, err := mdb.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("database schema migrated")
	return nil
}

// AddBan inserts or refreshes a ban. expiresAt nil means permanent.
func (mdb *ModerationDatabase) AddBan(provider, playerID, reason, actor string, expiresAt *time.Time) error {
	_, err := mdb.db.Exec(`
		INSERT INTO bans (provider, player_id, reason, actor, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (provider, player_id)
		DO UPDATE SET reason = excluded.reason, actor = excluded.actor,
			created_at = CURRENT_TIMESTAMP, expires_at = excluded.expires_at
	`, provider, playerID, reason, actor, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to add ban: %w", err)
	}

	log.Info().
		Str("player", provider+":"+playerID).
		Str("actor", actor).
		Str("reason", reason).
		Msg("ban recorded")
	return nil
}

// RemoveBan lifts a ban. Returns false when no ban existed.
func (mdb *ModerationDatabase) RemoveBan(provider, playerID string) (bool, error) {
	res, err := mdb.db.Exec(
		"DELETE FROM bans WHERE provider = ? AND player_id = ?", provider, playerID)
	if err != nil {
		return false, fmt.Errorf("failed to remove ban: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// IsBanned reports whether the account is currently banned and why.
// Expired bans count as lifted but stay in the table for the record.
func (mdb *ModerationDatabase) IsBanned(ctx context.Context, provider, playerID string) (bool, string, error) {
	var reason string
	var expiresAt sql.NullTime

	err := mdb.db.QueryRow(
		"SELECT reason, expires_at FROM bans WHERE provider = ? AND player_id = ?",
		provider, playerID).Scan(&reason, &expiresAt)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("ban lookup failed: %w", err)
	}

	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return false, "", nil
	}
	return true, reason, nil
}

// ListBans returns every ban entry, newest first.
func (mdb *ModerationDatabase) ListBans() ([]Ban, error) {
	rows, err := mdb.db.Query(`
		SELECT id, provider, player_id, reason, actor, created_at, expires_at
		FROM bans ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bans []Ban
	for rows.Next() {
		var b Ban
		var expiresAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.Provider, &b.PlayerID, &b.Reason, &b.Actor, &b.CreatedAt, &expiresAt); err != nil {
			continue
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			b.ExpiresAt = &t
		}
		bans = append(bans, b)
	}

	return bans, nil
}

// CreateAlert creates a new alert record.
func (mdb *ModerationDatabase) CreateAlert(alertType, level, message string) error {
	_, err := mdb.db.Exec(
		"INSERT INTO alerts (type, level, message) VALUES (?, ?, ?)",
		alertType, level, message)
	return err
}

// GetUnacknowledgedAlerts returns all unacknowledged alerts.
func (mdb *ModerationDatabase) GetUnacknowledgedAlerts() ([]Alert, error) {
	rows, err := mdb.db.Query(
		"SELECT id, type, level, message, created_at FROM alerts WHERE acknowledged = 0 ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Type, &a.Level, &a.Message, &a.CreatedAt); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}

	return alerts, nil
}

// AcknowledgeAlert marks an alert as acknowledged.
func (mdb *ModerationDatabase) AcknowledgeAlert(alertID int) error {
	_, err := mdb.db.Exec("UPDATE alerts SET acknowledged = 1 WHERE id = ?", alertID)
	return err
}

// CleanOldAlerts removes acknowledged alerts older than the specified days.
func (mdb *ModerationDatabase) CleanOldAlerts(days int) error {
	_, err := mdb.db.Exec(
		"DELETE FROM alerts WHERE acknowledged = 1 AND created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", days))
	return err
}

// Close closes the database.
func (mdb *ModerationDatabase) Close() error {
	return mdb.db.Close()
}
