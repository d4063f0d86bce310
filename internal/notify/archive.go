package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"opsalert/internal/config"
	"opsalert/internal/domain"
	"opsalert/internal/permanent"

	_ "modernc.org/sqlite"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	rule_name TEXT NOT NULL,
	level TEXT NOT NULL,
	service TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '{}',
	channels TEXT NOT NULL DEFAULT '[]',
	escalated INTEGER NOT NULL DEFAULT 0,
	escalated_from TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_rule_name ON alerts(rule_name);
`

// ArchiveSender inserts fired alerts into a local SQLite archive.
// Params: opened database handle.
// Returns: archive channel implementation.
type ArchiveSender struct {
	db *sql.DB
}

// NewArchiveSender opens or creates the archive database.
// Params: archive notifier config with database file path.
// Returns: initialized sender or open/migration error.
func NewArchiveSender(cfg config.ArchiveNotifier) (*ArchiveSender, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &ArchiveSender{db: db}, nil
}

// Channel returns the sender channel identity.
// Params: none.
// Returns: archive channel key.
func (s *ArchiveSender) Channel() domain.AlertChannel {
	return domain.ChannelArchive
}

// Deliver inserts one alert row. A duplicate id means the alert was
// already archived and is treated as a permanent, already-done outcome.
// Params: context and alert to archive.
// Returns: insert error.
func (s *ArchiveSender) Deliver(ctx context.Context, alert domain.Alert) error {
	details, err := json.Marshal(alert.Details)
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode alert details: %w", err))
	}
	channels, err := json.Marshal(alert.Channels)
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode alert channels: %w", err))
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO alerts
		 (id, rule_name, level, service, title, message, details, channels, escalated, escalated_from, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.RuleName, string(alert.Level), alert.Service,
		alert.Title, alert.Message, string(details), string(channels),
		boolToInt(alert.Escalated), alert.EscalatedFrom, alert.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert archived alert: %w", err)
	}
	return nil
}

// Close closes the archive database.
// Params: none.
// Returns: close error.
func (s *ArchiveSender) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// boolToInt converts a flag for SQLite integer storage.
// Params: flag value.
// Returns: 0 or 1.
func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
