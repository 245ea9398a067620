package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/julienbonastre/fullstock/internal/logger"
)

// ErrNotFound is returned when a product or batch does not exist for the user
var ErrNotFound = errors.New("record not found")

// ErrDuplicateSKU is returned when a user already has a product with the SKU
var ErrDuplicateSKU = errors.New("a product with this sku already exists")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id                   TEXT PRIMARY KEY,
	ml_user_id           TEXT,
	ml_access_token      TEXT,
	ml_refresh_token     TEXT,
	alert_threshold_days INTEGER NOT NULL DEFAULT 5,
	last_sync_at         DATETIME,
	created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS products (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	sku             TEXT NOT NULL,
	title           TEXT NOT NULL,
	image_url       TEXT NOT NULL DEFAULT '',
	cost_per_unit   TEXT NOT NULL DEFAULT '0',
	stock_factory   INTEGER NOT NULL DEFAULT 0 CHECK (stock_factory >= 0),
	stock_scheduled INTEGER NOT NULL DEFAULT 0 CHECK (stock_scheduled >= 0),
	stock_full      INTEGER NOT NULL DEFAULT 0 CHECK (stock_full >= 0),
	ml_item_id      TEXT,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (user_id, sku)
);
CREATE INDEX IF NOT EXISTS idx_products_user ON products(user_id);

CREATE TABLE IF NOT EXISTS sales_daily (
	user_id  TEXT NOT NULL,
	sku      TEXT NOT NULL,
	day      TEXT NOT NULL,
	quantity INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, sku, day)
);

CREATE TABLE IF NOT EXISTS batches (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	items          TEXT NOT NULL DEFAULT '[]',
	total_quantity INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	sent_date      TEXT NOT NULL,
	received_date  TEXT,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_batches_user ON batches(user_id);

CREATE TABLE IF NOT EXISTS sync_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       TEXT NOT NULL,
	sync_type     TEXT NOT NULL,
	status        TEXT NOT NULL,
	items_synced  INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME
);
CREATE INDEX IF NOT EXISTS idx_sync_history_user ON sync_history(user_id, started_at);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	expires_at DATETIME NOT NULL
);
`

// DB wraps the SQLite database
type DB struct {
	*sql.DB
	sealer *sealer
	log    *zap.Logger
}

// Open opens or creates the database. key encrypts stored marketplace
// tokens; a nil key stores them as plain text.
func Open(dbPath string, key []byte) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps sqlite transactions from failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s, err := newSealer(key)
	if err != nil {
		db.Close()
		return nil, err
	}

	log := logger.L().With(zap.String("component", "database"))
	if s == nil {
		log.Warn("ENCRYPTION_KEY not set, marketplace tokens are stored unencrypted")
	}

	return &DB{DB: db, sealer: s, log: log}, nil
}

// withTx runs fn in a transaction, rolling back on error
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// SyncRun is one recorded sync or import execution
type SyncRun struct {
	ID           int64      `json:"id"`
	UserID       string     `json:"-"`
	SyncType     string     `json:"syncType"` // "sync" or "import"
	Status       string     `json:"status"`   // "success", "partial", "failed"
	ItemsSynced  int        `json:"itemsSynced"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// RecordSyncRun stores a finished sync or import run
func (db *DB) RecordSyncRun(ctx context.Context, run *SyncRun) error {
	result, err := db.ExecContext(ctx, `
		INSERT INTO sync_history (user_id, sync_type, status, items_synced, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.UserID, run.SyncType, run.Status, run.ItemsSynced, run.ErrorMessage, run.StartedAt.UTC(), utcPtr(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	return nil
}

// GetSyncHistory returns the most recent runs for a user, newest first
func (db *DB) GetSyncHistory(ctx context.Context, userID string, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, sync_type, status, items_synced, error_message, started_at, completed_at
		FROM sync_history
		WHERE user_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []SyncRun
	for rows.Next() {
		var run SyncRun
		err := rows.Scan(&run.ID, &run.UserID, &run.SyncType, &run.Status,
			&run.ItemsSynced, &run.ErrorMessage, &run.StartedAt, &run.CompletedAt)
		if err != nil {
			return nil, err
		}
		history = append(history, run)
	}
	return history, rows.Err()
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
