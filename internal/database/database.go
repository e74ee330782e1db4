package database

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

const createAlertStateTable = `
	CREATE TABLE IF NOT EXISTS alert_state (
		state_key TEXT PRIMARY KEY,
		last_kind TEXT NOT NULL DEFAULT 'none',
		last_threshold REAL DEFAULT NULL,
		last_alert_at INTEGER DEFAULT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

// Unlabeled metrics are stored with empty label columns so the primary key deduplicates them.
const createMetricsTable = `
	CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`

// InitDB opens the SQLite file at dbPath, creates the tables and stores the handle in DB.
func InitDB(dbPath string) error {
	db, err := OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	DB = db

	log.Info("Database initialized successfully.")
	return nil
}

// OpenSQLite opens and migrates a SQLite database. ":memory:" is accepted.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	// SQLite allows a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createAlertStateTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create alert_state table")
	}
	if _, err := db.Exec(createMetricsTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create metrics table")
	}
	return db, nil
}

func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
