package database

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"spot-price-alerts/internal/types"
)

const createPostgresAlertStateTable = `
	CREATE TABLE IF NOT EXISTS alert_state (
		state_key TEXT PRIMARY KEY,
		last_kind TEXT NOT NULL DEFAULT 'none',
		last_threshold DOUBLE PRECISION,
		last_alert_at BIGINT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`

// OpenPostgres connects to dsn, pings it and creates the alert_state table.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open connection")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	if _, err := db.ExecContext(ctx, createPostgresAlertStateTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create alert_state table")
	}

	log.Info("Connected to PostgreSQL")
	return db, nil
}

// PostgresStore keeps alert state in a PostgreSQL alert_state table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (types.AlertState, error) {
	query := `SELECT last_kind, last_threshold, last_alert_at FROM alert_state WHERE state_key = $1`

	var row stateRow
	err := s.db.QueryRowContext(ctx, query, key).Scan(&row.kind, &row.threshold, &row.alertAt)
	if err == sql.ErrNoRows {
		return types.AlertState{}, nil
	} else if err != nil {
		return types.AlertState{}, errors.Wrapf(err, "failed to get alert state %s", key)
	}
	return row.state(), nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, state types.AlertState) error {
	query := `
		INSERT INTO alert_state (state_key, last_kind, last_threshold, last_alert_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (state_key) DO UPDATE SET
			last_kind = EXCLUDED.last_kind,
			last_threshold = EXCLUDED.last_threshold,
			last_alert_at = EXCLUDED.last_alert_at,
			updated_at = now()`

	row := toRow(state)
	if _, err := s.db.ExecContext(ctx, query, key, row.kind, row.threshold, row.alertAt); err != nil {
		return errors.Wrapf(err, "failed to put alert state %s", key)
	}
	return nil
}
