package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"spot-price-alerts/internal/types"
)

// stateRow is the column form of an AlertState shared by the SQL stores.
type stateRow struct {
	kind      string
	threshold sql.NullFloat64
	alertAt   sql.NullInt64
}

func toRow(state types.AlertState) stateRow {
	row := stateRow{kind: string(state.Kind())}
	if state.LastThreshold != nil {
		row.threshold = sql.NullFloat64{Float64: *state.LastThreshold, Valid: true}
	}
	if state.LastAlertAt != nil {
		row.alertAt = sql.NullInt64{Int64: state.LastAlertAt.UnixMilli(), Valid: true}
	}
	return row
}

func (r stateRow) state() types.AlertState {
	state := types.AlertState{LastKind: types.ParseAlertKind(r.kind)}
	if r.threshold.Valid {
		state.LastThreshold = types.Float(r.threshold.Float64)
	}
	if r.alertAt.Valid {
		state.LastAlertAt = types.Time(time.UnixMilli(r.alertAt.Int64).UTC())
	}
	return state
}

// SQLiteStore keeps alert state in the alert_state table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the zero AlertState when no row exists for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (types.AlertState, error) {
	query := `SELECT last_kind, last_threshold, last_alert_at FROM alert_state WHERE state_key = ?;`

	var row stateRow
	err := s.db.QueryRowContext(ctx, query, key).Scan(&row.kind, &row.threshold, &row.alertAt)
	if err == sql.ErrNoRows {
		return types.AlertState{}, nil
	} else if err != nil {
		return types.AlertState{}, errors.Wrapf(err, "failed to get alert state %s", key)
	}
	return row.state(), nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, state types.AlertState) error {
	query := `
	INSERT OR REPLACE INTO alert_state (state_key, last_kind, last_threshold, last_alert_at, updated_at)
	VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP);`

	row := toRow(state)
	if _, err := s.db.ExecContext(ctx, query, key, row.kind, row.threshold, row.alertAt); err != nil {
		return errors.Wrapf(err, "failed to put alert state %s", key)
	}

	log.Debugf("Alert state saved: %s kind=%s", key, row.kind)
	return nil
}
