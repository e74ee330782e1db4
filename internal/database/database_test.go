package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"spot-price-alerts/internal/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStore_MissingKeyIsZeroState(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))

	state, err := store.Get(context.Background(), "hype")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Kind() != types.KindNone || state.LastAlertAt != nil || state.LastThreshold != nil {
		t.Errorf("expected zero state, got %+v", state)
	}
}

func TestSQLiteStore_PutAndGet(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state types.AlertState
	}{
		{
			name:  "price alert",
			state: types.AlertState{LastAlertAt: types.Time(at), LastKind: types.KindPriceAbove, LastThreshold: types.Float(30)},
		},
		{
			name:  "normal keeps timestamp",
			state: types.AlertState{LastAlertAt: types.Time(at), LastKind: types.KindPriceNormal, LastThreshold: types.Float(30)},
		},
		{
			name:  "change alert has no threshold",
			state: types.AlertState{LastAlertAt: types.Time(at.Add(time.Hour)), LastKind: types.KindChangeDrop},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Put(ctx, "hype", tt.state); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := store.Get(ctx, "hype")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Kind() != tt.state.Kind() {
				t.Errorf("kind = %s, want %s", got.Kind(), tt.state.Kind())
			}
			if !got.LastAlertAt.Equal(*tt.state.LastAlertAt) {
				t.Errorf("last alert at = %v, want %v", got.LastAlertAt, tt.state.LastAlertAt)
			}
			if (got.LastThreshold == nil) != (tt.state.LastThreshold == nil) {
				t.Fatalf("threshold = %v, want %v", got.LastThreshold, tt.state.LastThreshold)
			}
			if got.LastThreshold != nil && *got.LastThreshold != *tt.state.LastThreshold {
				t.Errorf("threshold = %v, want %v", *got.LastThreshold, *tt.state.LastThreshold)
			}
		})
	}
}

func TestSQLiteStore_KeysAreIndependent(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	ctx := context.Background()

	if err := store.Put(ctx, "hype:price", types.AlertState{LastKind: types.KindPriceBelow, LastThreshold: types.Float(20)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, "hype:change")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind() != types.KindNone {
		t.Errorf("expected hype:change untouched, got %s", got.Kind())
	}
}

func TestMetricsRepository(t *testing.T) {
	repo := NewMetricsRepository(openTestDB(t))

	if v, err := repo.GetMetric("cycles_total"); err != nil || v != 0 {
		t.Fatalf("expected missing metric to default to 0, got %v, %v", v, err)
	}

	// Saving twice must replace, not duplicate.
	for _, v := range []float64{3, 5} {
		if err := repo.SaveMetric("cycles_total", "", "", v); err != nil {
			t.Fatalf("SaveMetric: %v", err)
		}
	}
	if err := repo.SaveMetric("alerts_sent_total", "kind", "price_above", 2); err != nil {
		t.Fatalf("SaveMetric: %v", err)
	}
	if err := repo.SaveMetric("alerts_sent_total", "kind", "change_surge", 1); err != nil {
		t.Fatalf("SaveMetric: %v", err)
	}

	if v, err := repo.GetMetric("cycles_total"); err != nil || v != 5 {
		t.Errorf("cycles_total = %v, %v; want 5", v, err)
	}

	var rows int
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM metrics WHERE metric_name = 'cycles_total'`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected a single cycles_total row, got %d", rows)
	}

	labeled, err := repo.GetMetricsWithLabels("alerts_sent_total")
	if err != nil {
		t.Fatalf("GetMetricsWithLabels: %v", err)
	}
	if labeled["kind"]["price_above"] != 2 || labeled["kind"]["change_surge"] != 1 {
		t.Errorf("unexpected labeled values %v", labeled)
	}
}

func TestRedisStateEncoding(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := types.AlertState{LastAlertAt: types.Time(at), LastKind: types.KindPriceBelow, LastThreshold: types.Float(19.75)}

	fields := encodeRedisState(state)
	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v.(string)
	}

	got, err := decodeRedisState(raw)
	if err != nil {
		t.Fatalf("decodeRedisState: %v", err)
	}
	if got.Kind() != types.KindPriceBelow || *got.LastThreshold != 19.75 || !got.LastAlertAt.Equal(at) {
		t.Errorf("unexpected state %+v", got)
	}
}

func TestDecodeRedisState(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]string
		want    types.AlertKind
		wantErr bool
	}{
		{name: "missing hash", fields: map[string]string{}, want: types.KindNone},
		{name: "unknown kind", fields: map[string]string{"kind": "volume_spike"}, want: types.KindNone},
		{name: "kind only", fields: map[string]string{"kind": "change_surge"}, want: types.KindChangeSurge},
		{name: "bad threshold", fields: map[string]string{"kind": "price_above", "threshold": "abc"}, wantErr: true},
		{name: "bad timestamp", fields: map[string]string{"kind": "price_above", "alert_at": "yesterday"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRedisState(tt.fields)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind() != tt.want {
				t.Errorf("kind = %s, want %s", got.Kind(), tt.want)
			}
			if got.LastAlertAt != nil || got.LastThreshold != nil {
				t.Errorf("expected nil timestamp and threshold, got %+v", got)
			}
		})
	}
}
