package alert

import (
	"strings"
	"testing"
	"time"

	"spot-price-alerts/internal/types"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Enabled:    true,
		Price:      PriceRule{Enabled: true, Upper: 30, Lower: 20},
		Change:     ChangeRule{Enabled: true, Positive: 10, Negative: -10},
		Cooldown:   15 * time.Minute,
		Isolation:  IsolationShared,
		Instrument: "HYPE",
	}
}

func obs(price float64) types.Observation {
	return types.Observation{Price: types.Float(price)}
}

func obsWithChange(price, change float64) types.Observation {
	return types.Observation{Price: types.Float(price), ChangePercent24h: types.Float(change)}
}

func TestEvaluate_DisabledConfigIsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	ledger := Ledger{SlotShared: {LastKind: types.KindPriceNormal}}
	inputs := []types.Observation{
		obs(1000),
		obs(0),
		obsWithChange(25, 99),
		{},
	}
	for _, o := range inputs {
		out := Evaluate(o, cfg, ledger, t0)
		if len(out.Events) != 0 || len(out.Dirty) != 0 {
			t.Errorf("expected no events and no writes, got %d events, dirty %v", len(out.Events), out.Dirty)
		}
		if out.Ledger[SlotShared] != ledger[SlotShared] {
			t.Errorf("ledger changed: %+v", out.Ledger[SlotShared])
		}
	}
}

func TestEvaluate_AbsentPriceSkipsBothRules(t *testing.T) {
	out := Evaluate(types.Observation{ChangePercent24h: types.Float(50)}, testConfig(), Ledger{}, t0)
	if len(out.Events) != 0 || len(out.Dirty) != 0 {
		t.Fatalf("expected nothing, got %d events, dirty %v", len(out.Events), out.Dirty)
	}
}

func TestEvaluate_CooldownBlocksEverything(t *testing.T) {
	cfg := testConfig()
	last := t0.Add(-14*time.Minute - 59*time.Second)
	ledger := Ledger{SlotShared: {LastAlertAt: &last, LastKind: types.KindNone}}

	for _, o := range []types.Observation{obsWithChange(1e9, 1e6), obsWithChange(0, -100), obs(25)} {
		out := Evaluate(o, cfg, ledger, t0)
		if len(out.Events) != 0 {
			t.Errorf("expected cooldown to block, got %v", out.Events)
		}
		if len(out.Dirty) != 0 {
			t.Errorf("expected no writes during cooldown, got %v", out.Dirty)
		}
	}
}

func TestEvaluate_CooldownElapsedAllowsAlert(t *testing.T) {
	last := t0.Add(-15 * time.Minute)
	ledger := Ledger{SlotShared: {LastAlertAt: &last}}

	out := Evaluate(obs(31), testConfig(), ledger, t0)
	if len(out.Events) != 1 {
		t.Fatalf("expected one event once cooldown elapsed, got %d", len(out.Events))
	}
}

func TestEvaluate_WorkedExample(t *testing.T) {
	cfg := testConfig()
	last := t0.Add(-20 * time.Minute)
	ledger := Ledger{SlotShared: {LastAlertAt: &last, LastKind: types.KindNone}}

	out := Evaluate(obs(31.5), cfg, ledger, t0)

	if len(out.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(out.Events))
	}
	ev := out.Events[0]
	if !strings.Contains(ev.Title, "Price Alert: Above Threshold!") {
		t.Errorf("unexpected title %q", ev.Title)
	}
	if !strings.Contains(ev.Body, "$31.5000") || !strings.Contains(ev.Body, "$30.00") {
		t.Errorf("unexpected body %q", ev.Body)
	}

	st := out.Ledger[SlotShared]
	if st.Kind() != types.KindPriceAbove {
		t.Errorf("expected price_above, got %q", st.Kind())
	}
	if st.LastThreshold == nil || *st.LastThreshold != 30 {
		t.Errorf("expected threshold 30, got %v", st.LastThreshold)
	}
	if st.LastAlertAt == nil || !st.LastAlertAt.Equal(t0) {
		t.Errorf("expected timestamp %v, got %v", t0, st.LastAlertAt)
	}
	if len(out.Dirty) != 1 || out.Dirty[0] != SlotShared {
		t.Errorf("expected shared slot dirty, got %v", out.Dirty)
	}
}

func TestEvaluate_DoesNotMutateInputLedger(t *testing.T) {
	ledger := Ledger{SlotShared: {}}
	Evaluate(obs(40), testConfig(), ledger, t0)
	if ledger[SlotShared].Kind() != types.KindNone || ledger[SlotShared].LastAlertAt != nil {
		t.Errorf("input ledger was modified: %+v", ledger[SlotShared])
	}
}

func TestEvaluate_RepeatedAboveIsDeduplicated(t *testing.T) {
	cfg := testConfig()
	first := Evaluate(obs(35), cfg, Ledger{}, t0)
	if len(first.Events) != 1 {
		t.Fatalf("expected first call to alert, got %d", len(first.Events))
	}

	second := Evaluate(obs(35), cfg, first.Ledger, t0.Add(time.Hour))
	if len(second.Events) != 0 {
		t.Errorf("expected no repeat alert, got %v", second.Events)
	}
	if len(second.Dirty) != 0 {
		t.Errorf("expected no state write, got %v", second.Dirty)
	}
}

func TestEvaluate_HysteresisThroughNormalBand(t *testing.T) {
	cfg := testConfig()
	ledger := Ledger{}
	now := t0

	var fired []int
	for i, price := range []float64{35, 25, 35} {
		out := Evaluate(obs(price), cfg, ledger, now)
		if len(out.Events) > 0 {
			if out.Events[0].Kind != types.KindPriceAbove {
				t.Errorf("step %d: expected price_above, got %q", i, out.Events[0].Kind)
			}
			fired = append(fired, i)
		}
		ledger = out.Ledger
		now = now.Add(cfg.Cooldown + time.Minute)
	}

	if len(fired) != 2 || fired[0] != 0 || fired[1] != 2 {
		t.Errorf("expected alerts at steps 0 and 2, got %v", fired)
	}
}

func TestEvaluate_NormalBandWriteKeepsTimestamp(t *testing.T) {
	last := t0.Add(-time.Hour)
	ledger := Ledger{SlotShared: {LastAlertAt: &last, LastKind: types.KindPriceAbove, LastThreshold: types.Float(30)}}

	out := Evaluate(obs(25), testConfig(), ledger, t0)

	if len(out.Events) != 0 {
		t.Fatalf("expected no event, got %v", out.Events)
	}
	st := out.Ledger[SlotShared]
	if st.Kind() != types.KindPriceNormal {
		t.Errorf("expected price_normal, got %q", st.Kind())
	}
	if st.LastAlertAt == nil || !st.LastAlertAt.Equal(last) {
		t.Errorf("normal write must not advance the cooldown timestamp, got %v", st.LastAlertAt)
	}
	if len(out.Dirty) != 1 {
		t.Errorf("expected one write, got %v", out.Dirty)
	}

	again := Evaluate(obs(26), testConfig(), out.Ledger, t0.Add(time.Minute))
	if len(again.Dirty) != 0 {
		t.Errorf("expected no second normal write, got %v", again.Dirty)
	}
}

func TestEvaluate_ThresholdChangeRearms(t *testing.T) {
	cfg := testConfig()
	cfg.Price.Upper = 32
	last := t0.Add(-time.Hour)
	ledger := Ledger{SlotShared: {LastAlertAt: &last, LastKind: types.KindPriceAbove, LastThreshold: types.Float(30)}}

	out := Evaluate(obs(35), cfg, ledger, t0)
	if len(out.Events) != 1 {
		t.Fatalf("expected a fresh alert after threshold change, got %d", len(out.Events))
	}
	if got := *out.Ledger[SlotShared].LastThreshold; got != 32 {
		t.Errorf("expected threshold 32 recorded, got %v", got)
	}
}

func TestEvaluate_InclusiveBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		want  types.AlertKind
	}{
		{"at upper", 30, types.KindPriceAbove},
		{"at lower", 20, types.KindPriceBelow},
		{"just inside upper", 29.9999, ""},
		{"just inside lower", 20.0001, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Evaluate(obs(tt.price), testConfig(), Ledger{}, t0)
			if tt.want == "" {
				if len(out.Events) != 0 {
					t.Errorf("expected no event, got %v", out.Events)
				}
				return
			}
			if len(out.Events) != 1 || out.Events[0].Kind != tt.want {
				t.Errorf("expected %q, got %v", tt.want, out.Events)
			}
		})
	}
}

func TestEvaluate_BelowThresholdMessage(t *testing.T) {
	out := Evaluate(obs(19.5), testConfig(), Ledger{}, t0)
	if len(out.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(out.Events))
	}
	ev := out.Events[0]
	if ev.Title != "HYPE Price Alert: Below Threshold!" {
		t.Errorf("unexpected title %q", ev.Title)
	}
	if ev.Body != "HYPE dropped to $19.5000 (below $20.00 threshold)" {
		t.Errorf("unexpected body %q", ev.Body)
	}
}

func TestEvaluate_ChangeRules(t *testing.T) {
	cfg := testConfig()
	cfg.Price.Enabled = false

	surge := Evaluate(obsWithChange(25, 12.5), cfg, Ledger{}, t0)
	if len(surge.Events) != 1 || surge.Events[0].Kind != types.KindChangeSurge {
		t.Fatalf("expected surge, got %v", surge.Events)
	}
	if surge.Events[0].Title != "HYPE 24h Surge!" {
		t.Errorf("unexpected title %q", surge.Events[0].Title)
	}
	if surge.Events[0].Body != "HYPE is up +12.50% in the last 24 hours!" {
		t.Errorf("unexpected body %q", surge.Events[0].Body)
	}
	if surge.Ledger[SlotShared].LastThreshold != nil {
		t.Errorf("change alerts must not record a threshold")
	}

	repeat := Evaluate(obsWithChange(25, 15), cfg, surge.Ledger, t0.Add(time.Hour))
	if len(repeat.Events) != 0 {
		t.Errorf("expected surge to be deduplicated, got %v", repeat.Events)
	}

	drop := Evaluate(obsWithChange(25, -11), cfg, repeat.Ledger, t0.Add(2*time.Hour))
	if len(drop.Events) != 1 || drop.Events[0].Kind != types.KindChangeDrop {
		t.Fatalf("expected drop, got %v", drop.Events)
	}
	if drop.Events[0].Body != "HYPE is down 11.00% in the last 24 hours" {
		t.Errorf("unexpected body %q", drop.Events[0].Body)
	}
}

func TestEvaluate_ChangeHasNoNormalReset(t *testing.T) {
	cfg := testConfig()
	cfg.Price.Enabled = false

	out := Evaluate(obsWithChange(25, 12), cfg, Ledger{}, t0)
	out = Evaluate(obsWithChange(25, 1), cfg, out.Ledger, t0.Add(time.Hour))
	if len(out.Dirty) != 0 {
		t.Errorf("a normal change must not write state, got %v", out.Dirty)
	}
	out = Evaluate(obsWithChange(25, 12), cfg, out.Ledger, t0.Add(2*time.Hour))
	if len(out.Events) != 0 {
		t.Errorf("surge should stay suppressed without a reset, got %v", out.Events)
	}
}

func TestEvaluate_SharedSlotPriceAlertBlocksChangeInSameCycle(t *testing.T) {
	out := Evaluate(obsWithChange(35, 20), testConfig(), Ledger{}, t0)
	if len(out.Events) != 1 || out.Events[0].Kind != types.KindPriceAbove {
		t.Fatalf("expected only the price alert, got %v", out.Events)
	}
	if len(out.Dirty) != 1 {
		t.Errorf("expected a single write for the shared slot, got %v", out.Dirty)
	}
}

func TestEvaluate_SharedSlotCrossCancellation(t *testing.T) {
	cfg := testConfig()
	ledger := Ledger{}
	now := t0

	step := func(o types.Observation) []types.AlertEvent {
		out := Evaluate(o, cfg, ledger, now)
		ledger = out.Ledger
		now = now.Add(cfg.Cooldown + time.Minute)
		return out.Events
	}

	if evs := step(obs(35)); len(evs) != 1 {
		t.Fatalf("expected price alert, got %v", evs)
	}
	// Price disabled for one cycle so the change rule can overwrite the shared marker.
	cfg.Price.Enabled = false
	if evs := step(obsWithChange(35, 15)); len(evs) != 1 || evs[0].Kind != types.KindChangeSurge {
		t.Fatalf("expected surge, got %v", evs)
	}
	cfg.Price.Enabled = true
	if evs := step(obs(35)); len(evs) != 1 || evs[0].Kind != types.KindPriceAbove {
		t.Errorf("expected the price alert to repeat after the marker was overwritten, got %v", evs)
	}
}

func TestEvaluate_PerFamilyIsolation(t *testing.T) {
	cfg := testConfig()
	cfg.Isolation = IsolationPerFamily

	out := Evaluate(obsWithChange(35, 20), cfg, Ledger{}, t0)
	if len(out.Events) != 2 {
		t.Fatalf("expected both families to fire, got %v", out.Events)
	}
	if len(out.Dirty) != 2 {
		t.Errorf("expected both slots dirty, got %v", out.Dirty)
	}
	if out.Ledger[SlotPrice].Kind() != types.KindPriceAbove || out.Ledger[SlotChange].Kind() != types.KindChangeSurge {
		t.Errorf("unexpected ledger %+v", out.Ledger)
	}

	// A new change alert must not re-arm the price alert.
	next := Evaluate(obsWithChange(35, -20), cfg, out.Ledger, t0.Add(time.Hour))
	if len(next.Events) != 1 || next.Events[0].Kind != types.KindChangeDrop {
		t.Errorf("expected only the drop alert, got %v", next.Events)
	}
}

func TestEvaluate_PerFamilyCooldownIsIndependent(t *testing.T) {
	cfg := testConfig()
	cfg.Isolation = IsolationPerFamily
	recent := t0.Add(-time.Minute)
	ledger := Ledger{SlotPrice: {LastAlertAt: &recent, LastKind: types.KindPriceBelow, LastThreshold: types.Float(20)}}

	out := Evaluate(obsWithChange(35, 20), cfg, ledger, t0)
	if len(out.Events) != 1 || out.Events[0].Kind != types.KindChangeSurge {
		t.Errorf("expected only the change family to fire, got %v", out.Events)
	}
}

func TestEvaluate_InvalidConfigDoesNotPanic(t *testing.T) {
	cfg := Config{
		Enabled:  true,
		Price:    PriceRule{Enabled: true, Upper: 10, Lower: 50},
		Change:   ChangeRule{Enabled: true, Positive: -5, Negative: 5},
		Cooldown: -time.Minute,
	}
	out := Evaluate(obsWithChange(30, 0), cfg, nil, t0)
	if len(out.Events) == 0 {
		t.Errorf("expected the overlapping band to fire")
	}
}

func TestEvaluate_EmptyInstrumentName(t *testing.T) {
	cfg := testConfig()
	cfg.Instrument = ""
	out := Evaluate(obs(31.5), cfg, Ledger{}, t0)
	if out.Events[0].Title != "Price Alert: Above Threshold!" {
		t.Errorf("unexpected title %q", out.Events[0].Title)
	}
}
