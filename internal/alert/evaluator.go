package alert

import (
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"spot-price-alerts/internal/types"
	"spot-price-alerts/lib/translation"
)

// Ledger holds the alert state of every slot an evaluation touches.
type Ledger map[Slot]types.AlertState

func (l Ledger) clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Outcome is the result of one evaluation.
type Outcome struct {
	Ledger Ledger
	// Dirty lists the slots whose state changed and must be written back, each once.
	Dirty  []Slot
	Events []types.AlertEvent
}

func (o *Outcome) markDirty(slot Slot) {
	for _, s := range o.Dirty {
		if s == slot {
			return
		}
	}
	o.Dirty = append(o.Dirty, slot)
}

// Evaluate decides which alerts an observation triggers. It is pure: the input
// ledger is not modified and nothing is persisted or sent.
func Evaluate(obs types.Observation, cfg Config, ledger Ledger, now time.Time) Outcome {
	out := Outcome{Ledger: ledger.clone()}

	if !cfg.Enabled || obs.Price == nil {
		return out
	}
	price := *obs.Price

	if cfg.Price.Enabled {
		evaluatePrice(&out, cfg, price, now)
	}
	if cfg.Change.Enabled && obs.ChangePercent24h != nil {
		evaluateChange(&out, cfg, price, *obs.ChangePercent24h, now)
	}

	return out
}

func evaluatePrice(out *Outcome, cfg Config, price float64, now time.Time) {
	slot := cfg.priceSlot()
	state := out.Ledger[slot]
	if coolingDown(state, cfg.Cooldown, now) {
		return
	}

	switch {
	case price >= cfg.Price.Upper:
		if state.Kind() == types.KindPriceAbove && sameThreshold(state.LastThreshold, cfg.Price.Upper) {
			return
		}
		fire(out, slot, state, priceEvent(cfg, types.KindPriceAbove, price, cfg.Price.Upper, now))
	case price <= cfg.Price.Lower:
		if state.Kind() == types.KindPriceBelow && sameThreshold(state.LastThreshold, cfg.Price.Lower) {
			return
		}
		fire(out, slot, state, priceEvent(cfg, types.KindPriceBelow, price, cfg.Price.Lower, now))
	default:
		if state.Kind() != types.KindPriceNormal {
			log.Debugf("Price back in normal range: $%.4f", price)
			state.LastKind = types.KindPriceNormal
			out.Ledger[slot] = state
			out.markDirty(slot)
		}
	}
}

// No normal-range reset exists for this family: a surge stays recorded until
// another kind overwrites the slot.
func evaluateChange(out *Outcome, cfg Config, price, change float64, now time.Time) {
	slot := cfg.changeSlot()
	state := out.Ledger[slot]
	if coolingDown(state, cfg.Cooldown, now) {
		return
	}

	switch {
	case change >= cfg.Change.Positive:
		if state.Kind() == types.KindChangeSurge {
			return
		}
		fire(out, slot, state, changeEvent(cfg, types.KindChangeSurge, price, change, now))
	case change <= cfg.Change.Negative:
		if state.Kind() == types.KindChangeDrop {
			return
		}
		fire(out, slot, state, changeEvent(cfg, types.KindChangeDrop, price, change, now))
	}
}

func fire(out *Outcome, slot Slot, state types.AlertState, ev types.AlertEvent) {
	state.LastAlertAt = types.Time(ev.FiredAt)
	state.LastKind = ev.Kind
	if ev.Threshold != nil {
		state.LastThreshold = types.Float(*ev.Threshold)
	}
	out.Ledger[slot] = state
	out.markDirty(slot)
	out.Events = append(out.Events, ev)
}

// coolingDown reports whether the slot alerted less than cooldown ago.
// A slot that never alerted is never cooling down.
func coolingDown(state types.AlertState, cooldown time.Duration, now time.Time) bool {
	if state.LastAlertAt == nil {
		return false
	}
	since := now.Sub(*state.LastAlertAt)
	if since < cooldown {
		log.Debugf("Alert cooldown active (%.1f min since last alert)", since.Minutes())
		return true
	}
	return false
}

func sameThreshold(last *float64, threshold float64) bool {
	return last != nil && *last == threshold
}

func priceEvent(cfg Config, kind types.AlertKind, price, threshold float64, now time.Time) types.AlertEvent {
	var title, body string
	if kind == types.KindPriceAbove {
		title = translation.Translate("%s Price Alert: Above Threshold!", cfg.Instrument)
		body = translation.Translate("%s reached $%.4f (above $%.2f threshold)", cfg.Instrument, price, threshold)
	} else {
		title = translation.Translate("%s Price Alert: Below Threshold!", cfg.Instrument)
		body = translation.Translate("%s dropped to $%.4f (below $%.2f threshold)", cfg.Instrument, price, threshold)
	}
	return types.AlertEvent{
		Instrument: cfg.Instrument,
		Kind:       kind,
		Title:      strings.TrimSpace(title),
		Body:       strings.TrimSpace(body),
		Price:      price,
		Threshold:  types.Float(threshold),
		FiredAt:    now,
	}
}

func changeEvent(cfg Config, kind types.AlertKind, price, change float64, now time.Time) types.AlertEvent {
	var title, body string
	if kind == types.KindChangeSurge {
		title = translation.Translate("%s 24h Surge!", cfg.Instrument)
		body = translation.Translate("%s is up %+.2f%% in the last 24 hours!", cfg.Instrument, change)
	} else {
		title = translation.Translate("%s 24h Drop Alert", cfg.Instrument)
		body = translation.Translate("%s is down %.2f%% in the last 24 hours", cfg.Instrument, math.Abs(change))
	}
	return types.AlertEvent{
		Instrument:    cfg.Instrument,
		Kind:          kind,
		Title:         strings.TrimSpace(title),
		Body:          strings.TrimSpace(body),
		Price:         price,
		ChangePercent: types.Float(change),
		FiredAt:       now,
	}
}
