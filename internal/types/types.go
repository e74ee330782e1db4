package types

import "time"

// AlertKind identifies which rule and direction last fired for a slot
type AlertKind string

const (
	KindNone        AlertKind = "none"
	KindPriceAbove  AlertKind = "price_above"
	KindPriceBelow  AlertKind = "price_below"
	KindPriceNormal AlertKind = "price_normal"
	KindChangeSurge AlertKind = "change_surge"
	KindChangeDrop  AlertKind = "change_drop"
)

// ParseAlertKind maps a persisted value back to a kind. Unknown values are none.
func ParseAlertKind(s string) AlertKind {
	switch k := AlertKind(s); k {
	case KindPriceAbove, KindPriceBelow, KindPriceNormal, KindChangeSurge, KindChangeDrop:
		return k
	default:
		return KindNone
	}
}

// Observation is one sample of the tracked instrument. Nil fields were unavailable.
type Observation struct {
	Price            *float64 `json:"price"`
	ChangePercent24h *float64 `json:"change_percent_24h"`
}

// AlertState is the persisted de-duplication record for a slot.
// The zero value is the state of an instrument that never alerted.
type AlertState struct {
	LastAlertAt   *time.Time `json:"last_alert_at,omitempty"`
	LastKind      AlertKind  `json:"last_kind"`
	LastThreshold *float64   `json:"last_threshold,omitempty"`
}

// Kind returns the last kind, treating an empty value as none.
func (s AlertState) Kind() AlertKind {
	if s.LastKind == "" {
		return KindNone
	}
	return s.LastKind
}

// AlertEvent is a notification handed to a notifier
type AlertEvent struct {
	ID            string    `json:"id"`
	Instrument    string    `json:"instrument"`
	Kind          AlertKind `json:"kind"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	Price         float64   `json:"price"`
	Threshold     *float64  `json:"threshold,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	FiredAt       time.Time `json:"fired_at"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}
