package alert

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Isolation selects how the two rule families share de-duplication state.
type Isolation string

const (
	// IsolationShared keeps one marker and one cooldown for both families.
	IsolationShared Isolation = "shared"
	// IsolationPerFamily gives each family its own marker and cooldown.
	IsolationPerFamily Isolation = "per_family"
)

// Slot names a persisted AlertState within an instrument.
type Slot string

const (
	SlotShared Slot = "shared"
	SlotPrice  Slot = "price"
	SlotChange Slot = "change"
)

// PriceRule fires when the price leaves the [Lower, Upper] band.
type PriceRule struct {
	Enabled bool
	Upper   float64
	Lower   float64
}

// ChangeRule fires when the 24h change reaches Positive or Negative.
type ChangeRule struct {
	Enabled  bool
	Positive float64
	Negative float64
}

// Config is the immutable alerting configuration for one instrument.
type Config struct {
	Enabled    bool
	Price      PriceRule
	Change     ChangeRule
	Cooldown   time.Duration
	Isolation  Isolation
	Instrument string
}

// Validate reports configuration errors. It is meant to run once at load time.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"upper threshold":         c.Price.Upper,
		"lower threshold":         c.Price.Lower,
		"positive change percent": c.Change.Positive,
		"negative change percent": c.Change.Negative,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("%s must be a finite number, got %v", name, v)
		}
	}
	if c.Price.Upper <= c.Price.Lower {
		return errors.Errorf("upper threshold %.4f must be greater than lower threshold %.4f", c.Price.Upper, c.Price.Lower)
	}
	if c.Change.Positive <= 0 {
		return errors.Errorf("positive change percent %.2f must be greater than zero", c.Change.Positive)
	}
	if c.Change.Negative >= 0 {
		return errors.Errorf("negative change percent %.2f must be less than zero", c.Change.Negative)
	}
	if c.Cooldown < 0 {
		return errors.Errorf("cooldown %s must not be negative", c.Cooldown)
	}
	switch c.Isolation {
	case IsolationShared, IsolationPerFamily, "":
	default:
		return errors.Errorf("unknown isolation %q", c.Isolation)
	}
	return nil
}

// Slots lists the slots the evaluator reads and writes under this config.
func (c Config) Slots() []Slot {
	if c.Isolation == IsolationPerFamily {
		return []Slot{SlotPrice, SlotChange}
	}
	return []Slot{SlotShared}
}

func (c Config) priceSlot() Slot {
	if c.Isolation == IsolationPerFamily {
		return SlotPrice
	}
	return SlotShared
}

func (c Config) changeSlot() Slot {
	if c.Isolation == IsolationPerFamily {
		return SlotChange
	}
	return SlotShared
}

// StateKey is the store key for a slot of an instrument.
func StateKey(instrumentKey string, slot Slot) string {
	if slot == SlotShared {
		return instrumentKey
	}
	return instrumentKey + ":" + string(slot)
}
