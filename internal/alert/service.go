package alert

import (
	"bytes"
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"spot-price-alerts/internal/metrics"
	"spot-price-alerts/internal/types"
)

// deliverTimeout bounds notification and persistence once a cycle has evaluated.
const deliverTimeout = 30 * time.Second

// Source supplies one observation per cycle. Failures surface as nil fields, never as errors.
type Source interface {
	Fetch(ctx context.Context, instrumentID string) types.Observation
}

// StateStore persists alert state. Get returns the zero state for unknown keys.
type StateStore interface {
	Get(ctx context.Context, key string) (types.AlertState, error)
	Put(ctx context.Context, key string, state types.AlertState) error
}

// Notifier delivers an alert to the user.
type Notifier interface {
	Send(ctx context.Context, event types.AlertEvent) error
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Alerts Config
	// InstrumentID is the id the source understands, e.g. "@107".
	InstrumentID string
	// InstrumentKey prefixes the store keys, e.g. "hype".
	InstrumentKey string
	Source        Source
	Store         StateStore
	Notifier      Notifier
	Metrics       *metrics.AlertMetrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Report describes what one cycle did.
type Report struct {
	Observation types.Observation
	Events      []types.AlertEvent
	Delivered   int
	Persisted   []Slot
}

// Status is a snapshot for the status endpoint and bot command.
type Status struct {
	Instrument  string            `json:"instrument"`
	Observation types.Observation `json:"observation"`
	Ledger      Ledger            `json:"ledger"`
	LastCycleAt *time.Time        `json:"last_cycle_at,omitempty"`
	Cycles      uint64            `json:"cycles"`
	AlertsSent  uint64            `json:"alerts_sent"`
	Config      Config            `json:"-"`
}

// Service runs evaluation cycles for one instrument.
type Service struct {
	cfg   ServiceConfig
	locks *keyLocker

	statusMu sync.RWMutex
	status   Status
}

// NewService validates the wiring and returns a ready Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil || cfg.Store == nil || cfg.Notifier == nil || cfg.Metrics == nil {
		return nil, errors.New("alert service requires a source, store, notifier and metrics")
	}
	if cfg.InstrumentKey == "" {
		return nil, errors.New("alert service requires an instrument key")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		cfg:   cfg,
		locks: cycleLocks,
		status: Status{
			Instrument: cfg.Alerts.Instrument,
			Ledger:     Ledger{},
			Config:     cfg.Alerts,
		},
	}, nil
}

// RunCycle fetches one observation, evaluates it and delivers the resulting alerts.
// Notification failures are logged; persistence failures are returned after
// every event has been handed to the notifier. Once evaluated, a cycle finishes
// its deliveries and writes even if ctx is cancelled.
func (s *Service) RunCycle(ctx context.Context) (Report, error) {
	logger := log.WithFields(log.Fields{"component": "alert", "instrument": s.cfg.InstrumentKey})

	obs := s.cfg.Source.Fetch(ctx, s.cfg.InstrumentID)
	s.recordObservation(obs)

	unlock := s.locks.Lock(s.cfg.InstrumentKey)
	defer unlock()

	ledger := s.loadLedger(ctx, logger)
	now := s.cfg.Now()
	out := Evaluate(obs, s.cfg.Alerts, ledger, now)
	if log.IsLevelEnabled(log.DebugLevel) {
		logger.Debugf("Ledger after evaluation: %s", spew.Sdump(out.Ledger))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
	defer cancel()

	report := Report{Observation: obs, Events: out.Events}
	for i := range report.Events {
		ev := &report.Events[i]
		ev.ID = uuid.NewString()
		if err := s.cfg.Notifier.Send(ctx, *ev); err != nil {
			s.cfg.Metrics.NotifyFailures.Inc()
			logger.WithError(err).Errorf("Failed to send %s alert", ev.Kind)
			continue
		}
		s.cfg.Metrics.AlertsSent.WithLabelValues(string(ev.Kind)).Inc()
		report.Delivered++
		logger.Infof("Notification sent: %s", ev.Title)
	}

	var errs error
	for _, slot := range out.Dirty {
		key := StateKey(s.cfg.InstrumentKey, slot)
		if err := s.cfg.Store.Put(ctx, key, out.Ledger[slot]); err != nil {
			s.cfg.Metrics.StoreFailures.WithLabelValues("put").Inc()
			logger.WithError(err).Errorf("Failed to persist alert state %s", key)
			errs = multierr.Append(errs, errors.Wrapf(err, "persist alert state %s", key))
			continue
		}
		report.Persisted = append(report.Persisted, slot)
	}

	s.cfg.Metrics.CyclesTotal.Inc()
	s.recordCycle(out.Ledger, now, report.Delivered)
	return report, errs
}

// Run executes a cycle immediately and then every interval until ctx is done.
// It returns after the in-flight cycle has finished.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("Alert service started for %s, checking every %s", s.cfg.InstrumentKey, interval)
	for {
		s.safeCycle(ctx)

		select {
		case <-ctx.Done():
			log.Info("Alert service stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 4096)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			s.cfg.Metrics.PanicsRecovered.Inc()
			log.Errorf("Recovered from panic in alert cycle: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	if _, err := s.RunCycle(ctx); err != nil {
		log.WithError(err).Error("Alert cycle finished with errors")
	}
}

// loadLedger reads every slot in use. A read failure is treated as an absent state.
func (s *Service) loadLedger(ctx context.Context, logger *log.Entry) Ledger {
	ledger := make(Ledger)
	for _, slot := range s.cfg.Alerts.Slots() {
		key := StateKey(s.cfg.InstrumentKey, slot)
		state, err := s.cfg.Store.Get(ctx, key)
		if err != nil {
			s.cfg.Metrics.StoreFailures.WithLabelValues("get").Inc()
			logger.WithError(err).Warnf("Failed to load alert state %s, assuming none", key)
			state = types.AlertState{}
		}
		ledger[slot] = state
	}
	return ledger
}

func (s *Service) recordObservation(obs types.Observation) {
	if obs.Price == nil {
		s.cfg.Metrics.ObservationsMissing.WithLabelValues("price").Inc()
	} else {
		s.cfg.Metrics.LastPrice.Set(*obs.Price)
	}
	if obs.ChangePercent24h == nil {
		s.cfg.Metrics.ObservationsMissing.WithLabelValues("change_percent_24h").Inc()
	} else {
		s.cfg.Metrics.LastChangePercent.Set(*obs.ChangePercent24h)
	}

	s.statusMu.Lock()
	s.status.Observation = obs
	s.statusMu.Unlock()
}

func (s *Service) recordCycle(ledger Ledger, now time.Time, delivered int) {
	s.cfg.Metrics.LastCycle.Set(float64(now.Unix()))

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Ledger = ledger
	s.status.LastCycleAt = types.Time(now)
	s.status.Cycles++
	s.status.AlertsSent += uint64(delivered)
}

// Status returns a copy of the latest snapshot.
func (s *Service) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	st := s.status
	st.Ledger = s.status.Ledger.clone()
	return st
}
