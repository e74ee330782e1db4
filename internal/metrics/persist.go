package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Repository persists counter values so they survive restarts.
type Repository interface {
	SaveMetric(metricName, labelKey, labelValue string, value float64) error
	GetMetric(metricName string) (float64, error)
	GetMetricsWithLabels(metricName string) (map[string]map[string]float64, error)
}

type labeledCounter struct {
	name  string
	label string
	vec   *prometheus.CounterVec
}

func (m *AlertMetrics) counters() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"cycles_total":           m.CyclesTotal,
		"notify_failures_total":  m.NotifyFailures,
		"panics_recovered_total": m.PanicsRecovered,
	}
}

func (m *AlertMetrics) labeledCounters() []labeledCounter {
	return []labeledCounter{
		{name: "alerts_sent_total", label: "kind", vec: m.AlertsSent},
		{name: "store_failures_total", label: "op", vec: m.StoreFailures},
		{name: "observation_missing_total", label: "field", vec: m.ObservationsMissing},
	}
}

// LoadFrom adds the persisted counter values to the in-memory counters.
func (m *AlertMetrics) LoadFrom(repo Repository) {
	for name, counter := range m.counters() {
		value, err := repo.GetMetric(name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			continue
		}
		counter.Add(value)
	}

	for _, lc := range m.labeledCounters() {
		values, err := repo.GetMetricsWithLabels(lc.name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", lc.name, err)
			continue
		}
		for labelValue, value := range values[lc.label] {
			lc.vec.WithLabelValues(labelValue).Add(value)
		}
	}

	log.Debug("Metrics loaded from database.")
}

// SaveTo writes the current counter values to repo.
func (m *AlertMetrics) SaveTo(repo Repository) error {
	var errs error
	for name, counter := range m.counters() {
		errs = multierr.Append(errs, repo.SaveMetric(name, "", "", GetMetricValue(counter)))
	}

	for _, lc := range m.labeledCounters() {
		for labelValue, value := range labeledValues(lc.vec, lc.label) {
			errs = multierr.Append(errs, repo.SaveMetric(lc.name, lc.label, labelValue, value))
		}
	}

	if errs == nil {
		log.Debug("Metrics saved to database.")
	}
	return errs
}
