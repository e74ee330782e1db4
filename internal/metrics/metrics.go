package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "spot_price_alerts"
	subsystem = "evaluator"
)

// AlertMetrics are the counters and gauges of the alert service.
type AlertMetrics struct {
	CyclesTotal         prometheus.Counter
	AlertsSent          *prometheus.CounterVec
	NotifyFailures      prometheus.Counter
	StoreFailures       *prometheus.CounterVec
	ObservationsMissing *prometheus.CounterVec
	PanicsRecovered     prometheus.Counter
	LastPrice           prometheus.Gauge
	LastChangePercent   prometheus.Gauge
	LastCycle           prometheus.Gauge
}

// NewAlertMetrics creates the metrics and registers them on reg.
func NewAlertMetrics(reg prometheus.Registerer) *AlertMetrics {
	m := &AlertMetrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "The total number of completed evaluation cycles",
		}),
		AlertsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "alerts_sent_total",
				Help:      "Alerts handed successfully to the notifier",
			},
			[]string{"kind"},
		),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notify_failures_total",
			Help:      "Alerts the notifier failed to deliver",
		}),
		StoreFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "store_failures_total",
				Help:      "Alert state store failures by operation",
			},
			[]string{"op"},
		),
		ObservationsMissing: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "observation_missing_total",
				Help:      "Cycles where an observation field was unavailable",
			},
			[]string{"field"},
		),
		PanicsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "panics_recovered_total",
			Help:      "Panics recovered inside evaluation cycles",
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_price",
			Help:      "The most recently observed price",
		}),
		LastChangePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_change_percent_24h",
			Help:      "The most recently observed 24h change in percent",
		}),
		LastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last completed cycle",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.AlertsSent,
		m.NotifyFailures,
		m.StoreFailures,
		m.ObservationsMissing,
		m.PanicsRecovered,
		m.LastPrice,
		m.LastChangePercent,
		m.LastCycle,
	)

	return m
}

// GetMetricValue reads the current value of a single counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	var metricValue float64
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		metricValue = metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		metricValue = metricProto.Gauge.GetValue()
	}
	return metricValue
}

// labeledValues collects every child of a vector as label value -> metric value.
func labeledValues(vec *prometheus.CounterVec, label string) map[string]float64 {
	values := make(map[string]float64)

	metricChan := make(chan prometheus.Metric, 16)
	go func() {
		vec.Collect(metricChan)
		close(metricChan)
	}()

	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Errorf("Failed to read labeled metric: %v", err)
			continue
		}
		for _, l := range metricProto.Label {
			if l.GetName() == label {
				values[l.GetValue()] = metricProto.Counter.GetValue()
			}
		}
	}
	return values
}
