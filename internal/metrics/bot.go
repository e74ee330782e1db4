package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// BotMetrics count the Telegram commands the bot answered.
type BotMetrics struct {
	CommandsProcessed prometheus.Counter
	MessagesHandled   prometheus.Counter
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		CommandsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram_bot",
			Name:      "commands_processed",
			Help:      "The total number of processed commands",
		}),
		MessagesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram_bot",
			Name:      "messages_handled",
			Help:      "The total number of handled messages",
		}),
	}

	reg.MustRegister(m.CommandsProcessed, m.MessagesHandled)
	return m
}

func (m *BotMetrics) LoadFrom(repo Repository) {
	for name, counter := range m.counters() {
		value, err := repo.GetMetric(name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			continue
		}
		counter.Add(value)
	}
}

func (m *BotMetrics) SaveTo(repo Repository) error {
	var errs error
	for name, counter := range m.counters() {
		errs = multierr.Append(errs, repo.SaveMetric(name, "", "", GetMetricValue(counter)))
	}
	return errs
}

func (m *BotMetrics) counters() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"commands_processed": m.CommandsProcessed,
		"messages_handled":   m.MessagesHandled,
	}
}
