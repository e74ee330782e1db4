package main

import (
	"bytes"
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"spot-price-alerts/config"
	"spot-price-alerts/internal/alert"
	"spot-price-alerts/internal/database"
	"spot-price-alerts/internal/metrics"
	"spot-price-alerts/internal/telegram"
	"spot-price-alerts/lib/translation"
)

const metricsSaveInterval = 5 * time.Minute

func main() {
	os.Exit(run())
}

// run wires the service and blocks until shutdown. It returns the process exit code.
func run() int {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Errorf("Failed to parse flags: %v", err)
		return 2
	}
	if err := config.Load(flags); err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		return 1
	}
	setupLogging()
	translation.Configure("locales", config.GetString("lang"))

	alertCfg, err := config.LoadAlertConfig()
	if err != nil {
		log.Errorf("Failed to load alert configuration: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.InitDB(config.GetString("store.sqlite_path")); err != nil {
		log.Errorf("Failed to initialize database: %v", err)
		return 1
	}
	defer database.CloseDB()

	repo := database.NewMetricsRepository(database.DB)
	alertMetrics := metrics.NewAlertMetrics(prometheus.DefaultRegisterer)
	botMetrics := metrics.NewBotMetrics(prometheus.DefaultRegisterer)
	alertMetrics.LoadFrom(repo)
	botMetrics.LoadFrom(repo)

	defer func() {
		saveMetrics(repo, alertMetrics, botMetrics)
		log.Info("Metrics saved, shutting down...")
	}()

	store, closeStore, err := newStateStore(ctx)
	if err != nil {
		log.Errorf("Failed to open alert state store: %v", err)
		return 1
	}
	defer closeStore()

	notifier, bot, closeNotifier, err := newNotifier()
	if err != nil {
		log.Errorf("Failed to create notifier: %v", err)
		return 1
	}
	defer closeNotifier()

	svc, err := alert.NewService(alert.ServiceConfig{
		Alerts:        alertCfg,
		InstrumentID:  instrumentID(),
		InstrumentKey: config.GetString("instrument.key"),
		Source:        newSource(),
		Store:         store,
		Notifier:      notifier,
		Metrics:       alertMetrics,
	})
	if err != nil {
		log.Errorf("Failed to create alert service: %v", err)
		return 1
	}

	if config.GetBool("once") {
		report, err := svc.RunCycle(ctx)
		if err != nil {
			log.Errorf("Alert cycle failed: %v", err)
			return 1
		}
		log.Infof("Alert cycle finished: %d events, %d delivered", len(report.Events), report.Delivered)
		return 0
	}

	if bot != nil {
		bot.AttachStatus(svc)
		updates, err := bot.GetUpdatesChannel()
		if err != nil {
			log.Errorf("Failed to get updates channel: %v", err)
			return 1
		}
		go handleUpdates(bot, updates, botMetrics)
	}

	// Workers use the store and database; wait for them before the deferred closes.
	waitWorkers := startWorkers(ctx,
		func(ctx context.Context) {
			svc.Run(ctx, config.GetDuration("check_interval"))
		},
		func(ctx context.Context) {
			ticker := time.NewTicker(metricsSaveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					saveMetrics(repo, alertMetrics, botMetrics)
				}
			}
		},
	)
	defer waitWorkers()

	if err := launchMetricsAndHealthServer(ctx, config.GetInt("metrics_port"), svc); err != nil {
		log.Errorf("Failed to start metrics and health server: %v", err)
		return 1
	}
	return 0
}

// startWorkers runs each worker in its own goroutine. The returned func cancels
// them and blocks until every worker has returned.
func startWorkers(ctx context.Context, workers ...func(context.Context)) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w func(context.Context)) {
			defer wg.Done()
			w(ctx)
		}(w)
	}
	return func() {
		cancel()
		wg.Wait()
	}
}

func saveMetrics(repo metrics.Repository, alertMetrics *metrics.AlertMetrics, botMetrics *metrics.BotMetrics) {
	if err := alertMetrics.SaveTo(repo); err != nil {
		log.Errorf("Failed to save alert metrics: %v", err)
	}
	if err := botMetrics.SaveTo(repo); err != nil {
		log.Errorf("Failed to save bot metrics: %v", err)
	}
}

func setupLogging() {
	if config.GetString("log_format") == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting spot price alerts...")
}

func handleUpdates(bot *telegram.Bot, updates tgbotapi.UpdatesChannel, m *metrics.BotMetrics) {
	for update := range updates {
		if update.Message == nil || !update.Message.IsCommand() {
			log.Debug("Received non-message or non-command")
			continue
		}

		m.MessagesHandled.Inc()
		handleCommand(bot, update, m)
	}
}

func handleCommand(bot *telegram.Bot, update tgbotapi.Update, m *metrics.BotMetrics) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	err := bot.SendMessage(telegram.Message{
		ChatID:    update.Message.Chat.ID,
		Text:      bot.HandleUpdate(update),
		MessageID: update.Message.MessageID,
	})

	if err != nil {
		log.Errorf("Failed to send message: %v", err)
	} else {
		m.CommandsProcessed.Inc()
	}
}
