package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"spot-price-alerts/config"
	"spot-price-alerts/internal/alert"
	"spot-price-alerts/internal/database"
	"spot-price-alerts/internal/notify"
	"spot-price-alerts/internal/price"
	"spot-price-alerts/internal/telegram"
)

// instrumentID is the id the configured source understands.
func instrumentID() string {
	if config.GetString("source.kind") == "coinpaprika" {
		return config.GetString("source.coinpaprika_id")
	}
	return config.GetString("instrument.id")
}

func newSource() alert.Source {
	timeout := config.GetDuration("source.timeout")
	hyperliquid := price.NewHyperliquidClient(config.GetString("source.url"), timeout)

	switch kind := config.GetString("source.kind"); kind {
	case "coinpaprika":
		return price.NewPaprikaSource(config.GetString("api_pro_key"))
	case "hyperliquid_ws":
		return price.NewStreamSource(config.GetString("source.ws_url"), timeout, hyperliquid)
	case "hyperliquid", "":
		return hyperliquid
	default:
		log.Warnf("Unknown source kind %q, using hyperliquid", kind)
		return hyperliquid
	}
}

// newStateStore opens the configured store. The sqlite store shares the database opened by InitDB.
func newStateStore(ctx context.Context) (alert.StateStore, func(), error) {
	noop := func() {}

	switch kind := config.GetString("store.kind"); kind {
	case "sqlite", "":
		return database.NewSQLiteStore(database.DB), noop, nil
	case "postgres":
		db, err := database.OpenPostgres(ctx, config.GetString("store.postgres_dsn"))
		if err != nil {
			return nil, noop, err
		}
		return database.NewPostgresStore(db), func() { db.Close() }, nil
	case "redis":
		store, err := database.NewRedisStore(ctx, database.RedisConfig{
			Addr:     config.GetString("store.redis_addr"),
			Password: config.GetString("store.redis_password"),
			DB:       config.GetInt("store.redis_db"),
			Prefix:   config.GetString("store.redis_prefix"),
		})
		if err != nil {
			return nil, noop, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, noop, errors.Errorf("unknown store kind %q", kind)
	}
}

// newNotifier fans out to every configured channel and falls back to the log.
func newNotifier() (alert.Notifier, *telegram.Bot, func(), error) {
	var (
		notifiers notify.Multi
		bot       *telegram.Bot
		closers   []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if token := config.GetString("telegram_bot_token"); token != "" {
		b, err := telegram.NewBot(telegram.BotConfig{
			Token:          token,
			Debug:          config.GetBool("debug"),
			UpdatesTimeout: 60,
			ChatID:         config.GetInt64("notify.telegram.chat_id"),
			SourceKind:     config.GetString("source.kind"),
			InstrumentID:   instrumentID(),
		})
		if err != nil {
			return nil, nil, closeAll, err
		}
		bot = b
		if b.Config.ChatID != 0 {
			notifiers = append(notifiers, b)
		} else {
			log.Warn("Telegram bot has no notify.telegram.chat_id, alerts will not be sent to Telegram")
		}
	}

	if url := config.GetString("notify.webhook.url"); url != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(url, config.GetDuration("notify.webhook.timeout")))
	}

	if brokers := config.GetList("notify.kafka.brokers"); len(brokers) > 0 {
		k, err := notify.NewKafkaNotifier(brokers, config.GetString("notify.kafka.topic"))
		if err != nil {
			return nil, nil, closeAll, err
		}
		notifiers = append(notifiers, k)
		closers = append(closers, func() { k.Close() })
	}

	if len(notifiers) == 0 {
		log.Warn("No notifier configured, alerts are only logged")
		return notify.NewLogNotifier(), bot, closeAll, nil
	}
	return notifiers, bot, closeAll, nil
}
