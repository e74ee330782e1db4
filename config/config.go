package config

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"spot-price-alerts/internal/alert"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "LANG")

		setDefaults()
	})
}

func setDefaults() {
	viper.SetDefault("metrics_port", 9090)
	viper.SetDefault("debug", false)
	viper.SetDefault("lang", "en")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("check_interval", 5*time.Minute)

	viper.SetDefault("alerts.enabled", true)
	viper.SetDefault("alerts.price.enabled", true)
	viper.SetDefault("alerts.price.upper_threshold", 30.0)
	viper.SetDefault("alerts.price.lower_threshold", 20.0)
	viper.SetDefault("alerts.change.enabled", true)
	viper.SetDefault("alerts.change.positive_percent", 10.0)
	viper.SetDefault("alerts.change.negative_percent", -10.0)
	viper.SetDefault("alerts.cooldown", 15*time.Minute)
	viper.SetDefault("alerts.isolation", string(alert.IsolationShared))

	viper.SetDefault("instrument.id", "@107")
	viper.SetDefault("instrument.name", "HYPE")
	viper.SetDefault("instrument.key", "hype")

	viper.SetDefault("source.kind", "hyperliquid")
	viper.SetDefault("source.url", "https://api.hyperliquid.xyz")
	viper.SetDefault("source.ws_url", "wss://api.hyperliquid.xyz/ws")
	viper.SetDefault("source.timeout", 10*time.Second)
	viper.SetDefault("source.coinpaprika_id", "hype-hyperliquid")

	viper.SetDefault("store.kind", "sqlite")
	viper.SetDefault("store.sqlite_path", "data/alerts.db")
	viper.SetDefault("store.redis_addr", "localhost:6379")
	viper.SetDefault("store.redis_db", 0)
	viper.SetDefault("store.redis_prefix", "alerts:")

	viper.SetDefault("notify.kafka.topic", "price-alerts")
	viper.SetDefault("notify.webhook.timeout", 10*time.Second)
}

// Flags declares the command line flags understood by the binary.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("spot-price-alerts", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML, TOML or JSON config file")
	fs.Bool("once", false, "run a single evaluation cycle and exit")
	fs.Bool("debug", false, "enable debug logging")
	return fs
}

// Load binds parsed flags and reads the config file named by --config, if any.
func Load(fs *pflag.FlagSet) error {
	InitConfig()

	if fs != nil {
		if f := fs.Lookup("debug"); f != nil && f.Changed {
			if err := viper.BindPFlag("debug", f); err != nil {
				return errors.Wrap(err, "bind debug flag")
			}
		}
		if f := fs.Lookup("once"); f != nil {
			if err := viper.BindPFlag("once", f); err != nil {
				return errors.Wrap(err, "bind once flag")
			}
		}
		if path, _ := fs.GetString("config"); path != "" {
			return LoadFile(path)
		}
	}
	return nil
}

// LoadFile reads path; the format follows the file extension.
func LoadFile(path string) error {
	InitConfig()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	return nil
}

// LoadAlertConfig builds and validates the alerting rules.
func LoadAlertConfig() (alert.Config, error) {
	InitConfig()

	cfg := alert.Config{
		Enabled: viper.GetBool("alerts.enabled"),
		Price: alert.PriceRule{
			Enabled: viper.GetBool("alerts.price.enabled"),
			Upper:   viper.GetFloat64("alerts.price.upper_threshold"),
			Lower:   viper.GetFloat64("alerts.price.lower_threshold"),
		},
		Change: alert.ChangeRule{
			Enabled:  viper.GetBool("alerts.change.enabled"),
			Positive: viper.GetFloat64("alerts.change.positive_percent"),
			Negative: viper.GetFloat64("alerts.change.negative_percent"),
		},
		Cooldown:   viper.GetDuration("alerts.cooldown"),
		Isolation:  alert.Isolation(strings.ToLower(viper.GetString("alerts.isolation"))),
		Instrument: viper.GetString("instrument.name"),
	}

	if err := cfg.Validate(); err != nil {
		return alert.Config{}, errors.Wrap(err, "invalid alert configuration")
	}
	return cfg, nil
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetInt64(key string) int64 {
	InitConfig()
	return viper.GetInt64(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}

// GetList splits a comma separated value, dropping empty entries.
func GetList(key string) []string {
	InitConfig()
	var out []string
	for _, item := range viper.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
