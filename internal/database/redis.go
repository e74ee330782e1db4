package database

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"spot-price-alerts/internal/types"
)

const (
	redisFieldKind      = "kind"
	redisFieldThreshold = "threshold"
	redisFieldAlertAt   = "alert_at"
)

// RedisConfig configures the Redis state store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every state key, e.g. "alerts:".
	Prefix string
}

// RedisStore keeps each AlertState in a hash at <prefix><key>.
type RedisStore struct {
	client *goredis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	log.Infof("Connected to Redis at %s", cfg.Addr)
	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (types.AlertState, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+key).Result()
	if err != nil {
		return types.AlertState{}, errors.Wrapf(err, "failed to get alert state %s", key)
	}
	return decodeRedisState(fields)
}

func (s *RedisStore) Put(ctx context.Context, key string, state types.AlertState) error {
	redisKey := s.prefix + key
	fields := encodeRedisState(state)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKey)
	pipe.HSet(ctx, redisKey, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "failed to put alert state %s", key)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// encodeRedisState omits absent fields so a missing hash field means nil.
func encodeRedisState(state types.AlertState) map[string]interface{} {
	fields := map[string]interface{}{redisFieldKind: string(state.Kind())}
	if state.LastThreshold != nil {
		fields[redisFieldThreshold] = strconv.FormatFloat(*state.LastThreshold, 'f', -1, 64)
	}
	if state.LastAlertAt != nil {
		fields[redisFieldAlertAt] = strconv.FormatInt(state.LastAlertAt.UnixMilli(), 10)
	}
	return fields
}

func decodeRedisState(fields map[string]string) (types.AlertState, error) {
	state := types.AlertState{LastKind: types.ParseAlertKind(fields[redisFieldKind])}

	if raw, ok := fields[redisFieldThreshold]; ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.AlertState{}, errors.Wrapf(err, "invalid threshold %q", raw)
		}
		state.LastThreshold = types.Float(v)
	}
	if raw, ok := fields[redisFieldAlertAt]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return types.AlertState{}, errors.Wrapf(err, "invalid alert timestamp %q", raw)
		}
		state.LastAlertAt = types.Time(time.UnixMilli(ms).UTC())
	}
	return state, nil
}
