package storage

import (
	"context"
	"io"
	"os"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/metrics"
	"github.com/jrsteele09/go-session-client/storage/redisstore"
	"github.com/jrsteele09/go-session-client/storage/securestore"
	"github.com/jrsteele09/go-session-client/storage/sqlitestore"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Capabilities describes the runtime the client was started in. It is decided once
// by the composition root and never probed again.
type Capabilities struct {
	NativeShell bool
}

// Backend is an opened store together with whatever must be released on shutdown.
type Backend struct {
	KeyValueStore
	io.Closer
}

// Ready reports whether the underlying store can currently be reached.
func (b Backend) Ready(ctx context.Context) bool {
	if probe, ok := b.KeyValueStore.(ReadinessProbe); ok {
		return probe.Ready(ctx)
	}
	return true
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open selects the backend for caps. The native shell gets the encrypted preferences
// file behind the retrying wrapper; web builds get SQLite or Redis depending on cfg.
func Open(caps Capabilities, cfg config.StorageConfig, m *metrics.Metrics) (Backend, error) {
	if caps.NativeShell {
		if err := os.MkdirAll(cfg.GetStorageDir(), 0o700); err != nil {
			return Backend{}, errors.Wrap(err, "[storage.Open] create storage dir")
		}
		secure, err := securestore.New(cfg.GetStorageDir(), cfg.GetDeviceSecret())
		if err != nil {
			return Backend{}, errors.Wrap(err, "[storage.Open] securestore")
		}
		log.Info().Str("backend", "securestore").Str("dir", cfg.GetStorageDir()).Msg("storage selected")
		return Backend{KeyValueStore: NewRetrying(secure, WithMetrics(m)), Closer: nopCloser{}}, nil
	}

	switch cfg.GetWebStorageDriver() {
	case config.WebDriverRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.GetRedisAddr()})
		log.Info().Str("backend", "redis").Str("addr", cfg.GetRedisAddr()).Msg("storage selected")
		return Backend{KeyValueStore: redisstore.New(rdb, cfg.GetRedisPrefix()), Closer: rdb}, nil
	case config.WebDriverSQLite:
		local, err := sqlitestore.New(cfg.GetSQLitePath())
		if err != nil {
			return Backend{}, errors.Wrap(err, "[storage.Open] sqlitestore")
		}
		log.Info().Str("backend", "sqlite").Str("path", cfg.GetSQLitePath()).Msg("storage selected")
		return Backend{KeyValueStore: local, Closer: local}, nil
	default:
		return Backend{}, errors.Errorf("[storage.Open] unknown web storage driver %q", cfg.GetWebStorageDriver())
	}
}
