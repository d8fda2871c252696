package config

import "time"

type SessionConfig interface {
	GetRefreshTimeout() time.Duration
	GetRefreshBackoff() time.Duration
	GetRefreshHorizon() time.Duration
	GetGuardRetries() int
	GetGuardRetryDelay() time.Duration
}

type Session struct {
	RefreshTimeout  time.Duration `yaml:"refresh_timeout" env:"REFRESH_TIMEOUT" env-default:"10s"`
	RefreshBackoff  time.Duration `yaml:"refresh_backoff" env:"REFRESH_BACKOFF" env-default:"1s"`
	RefreshHorizon  time.Duration `yaml:"refresh_horizon" env:"REFRESH_HORIZON" env-default:"300s"`
	GuardRetries    int           `yaml:"guard_retries" env:"GUARD_RETRIES" env-default:"2"`
	GuardRetryDelay time.Duration `yaml:"guard_retry_delay" env:"GUARD_RETRY_DELAY" env-default:"150ms"`
}

var _ SessionConfig = Session{}

func (s Session) GetRefreshTimeout() time.Duration {
	return s.RefreshTimeout
}

func (s Session) GetRefreshBackoff() time.Duration {
	return s.RefreshBackoff
}

// GetRefreshHorizon is how close to expiry an access token may get before it is
// refreshed proactively.
func (s Session) GetRefreshHorizon() time.Duration {
	return s.RefreshHorizon
}

func (s Session) GetGuardRetries() int {
	return s.GuardRetries
}

func (s Session) GetGuardRetryDelay() time.Duration {
	return s.GuardRetryDelay
}
