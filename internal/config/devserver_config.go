package config

import "time"

type DevServerConfig interface {
	GetDevServerSecret() string
	GetDevServerAccessTTL() time.Duration
}

// DevServer configures the in-memory development backend.
type DevServer struct {
	Secret    string        `yaml:"secret" env:"DEV_SERVER_SECRET" env-default:"slater-dev-secret"`
	AccessTTL time.Duration `yaml:"access_ttl" env:"DEV_SERVER_ACCESS_TTL" env-default:"15m"`
}

func (d DevServer) GetDevServerSecret() string {
	return d.Secret
}

func (d DevServer) GetDevServerAccessTTL() time.Duration {
	return d.AccessTTL
}
