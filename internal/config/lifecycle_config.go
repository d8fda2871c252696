package config

import "time"

type LifecycleConfig interface {
	GetReadinessPolls() int
	GetReadinessInterval() time.Duration
}

type Lifecycle struct {
	ReadinessPolls    int           `yaml:"readiness_polls" env:"READINESS_POLLS" env-default:"10"`
	ReadinessInterval time.Duration `yaml:"readiness_interval" env:"READINESS_INTERVAL" env-default:"100ms"`
}

var _ LifecycleConfig = Lifecycle{}

func (l Lifecycle) GetReadinessPolls() int {
	return l.ReadinessPolls
}

func (l Lifecycle) GetReadinessInterval() time.Duration {
	return l.ReadinessInterval
}
