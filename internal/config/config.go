package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	configPathVar = "CONFIG_PATH"
	dotenvPathVar = "DOTENV_PATH"
)

type Config interface {
	EnvConfig
	SessionConfig
	StorageConfig
	LifecycleConfig
	DevServerConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetPort() string
	GetBaseURL() string
}

type mainConfig struct {
	EnvVars   `yaml:",inline"`
	Session   `yaml:"session"`
	Storage   `yaml:"storage"`
	Lifecycle `yaml:"lifecycle"`
	DevServer `yaml:"devserver"`
}

// Load reads the configuration from the YAML file named by CONFIG_PATH when set,
// and from the environment otherwise. Environment variables override file values.
// A .env file (or the file named by DOTENV_PATH) is loaded first when present; it
// never overrides variables that are already set.
func Load() (Config, error) {
	var cfg mainConfig

	if err := godotenv.Load(GetEnv(dotenvPathVar, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load dotenv: %w", err)
	}

	if path := GetEnv(configPathVar, ""); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load ReadConfig %s: %w", path, err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load ReadEnv: %w", err)
	}
	return cfg, nil
}
