package config

import (
	"fmt"
	"os"
	"strings"
)

type EnvVars struct {
	AppName  string `yaml:"app_name" env:"APP_NAME" env-default:"Slater"`
	Env      string `yaml:"env" env:"ENV" env-default:"DEV"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:"https://api.slaterci.net"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

// GetBaseURL returns the REST API base URL without a trailing slash.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.BaseURL, "/")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
