package config

import "path/filepath"

const (
	PlatformNative = "native"
	PlatformWeb    = "web"

	WebDriverSQLite = "sqlite"
	WebDriverRedis  = "redis"
)

type StorageConfig interface {
	GetPlatform() string
	IsNativePlatform() bool
	GetStorageDir() string
	GetDeviceSecret() string
	GetWebStorageDriver() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisPrefix() string
}

type Storage struct {
	Platform         string `yaml:"platform" env:"PLATFORM" env-default:"web"`
	Dir              string `yaml:"dir" env:"STORAGE_DIR" env-default:"./data"`
	DeviceSecret     string `yaml:"device_secret" env:"DEVICE_SECRET"`
	WebStorageDriver string `yaml:"web_driver" env:"WEB_STORAGE_DRIVER" env-default:"sqlite"`
	RedisAddr        string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPrefix      string `yaml:"redis_prefix" env:"REDIS_PREFIX" env-default:"slater:"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetPlatform() string {
	return s.Platform
}

// IsNativePlatform reports whether the client runs inside the packaged mobile shell.
func (s Storage) IsNativePlatform() bool {
	return s.Platform == PlatformNative
}

func (s Storage) GetStorageDir() string {
	return s.Dir
}

func (s Storage) GetDeviceSecret() string {
	return s.DeviceSecret
}

func (s Storage) GetWebStorageDriver() string {
	if s.WebStorageDriver == "" {
		return WebDriverSQLite
	}
	return s.WebStorageDriver
}

func (s Storage) GetSQLitePath() string {
	return filepath.Join(s.Dir, "local_storage.db")
}

func (s Storage) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Storage) GetRedisPrefix() string {
	return s.RedisPrefix
}
