package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
)

type Config struct {
	ListenAddr     string        `env:"EDGE_LISTEN_ADDR" envDefault:":8080"`
	OriginBaseURL  string        `env:"EDGE_ORIGIN_BASE_URL"`
	OriginTimeout  time.Duration `env:"EDGE_ORIGIN_TIMEOUT" envDefault:"10s"`
	Store          string        `env:"EDGE_STORE" envDefault:"memory"`
	SQLitePath     string        `env:"EDGE_SQLITE_PATH" envDefault:"wanderwise-edge.db"`
	S3Endpoint     string        `env:"EDGE_S3_ENDPOINT"`
	S3Region       string        `env:"EDGE_S3_REGION"`
	S3Bucket       string        `env:"EDGE_S3_BUCKET"`
	S3Prefix       string        `env:"EDGE_S3_PREFIX" envDefault:"generations/"`
	S3AccessKey    string        `env:"EDGE_S3_ACCESS_KEY"`
	S3SecretKey    string        `env:"EDGE_S3_SECRET_KEY"`
	RedisAddr      string        `env:"EDGE_REDIS_ADDR"`
	RedisPassword  string        `env:"EDGE_REDIS_PASSWORD"`
	RedisDB        int           `env:"EDGE_REDIS_DB" envDefault:"0"`
	LockTTLSeconds int           `env:"EDGE_LOCK_TTL_SECONDS" envDefault:"120"`
	LogLevel       string        `env:"EDGE_LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if cfg.OriginBaseURL == "" {
		return cfg, errors.New("EDGE_ORIGIN_BASE_URL is required")
	}
	switch cfg.Store {
	case StoreMemory:
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return cfg, errors.New("EDGE_SQLITE_PATH is required for the sqlite store")
		}
	case StoreS3:
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return cfg, errors.New("S3 endpoint/bucket/access/secret are required")
		}
		if cfg.RedisAddr == "" {
			return cfg, errors.New("EDGE_REDIS_ADDR is required for the shared s3 store")
		}
	default:
		return cfg, fmt.Errorf("unknown EDGE_STORE %q", cfg.Store)
	}
	if cfg.LockTTLSeconds <= 0 {
		return cfg, errors.New("EDGE_LOCK_TTL_SECONDS must be positive")
	}
	return cfg, nil
}

// LockTTL is how long a lifecycle lock may be held before it expires.
func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}
