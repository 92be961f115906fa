package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBSource        string
	Port            string
	Env             string
	LogLevel        string
	StoreDriver     string
	Migrate         bool
	ShutdownTimeout time.Duration
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MIGRATE", true)
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)

	cfg := &Config{
		DBSource:        v.GetString("DB_SOURCE"),
		Port:            v.GetString("SERVER_PORT"),
		Env:             v.GetString("ENVIRONMENT"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		StoreDriver:     v.GetString("STORE_DRIVER"),
		Migrate:         v.GetBool("DB_MIGRATE"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}
