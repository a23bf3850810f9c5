// Package config содержит логику чтения конфигурации кассового сервиса.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	defaultRunAddress   = "localhost:8080"
	defaultSQLitePath   = "pos.db"
	defaultCountCeiling = 1_000_000
	defaultHistoryLimit = 50
)

// Config содержит параметры конфигурации кассового сервиса.
type Config struct {
	RunAddress         string   `env:"RUN_ADDRESS"`
	DatabaseURI        string   `env:"DATABASE_URI"`
	StoreDriver        string   `env:"STORE_DRIVER"`
	SQLitePath         string   `env:"SQLITE_PATH"`
	DrawerCountCeiling int64    `env:"DRAWER_COUNT_CEILING"`
	Timezone           string   `env:"TIMEZONE"`
	HistoryLimit       int      `env:"HISTORY_LIMIT"`
	CORSOrigins        []string `env:"CORS_ORIGINS" envSeparator:","`

	location *time.Location
}

// Location возвращает часовой пояс для границ календарного дня.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "postgres database URI")
	flag.StringVar(&cfg.StoreDriver, "s", "", "store driver: postgres or sqlite")
	flag.StringVar(&cfg.SQLitePath, "f", defaultSQLitePath, "sqlite database file")
	flag.Int64Var(&cfg.DrawerCountCeiling, "c", defaultCountCeiling, "upper bound for a single drawer count, 0 disables")
	flag.StringVar(&cfg.Timezone, "z", "", "IANA timezone for day boundaries, empty for local")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.StoreDriver != "" {
		cfg.StoreDriver = envCfg.StoreDriver
	}
	if envCfg.SQLitePath != "" {
		cfg.SQLitePath = envCfg.SQLitePath
	}
	if envCfg.DrawerCountCeiling != 0 {
		cfg.DrawerCountCeiling = envCfg.DrawerCountCeiling
	}
	if envCfg.Timezone != "" {
		cfg.Timezone = envCfg.Timezone
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverSQLite
		if cfg.DatabaseURI != "" {
			cfg.StoreDriver = DriverPostgres
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURI == "" {
			return errors.New("postgres store requires DATABASE_URI")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			c.SQLitePath = defaultSQLitePath
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	if c.DrawerCountCeiling < 0 {
		return fmt.Errorf("drawer count ceiling must not be negative: %d", c.DrawerCountCeiling)
	}

	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("load timezone: %w", err)
		}
		c.location = loc
	}

	return nil
}
