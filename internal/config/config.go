// Package config содержит логику чтения конфигурации сервиса taxflow.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress   = "localhost:8080"
	defaultStoragePath  = "taxflow.db"
	defaultTokenTTL     = 8 * time.Hour
	defaultSeedPassword = "password123"
	defaultLogLevel     = "info"
)

// Config содержит параметры конфигурации сервиса taxflow.
type Config struct {
	RunAddress   string        `env:"RUN_ADDRESS"`
	DatabaseURI  string        `env:"DATABASE_URI"`
	StoragePath  string        `env:"STORAGE_PATH"`
	JWTSecret    string        `env:"JWT_SECRET"`
	TokenTTL     time.Duration `env:"TOKEN_TTL"`
	SeedPassword string        `env:"SEED_PASSWORD"`
	LogLevel     string        `env:"LOG_LEVEL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения (в том числе из файла .env) имеют приоритет над флагами.
func Parse() (*Config, error) {
	_ = godotenv.Load(".env")

	fromEnv := Config{}
	if err := env.Parse(&fromEnv); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "postgres database URI")
	flag.StringVar(&cfg.StoragePath, "s", defaultStoragePath, "bbolt file used when no database URI is set")
	flag.StringVar(&cfg.JWTSecret, "k", "", "secret for signing access tokens")
	flag.DurationVar(&cfg.TokenTTL, "t", defaultTokenTTL, "access token lifetime")
	flag.StringVar(&cfg.SeedPassword, "p", defaultSeedPassword, "password of the seeded demo accounts")
	flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")

	flag.Parse()

	override(&cfg.RunAddress, fromEnv.RunAddress)
	override(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	override(&cfg.StoragePath, fromEnv.StoragePath)
	override(&cfg.JWTSecret, fromEnv.JWTSecret)
	override(&cfg.SeedPassword, fromEnv.SeedPassword)
	override(&cfg.LogLevel, fromEnv.LogLevel)
	if _, ok := os.LookupEnv("TOKEN_TTL"); ok {
		cfg.TokenTTL = fromEnv.TokenTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", cfg.TokenTTL)
	}

	return cfg, nil
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}
