// Package config reads process configuration from the environment, after
// loading any .env files that exist.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

type Log struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// Client configures cmd/roomclient.
type Client struct {
	ServerURL    string        `env:"ROOMCLIENT_SERVER_URL" envDefault:"http://localhost:8080"`
	UserID       string        `env:"ROOMCLIENT_USER_ID"`
	Username     string        `env:"ROOMCLIENT_USERNAME" envDefault:"guest"`
	RetryDelay   time.Duration `env:"ROOMCLIENT_RETRY_DELAY" envDefault:"3s"`
	Backoff      string        `env:"ROOMCLIENT_BACKOFF" envDefault:"fixed"`
	BackoffMax   time.Duration `env:"ROOMCLIENT_BACKOFF_MAX" envDefault:"30s"`
	MaxAttempts  int           `env:"ROOMCLIENT_MAX_ATTEMPTS" envDefault:"0"`
	Heartbeat    time.Duration `env:"ROOMCLIENT_HEARTBEAT" envDefault:"25s"`
	CheckTimeout time.Duration `env:"ROOMCLIENT_CHECK_TIMEOUT" envDefault:"5s"`
	Log          Log
}

// Server configures cmd/devserver.
type Server struct {
	Addr            string        `env:"DEVSERVER_ADDR" envDefault:":8080"`
	DatabaseURL     string        `env:"DEVSERVER_DATABASE_URL"`
	ReadTimeout     time.Duration `env:"DEVSERVER_READ_TIMEOUT" envDefault:"5m"`
	WriteTimeout    time.Duration `env:"DEVSERVER_WRITE_TIMEOUT" envDefault:"3s"`
	ClientBuffer    int           `env:"DEVSERVER_CLIENT_BUFFER" envDefault:"32"`
	ShutdownTimeout time.Duration `env:"DEVSERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	Log             Log
}

func LoadClient(envFiles ...string) (Client, error) {
	var cfg Client
	if err := load(&cfg, envFiles); err != nil {
		return Client{}, err
	}
	switch cfg.Backoff {
	case BackoffFixed, BackoffExponential:
	default:
		return Client{}, fmt.Errorf("ROOMCLIENT_BACKOFF: unknown policy %q", cfg.Backoff)
	}
	if cfg.RetryDelay <= 0 {
		return Client{}, errors.New("ROOMCLIENT_RETRY_DELAY must be positive")
	}
	if cfg.MaxAttempts < 0 {
		return Client{}, errors.New("ROOMCLIENT_MAX_ATTEMPTS must not be negative")
	}
	return cfg, nil
}

func LoadServer(envFiles ...string) (Server, error) {
	var cfg Server
	if err := load(&cfg, envFiles); err != nil {
		return Server{}, err
	}
	if cfg.ClientBuffer <= 0 {
		return Server{}, errors.New("DEVSERVER_CLIENT_BUFFER must be positive")
	}
	return cfg, nil
}

func load(target any, envFiles []string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Load never overrides variables already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
