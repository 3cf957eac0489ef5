package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerConfig holds settings for the chat server runtime.
type ServerConfig struct {
	ListenAddr    string         `env:"LISTEN_ADDR" envDefault:":9000"`
	HTTPAddr      string         `env:"HTTP_ADDR" envDefault:":5000"`
	Database      DatabaseConfig `envPrefix:"DB_"`
	ReadTimeout   time.Duration  `env:"READ_TIMEOUT" envDefault:"5m"`
	WriteTimeout  time.Duration  `env:"WRITE_TIMEOUT" envDefault:"15s"`
	MaxFrameBytes int            `env:"MAX_FRAME_BYTES" envDefault:"1048576"`
	SendBuffer    int            `env:"SEND_BUFFER" envDefault:"64"`
	Limits        RateLimitConfig
}

// ClientConfig holds settings for the terminal client.
type ClientConfig struct {
	ServerAddr    string `env:"SERVER_ADDR" envDefault:"localhost:9000"`
	CommandPrefix rune
	RawPrefix     string `env:"COMMAND_PREFIX" envDefault:"/"`
}

// DatabaseConfig captures storage configuration.
type DatabaseConfig struct {
	Path string `env:"PATH" envDefault:"pairchat.db"`
}

// RateLimitConfig bounds inbound events per connection.
type RateLimitConfig struct {
	EventRate  float64 `env:"EVENT_RATE" envDefault:"20"`
	EventBurst int     `env:"EVENT_BURST" envDefault:"40"`
}

const envPrefix = "PAIRCHAT_"

// LoadServerConfig builds the server configuration from PAIRCHAT_* environment variables.
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := parseEnv(&cfg); err != nil {
		return ServerConfig{}, err
	}
	if cfg.MaxFrameBytes <= 0 {
		return ServerConfig{}, fmt.Errorf("max frame bytes must be positive, got %d", cfg.MaxFrameBytes)
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return cfg, nil
}

// LoadClientConfig builds the client configuration from environment variables.
func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := parseEnv(&cfg); err != nil {
		return ClientConfig{}, err
	}
	cfg.CommandPrefix = '/'
	if runes := []rune(cfg.RawPrefix); len(runes) > 0 {
		cfg.CommandPrefix = runes[0]
	}
	return cfg, nil
}

func parseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
