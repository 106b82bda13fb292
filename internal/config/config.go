// Package config loads runtime settings with the precedence
// defaults < environment (MARKETCHAT_*) < optional JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "marketchat"

// Config is the full runtime configuration.
type Config struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	Database  DatabaseConfig
}

// Inner tags carry only the field name: envconfig already prefixes
// them with the section, so Port below binds to MARKETCHAT_HTTP_PORT.
type HTTPConfig struct {
	Host         string        `envconfig:"HOST" default:"0.0.0.0" validate:"required"`
	Port         int           `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s" validate:"gt=0"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s" validate:"gt=0"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `envconfig:"PING_INTERVAL" default:"30s" validate:"gt=0"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"60s" validate:"gt=0"`
	SendBuffer   int           `envconfig:"SEND_BUFFER" default:"100" validate:"gt=0"`

	// SendPerMinute / SendBurst bound how fast one user may push
	// messages through the relay.
	SendPerMinute int `envconfig:"SEND_PER_MINUTE" default:"100" validate:"gt=0"`
	SendBurst     int `envconfig:"SEND_BURST" default:"20" validate:"gt=0"`
}

type DatabaseConfig struct {
	// Driver selects the primary store. "sqlite" falls back to "bolt"
	// automatically when the SQLite file cannot be opened.
	Driver      string        `envconfig:"DRIVER" default:"sqlite" validate:"oneof=sqlite bolt"`
	Path        string        `envconfig:"PATH" default:"./marketchat.db" validate:"required"`
	BusyTimeout time.Duration `envconfig:"BUSY_TIMEOUT" default:"5s" validate:"gt=0"`
}

// Load builds the configuration from defaults and environment, then
// overrides from the JSON file at path when one is given, and
// validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("environment configuration failed: %w", err)
	}

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// fileConfig is the JSON shape; durations come in as strings.
type fileConfig struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval  string `json:"ping_interval"`
		ReadTimeout   string `json:"read_timeout"`
		SendBuffer    int    `json:"send_buffer"`
		SendPerMinute int    `json:"send_per_minute"`
		SendBurst     int    `json:"send_burst"`
	} `json:"websocket"`
	Database *struct {
		Driver      string `json:"driver"`
		Path        string `json:"path"`
		BusyTimeout string `json:"busy_timeout"`
	} `json:"database"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.HTTP != nil {
		if fc.HTTP.Host != "" {
			c.HTTP.Host = fc.HTTP.Host
		}
		if fc.HTTP.Port > 0 {
			c.HTTP.Port = fc.HTTP.Port
		}
		applyDuration(&c.HTTP.ReadTimeout, fc.HTTP.ReadTimeout)
		applyDuration(&c.HTTP.WriteTimeout, fc.HTTP.WriteTimeout)
	}
	if fc.WebSocket != nil {
		applyDuration(&c.WebSocket.PingInterval, fc.WebSocket.PingInterval)
		applyDuration(&c.WebSocket.ReadTimeout, fc.WebSocket.ReadTimeout)
		if fc.WebSocket.SendBuffer > 0 {
			c.WebSocket.SendBuffer = fc.WebSocket.SendBuffer
		}
		if fc.WebSocket.SendPerMinute > 0 {
			c.WebSocket.SendPerMinute = fc.WebSocket.SendPerMinute
		}
		if fc.WebSocket.SendBurst > 0 {
			c.WebSocket.SendBurst = fc.WebSocket.SendBurst
		}
	}
	if fc.Database != nil {
		if fc.Database.Driver != "" {
			c.Database.Driver = fc.Database.Driver
		}
		if fc.Database.Path != "" {
			c.Database.Path = fc.Database.Path
		}
		applyDuration(&c.Database.BusyTimeout, fc.Database.BusyTimeout)
	}
	return nil
}

func applyDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}
