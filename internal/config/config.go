// Package config loads server configuration from a YAML file with
// environment overrides for deployment credentials.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/embercore/ember/room"
)

// Config is the full server configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Sandbox   Sandbox   `yaml:"sandbox"`
	Websocket Websocket `yaml:"websocket"`
	Queue     Queue     `yaml:"queue"`
	Log       Log       `yaml:"log"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	WorkerID int    `yaml:"worker_id"`
}

// Sandbox toggles per-request isolation of the application context.
type Sandbox struct {
	Enabled bool `yaml:"enabled"`
}

// Websocket holds the realtime layer settings, including the room store
// driver selection and per-driver settings.
type Websocket struct {
	PingInterval int   `yaml:"ping_interval"` // ms
	PingTimeout  int   `yaml:"ping_timeout"`  // ms
	MaxPayload   int64 `yaml:"max_payload"`   // bytes

	// Driver selects the room store backing: "table" or "redis".
	Driver string             `yaml:"driver"`
	Table  room.Settings      `yaml:"table"`
	Redis  room.RedisSettings `yaml:"redis"`
}

// Queue selects the task-queue transport: "local" or "nats".
type Queue struct {
	Driver    string `yaml:"driver"`
	Executors int    `yaml:"executors"`
	Buffer    int    `yaml:"buffer"`
	NATS      NATS   `yaml:"nats"`
}

// NATS holds the multi-process queue transport settings.
type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Host: "0.0.0.0",
			Port: 1215,
		},
		Sandbox: Sandbox{Enabled: true},
		Websocket: Websocket{
			PingInterval: 25000,
			PingTimeout:  60000,
			MaxPayload:   1 << 20,
			Driver:       "table",
			Table:        room.DefaultSettings(),
			Redis: room.RedisSettings{
				Addr:   "127.0.0.1:6379",
				Prefix: "ember:",
			},
		},
		Queue: Queue{
			Driver:    "local",
			Executors: 4,
			Buffer:    1024,
			NATS: NATS{
				URL:     "nats://127.0.0.1:4222",
				Subject: "ember.push",
			},
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path (optional) over the defaults, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("EMBER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("EMBER_WORKER_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			c.Server.WorkerID = id
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Websocket.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Websocket.Redis.Password = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Queue.NATS.URL = v
	}
}

func (c *Config) validate() error {
	switch c.Websocket.Driver {
	case "table", "redis":
	default:
		return fmt.Errorf("config: unknown room driver %q", c.Websocket.Driver)
	}
	switch c.Queue.Driver {
	case "local", "nats":
	default:
		return fmt.Errorf("config: unknown queue driver %q", c.Queue.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
