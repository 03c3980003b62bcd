// Package config loads the compliance server configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	WorkOrder WorkOrderConfig `yaml:"work_order"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// EventBuffer is the in-process event bus channel size.
	EventBuffer int `yaml:"event_buffer"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
	// Watch reloads the catalog when the file changes.
	Watch bool `yaml:"watch"`
}

type WorkOrderConfig struct {
	// URL of the external work order service. Empty uses the in-process service.
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type KafkaConfig struct {
	// Brokers empty disables the completion topic consumer.
	Brokers         []string `yaml:"brokers"`
	CompletionTopic string   `yaml:"completion_topic"`
	GroupID         string   `yaml:"group_id"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a Config with defaults for a single-node deployment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			EventBuffer:     256,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:compliance.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		},
		Catalog: CatalogConfig{
			Path:  "catalog.cue",
			Watch: true,
		},
		WorkOrder: WorkOrderConfig{
			Timeout: 10 * time.Second,
		},
		Kafka: KafkaConfig{
			CompletionTopic: "work-orders.completed",
			GroupID:         "compliance",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment:
// PORT, DATABASE_DRIVER, DATABASE_URL, CATALOG_PATH, WORK_ORDER_URL,
// KAFKA_BROKERS (comma separated), LOG_LEVEL.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("DATABASE_DRIVER"); ok && v != "" {
		c.Database.Driver = v
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup("CATALOG_PATH"); ok && v != "" {
		c.Catalog.Path = v
	}
	if v, ok := lookup("WORK_ORDER_URL"); ok {
		c.WorkOrder.URL = v
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("database.driver %q: want sqlite or pgx", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if len(c.Kafka.Brokers) > 0 && (c.Kafka.CompletionTopic == "" || c.Kafka.GroupID == "") {
		return fmt.Errorf("kafka.completion_topic and kafka.group_id are required when brokers are set")
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return err
	}
	return nil
}

// ZapLevel parses Level.
func (l LogConfig) ZapLevel() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return lvl, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
