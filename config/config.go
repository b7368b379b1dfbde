package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	berr "github.com/next-trace/scg-extension-bus/contract/errors"
)

// Executor kinds.
const (
	ExecutorGoroutine = "goroutine"
	ExecutorPool      = "pool"
	ExecutorSerial    = "serial"
)

// Config is the top-level configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Executor ExecutorConfig `yaml:"executor"`
	Bridges  BridgesConfig  `yaml:"bridges"`
}

// LogConfig selects the slog handler and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ExecutorConfig selects the executor used for async chain invocations.
type ExecutorConfig struct {
	Kind    string `yaml:"kind"`
	Workers int    `yaml:"workers"` // pool only
}

// BridgesConfig holds the broker connections events may be forwarded to.
// A bridge with an empty address is disabled.
type BridgesConfig struct {
	NATS     NATSConfig     `yaml:"nats"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	ConnTimeout   time.Duration `yaml:"conn_timeout"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"client_id"`
}

type RabbitMQConfig struct {
	URL         string        `yaml:"url"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Executor: ExecutorConfig{Kind: ExecutorGoroutine},
		Bridges: BridgesConfig{
			NATS:     NATSConfig{Name: "scg-extension-bus", ConnTimeout: 5 * time.Second, MaxReconnects: -1},
			Kafka:    KafkaConfig{ClientID: "scg-extension-bus"},
			RabbitMQ: RabbitMQConfig{ConnTimeout: 5 * time.Second},
		},
	}
}

// FromFile loads and validates a YAML file. Unset fields keep their defaults.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	default:
		return Config{}, fmt.Errorf("config file extension %q: %w", ext, berr.ErrInvalidConfiguration)
	}
}

// FromYAML parses and validates YAML data. Unset fields keep their defaults.
func FromYAML(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format %q: %w", c.Log.Format, berr.ErrInvalidConfiguration)
	}

	switch c.Executor.Kind {
	case "", ExecutorGoroutine, ExecutorSerial:
	case ExecutorPool:
		if c.Executor.Workers <= 0 {
			return fmt.Errorf("executor pool workers %d: %w", c.Executor.Workers, berr.ErrInvalidConfiguration)
		}
	default:
		return fmt.Errorf("executor kind %q: %w", c.Executor.Kind, berr.ErrInvalidConfiguration)
	}

	if c.Bridges.NATS.ConnTimeout < 0 || c.Bridges.RabbitMQ.ConnTimeout < 0 {
		return fmt.Errorf("bridge conn_timeout must not be negative: %w", berr.ErrInvalidConfiguration)
	}

	for _, b := range c.Bridges.Kafka.Brokers {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("kafka broker address is empty: %w", berr.ErrInvalidConfiguration)
		}
	}

	return nil
}

// Logger builds a slog logger writing to w.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, berr.ErrInvalidConfiguration)
	}

	return l, nil
}
