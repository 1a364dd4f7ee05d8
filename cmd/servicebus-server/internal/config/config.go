// Package config provides configuration management for the servicebus standalone server.
// It loads settings from environment variables with sensible defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config holds all configuration for the servicebus server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Bus      BusConfig
	Relay    RelayConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string // mysql, postgres, sqlite3
	Host     string
	Port     int
	User     string
	Password string
	Database string // Database name, or file path for sqlite3
	Prefix   string // Table prefix (default: "servicebus_")
}

// BusConfig holds the publisher and transport configuration.
type BusConfig struct {
	Queue             string   // Main publisher queue
	ExtraQueues       []string // Additional destinations, comma separated in BUS_EXTRA_QUEUES
	RoutingErrorQueue string
	IgnoreMismatch    bool
	AutoCreateQueues  bool
	PollInterval      time.Duration
	MaxPollInterval   time.Duration
}

// RelayConfig holds the optional webhook relay subscriber configuration.
// The relay is disabled when Queue is empty.
type RelayConfig struct {
	Queue       string
	WebhookURL  string
	ErrorQueue  string
	MaxAttempts int
	Pause       time.Duration
	Timeout     time.Duration
}

// Enabled reports whether a relay subscriber is configured.
func (c RelayConfig) Enabled() bool {
	return c.Queue != ""
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string
	Development bool
}

var defaults = map[string]interface{}{
	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"db.driver":               "sqlite3",
	"db.host":                 "localhost",
	"db.port":                 3306,
	"db.user":                 "servicebus",
	"db.password":             "",
	"db.name":                 "servicebus.db",
	"db.prefix":               "servicebus_",
	"bus.queue":               "events",
	"bus.extra_queues":        "",
	"bus.routing_error_queue": "",
	"bus.ignore_mismatch":     false,
	"bus.auto_create":         true,
	"bus.poll_interval":       "50ms",
	"bus.max_poll_interval":   "2s",
	"relay.queue":             "",
	"relay.webhook_url":       "",
	"relay.error_queue":       "",
	"relay.max_attempts":      1,
	"relay.pause":             "0s",
	"relay.timeout":           "10s",
	"log.level":               "info",
	"log.development":         false,
}

// Load loads configuration from environment variables.
// Keys map to upper-case names with underscores, for example db.driver is DB_DRIVER.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("db.driver")),
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Database: v.GetString("db.name"),
			Prefix:   v.GetString("db.prefix"),
		},
		Bus: BusConfig{
			Queue:             strings.TrimSpace(v.GetString("bus.queue")),
			ExtraQueues:       splitList(v.GetString("bus.extra_queues")),
			RoutingErrorQueue: strings.TrimSpace(v.GetString("bus.routing_error_queue")),
			IgnoreMismatch:    v.GetBool("bus.ignore_mismatch"),
			AutoCreateQueues:  v.GetBool("bus.auto_create"),
			PollInterval:      v.GetDuration("bus.poll_interval"),
			MaxPollInterval:   v.GetDuration("bus.max_poll_interval"),
		},
		Relay: RelayConfig{
			Queue:       strings.TrimSpace(v.GetString("relay.queue")),
			WebhookURL:  v.GetString("relay.webhook_url"),
			ErrorQueue:  strings.TrimSpace(v.GetString("relay.error_queue")),
			MaxAttempts: v.GetInt("relay.max_attempts"),
			Pause:       v.GetDuration("relay.pause"),
			Timeout:     v.GetDuration("relay.timeout"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	db := &c.Database
	networked := db.Driver == "mysql" || db.Driver == "postgres"
	if err := validation.ValidateStruct(db,
		validation.Field(&db.Driver, validation.Required, validation.In("mysql", "postgres", "sqlite3")),
		validation.Field(&db.Database, validation.Required),
		validation.Field(&db.Password, validation.When(networked, validation.Required.Error("is required for networked databases"))),
		validation.Field(&db.Prefix, validation.Required),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	bus := &c.Bus
	if err := validation.ValidateStruct(bus,
		validation.Field(&bus.Queue, validation.Required),
		validation.Field(&bus.PollInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&bus.MaxPollInterval, validation.Required, validation.Min(bus.PollInterval)),
	); err != nil {
		return fmt.Errorf("bus: %w", err)
	}

	relay := &c.Relay
	if err := validation.ValidateStruct(relay,
		validation.Field(&relay.WebhookURL, validation.When(relay.Enabled(), validation.Required)),
		validation.Field(&relay.MaxAttempts, validation.Min(1)),
		validation.Field(&relay.Pause, validation.Min(time.Duration(0))),
		validation.Field(&relay.Timeout, validation.Required),
	); err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	return nil
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database + "?_busy_timeout=5000&_journal_mode=WAL"
	default:
		return ""
	}
}

// splitList splits a comma separated list and drops blank entries.
func splitList(value string) []string {
	return lo.FilterMap(strings.Split(value, ","), func(item string, _ int) (string, bool) {
		item = strings.TrimSpace(item)
		return item, item != ""
	})
}
