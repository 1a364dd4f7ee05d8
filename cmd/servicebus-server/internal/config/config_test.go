package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "servicebus_", cfg.Database.Prefix)
	assert.Equal(t, "events", cfg.Bus.Queue)
	assert.Empty(t, cfg.Bus.ExtraQueues)
	assert.True(t, cfg.Bus.AutoCreateQueues)
	assert.Equal(t, 50*time.Millisecond, cfg.Bus.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Bus.MaxPollInterval)
	assert.False(t, cfg.Relay.Enabled())
	assert.Equal(t, 1, cfg.Relay.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "bus")
	t.Setenv("BUS_QUEUE", "orders")
	t.Setenv("BUS_EXTRA_QUEUES", "billing, shipping,, audit ")
	t.Setenv("BUS_ROUTING_ERROR_QUEUE", "unrouted")
	t.Setenv("RELAY_QUEUE", "orders")
	t.Setenv("RELAY_WEBHOOK_URL", "http://hooks.internal/orders")
	t.Setenv("RELAY_MAX_ATTEMPTS", "3")
	t.Setenv("RELAY_PAUSE", "30s")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "orders", cfg.Bus.Queue)
	assert.Equal(t, []string{"billing", "shipping", "audit"}, cfg.Bus.ExtraQueues)
	assert.Equal(t, "unrouted", cfg.Bus.RoutingErrorQueue)
	assert.True(t, cfg.Relay.Enabled())
	assert.Equal(t, 3, cfg.Relay.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Relay.Pause)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, "host=db.internal port=5432 user=servicebus password=secret dbname=bus sslmode=disable",
		cfg.Database.GetDSN())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		contains string
	}{
		{"Networked database without password", map[string]string{"DB_DRIVER": "mysql"}, "database"},
		{"Unknown driver", map[string]string{"DB_DRIVER": "oracle"}, "database"},
		{"Port out of range", map[string]string{"SERVER_PORT": "70000"}, "server"},
		{"Blank bus queue", map[string]string{"BUS_QUEUE": " "}, "bus"},
		{"Max poll below poll", map[string]string{"BUS_POLL_INTERVAL": "1s", "BUS_MAX_POLL_INTERVAL": "10ms"}, "bus"},
		{"Relay without webhook", map[string]string{"RELAY_QUEUE": "orders"}, "relay"},
		{"Relay zero attempts", map[string]string{"RELAY_MAX_ATTEMPTS": "0"}, "relay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name:     "MySQL",
			config:   DatabaseConfig{Driver: "mysql", Host: "localhost", Port: 3306, User: "bus", Password: "pw", Database: "servicebus"},
			expected: "bus:pw@tcp(localhost:3306)/servicebus?parseTime=true",
		},
		{
			name:     "SQLite",
			config:   DatabaseConfig{Driver: "sqlite3", Database: "/var/lib/servicebus.db"},
			expected: "/var/lib/servicebus.db?_busy_timeout=5000&_journal_mode=WAL",
		},
		{
			name:     "Unknown",
			config:   DatabaseConfig{Driver: "oracle"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.GetDSN())
		})
	}
}
