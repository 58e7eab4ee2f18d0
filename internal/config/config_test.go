package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, EventsNone, cfg.Events.Driver)
	assert.Equal(t, 100, cfg.MySQL.MaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.MySQL.ConnMaxLifetime)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: mysql
mysql:
  host: db
  user: ledger
  db_name: bank
  conn_max_lifetime: 5m
http:
  addr: ":9000"
cors:
  allowed_origins: ["http://a.example"]
events:
  driver: redis
  redis:
    channel: tx
`)
	t.Setenv("MYSQL_HOST", "db-override")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://b.example, http://c.example")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StorageMySQL, cfg.Storage.Driver)
	assert.Equal(t, "db-override", cfg.MySQL.Host)
	assert.Equal(t, "bank", cfg.MySQL.DBName)
	assert.Equal(t, 5*time.Minute, cfg.MySQL.ConnMaxLifetime)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"http://b.example", "http://c.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Kafka.Brokers)
	assert.Equal(t, "tx", cfg.Events.Redis.Channel)
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("LEDGER_STORAGE_DRIVER", "sqlite")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("LEDGER_STORAGE_DRIVER", "postgres")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "postgres without url")

	t.Setenv("LEDGER_STORAGE_DRIVER", "memory")
	t.Setenv("EVENTS_DRIVER", "nats")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "storage: [unclosed"))
	assert.Error(t, err)
}
