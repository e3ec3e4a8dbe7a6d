package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg := Load()
	assert.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.Receiver.Addr)
	assert.Equal(t, 256, cfg.Receiver.QueueSize)
	assert.Equal(t, 10, cfg.Receiver.Workers)
	assert.Equal(t, int64(16384*1024), cfg.Receiver.MaxBodySize)

	assert.Equal(t, 5, cfg.Worker.PollIntervalSec)
	assert.Equal(t, 10, cfg.Worker.StopTimeoutSec)

	assert.Equal(t, 600, cfg.Image.MaxWidth)
	assert.Equal(t, 900, cfg.Image.MaxHeight)
	assert.Equal(t, 150, cfg.Image.MaxSizeKB)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "videoman", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "hikbridge:events", cfg.Redis.Stream)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("RECEIVER_WORKERS", "4")
	os.Setenv("WORKER_POLL_INTERVAL", "2")
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ENABLED", "false")
	os.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.Receiver.Addr)
	assert.Equal(t, 4, cfg.Receiver.Workers)
	assert.Equal(t, 2, cfg.Worker.PollIntervalSec)
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)

	os.Clearenv()
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("RECEIVER_QUEUE_SIZE", "not-a-number")

	cfg := Load()
	assert.Equal(t, 256, cfg.Receiver.QueueSize)

	os.Clearenv()
}
