package config

import (
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// Config hikbridge 配置
type Config struct {
	Receiver struct {
		Addr        string
		QueueSize   int
		Workers     int
		MaxBodySize int64
	}
	Worker struct {
		PollIntervalSec int
		StopTimeoutSec  int
	}
	Image struct {
		MaxWidth  int
		MaxHeight int
		MaxSizeKB int
	}
	Database DatabaseConfig
	Redis    struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		Stream   string
	}
	Log struct {
		Level  string
		Format string
	}
}

func Load() *Config {
	cfg := &Config{}

	cfg.Receiver.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.Receiver.QueueSize = parseInt(getEnv("RECEIVER_QUEUE_SIZE", "256"), 256)
	cfg.Receiver.Workers = parseInt(getEnv("RECEIVER_WORKERS", "10"), 10)
	cfg.Receiver.MaxBodySize = int64(parseInt(getEnv("RECEIVER_MAX_BODY_KB", "16384"), 16384)) * 1024

	cfg.Worker.PollIntervalSec = parseInt(getEnv("WORKER_POLL_INTERVAL", "5"), 5)
	cfg.Worker.StopTimeoutSec = parseInt(getEnv("WORKER_STOP_TIMEOUT", "10"), 10)

	// Hikvision face picture limits: 600x900 px, 150KB
	cfg.Image.MaxWidth = parseInt(getEnv("IMAGE_MAX_WIDTH", "600"), 600)
	cfg.Image.MaxHeight = parseInt(getEnv("IMAGE_MAX_HEIGHT", "900"), 900)
	cfg.Image.MaxSizeKB = parseInt(getEnv("IMAGE_MAX_SIZE_KB", "150"), 150)

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "videoman")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "true") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Redis.Stream = getEnv("EVENTS_STREAM", "hikbridge:events")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
