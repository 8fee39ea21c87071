package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig PostgreSQL connection settings.
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

// GetDSN builds the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Config ambient-collector service configuration.
type Config struct {
	// Two independent measurement stores. Either can be disabled.
	FlexibleDB DatabaseConfig
	ColumnarDB DatabaseConfig
	Redis      RedisConfig
	MQTT       MQTTConfig

	Collector struct {
		EnableFlexible bool
		EnableColumnar bool

		// Reconnect backoff window for the MQTT session.
		InitialBackoff time.Duration
		MaxBackoff     time.Duration

		// Redis Streams live feed for downstream realtime consumers.
		// Empty stream names disable publishing.
		DataStream   string
		StatusStream string
	}

	Inspector struct {
		CheckInterval       time.Duration
		InactivityThreshold time.Duration
		PushoverUser        string
		PushoverToken       string
		PushoverURL         string
	}

	Cleanup struct {
		Folder     string
		MaxAgeDays int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.FlexibleDB.Host = getEnv("DB_HOST", "localhost")
	cfg.FlexibleDB.Port = getEnvInt("DB_PORT", 5432)
	cfg.FlexibleDB.User = getEnv("DB_USER", "postgres")
	cfg.FlexibleDB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.FlexibleDB.Database = getEnv("DB_FLEXIBLE_NAME", "ambient_sensors_flexible")
	cfg.FlexibleDB.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.FlexibleDB.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.FlexibleDB.MaxIdle = getEnvInt("DB_MAX_IDLE", 2)

	cfg.ColumnarDB = cfg.FlexibleDB
	cfg.ColumnarDB.Database = getEnv("DB_COLUMNAR_NAME", "ambient_sensors_columnar")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "ambient-collector")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")

	cfg.Collector.EnableFlexible = getEnvBool("ENABLE_FLEXIBLE_DB", true)
	cfg.Collector.EnableColumnar = getEnvBool("ENABLE_COLUMNAR_DB", true)
	cfg.Collector.InitialBackoff = time.Duration(getEnvInt("MQTT_RECONNECT_INITIAL_SECONDS", 5)) * time.Second
	cfg.Collector.MaxBackoff = time.Duration(getEnvInt("MQTT_RECONNECT_MAX_SECONDS", 60)) * time.Second
	cfg.Collector.DataStream = getEnv("DATA_STREAM", "")
	cfg.Collector.StatusStream = getEnv("STATUS_STREAM", "")

	cfg.Inspector.CheckInterval = time.Duration(getEnvInt("CHECK_INTERVAL", 600)) * time.Second
	cfg.Inspector.InactivityThreshold = time.Duration(getEnvInt("INACTIVITY_THRESHOLD", 300)) * time.Second
	cfg.Inspector.PushoverUser = getEnv("PUSHOVER_USER", "")
	cfg.Inspector.PushoverToken = getEnv("PUSHOVER_TOKEN", "")
	cfg.Inspector.PushoverURL = getEnv("PUSHOVER_URL", "https://api.pushover.net/1/messages.json")

	cfg.Cleanup.Folder = getEnv("EXPORT_FOLDER", "./sandbox")
	cfg.Cleanup.MaxAgeDays = getEnvInt("CLEANUP_MAX_AGE_DAYS", 7)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
