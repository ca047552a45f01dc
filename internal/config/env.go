package config

import (
	"os"
	"strconv"
	"time"
)

func Load() *Config {
	return &Config{
		Service: &ServiceConfig{
			Name: getEnv("SERVICE_NAME", "wakadugbe-relay"),
			Env:  getEnv("SERVICE_ENV", "development"),
			Addr: getEnv("SERVICE_ADDR", ":8080"),
		},
		Backend: &BackendConfig{
			BaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:8000"),
			Timeout: getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),
		},
		Redis: &RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE", 2),
			PingTimeout:  getEnvDuration("REDIS_PING_TIMEOUT", 2*time.Second),
		},
		Dispatch: &DispatchConfig{
			DefaultRadiusMeters: getEnvFloat("DISPATCH_DEFAULT_RADIUS_M", 2000),
			ConfirmAttempts:     getEnvInt("DISPATCH_CONFIRM_ATTEMPTS", 5),
			ConfirmInterval:     getEnvDuration("DISPATCH_CONFIRM_INTERVAL", time.Second),
		},
		Journal: &JournalConfig{
			Stream: getEnv("JOURNAL_STREAM", "journal:events"),
			MaxLen: int64(getEnvInt("JOURNAL_MAX_LEN", 1000)),
		},
		Logger: &LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "INFO"),
			Format: getEnv("LOG_FORMAT", "JSON"),
		},
		Tracer: &TracerConfig{
			Address: getEnv("OTLP_ADDR", "localhost:4317"),
		},
		SecretToken: getEnv("BROADCAST_SECRET", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
