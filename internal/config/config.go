package config

import "time"

type Config struct {
	Service     *ServiceConfig
	Backend     *BackendConfig
	Redis       *RedisConfig
	Dispatch    *DispatchConfig
	Journal     *JournalConfig
	Logger      *LoggerConfig
	Tracer      *TracerConfig
	SecretToken string
}

type ServiceConfig struct {
	Name string
	Env  string
	Addr string
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type DispatchConfig struct {
	// DefaultRadiusMeters is applied when ride_created carries no radius.
	DefaultRadiusMeters float64
	// ConfirmAttempts and ConfirmInterval bound the accept-order
	// confirmation poll.
	ConfirmAttempts int
	ConfirmInterval time.Duration
}

type JournalConfig struct {
	Stream string
	MaxLen int64
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Address string
}
