package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Realtime  RealtimeConfig
	Storage   StorageConfig
	LogLevel  string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address         string
	AllowedOrigins  []string              `mapstructure:"allowedOrigins"`
	Auth            AuthConfig            `mapstructure:"auth"`
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	// ReadTimeout is the heartbeat silence window: a connection that sends
	// nothing (not even a ping) for this long is considered dead.
	ReadTimeout       time.Duration `mapstructure:"readTimeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
}

type RealtimeConfig struct {
	// RingingDeadline is how long an unanswered call keeps ringing before it
	// transitions to timeout.
	RingingDeadline time.Duration `mapstructure:"ringingDeadline"`
	// LastActiveWindow coalesces lastActive persistence writes: at most one
	// write per user per window.
	LastActiveWindow time.Duration `mapstructure:"lastActiveWindow"`
}

type StorageConfig struct {
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"inMemory"`
}
