package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Gateway   GatewayConfig
	Subtitles SubtitlesConfig
	RateLimit RateLimitConfig
	Tracing   TracingConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig holds session API authentication configuration
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// RedisConfig holds Redis configuration for the subtitle document cache
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

// GatewayConfig holds resource interception configuration
type GatewayConfig struct {
	// Scheme is the custom URL scheme that triggers interception
	Scheme string
	// FetchTimeout bounds every passthrough origin fetch
	FetchTimeout time.Duration
	// TempDir is where converted subtitle documents are materialized
	TempDir string
}

// SubtitlesConfig holds cue store configuration
type SubtitlesConfig struct {
	// TickInterval is the playback-position polling period
	TickInterval time.Duration
	// LoadTimeout bounds a subtitle document fetch
	LoadTimeout time.Duration
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	JaegerEndpoint string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig holds the standalone metrics server configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	// Auth defaults
	viper.SetDefault("auth.jwtSecret", "")
	viper.SetDefault("auth.tokenTTL", "24h")

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.cacheTTL", "30m")

	// Gateway defaults
	viper.SetDefault("gateway.scheme", "luna")
	viper.SetDefault("gateway.fetchTimeout", "30s")
	viper.SetDefault("gateway.tempDir", "")

	// Subtitles defaults
	viper.SetDefault("subtitles.tickInterval", "500ms")
	viper.SetDefault("subtitles.loadTimeout", "30s")

	// Rate limit defaults
	viper.SetDefault("ratelimit.requestsPerSecond", 50)
	viper.SetDefault("ratelimit.burst", 100)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.serviceName", "luna-gateway")
	viper.SetDefault("tracing.jaegerEndpoint", "http://localhost:14268/api/traces")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
}
