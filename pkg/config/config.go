package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Backend   BackendConfig
	Session   SessionConfig
	Server    ServerConfig
	RateLimit RateLimitConfig
	Upload    UploadConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Logging   LoggingConfig
}

type BackendConfig struct {
	BaseURL          string
	TimeoutSec       int
	QueryTimeoutSec  int
	UploadTimeoutSec int
	Retry            RetryConfig
	Breaker          BreakerConfig
}

type RetryConfig struct {
	MaxAttempts    int
	InitialDelayMs int
	MaxDelayMs     int
}

type BreakerConfig struct {
	FailureThreshold uint32
	SuccessThreshold uint32
	OpenTimeoutSec   int
}

type SessionConfig struct {
	QueryMode          string
	ProgressIntervalMs int
	SuggestionLimit    int
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type UploadConfig struct {
	MaxFileSize       int
	AllowedExtensions []string
}

type SQLiteConfig struct {
	Enabled bool
	Path    string
}

type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           int
	Password       string
	DB             int
	SnapshotTTLMin int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/docqa")
	}

	v.SetEnvPrefix("DOCQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.baseURL", "http://localhost:8080")
	v.SetDefault("backend.timeoutSec", 15)
	v.SetDefault("backend.queryTimeoutSec", 180)
	v.SetDefault("backend.uploadTimeoutSec", 300)
	v.SetDefault("backend.retry.maxAttempts", 3)
	v.SetDefault("backend.retry.initialDelayMs", 200)
	v.SetDefault("backend.retry.maxDelayMs", 5000)
	v.SetDefault("backend.breaker.failureThreshold", 5)
	v.SetDefault("backend.breaker.successThreshold", 1)
	v.SetDefault("backend.breaker.openTimeoutSec", 30)

	v.SetDefault("session.queryMode", "balanced")
	v.SetDefault("session.progressIntervalMs", 2000)
	v.SetDefault("session.suggestionLimit", 5)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 240)
	v.SetDefault("server.bodyLimit", 52428800)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("server.development", false)

	v.SetDefault("rateLimit.requestsPerMinute", 120)
	v.SetDefault("rateLimit.burst", 20)

	v.SetDefault("upload.maxFileSize", 26214400)
	v.SetDefault("upload.allowedExtensions", []string{".pdf", ".docx", ".txt"})

	v.SetDefault("sqlite.enabled", true)
	v.SetDefault("sqlite.path", "./data/docqa-history.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.snapshotTTLMin", 720)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.baseURL cannot be empty")
	}
	if c.Session.ProgressIntervalMs <= 0 {
		return fmt.Errorf("session.progressIntervalMs must be positive")
	}
	if c.Session.QueryMode == "" {
		return fmt.Errorf("session.queryMode cannot be empty")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("upload.allowedExtensions cannot be empty")
	}
	return nil
}

func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSec) * time.Second
}

func (b BackendConfig) QueryTimeout() time.Duration {
	return time.Duration(b.QueryTimeoutSec) * time.Second
}

func (b BackendConfig) UploadTimeout() time.Duration {
	return time.Duration(b.UploadTimeoutSec) * time.Second
}

func (s SessionConfig) ProgressInterval() time.Duration {
	return time.Duration(s.ProgressIntervalMs) * time.Millisecond
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (r RedisConfig) SnapshotTTL() time.Duration {
	return time.Duration(r.SnapshotTTLMin) * time.Minute
}
