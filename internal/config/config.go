package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Seed       SeedConfig       `yaml:"seed" mapstructure:"seed"`
	AI         AIConfig         `yaml:"ai" mapstructure:"ai"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Security   SecurityConfig   `yaml:"security" mapstructure:"security"`
}

type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// StorageConfig selects where collection snapshots are persisted.
type StorageConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"` // memory, file, sqlite, postgres, redis
	Dir       string `yaml:"dir" mapstructure:"dir"`       // file driver
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Name            string        `yaml:"name" mapstructure:"name"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	SQLitePath      string        `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// PostgresDSN builds a lib/pq style connection string.
func (d DatabaseConfig) PostgresDSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslMode)
}

type RedisConfig struct {
	Host         string `yaml:"host" mapstructure:"host"`
	Port         int    `yaml:"port" mapstructure:"port"`
	Password     string `yaml:"password" mapstructure:"password"`
	DB           int    `yaml:"db" mapstructure:"db"`
	PoolSize     int    `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL        time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
	DefaultPassword string        `yaml:"default_password" mapstructure:"default_password"`
	BcryptCost      int           `yaml:"bcrypt_cost" mapstructure:"bcrypt_cost"`
}

// SeedConfig sizes the synthetic data generated for an empty store.
type SeedConfig struct {
	Enabled    bool  `yaml:"enabled" mapstructure:"enabled"`
	Customers  int   `yaml:"customers" mapstructure:"customers"`
	Agents     int   `yaml:"agents" mapstructure:"agents"`
	Tickets    int   `yaml:"tickets" mapstructure:"tickets"`
	Messages   int   `yaml:"messages" mapstructure:"messages"`
	Articles   int   `yaml:"articles" mapstructure:"articles"`
	RandomSeed int64 `yaml:"random_seed" mapstructure:"random_seed"` // 0 = time based
}

type AIConfig struct {
	Gemini          GeminiConfig         `yaml:"gemini" mapstructure:"gemini"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	ContextArticles int                  `yaml:"context_articles" mapstructure:"context_articles"`
}

type GeminiConfig struct {
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	Model      string        `yaml:"model" mapstructure:"model"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

type CircuitBreakerConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxFailures     int           `yaml:"max_failures" mapstructure:"max_failures"`
	ResetTimeout    time.Duration `yaml:"reset_timeout" mapstructure:"reset_timeout"`
	HalfOpenMaxReqs int           `yaml:"half_open_max_requests" mapstructure:"half_open_max_requests"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"` // json, text
	Output     string `yaml:"output" mapstructure:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // MB
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // days
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // number of backup files
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

type MonitoringConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	MetricsPath   string        `yaml:"metrics_path" mapstructure:"metrics_path"`
	StatsSchedule string        `yaml:"stats_schedule" mapstructure:"stats_schedule"` // cron spec for the stats worker
	Tracing       TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// TracingConfig OpenTelemetry 追踪配置
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure    bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" mapstructure:"sample_ratio"`
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"`
}

type SecurityConfig struct {
	CORS         CORSConfig         `yaml:"cors" mapstructure:"cors"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

type RateLimitingConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// Load 从 viper 读取配置，未设置的键保留默认值
func Load() (*Config, error) {
	cfg := GetDefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// SetDefaults registers every default with v so that environment overrides
// (SUPPORT360_AUTH_JWT_SECRET, ...) are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetEnvPrefix("SUPPORT360")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.key_prefix", d.Storage.KeyPrefix)

	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	v.SetDefault("database.sqlite_path", d.Database.SQLitePath)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)

	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.min_idle_conns", d.Redis.MinIdleConns)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("auth.default_password", d.Auth.DefaultPassword)
	v.SetDefault("auth.bcrypt_cost", d.Auth.BcryptCost)

	v.SetDefault("seed.enabled", d.Seed.Enabled)
	v.SetDefault("seed.customers", d.Seed.Customers)
	v.SetDefault("seed.agents", d.Seed.Agents)
	v.SetDefault("seed.tickets", d.Seed.Tickets)
	v.SetDefault("seed.messages", d.Seed.Messages)
	v.SetDefault("seed.articles", d.Seed.Articles)
	v.SetDefault("seed.random_seed", d.Seed.RandomSeed)

	v.SetDefault("ai.gemini.api_key", d.AI.Gemini.APIKey)
	v.SetDefault("ai.gemini.base_url", d.AI.Gemini.BaseURL)
	v.SetDefault("ai.gemini.model", d.AI.Gemini.Model)
	v.SetDefault("ai.gemini.timeout", d.AI.Gemini.Timeout)
	v.SetDefault("ai.gemini.max_retries", d.AI.Gemini.MaxRetries)
	v.SetDefault("ai.gemini.retry_delay", d.AI.Gemini.RetryDelay)
	v.SetDefault("ai.circuit_breaker.enabled", d.AI.CircuitBreaker.Enabled)
	v.SetDefault("ai.circuit_breaker.max_failures", d.AI.CircuitBreaker.MaxFailures)
	v.SetDefault("ai.circuit_breaker.reset_timeout", d.AI.CircuitBreaker.ResetTimeout)
	v.SetDefault("ai.circuit_breaker.half_open_max_requests", d.AI.CircuitBreaker.HalfOpenMaxReqs)
	v.SetDefault("ai.context_articles", d.AI.ContextArticles)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("monitoring.enabled", d.Monitoring.Enabled)
	v.SetDefault("monitoring.metrics_path", d.Monitoring.MetricsPath)
	v.SetDefault("monitoring.stats_schedule", d.Monitoring.StatsSchedule)
	v.SetDefault("monitoring.tracing.enabled", d.Monitoring.Tracing.Enabled)
	v.SetDefault("monitoring.tracing.endpoint", d.Monitoring.Tracing.Endpoint)
	v.SetDefault("monitoring.tracing.insecure", d.Monitoring.Tracing.Insecure)
	v.SetDefault("monitoring.tracing.sample_ratio", d.Monitoring.Tracing.SampleRatio)
	v.SetDefault("monitoring.tracing.service_name", d.Monitoring.Tracing.ServiceName)

	v.SetDefault("security.cors.enabled", d.Security.CORS.Enabled)
	v.SetDefault("security.cors.allowed_origins", d.Security.CORS.AllowedOrigins)
	v.SetDefault("security.cors.allowed_methods", d.Security.CORS.AllowedMethods)
	v.SetDefault("security.cors.allowed_headers", d.Security.CORS.AllowedHeaders)
	v.SetDefault("security.rate_limiting.enabled", d.Security.RateLimiting.Enabled)
	v.SetDefault("security.rate_limiting.requests_per_minute", d.Security.RateLimiting.RequestsPerMinute)
	v.SetDefault("security.rate_limiting.burst", d.Security.RateLimiting.Burst)
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Driver:    "file",
			Dir:       "./data",
			KeyPrefix: "",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "support360",
			SSLMode:         "disable",
			SQLitePath:      "./data/support360.db",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Auth: AuthConfig{
			JWTSecret:       "change-me-in-production",
			TokenTTL:        24 * time.Hour,
			DefaultPassword: "password",
			BcryptCost:      10,
		},
		Seed: SeedConfig{
			Enabled:   true,
			Customers: 200,
			Agents:    50,
			Tickets:   1000,
			Messages:  5000,
			Articles:  30,
		},
		AI: AIConfig{
			Gemini: GeminiConfig{
				BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
				Model:      "gemini-pro",
				Timeout:    30 * time.Second,
				MaxRetries: 2,
				RetryDelay: time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:         true,
				MaxFailures:     5,
				ResetTimeout:    60 * time.Second,
				HalfOpenMaxReqs: 3,
			},
			ContextArticles: 3,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "./logs/support360.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled:       true,
			MetricsPath:   "/metrics",
			StatsSchedule: "@every 1m",
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "support360",
			},
		},
		Security: SecurityConfig{
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
			},
			RateLimiting: RateLimitingConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             30,
			},
		},
	}
}
