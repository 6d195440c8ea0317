// Package config loads service configuration from the environment and an
// optional .env / config.env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config groups all service settings.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Engine EngineConfig
	JWT    JWTConfig
	HTTP   HTTPConfig
	Redis  RedisConfig
}

// AppConfig holds general settings.
type AppConfig struct {
	Env      string // development, staging, production
	LogLevel string
	Storage  string
}

// IsDevelopment reports whether the console log encoder should be used.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// DBConfig holds PostgreSQL settings.
type DBConfig struct {
	DatabaseURL      string
	MaxConns         int32
	StatementTimeout time.Duration
}

// EngineConfig bounds reconciliation operations.
type EngineConfig struct {
	OperationTimeout    time.Duration
	CompensationTimeout time.Duration
}

// JWTConfig holds bearer token verification settings.
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig enables the distributed reference-number lock when Address is set.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	LockTTL  time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

// Load reads configuration. Environment variables win over file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetConfigName("config")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
			Storage:  strings.ToLower(v.GetString("STORAGE_BACKEND")),
		},
		DB: DBConfig{
			DatabaseURL:      v.GetString("DATABASE_URL"),
			MaxConns:         v.GetInt32("DB_MAX_CONNS"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
		},
		Engine: EngineConfig{
			OperationTimeout:    v.GetDuration("ENGINE_OPERATION_TIMEOUT"),
			CompensationTimeout: v.GetDuration("ENGINE_COMPENSATION_TIMEOUT"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("REDIS_ADDRESS"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			LockTTL:  v.GetDuration("REDIS_LOCK_TTL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_BACKEND", StoragePostgres)
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_STATEMENT_TIMEOUT", "5s")
	v.SetDefault("ENGINE_OPERATION_TIMEOUT", "10s")
	v.SetDefault("ENGINE_COMPENSATION_TIMEOUT", "15s")
	v.SetDefault("JWT_ISSUER", "templestock")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("REDIS_LOCK_TTL", "30s")
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.App.Storage {
	case StoragePostgres:
		if c.DB.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.App.Storage)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Engine.OperationTimeout <= 0 {
		return fmt.Errorf("ENGINE_OPERATION_TIMEOUT must be positive")
	}
	return nil
}
