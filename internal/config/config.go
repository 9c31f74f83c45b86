// Package config loads service configuration from environment variables with
// sane defaults, via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig
	Server    ServerConfig
	Database  DatabaseConfig
	NATS      NATSConfig
	Approvals ApprovalsConfig
	Outbox    OutboxConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL     string
	Subject string
}

// ApprovalsConfig controls approver resolution behavior.
type ApprovalsConfig struct {
	// AllowFallbackLookup permits a global designation-only candidate search
	// when the scoped search is empty and no explicit project was requested.
	AllowFallbackLookup bool
}

// OutboxConfig controls the outbox drainer.
type OutboxConfig struct {
	DrainInterval time.Duration
	BatchSize     int
}

// Load reads configuration from the environment (prefix FUNDREQ_, dots become
// underscores) over built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FUNDREQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("service.name", "be-fund-requests")
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.environment", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "20s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "fund_requests")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_time", "1h")
	v.SetDefault("database.max_idle_time", "15m")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "mail.outbound")

	v.SetDefault("approvals.allow_fallback_lookup", true)

	v.SetDefault("outbox.drain_interval", "5s")
	v.SetDefault("outbox.batch_size", 25)

	cfg := &Config{
		Service: ServiceConfig{
			Name:        v.GetString("service.name"),
			Version:     v.GetString("service.version"),
			Environment: v.GetString("service.environment"),
		},
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("database.host"),
			Port:        v.GetInt("database.port"),
			User:        v.GetString("database.user"),
			Password:    v.GetString("database.password"),
			Database:    v.GetString("database.database"),
			SSLMode:     v.GetString("database.sslmode"),
			MaxConns:    int32(v.GetInt("database.max_conns")),
			MinConns:    int32(v.GetInt("database.min_conns")),
			MaxConnTime: v.GetDuration("database.max_conn_time"),
			MaxIdleTime: v.GetDuration("database.max_idle_time"),
		},
		NATS: NATSConfig{
			URL:     v.GetString("nats.url"),
			Subject: v.GetString("nats.subject"),
		},
		Approvals: ApprovalsConfig{
			AllowFallbackLookup: v.GetBool("approvals.allow_fallback_lookup"),
		},
		Outbox: OutboxConfig{
			DrainInterval: v.GetDuration("outbox.drain_interval"),
			BatchSize:     v.GetInt("outbox.batch_size"),
		},
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Outbox.BatchSize < 1 {
		return nil, fmt.Errorf("outbox batch size must be positive, got %d", cfg.Outbox.BatchSize)
	}

	return cfg, nil
}
