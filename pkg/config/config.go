// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	SettlementMemory   = "memory"
	SettlementPostgres = "postgres"
)

var (
	defaultPort            = 8080
	defaultAppEnv          = "development"
	defaultLogLevel        = "info"
	defaultMaxConns        = 10
	defaultMinConns        = 2
	defaultMaxConnIdleTime = 5 * time.Minute
	defaultApplySchema     = true
	defaultSettlement      = SettlementMemory
	defaultPersistAssets   = true
	defaultShutdownTimeout = 10 * time.Second
	defaultEventBuffer     = 64
)

type Config struct {
	Port     int
	AppEnv   string
	LogLevel log.Level

	DatabaseURL     string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	ApplySchema     bool

	SettlementBackend string
	PersistAssets     bool
	EventBuffer       int

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	EnableTLS   bool
	TLSCertPath string
	TLSKeyPath  string

	SendGridAPIKey      string
	SendGridSenderEmail string
	SendGridSenderName  string

	ShutdownTimeout time.Duration
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("server_port", defaultPort)
	v.SetDefault("app_env", defaultAppEnv)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("db_max_conns", defaultMaxConns)
	v.SetDefault("db_min_conns", defaultMinConns)
	v.SetDefault("db_max_conn_idle_time", defaultMaxConnIdleTime)
	v.SetDefault("apply_schema_on_start", defaultApplySchema)
	v.SetDefault("settlement_backend", defaultSettlement)
	v.SetDefault("persist_assets", defaultPersistAssets)
	v.SetDefault("event_buffer", defaultEventBuffer)
	v.SetDefault("shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("cors_allowed_origins", "")
	v.SetDefault("cors_allow_credentials", false)
	v.SetDefault("enable_tls", false)

	level, err := log.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		Port:     v.GetInt("server_port"),
		AppEnv:   strings.ToLower(v.GetString("app_env")),
		LogLevel: level,

		DatabaseURL:     v.GetString("database_url"),
		MaxConns:        v.GetInt32("db_max_conns"),
		MinConns:        v.GetInt32("db_min_conns"),
		MaxConnIdleTime: v.GetDuration("db_max_conn_idle_time"),
		ApplySchema:     v.GetBool("apply_schema_on_start"),

		SettlementBackend: strings.ToLower(v.GetString("settlement_backend")),
		PersistAssets:     v.GetBool("persist_assets"),
		EventBuffer:       v.GetInt("event_buffer"),

		CORSAllowedOrigins:   splitList(v.GetString("cors_allowed_origins")),
		CORSAllowCredentials: v.GetBool("cors_allow_credentials"),

		EnableTLS:   v.GetBool("enable_tls"),
		TLSCertPath: v.GetString("tls_cert_path"),
		TLSKeyPath:  v.GetString("tls_key_path"),

		SendGridAPIKey:      v.GetString("sendgrid_api_key"),
		SendGridSenderEmail: v.GetString("sendgrid_sender_email"),
		SendGridSenderName:  v.GetString("sendgrid_sender_name"),

		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Port)
	}
	switch c.SettlementBackend {
	case SettlementMemory:
	case SettlementPostgres:
		if c.DatabaseURL == "" {
			return errors.New("settlement backend set to 'postgres' but DATABASE_URL is missing")
		}
	default:
		return fmt.Errorf("settlement backend not supported, please select one of: %s, %s", SettlementMemory, SettlementPostgres)
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.MinConns, c.MaxConns)
	}
	if c.EventBuffer <= 0 {
		return errors.New("EVENT_BUFFER must be positive")
	}
	if c.EnableTLS && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return errors.New("ENABLE_TLS requires TLS_CERT_PATH and TLS_KEY_PATH")
	}
	if c.IsProduction() && !c.EnableTLS {
		return errors.New("ENABLE_TLS must be true in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasMailer() bool {
	return c.SendGridAPIKey != "" && c.SendGridSenderEmail != ""
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
