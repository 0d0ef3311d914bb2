package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/caselane/matterproxy/internal/db"
)

// ProxyConfig holds the matter proxy settings.
type ProxyConfig struct {
	ListenAddr     string
	UpstreamURL    string
	DiffStoreURL   string
	AllowedOrigins []string

	// Correlation schedule and matching predicate (see internal/correlate).
	CorrelateAction  string
	CorrelateDelays  []time.Duration
	CorrelateMaxSkew time.Duration
}

// StoreConfig holds the diff store service settings.
type StoreConfig struct {
	ListenAddr     string
	MigrationsPath string
	DB             db.Config
}

// DefaultProxyConfig returns the proxy defaults.
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		ListenAddr:      ":8080",
		UpstreamURL:     "http://localhost:9000",
		DiffStoreURL:    "http://localhost:8090",
		AllowedOrigins:  []string{"http://localhost:3000"},
		CorrelateAction: "matter_updated",
		CorrelateDelays: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 700 * time.Millisecond},
	}
}

// LoadProxyConfig reads config.yaml from the given path, with PROXY_*
// environment overrides.
func LoadProxyConfig(configPath string) (ProxyConfig, error) {
	cfg := DefaultProxyConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("PROXY")

	v.BindEnv("proxy.listen")
	v.BindEnv("proxy.upstream_url")
	v.BindEnv("proxy.diffstore_url")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("proxy.listen") {
		cfg.ListenAddr = v.GetString("proxy.listen")
	}
	if v.IsSet("proxy.upstream_url") {
		cfg.UpstreamURL = v.GetString("proxy.upstream_url")
	}
	if v.IsSet("proxy.diffstore_url") {
		cfg.DiffStoreURL = v.GetString("proxy.diffstore_url")
	}
	if v.IsSet("proxy.allowed_origins") {
		cfg.AllowedOrigins = v.GetStringSlice("proxy.allowed_origins")
	}
	if v.IsSet("correlate.action") {
		cfg.CorrelateAction = v.GetString("correlate.action")
	}
	if v.IsSet("correlate.delays_ms") {
		raw := v.GetIntSlice("correlate.delays_ms")
		delays := make([]time.Duration, 0, len(raw))
		for _, ms := range raw {
			if ms <= 0 {
				return cfg, fmt.Errorf("correlate.delays_ms entries must be positive, got %d", ms)
			}
			delays = append(delays, time.Duration(ms)*time.Millisecond)
		}
		cfg.CorrelateDelays = delays
	}
	if v.IsSet("correlate.max_skew") {
		cfg.CorrelateMaxSkew = v.GetDuration("correlate.max_skew")
	}

	return cfg, nil
}

// LoadStoreConfig reads the diff store service configuration, with
// DIFFSTORE_* environment overrides for the database settings.
func LoadStoreConfig(configPath string) (StoreConfig, error) {
	cfg := StoreConfig{
		ListenAddr:     ":8090",
		MigrationsPath: "./migrations",
		DB:             db.DefaultConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("DIFFSTORE")

	v.BindEnv("store.listen")
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("store.listen") {
		cfg.ListenAddr = v.GetString("store.listen")
	}
	if v.IsSet("store.migrations_path") {
		cfg.MigrationsPath = v.GetString("store.migrations_path")
	}
	if v.IsSet("database.host") {
		cfg.DB.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.DB.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.DB.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.DB.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DB.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.DB.SSLMode = v.GetString("database.sslmode")
	}

	return cfg, nil
}
