// Package config loads the Agent's configuration surface: transport,
// credential, local-database, local-HTTP, and logging settings.
//
// Precedence, highest first: environment variables, a YAML config file,
// built-in defaults. The file layer uses go.yaml.in/yaml/v2; the
// environment layer follows a getEnv*/fallback idiom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v2"
)

// Transport holds the settings governing the tunnel connection itself.
type Transport struct {
	SaaSURL              string        `yaml:"saas_url"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	SSLVerify            bool          `yaml:"ssl_verify"`
}

// Database holds the Agent's local SQL Executor connection settings.
type Database struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Name             string        `yaml:"database"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	Driver           string        `yaml:"driver"`
	UseWindowsAuth   bool          `yaml:"use_windows_auth"`
	ConnectTimeout   time.Duration `yaml:"connection_timeout"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
}

// LocalHTTP holds the Agent's Local-HTTP Executor settings.
type LocalHTTP struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Bearer  string `yaml:"bearer_token"`
}

// Logging holds log output settings.
type Logging struct {
	Level          string `yaml:"level"`
	File           string `yaml:"file"`
	MaxSizeMB      int    `yaml:"max_size_mb"`
	MaxBackups     int    `yaml:"max_backups"`
}

// Config is the fully resolved Agent configuration.
type Config struct {
	GatewayToken string    `yaml:"gateway_token"`
	Transport    Transport `yaml:"transport"`
	Database     Database  `yaml:"database"`
	LocalHTTP    LocalHTTP `yaml:"local_http"`
	Logging      Logging   `yaml:"logging"`
}

// fileLayer is the shape the YAML config file is unmarshaled into. Every
// field is a pointer so applyFile can distinguish "absent from the file"
// from "present with the zero value" and only override the defaults for
// keys the file actually sets.
type fileLayer struct {
	GatewayToken *string `yaml:"gateway_token"`
	Transport    struct {
		SaaSURL              *string `yaml:"saas_url"`
		HeartbeatInterval    *string `yaml:"heartbeat_interval"`
		ReconnectDelay       *string `yaml:"reconnect_delay"`
		MaxReconnectDelay    *string `yaml:"max_reconnect_delay"`
		MaxReconnectAttempts *int    `yaml:"max_reconnect_attempts"`
		SSLVerify            *bool   `yaml:"ssl_verify"`
	} `yaml:"transport"`
	Database struct {
		Host           *string `yaml:"host"`
		Port           *int    `yaml:"port"`
		Name           *string `yaml:"database"`
		Username       *string `yaml:"username"`
		Password       *string `yaml:"password"`
		Driver         *string `yaml:"driver"`
		UseWindowsAuth *bool   `yaml:"use_windows_auth"`
		ConnectTimeout *string `yaml:"connection_timeout"`
		QueryTimeout   *string `yaml:"query_timeout"`
	} `yaml:"database"`
	LocalHTTP struct {
		BaseURL *string `yaml:"base_url"`
		APIKey  *string `yaml:"api_key"`
		Bearer  *string `yaml:"bearer_token"`
	} `yaml:"local_http"`
	Logging struct {
		Level      *string `yaml:"level"`
		File       *string `yaml:"file"`
		MaxSizeMB  *int    `yaml:"max_size_mb"`
		MaxBackups *int    `yaml:"max_backups"`
	} `yaml:"logging"`
}

// defaults returns the built-in configuration: the lowest-precedence layer.
func defaults() Config {
	return Config{
		Transport: Transport{
			HeartbeatInterval:    30 * time.Second,
			ReconnectDelay:       1 * time.Second,
			MaxReconnectDelay:    60 * time.Second,
			MaxReconnectAttempts: 0,
			SSLVerify:            true,
		},
		Database: Database{
			Driver:         "postgres",
			ConnectTimeout: 10 * time.Second,
			QueryTimeout:   30 * time.Second,
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// Load resolves a Config by layering, in increasing precedence: built-in
// defaults, the YAML file at path (skipped if path is empty or the file
// does not exist), and environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var f fileLayer
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if f.GatewayToken != nil {
		cfg.GatewayToken = *f.GatewayToken
	}
	if f.Transport.SaaSURL != nil {
		cfg.Transport.SaaSURL = *f.Transport.SaaSURL
	}
	if f.Transport.HeartbeatInterval != nil {
		if d, err := time.ParseDuration(*f.Transport.HeartbeatInterval); err == nil {
			cfg.Transport.HeartbeatInterval = d
		}
	}
	if f.Transport.ReconnectDelay != nil {
		if d, err := time.ParseDuration(*f.Transport.ReconnectDelay); err == nil {
			cfg.Transport.ReconnectDelay = d
		}
	}
	if f.Transport.MaxReconnectDelay != nil {
		if d, err := time.ParseDuration(*f.Transport.MaxReconnectDelay); err == nil {
			cfg.Transport.MaxReconnectDelay = d
		}
	}
	if f.Transport.MaxReconnectAttempts != nil {
		cfg.Transport.MaxReconnectAttempts = *f.Transport.MaxReconnectAttempts
	}
	if f.Transport.SSLVerify != nil {
		cfg.Transport.SSLVerify = *f.Transport.SSLVerify
	}

	if f.Database.Host != nil {
		cfg.Database.Host = *f.Database.Host
	}
	if f.Database.Port != nil {
		cfg.Database.Port = *f.Database.Port
	}
	if f.Database.Name != nil {
		cfg.Database.Name = *f.Database.Name
	}
	if f.Database.Username != nil {
		cfg.Database.Username = *f.Database.Username
	}
	if f.Database.Password != nil {
		cfg.Database.Password = *f.Database.Password
	}
	if f.Database.Driver != nil {
		cfg.Database.Driver = *f.Database.Driver
	}
	if f.Database.UseWindowsAuth != nil {
		cfg.Database.UseWindowsAuth = *f.Database.UseWindowsAuth
	}
	if f.Database.ConnectTimeout != nil {
		if d, err := time.ParseDuration(*f.Database.ConnectTimeout); err == nil {
			cfg.Database.ConnectTimeout = d
		}
	}
	if f.Database.QueryTimeout != nil {
		if d, err := time.ParseDuration(*f.Database.QueryTimeout); err == nil {
			cfg.Database.QueryTimeout = d
		}
	}

	if f.LocalHTTP.BaseURL != nil {
		cfg.LocalHTTP.BaseURL = *f.LocalHTTP.BaseURL
	}
	if f.LocalHTTP.APIKey != nil {
		cfg.LocalHTTP.APIKey = *f.LocalHTTP.APIKey
	}
	if f.LocalHTTP.Bearer != nil {
		cfg.LocalHTTP.Bearer = *f.LocalHTTP.Bearer
	}

	if f.Logging.Level != nil {
		cfg.Logging.Level = *f.Logging.Level
	}
	if f.Logging.File != nil {
		cfg.Logging.File = *f.Logging.File
	}
	if f.Logging.MaxSizeMB != nil {
		cfg.Logging.MaxSizeMB = *f.Logging.MaxSizeMB
	}
	if f.Logging.MaxBackups != nil {
		cfg.Logging.MaxBackups = *f.Logging.MaxBackups
	}

	return nil
}

// applyEnv overlays environment variables, the highest-precedence layer.
func applyEnv(cfg *Config) {
	cfg.GatewayToken = getEnv("VIADUCT_GATEWAY_TOKEN", cfg.GatewayToken)

	cfg.Transport.SaaSURL = getEnv("VIADUCT_SAAS_URL", cfg.Transport.SaaSURL)
	cfg.Transport.HeartbeatInterval = getEnvDuration("VIADUCT_HEARTBEAT_INTERVAL", cfg.Transport.HeartbeatInterval)
	cfg.Transport.ReconnectDelay = getEnvDuration("VIADUCT_RECONNECT_DELAY", cfg.Transport.ReconnectDelay)
	cfg.Transport.MaxReconnectDelay = getEnvDuration("VIADUCT_MAX_RECONNECT_DELAY", cfg.Transport.MaxReconnectDelay)
	cfg.Transport.MaxReconnectAttempts = getEnvInt("VIADUCT_MAX_RECONNECT_ATTEMPTS", cfg.Transport.MaxReconnectAttempts)
	cfg.Transport.SSLVerify = getEnvBool("VIADUCT_SSL_VERIFY", cfg.Transport.SSLVerify)

	cfg.Database.Host = getEnv("VIADUCT_DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("VIADUCT_DB_PORT", cfg.Database.Port)
	cfg.Database.Name = getEnv("VIADUCT_DB_NAME", cfg.Database.Name)
	cfg.Database.Username = getEnv("VIADUCT_DB_USERNAME", cfg.Database.Username)
	cfg.Database.Password = getEnv("VIADUCT_DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Driver = getEnv("VIADUCT_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.UseWindowsAuth = getEnvBool("VIADUCT_DB_USE_WINDOWS_AUTH", cfg.Database.UseWindowsAuth)
	cfg.Database.ConnectTimeout = getEnvDuration("VIADUCT_DB_CONNECT_TIMEOUT", cfg.Database.ConnectTimeout)
	cfg.Database.QueryTimeout = getEnvDuration("VIADUCT_DB_QUERY_TIMEOUT", cfg.Database.QueryTimeout)

	cfg.LocalHTTP.BaseURL = getEnv("VIADUCT_LOCAL_HTTP_BASE_URL", cfg.LocalHTTP.BaseURL)
	cfg.LocalHTTP.APIKey = getEnv("VIADUCT_LOCAL_HTTP_API_KEY", cfg.LocalHTTP.APIKey)
	cfg.LocalHTTP.Bearer = getEnv("VIADUCT_LOCAL_HTTP_BEARER", cfg.LocalHTTP.Bearer)

	cfg.Logging.Level = getEnv("VIADUCT_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.File = getEnv("VIADUCT_LOG_FILE", cfg.Logging.File)
	cfg.Logging.MaxSizeMB = getEnvInt("VIADUCT_LOG_MAX_SIZE_MB", cfg.Logging.MaxSizeMB)
	cfg.Logging.MaxBackups = getEnvInt("VIADUCT_LOG_MAX_BACKUPS", cfg.Logging.MaxBackups)
}

// Validate checks the fields the Agent cannot start without.
func (c *Config) Validate() error {
	if c.Transport.SaaSURL == "" {
		return fmt.Errorf("transport.saas_url (VIADUCT_SAAS_URL) is required")
	}
	if c.GatewayToken == "" {
		return fmt.Errorf("gateway_token (VIADUCT_GATEWAY_TOKEN) is required")
	}
	if c.Transport.HeartbeatInterval <= 0 {
		return fmt.Errorf("transport.heartbeat_interval must be > 0")
	}
	if c.Transport.MaxReconnectAttempts < 0 {
		return fmt.Errorf("transport.max_reconnect_attempts must be >= 0 (0 = infinite)")
	}
	if c.Transport.MaxReconnectDelay > 0 && c.Transport.MaxReconnectDelay < c.Transport.ReconnectDelay {
		return fmt.Errorf("transport.max_reconnect_delay must be >= transport.reconnect_delay")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite", "mysql":
	default:
		return fmt.Errorf("database.driver must be one of postgres, sqlite, mysql (got %q)", c.Database.Driver)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
