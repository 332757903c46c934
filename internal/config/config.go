package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bit2swaz/salesflood/internal/store"
)

type Config struct {
	Database   DatabaseConfig
	Injector   InjectorConfig
	Logger     LoggerConfig
	Admin      AdminConfig
	Checkpoint CheckpointConfig
}

type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
	Table      string
}

type InjectorConfig struct {
	Interval         time.Duration
	RetryDelay       time.Duration
	RetryMaxAttempts int
	CatalogFile      string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type AdminConfig struct {
	Addr string
}

type CheckpointConfig struct {
	Path string
}

// Load reads the environment. Numeric and duration variables that are set but
// unparsable are reported, not replaced by their defaults.
func Load() (*Config, error) {
	port, portErr := getEnvInt("POSTGRES_PORT", 5432)
	interval, intervalErr := getEnvDuration("INJECT_INTERVAL", 500*time.Millisecond)
	retryDelay, retryDelayErr := getEnvDuration("RETRY_DELAY", 5*time.Second)
	maxAttempts, maxAttemptsErr := getEnvInt("RETRY_MAX_ATTEMPTS", 0)
	if err := errors.Join(portErr, intervalErr, retryDelayErr, maxAttemptsErr); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:     getEnvString("DB_DRIVER", "postgres"),
			Host:       getEnvString("POSTGRES_HOST", "db"),
			Port:       port,
			User:       getEnvString("POSTGRES_USER", "user"),
			Password:   getEnvString("POSTGRES_PASSWORD", "password"),
			Name:       getEnvString("POSTGRES_DB", "workshopdb"),
			SSLMode:    getEnvString("POSTGRES_SSLMODE", "disable"),
			SQLitePath: getEnvString("SQLITE_PATH", "salesflood.db"),
			Table:      getEnvString("SALES_TABLE", "vendas"),
		},
		Injector: InjectorConfig{
			Interval:         interval,
			RetryDelay:       retryDelay,
			RetryMaxAttempts: maxAttempts,
			CatalogFile:      getEnvString("CATALOG_FILE", ""),
		},
		Logger: LoggerConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "text"),
		},
		Admin: AdminConfig{
			Addr: getEnvString("ADMIN_ADDR", ""),
		},
		Checkpoint: CheckpointConfig{
			Path: getEnvString("CHECKPOINT_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate is exported so that flag overrides can be re-checked after Load.
func (c *Config) Validate() error {
	validDrivers := []string{"postgres", "sqlite3"}
	if !slices.Contains(validDrivers, c.Database.Driver) {
		return fmt.Errorf("invalid database driver %q, must be one of: %s", c.Database.Driver, strings.Join(validDrivers, ", "))
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Database.Driver == "postgres" && c.Database.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}

	if c.Database.Driver == "sqlite3" && c.Database.SQLitePath == "" {
		return fmt.Errorf("sqlite path cannot be empty")
	}

	if c.Database.Table == "" {
		return fmt.Errorf("sales table cannot be empty")
	}

	if c.Injector.Interval < 0 {
		return fmt.Errorf("inject interval cannot be negative")
	}

	if c.Injector.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive")
	}

	if c.Injector.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry max attempts cannot be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	return nil
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite3" {
		return store.SQLiteDSN(d.SQLitePath)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}

// Redacted is safe to log.
func (d DatabaseConfig) Redacted() string {
	if d.Driver == "sqlite3" {
		return d.SQLitePath
	}
	return fmt.Sprintf("%s@%s:%d/%s", d.User, d.Host, d.Port, d.Name)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not an integer", key, value)
	}
	return intValue, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %q is not a duration", key, value)
	}
	return duration, nil
}
