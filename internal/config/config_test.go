package config

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, "user", cfg.Database.User)
	assert.Equal(t, "password", cfg.Database.Password)
	assert.Equal(t, "workshopdb", cfg.Database.Name)
	assert.Equal(t, "vendas", cfg.Database.Table)
	assert.Equal(t, 500*time.Millisecond, cfg.Injector.Interval)
	assert.Equal(t, 5*time.Second, cfg.Injector.RetryDelay)
	assert.Equal(t, 0, cfg.Injector.RetryMaxAttempts)
	assert.Empty(t, cfg.Admin.Addr)
	assert.Empty(t, cfg.Checkpoint.Path)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "pg.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_DB", "demo")
	t.Setenv("INJECT_INTERVAL", "2s")
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("ADMIN_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "demo", cfg.Database.Name)
	assert.Equal(t, 2*time.Second, cfg.Injector.Interval)
	assert.Equal(t, 250*time.Millisecond, cfg.Injector.RetryDelay)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, ":9090", cfg.Admin.Addr)
}

func TestLoadReportsUnparsableValues(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "not-a-port")
	t.Setenv("INJECT_INTERVAL", "soon")
	t.Setenv("RETRY_MAX_ATTEMPTS", "three")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_PORT")
	assert.Contains(t, err.Error(), "INJECT_INTERVAL")
	assert.Contains(t, err.Error(), "RETRY_MAX_ATTEMPTS")
}

func TestGetEnvHelpers(t *testing.T) {
	n, err := getEnvInt("SALESFLOOD_TEST_UNSET", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	t.Setenv("SALESFLOOD_TEST_DELAY", "1m")
	d, err := getEnvDuration("SALESFLOOD_TEST_DELAY", time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	t.Setenv("SALESFLOOD_TEST_DELAY", "5")
	_, err = getEnvDuration("SALESFLOOD_TEST_DELAY", time.Second)
	assert.Error(t, err, "a bare number has no unit")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DB_DRIVER", "mysql"},
		{"POSTGRES_PORT", "70000"},
		{"RETRY_DELAY", "-1s"},
		{"RETRY_DELAY", "5 seconds"},
		{"RETRY_MAX_ATTEMPTS", "-3"},
		{"LOG_LEVEL", "verbose"},
		{"LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestPostgresDSNEscapesPassword(t *testing.T) {
	d := DatabaseConfig{
		Driver:   "postgres",
		Host:     "db",
		Port:     5432,
		User:     "user",
		Password: "p@ss/w:rd",
		Name:     "workshopdb",
		SSLMode:  "disable",
	}

	u, err := url.Parse(d.DSN())
	require.NoError(t, err)

	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss/w:rd", pass)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/workshopdb", u.Path)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))

	assert.NotContains(t, d.Redacted(), "p@ss")
}

func TestSQLiteDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "sqlite3", SQLitePath: "/tmp/sales.db"}
	assert.True(t, strings.HasPrefix(d.DSN(), "file:/tmp/sales.db?"))
	assert.Equal(t, "/tmp/sales.db", d.Redacted())
}
