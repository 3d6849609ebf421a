package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 8443, c.Server.Port)
	assert.Equal(t, DriverBBolt, c.Storage.Driver)
	assert.Equal(t, "CERT", c.Certificate.Prefix)
	assert.Equal(t, 30, c.Certificate.RandomLength)
	assert.True(t, c.Certificate.Fixed())
	assert.Equal(t, 10, c.Certificate.MaxInsertAttempts)
	assert.Equal(t, 5*time.Minute, c.Cache.TTL)
	require.NoError(t, c.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "ironcert.yaml", `
server:
  port: 9000
  plain_http: true
storage:
  driver: memory
certificate:
  prefix: LMS
  random_length: 12
  fixed_length: false
notify:
  kafka_brokers: ["k1:9092", "k2:9092"]
cache:
  ttl: 30s
`)
	c, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 9000, c.Server.Port)
	assert.True(t, c.Server.PlainHTTP)
	assert.Equal(t, DriverMemory, c.Storage.Driver)
	assert.Equal(t, "LMS", c.Certificate.Prefix)
	assert.Equal(t, 12, c.Certificate.RandomLength)
	assert.False(t, c.Certificate.Fixed())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Notify.KafkaBrokers)
	assert.Equal(t, 30*time.Second, c.Cache.TTL)
	assert.Equal(t, 30*time.Second, c.Server.WriteTimeout, "unset keys keep defaults")
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	t.Setenv(EnvPostgresDSN, "")
	os.Unsetenv(EnvPostgresDSN)
	envFile := writeFile(t, ".env", EnvPostgresDSN+"=postgres://u:p@localhost/certs\n")
	path := writeFile(t, "ironcert.yaml", "storage:\n  driver: postgres\n")

	c, err := Load(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/certs", c.Storage.DSN)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "server: [")
	_, err = Load(bad, "")
	assert.ErrorContains(t, err, "parsing config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, "unknown storage driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "storage.dsn"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "out of range"},
		{"half tls", func(c *Config) { c.Server.TLSCert = "cert.pem" }, "must be set together"},
		{"prefix dash", func(c *Config) { c.Certificate.Prefix = "A-B" }, "certificate.prefix"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := LoggingConfig{Level: "warn", Format: "text"}.NewLogger(&buf)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
}
