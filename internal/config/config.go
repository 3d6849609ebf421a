// Package config loads the service configuration from YAML, an optional
// .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvPostgresDSN  = "IRONCERT_POSTGRES_DSN"
	EnvRedisAddr    = "IRONCERT_REDIS_ADDR"
	EnvWebhookAuth  = "IRONCERT_WEBHOOK_AUTH_HEADER"
	EnvOTLPEndpoint = "IRONCERT_OTLP_ENDPOINT"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverBBolt    = "bbolt"
	DriverPostgres = "postgres"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Cache       CacheConfig       `yaml:"cache"`
	Certificate CertificateConfig `yaml:"certificate"`
	Notify      NotifyConfig      `yaml:"notify"`
	Export      ExportConfig      `yaml:"export"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Logging     LoggingConfig     `yaml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	TLSCert      string        `yaml:"tls_cert"`
	TLSKey       string        `yaml:"tls_key"`
	// PlainHTTP serves without TLS, for deployments behind a terminating proxy.
	PlainHTTP bool `yaml:"plain_http"`
	// PublicBaseURL prefixes the view and download links returned by the API.
	PublicBaseURL string `yaml:"public_base_url"`
}

type StorageConfig struct {
	Driver  string `yaml:"driver"`
	DataDir string `yaml:"data_dir"`
	DSN     string `yaml:"dsn"`
}

type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type CertificateConfig struct {
	Prefix            string `yaml:"prefix"`
	RandomLength      int    `yaml:"random_length"`
	FixedLength       *bool  `yaml:"fixed_length"`
	MaxInsertAttempts int    `yaml:"max_insert_attempts"`
}

// Fixed reports the effective fixed-length setting. Default: true.
func (c CertificateConfig) Fixed() bool {
	return c.FixedLength == nil || *c.FixedLength
}

type NotifyConfig struct {
	Log               bool     `yaml:"log"`
	WebhookURL        string   `yaml:"webhook_url"`
	WebhookAuthHeader string   `yaml:"webhook_auth_header"`
	KafkaBrokers      []string `yaml:"kafka_brokers"`
	KafkaTopic        string   `yaml:"kafka_topic"`
}

type ExportConfig struct {
	WkhtmltopdfPath string `yaml:"wkhtmltopdf_path"`
	DPI             uint   `yaml:"dpi"`
}

type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RateLimitConfig struct {
	VerifyRPS   float64 `yaml:"verify_rps"`
	VerifyBurst int     `yaml:"verify_burst"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path (optional), after loading envFile into
// the process environment when it exists. Missing keys take defaults and
// environment overrides are applied last.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	c.applyDefaults()
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8443
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverBBolt
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Certificate.Prefix == "" {
		c.Certificate.Prefix = "CERT"
	}
	if c.Certificate.RandomLength == 0 {
		c.Certificate.RandomLength = 30
	}
	if c.Certificate.MaxInsertAttempts == 0 {
		c.Certificate.MaxInsertAttempts = 10
	}
	if c.Notify.KafkaTopic == "" {
		c.Notify.KafkaTopic = "certificate-events"
	}
	if c.Export.DPI == 0 {
		c.Export.DPI = 96
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "ironcert"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.RateLimit.VerifyRPS == 0 {
		c.RateLimit.VerifyRPS = 5
	}
	if c.RateLimit.VerifyBurst == 0 {
		c.RateLimit.VerifyBurst = 20
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv(EnvWebhookAuth); v != "" {
		c.Notify.WebhookAuthHeader = v
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		c.Tracing.Endpoint = v
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory, DriverBBolt:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn (or %s) is required for the postgres driver", EnvPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server.tls_cert and server.tls_key must be set together"))
	}
	if c.Certificate.RandomLength < 0 {
		errs = append(errs, errors.New("certificate.random_length must not be negative"))
	}
	if strings.ContainsAny(c.Certificate.Prefix, " -/") {
		errs = append(errs, fmt.Errorf("certificate.prefix %q must not contain spaces, dashes or slashes", c.Certificate.Prefix))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	if c.RateLimit.VerifyRPS < 0 || c.RateLimit.VerifyBurst < 0 {
		errs = append(errs, errors.New("ratelimit values must not be negative"))
	}
	return errors.Join(errs...)
}
