// Package config loads service settings from an optional .env file, an
// optional YAML file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"receipt-drop/internal/blob"
	"receipt-drop/internal/logging"
	"receipt-drop/internal/receipts"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// CleanupConfig controls the orphaned file sweeper.
type CleanupConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// BreakerConfig controls the database circuit breaker.
type BreakerConfig struct {
	Failures int           `yaml:"failures"`
	Timeout  time.Duration `yaml:"timeout"`
}

// S3Config selects S3-compatible object storage instead of the local disk.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
}

// Config is the complete service configuration.
type Config struct {
	Addr    string `yaml:"addr"`
	BaseURL string `yaml:"base_url"`
	Env     string `yaml:"env"`

	UploadDir string   `yaml:"upload_dir"`
	S3        S3Config `yaml:"s3"`

	DatabaseURL    string        `yaml:"database_url"`
	MongoDatabase  string        `yaml:"mongo_database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Breaker        BreakerConfig `yaml:"breaker"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	CORSOrigins []string      `yaml:"cors_origins"`
	Cleanup     CleanupConfig `yaml:"cleanup"`

	// UploadRateLimit is the number of uploads one client IP may make per
	// minute. Zero disables the limit.
	UploadRateLimit int `yaml:"upload_rate_limit"`
	// TrustProxy takes client IPs from X-Forwarded-For. Set it only when a
	// reverse proxy in front of the service overwrites that header.
	TrustProxy bool `yaml:"trust_proxy"`

	Version string `yaml:"version"`
	Commit  string `yaml:"commit"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Addr:            ":3001",
		Env:             EnvDevelopment,
		UploadDir:       "./uploads",
		DatabaseURL:     "mongodb://localhost:27017/receipts",
		ConnectTimeout:  60 * time.Second,
		Breaker:         BreakerConfig{Failures: 5, Timeout: 30 * time.Second},
		LogLevel:        "info",
		CORSOrigins:     []string{"*"},
		UploadRateLimit: 30,
		Cleanup:         CleanupConfig{Enabled: false, Interval: time.Hour, MaxAge: 24 * time.Hour},
		Version:         "dev",
		Commit:          "unknown",
	}
}

// Load reads envFiles (default ".env"; missing files are ignored), then the
// YAML file named by RD_CONFIG_FILE, then environment variables, and
// validates the result.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Defaults()
	if path := os.Getenv("RD_CONFIG_FILE"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return Config{}, err
		}
	}

	v := NewValidator()
	cfg.applyEnv(v)
	cfg.fillDerived()
	cfg.validate(v)
	if err := v.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides c with any environment variables that are set.
// Unparseable values are recorded on v.
func (c *Config) applyEnv(v *Validator) {
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	setString(&c.Addr, "RD_ADDR")

	if h := os.Getenv("RENDER_EXTERNAL_HOSTNAME"); h != "" {
		if !strings.Contains(h, "://") {
			h = "https://" + h
		}
		c.BaseURL = h
	}
	setString(&c.BaseURL, "BACKEND_URL")
	setString(&c.BaseURL, "RD_BASE_URL")

	setString(&c.Env, "RD_ENV")
	setString(&c.UploadDir, "RD_UPLOAD_DIR")

	setString(&c.S3.Endpoint, "RD_S3_ENDPOINT")
	setString(&c.S3.AccessKey, "RD_S3_ACCESS_KEY")
	setString(&c.S3.SecretKey, "RD_S3_SECRET_KEY")
	setString(&c.S3.Bucket, "RD_BUCKET")

	setString(&c.DatabaseURL, "MONGODB_URI")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.MongoDatabase, "RD_MONGO_DATABASE")
	setDuration(v, &c.ConnectTimeout, "RD_CONNECT_TIMEOUT")
	setInt(v, &c.Breaker.Failures, "RD_BREAKER_FAILURES")
	setDuration(v, &c.Breaker.Timeout, "RD_BREAKER_TIMEOUT")

	setString(&c.LogFormat, "RD_LOG_FORMAT")
	setString(&c.LogLevel, "RD_LOG_LEVEL")

	if origins := os.Getenv("RD_CORS_ORIGINS"); origins != "" {
		c.CORSOrigins = splitList(origins)
	}

	setBool(v, &c.Cleanup.Enabled, "RD_CLEANUP_ENABLED")
	setDuration(v, &c.Cleanup.Interval, "RD_CLEANUP_INTERVAL")
	setDuration(v, &c.Cleanup.MaxAge, "RD_CLEANUP_MAX_AGE")
	setInt(v, &c.UploadRateLimit, "RD_UPLOAD_RATE_LIMIT")
	setBool(v, &c.TrustProxy, "RD_TRUST_PROXY")

	setString(&c.Version, "RD_VERSION")
	setString(&c.Commit, "RD_COMMIT")
}

// fillDerived sets values that default from other settings.
func (c *Config) fillDerived() {
	if c.LogFormat == "" {
		c.LogFormat = string(logging.FormatText)
		if c.Env == EnvProduction {
			c.LogFormat = string(logging.FormatJSON)
		}
	}
	if c.BaseURL == "" {
		port := strings.TrimPrefix(c.Addr, ":")
		if _, p, err := net.SplitHostPort(c.Addr); err == nil {
			port = p
		}
		c.BaseURL = "http://localhost:" + port
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

func (c *Config) validate(v *Validator) {
	v.ValidateListenAddr("RD_ADDR", c.Addr)
	v.ValidateRequired("RD_BASE_URL", c.BaseURL)
	v.ValidateURL("RD_BASE_URL", c.BaseURL)
	v.ValidateEnum("RD_ENV", c.Env, []string{EnvDevelopment, EnvStaging, EnvProduction})
	v.ValidateEnum("RD_LOG_FORMAT", c.LogFormat, []string{string(logging.FormatText), string(logging.FormatJSON)})
	v.ValidateEnum("RD_LOG_LEVEL", strings.ToLower(c.LogLevel), []string{"debug", "info", "warn", "warning", "error"})

	v.ValidateRequired("DATABASE_URL", c.DatabaseURL)
	v.ValidateScheme("DATABASE_URL", c.DatabaseURL, []string{"mongodb", "mongodb+srv", "postgres", "postgresql", "bolt", "memory"})
	v.ValidateNonNegativeDuration("RD_CONNECT_TIMEOUT", c.ConnectTimeout)
	v.ValidatePositiveInt("RD_BREAKER_FAILURES", c.Breaker.Failures)
	v.ValidatePositiveDuration("RD_BREAKER_TIMEOUT", c.Breaker.Timeout)

	if c.S3.Endpoint == "" {
		v.ValidateRequired("RD_UPLOAD_DIR", c.UploadDir)
	} else {
		v.ValidateRequired("RD_S3_ACCESS_KEY", c.S3.AccessKey)
		v.ValidateRequired("RD_S3_SECRET_KEY", c.S3.SecretKey)
		v.ValidateRequired("RD_BUCKET", c.S3.Bucket)
		if strings.Contains(c.S3.Endpoint, "://") {
			v.ValidateURL("RD_S3_ENDPOINT", c.S3.Endpoint)
		}
	}

	if len(c.CORSOrigins) == 0 {
		v.AddError("RD_CORS_ORIGINS", "at least one origin is required (use * for any)")
	}

	if c.UploadRateLimit < 0 {
		v.AddError("RD_UPLOAD_RATE_LIMIT", "must not be negative (0 disables the limit)")
	}

	if c.Cleanup.Enabled {
		v.ValidatePositiveDuration("RD_CLEANUP_INTERVAL", c.Cleanup.Interval)
		v.ValidatePositiveDuration("RD_CLEANUP_MAX_AGE", c.Cleanup.MaxAge)
	}
}

// Minio returns the object storage settings in the form blob expects.
func (c Config) Minio() blob.MinioConfig {
	return blob.MinioConfig{
		Endpoint:  c.S3.Endpoint,
		AccessKey: c.S3.AccessKey,
		SecretKey: c.S3.SecretKey,
		Bucket:    c.S3.Bucket,
	}
}

// Sweeper returns the sweeper settings.
func (c Config) Sweeper() receipts.SweeperConfig {
	return receipts.SweeperConfig{
		Enabled:  c.Cleanup.Enabled,
		Interval: c.Cleanup.Interval,
		MaxAge:   c.Cleanup.MaxAge,
	}
}

// Warnings lists optional settings that are unset but recommended.
func (c Config) Warnings() []string {
	warnings := make([]string, 0)

	if os.Getenv("RD_BASE_URL") == "" && os.Getenv("BACKEND_URL") == "" && os.Getenv("RENDER_EXTERNAL_HOSTNAME") == "" {
		warnings = append(warnings, "RD_BASE_URL not set - file URLs use "+c.BaseURL)
	}
	if c.Env == EnvProduction && c.LogFormat != string(logging.FormatJSON) {
		warnings = append(warnings, "RD_LOG_FORMAT is not 'json' in production")
	}
	if !c.Cleanup.Enabled {
		warnings = append(warnings, "RD_CLEANUP_ENABLED not set to 'true' - orphaned files are not removed")
	}
	if len(c.CORSOrigins) == 1 && c.CORSOrigins[0] == "*" && c.Env == EnvProduction {
		warnings = append(warnings, "RD_CORS_ORIGINS allows any origin")
	}
	return warnings
}

// Redacted returns c with secrets masked, for logging.
func (c Config) Redacted() Config {
	out := c
	if out.S3.SecretKey != "" {
		out.S3.SecretKey = "***"
	}
	out.DatabaseURL = redactURL(out.DatabaseURL)
	return out
}

func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	creds := raw[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return raw[:scheme+3] + creds + raw[at:]
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(v *Validator, dst *bool, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		v.AddError(key, "must be true or false")
		return
	}
	*dst = b
}

func setInt(v *Validator, dst *int, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v.AddError(key, "must be a valid integer")
		return
	}
	*dst = n
}

func setDuration(v *Validator, dst *time.Duration, key string) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		v.AddError(key, "must be a valid duration (e.g., 30s, 1h)")
		return
	}
	*dst = d
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
