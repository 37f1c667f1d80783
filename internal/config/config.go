// Package config loads service settings from defaults, an optional YAML file
// and MAPPING_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carbon-drive/3d-mapping/internal/logging"
	"github.com/carbon-drive/3d-mapping/internal/storage"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "MAPPING_"

// Config is the full service configuration.
type Config struct {
	Addr            string          `yaml:"addr"`
	UploadDir       string          `yaml:"upload_dir"`
	OutputDir       string          `yaml:"output_dir"`
	MaxBodyBytes    int64           `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	Log             logging.Config  `yaml:"log"`
	CORS            CORSConfig      `yaml:"cors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Storage         storage.Config  `yaml:"storage"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig is applied per client IP. Zero RequestsPerMinute disables it.
// Clients are keyed by peer address unless TrustProxyHeaders is set, which is
// only safe behind a proxy that overwrites X-Forwarded-For.
type RateLimitConfig struct {
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:            ":5000",
		UploadDir:       "uploads",
		OutputDir:       "outputs",
		MaxBodyBytes:    50 << 20,
		ShutdownTimeout: 10 * time.Second,
		Log:             logging.Config{Format: logging.FormatJSON, Level: "info"},
		CORS:            CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit:       RateLimitConfig{RequestsPerMinute: 120, Burst: 20},
		Storage:         storage.Config{Region: "us-east-1", CreateBucket: true},
	}
}

// Load builds a Config. path may be empty; a missing file is an error only
// when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("ADDR", &cfg.Addr)
	str("UPLOAD_DIR", &cfg.UploadDir)
	str("OUTPUT_DIR", &cfg.OutputDir)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("STORAGE_ENDPOINT", &cfg.Storage.Endpoint)
	str("STORAGE_ACCESS_KEY", &cfg.Storage.AccessKey)
	str("STORAGE_SECRET_KEY", &cfg.Storage.SecretKey)
	str("STORAGE_BUCKET", &cfg.Storage.Bucket)
	str("STORAGE_REGION", &cfg.Storage.Region)
	boolean("STORAGE_CREATE_BUCKET", &cfg.Storage.CreateBucket)
	integer("RATE_LIMIT_RPM", &cfg.RateLimit.RequestsPerMinute)
	integer("RATE_LIMIT_BURST", &cfg.RateLimit.Burst)
	boolean("RATE_LIMIT_TRUST_PROXY", &cfg.RateLimit.TrustProxyHeaders)

	if v, ok := lookup(EnvPrefix + "MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_BODY_BYTES: %w", EnvPrefix, err))
		} else {
			cfg.MaxBodyBytes = n
		}
	}
	if v, ok := lookup(EnvPrefix + "SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSHUTDOWN_TIMEOUT: %w", EnvPrefix, err))
		} else {
			cfg.ShutdownTimeout = d
		}
	}
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		cfg.CORS.AllowedOrigins = splitList(v)
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
