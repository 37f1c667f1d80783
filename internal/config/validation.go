package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/carbon-drive/3d-mapping/internal/logging"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is every problem found in one pass.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d error(s):", len(v))
	for i, err := range v {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) addr(field, value string) {
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		v.add(field, "must be host:port, got %q", value)
		return
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		v.add(field, "port must be between 0 and 65535")
	}
}

func (v *validator) nonEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "must not be empty")
	}
}

// Validate checks every field and reports all problems together.
func (c Config) Validate() error {
	v := &validator{}

	v.addr("addr", c.Addr)
	v.nonEmpty("upload_dir", c.UploadDir)
	v.nonEmpty("output_dir", c.OutputDir)

	if c.MaxBodyBytes <= 0 {
		v.add("max_body_bytes", "must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		v.add("shutdown_timeout", "must be positive")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		v.add("log.level", "must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logging.FormatJSON, logging.FormatText:
	default:
		v.add("log.format", "must be json or text")
	}

	for _, o := range c.CORS.AllowedOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			v.add("cors.allowed_origins", "origin %q must be * or start with http:// or https://", o)
		}
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		v.add("rate_limit.requests_per_minute", "must not be negative")
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Burst < 1 {
		v.add("rate_limit.burst", "must be at least 1 when rate limiting is enabled")
	}

	// Half-configured storage is almost always a typo.
	s := c.Storage
	if s.Endpoint != "" || s.Bucket != "" {
		v.nonEmpty("storage.endpoint", s.Endpoint)
		v.nonEmpty("storage.bucket", s.Bucket)
		v.nonEmpty("storage.access_key", s.AccessKey)
		v.nonEmpty("storage.secret_key", s.SecretKey)
	}

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}
