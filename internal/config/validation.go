package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator collects every configuration problem so they can be reported
// together at startup.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates an empty Validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

// AddError records a problem with field.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// HasErrors reports whether any problem was recorded.
func (v *Validator) HasErrors() bool { return len(v.errors) > 0 }

// Errors returns the recorded problems.
func (v *Validator) Errors() []ValidationError { return v.errors }

// Err returns nil, or one error listing every recorded problem.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Configuration validation failed with %d error(s):\n", len(v.errors))
	for i, err := range v.errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return fmt.Errorf("%s", sb.String())
}

// ValidateRequired records an error when value is empty.
func (v *Validator) ValidateRequired(key, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(key, "required setting not set")
	}
}

// ValidateURL checks that value is an absolute http or https URL.
func (v *Validator) ValidateURL(key, value string) {
	if value == "" {
		return
	}

	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(key, "URL must use http or https scheme")
		return
	}
	if parsed.Host == "" {
		v.AddError(key, "URL must include a host")
	}
}

// ValidateListenAddr accepts ":port" or "host:port".
func (v *Validator) ValidateListenAddr(key, value string) {
	if value == "" {
		v.AddError(key, "listen address not set")
		return
	}

	_, portStr, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(key, "must be :port or host:port")
		return
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}

	if port < 1 || port > 65535 {
		v.AddError(key, "port must be between 1 and 65535")
	}
}

// ValidateEnum checks that value is one of allowed.
func (v *Validator) ValidateEnum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}
	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// ValidateScheme checks the scheme of a connection URL.
func (v *Validator) ValidateScheme(key, value string, allowed []string) {
	if value == "" {
		return
	}
	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}
	for _, s := range allowed {
		if parsed.Scheme == s {
			return
		}
	}
	v.AddError(key, fmt.Sprintf("scheme must be one of: %s (got: %q)", strings.Join(allowed, ", "), parsed.Scheme))
}

// ValidatePositiveInt checks that n > 0.
func (v *Validator) ValidatePositiveInt(key string, n int) {
	if n <= 0 {
		v.AddError(key, "must be a positive integer")
	}
}

// ValidatePositiveDuration checks that d > 0.
func (v *Validator) ValidatePositiveDuration(key string, d time.Duration) {
	if d <= 0 {
		v.AddError(key, "must be a positive duration (e.g., 30s, 1h)")
	}
}

// ValidateNonNegativeDuration checks that d >= 0.
func (v *Validator) ValidateNonNegativeDuration(key string, d time.Duration) {
	if d < 0 {
		v.AddError(key, "must not be negative")
	}
}
