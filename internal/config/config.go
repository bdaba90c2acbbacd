// Package config loads Skygent's environment-prefixed configuration.
//
// Every recognized key is read as "<PREFIX>_<KEY>" (e.g. SKYGENT_BSKY_RATE_LIMIT),
// generalizing the prefix-joining convention used across the wider stack this
// module descends from. Values are read through viper so a config file or
// flag overlay can be added later without touching call sites, while
// environment variables always take precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the engine core consults directly.
type Config struct {
	// BskyRateLimit is the minimum interval between upstream requests.
	BskyRateLimit time.Duration
	// BskyRetryBase is the base backoff interval for retried upstream calls.
	BskyRetryBase time.Duration
	// BskyRetryMax is the maximum number of retry attempts.
	BskyRetryMax int
	// CredentialsKey names the secret the credentials collaborator resolves;
	// the engine core never sees more than a redacted {identifier,password} pair.
	CredentialsKey string
	// StoreRoot is the base directory under which named stores are created.
	StoreRoot string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is "text" or "json".
	LogFormat string
}

// env wraps a viper instance scoped to one environment-variable prefix,
// generalizing the buildKey(prefix, key) pattern shared by every Skygent
// component's configuration.
type env struct {
	prefix string
	v      *viper.Viper
}

func newEnv(prefix string) *env {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	return &env{prefix: prefix, v: v}
}

func (e *env) getString(key, def string) string {
	if val := e.v.GetString(key); val != "" {
		return val
	}
	return def
}

func (e *env) getInt(key string, def int) int {
	if e.v.IsSet(key) {
		return e.v.GetInt(key)
	}
	return def
}

func (e *env) getDuration(key string, def time.Duration) time.Duration {
	if !e.v.IsSet(key) {
		return def
	}
	d, err := time.ParseDuration(e.v.GetString(key))
	if err != nil {
		return def
	}
	return d
}

// Load reads configuration from the environment under the given prefix
// (e.g. "SKYGENT"), applying built-in defaults for anything unset, then
// validates the result.
func Load(prefix string) (*Config, error) {
	e := newEnv(prefix)

	cfg := &Config{
		BskyRateLimit:  e.getDuration("BSKY_RATE_LIMIT", 250*time.Millisecond),
		BskyRetryBase:  e.getDuration("BSKY_RETRY_BASE", 250*time.Millisecond),
		BskyRetryMax:   e.getInt("BSKY_RETRY_MAX", 5),
		CredentialsKey: e.getString("CREDENTIALS_KEY", ""),
		StoreRoot:      e.getString("STORE_ROOT", "./stores"),
		LogLevel:       e.getString("LOG_LEVEL", "info"),
		LogFormat:      e.getString("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on settings that would otherwise surface as confusing
// errors deep inside a sync or store operation.
func (c *Config) Validate() error {
	v := newValidator()
	v.requirePositiveDuration("BskyRateLimit", c.BskyRateLimit)
	v.requirePositiveDuration("BskyRetryBase", c.BskyRetryBase)
	v.requireNonNegativeInt("BskyRetryMax", c.BskyRetryMax)
	v.requireOneOf("LogLevel", c.LogLevel, []string{"debug", "info", "warn", "error"})
	v.requireOneOf("LogFormat", c.LogFormat, []string{"text", "json"})
	v.requireString("StoreRoot", c.StoreRoot)
	return v.validate()
}

// validator accumulates field-level configuration errors so callers see the
// full set of problems in one report instead of fixing them one at a time.
type validator struct {
	errors []string
}

func newValidator() *validator { return &validator{} }

func (v *validator) requireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

func (v *validator) requirePositiveDuration(field string, value time.Duration) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

func (v *validator) requireNonNegativeInt(field string, value int) {
	if value < 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must not be negative", field))
	}
}

func (v *validator) requireOneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

func (v *validator) validate() error {
	if len(v.errors) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(v.errors, "; "))
}
