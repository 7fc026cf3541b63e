// Package config loads and validates the verifier settings from a config
// file and PSP_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/bbockelm/lcmaps-plugins-pilot-sub-proxy/internal/secfile"
)

// Config carries the per-invocation policy knobs.
type Config struct {
	// LockPolicy names the advisory lock guarding the pilot proxy read:
	// none, range (fcntl), wholefile (flock), or both.
	LockPolicy string `mapstructure:"lock_policy" validate:"required,lockpolicy"`
	// FQANPattern, when set, is the glob at least one FQAN must match.
	FQANPattern string `mapstructure:"fqan_pattern"`
	// RejectLimited denies payload proxies carrying the limited policy.
	RejectLimited bool `mapstructure:"reject_limited"`
	// ReadAttempts bounds the consistency retry loop; 0 means the default.
	ReadAttempts uint `mapstructure:"read_attempts" validate:"lte=1000"`
	// RetryDelay is the pause between read attempts; 0 means the default.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// MaxProxySize caps the credential file size; 0 means the default.
	MaxProxySize int64 `mapstructure:"max_proxy_size" validate:"gte=0"`
}

// ParsedLockPolicy converts the configured lock-policy name.
func (c *Config) ParsedLockPolicy() (secfile.LockPolicy, error) {
	return secfile.ParseLockPolicy(c.LockPolicy)
}

// ReaderOptions converts the read tuning knobs.
func (c *Config) ReaderOptions() secfile.Options {
	return secfile.Options{
		Attempts: c.ReadAttempts,
		Delay:    c.RetryDelay,
		MaxSize:  c.MaxProxySize,
	}
}

func newValidator() (*validator.Validate, error) {
	v := validator.New()
	err := v.RegisterValidation("lockpolicy", func(fl validator.FieldLevel) bool {
		_, err := secfile.ParseLockPolicy(fl.Field().String())
		return err == nil
	})
	if err != nil {
		return nil, fmt.Errorf("registering lockpolicy validator: %w", err)
	}
	return v, nil
}

// Load reads configuration from the optional file at path and from the
// environment (PSP_LOCK_POLICY, PSP_FQAN_PATTERN, ...), then validates it.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetDefault("lock_policy", "range")
	vp.SetDefault("fqan_pattern", "")
	vp.SetDefault("reject_limited", false)
	vp.SetDefault("read_attempts", 0)
	vp.SetDefault("retry_delay", time.Duration(0))
	vp.SetDefault("max_proxy_size", 0)

	vp.SetEnvPrefix("PSP")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
