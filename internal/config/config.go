// Package config loads the cleaner's settings from flags, environment and
// an optional YAML file through viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/gitlab-artifact-cleaner/internal/gitlab"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/timeparsing"
)

// EnvPrefix prefixes every environment variable, e.g. GLAC_TOKEN.
const EnvPrefix = "GLAC"

// AppName names the config directory under the user config dir.
const AppName = "gitlab-artifact-cleaner"

// Viper keys.
const (
	KeyServer               = "server"
	KeyToken                = "token"
	KeyGroupID              = "group-id"
	KeyProjectID            = "project-id"
	KeyIgnoreExpire         = "ignore-expire"
	KeyIgnoreMR             = "ignore-mr"
	KeyDryRun               = "dry-run"
	KeyAsOf                 = "as-of"
	KeyRetryMaxAttempts     = "retry.max-attempts"
	KeyRetryInitialInterval = "retry.initial-interval"
	KeyRetryMaxInterval     = "retry.max-interval"
	KeyHTTPTimeout          = "http.timeout"
)

const redacted = "********"

// Config is the effective configuration of one run.
type Config struct {
	Server       string      `yaml:"server"`
	Token        string      `yaml:"token"`
	GroupID      string      `yaml:"group-id,omitempty"`
	ProjectID    string      `yaml:"project-id,omitempty"`
	IgnoreExpire bool        `yaml:"ignore-expire"`
	IgnoreMR     bool        `yaml:"ignore-mr"`
	DryRun       bool        `yaml:"dry-run"`
	AsOf         string      `yaml:"as-of,omitempty"`
	Retry        RetryConfig `yaml:"retry"`
	HTTP         HTTPConfig  `yaml:"http"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max-attempts"`
	InitialInterval time.Duration `yaml:"initial-interval"`
	MaxInterval     time.Duration `yaml:"max-interval"`
}

type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default value of every key. Keys need a default
// for AutomaticEnv to find them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServer, "")
	v.SetDefault(KeyToken, "")
	v.SetDefault(KeyGroupID, "")
	v.SetDefault(KeyProjectID, "")
	v.SetDefault(KeyIgnoreExpire, false)
	v.SetDefault(KeyIgnoreMR, false)
	v.SetDefault(KeyDryRun, false)
	v.SetDefault(KeyAsOf, "")
	v.SetDefault(KeyRetryMaxAttempts, gitlab.DefaultMaxAttempts)
	v.SetDefault(KeyRetryInitialInterval, gitlab.DefaultInitialInterval)
	v.SetDefault(KeyRetryMaxInterval, gitlab.DefaultMaxInterval)
	v.SetDefault(KeyHTTPTimeout, gitlab.DefaultTimeout)
}

// DefaultPath returns $XDG_CONFIG_HOME/gitlab-artifact-cleaner/config.yaml,
// or "" when no user config directory is known.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName, "config.yaml")
}

// ReadFile merges the YAML file at path into v. A missing file is only an
// error when the caller asked for it explicitly.
func ReadFile(v *viper.Viper, path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

// Load reads the effective configuration out of v. It does not validate.
func Load(v *viper.Viper) Config {
	return Config{
		Server:       strings.TrimSpace(v.GetString(KeyServer)),
		Token:        strings.TrimSpace(v.GetString(KeyToken)),
		GroupID:      strings.TrimSpace(v.GetString(KeyGroupID)),
		ProjectID:    strings.TrimSpace(v.GetString(KeyProjectID)),
		IgnoreExpire: v.GetBool(KeyIgnoreExpire),
		IgnoreMR:     v.GetBool(KeyIgnoreMR),
		DryRun:       v.GetBool(KeyDryRun),
		AsOf:         strings.TrimSpace(v.GetString(KeyAsOf)),
		Retry: RetryConfig{
			MaxAttempts:     v.GetInt(KeyRetryMaxAttempts),
			InitialInterval: v.GetDuration(KeyRetryInitialInterval),
			MaxInterval:     v.GetDuration(KeyRetryMaxInterval),
		},
		HTTP: HTTPConfig{Timeout: v.GetDuration(KeyHTTPTimeout)},
	}
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server == "" {
		errs = append(errs, errors.New("server is required (--server or GLAC_SERVER)"))
	} else if u, err := url.Parse(c.Server); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server %q must be an http or https URL", c.Server))
	}
	if c.Token == "" {
		errs = append(errs, errors.New("token is required (--token or GLAC_TOKEN)"))
	}
	switch {
	case c.GroupID == "" && c.ProjectID == "":
		errs = append(errs, errors.New("one of group-id or project-id is required"))
	case c.GroupID != "" && c.ProjectID != "":
		errs = append(errs, errors.New("group-id and project-id are mutually exclusive"))
	}
	if c.AsOf != "" {
		if _, err := timeparsing.ParseReference(c.AsOf, time.Now()); err != nil {
			errs = append(errs, fmt.Errorf("as-of: %w", err))
		}
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max-attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.InitialInterval <= 0 {
		errs = append(errs, fmt.Errorf("retry.initial-interval must be positive, got %s", c.Retry.InitialInterval))
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		errs = append(errs, fmt.Errorf("retry.max-interval %s is below retry.initial-interval %s", c.Retry.MaxInterval, c.Retry.InitialInterval))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout))
	}
	return errors.Join(errs...)
}

// Reference returns the time expiry is checked against.
func (c Config) Reference(now time.Time) (time.Time, error) {
	return timeparsing.ParseReference(c.AsOf, now)
}

// RetryPolicy converts the retry settings for the GitLab client.
func (c Config) RetryPolicy() gitlab.RetryPolicy {
	return gitlab.RetryPolicy{
		MaxAttempts:     c.Retry.MaxAttempts,
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
	}
}

// Redacted returns a copy of c that is safe to print.
func (c Config) Redacted() Config {
	if c.Token != "" {
		c.Token = redacted
	}
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
