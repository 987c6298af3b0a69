package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "OFFLINER_"

// Config defines configuration for the offliner CLI.
type Config struct {
	Mirrors                []string          `yaml:"mirrors"`
	Output                 string            `yaml:"output"`
	Locations              []string          `yaml:"locations"`
	Workers                int               `yaml:"workers"`
	Timeout                time.Duration     `yaml:"timeout"`
	Properties             map[string]string `yaml:"properties"`
	IncludeSelf            bool              `yaml:"include_self"`
	IncludeParent          bool              `yaml:"include_parent"`
	SkipScopes             []string          `yaml:"skip_scopes"`
	Manifest               bool              `yaml:"manifest"`
	Progress               bool              `yaml:"progress"`
	MetricsFile            string            `yaml:"metrics_file"`
	RateLimit              float64           `yaml:"rate_limit"`
	MaxConsecutiveFailures int               `yaml:"max_consecutive_failures"`
	Retry                  RetryConfig       `yaml:"retry"`
}

// RetryConfig defines retry behavior against a single mirror.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
	Statuses   []int         `yaml:"statuses"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Workers:                8,
		Timeout:                60 * time.Second,
		SkipScopes:             []string{"system"},
		Manifest:               true,
		MaxConsecutiveFailures: 10,
		Retry: RetryConfig{
			Attempts:   3,
			Backoff:    500 * time.Millisecond,
			MaxBackoff: 30 * time.Second,
			Statuses:   []int{408, 429, 500, 502, 503, 504},
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	Mirrors                []string          `yaml:"mirrors"`
	Output                 string            `yaml:"output"`
	Locations              []string          `yaml:"locations"`
	Workers                int               `yaml:"workers"`
	Timeout                string            `yaml:"timeout"`
	Properties             map[string]string `yaml:"properties"`
	IncludeSelf            bool              `yaml:"include_self"`
	IncludeParent          bool              `yaml:"include_parent"`
	SkipScopes             []string          `yaml:"skip_scopes"`
	Manifest               *bool             `yaml:"manifest"`
	Progress               bool              `yaml:"progress"`
	MetricsFile            string            `yaml:"metrics_file"`
	RateLimit              float64           `yaml:"rate_limit"`
	MaxConsecutiveFailures int               `yaml:"max_consecutive_failures"`
	Retry                  yamlRetryConfig   `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
	Statuses   []int  `yaml:"statuses"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	file := Config{
		Mirrors:                yc.Mirrors,
		Output:                 yc.Output,
		Locations:              yc.Locations,
		Workers:                yc.Workers,
		Properties:             yc.Properties,
		SkipScopes:             yc.SkipScopes,
		MetricsFile:            yc.MetricsFile,
		RateLimit:              yc.RateLimit,
		MaxConsecutiveFailures: yc.MaxConsecutiveFailures,
		Retry: RetryConfig{
			Attempts: yc.Retry.Attempts,
			Statuses: yc.Retry.Statuses,
		},
	}
	if file.Timeout, err = parseDuration("timeout", yc.Timeout); err != nil {
		return Config{}, err
	}
	if file.Retry.Backoff, err = parseDuration("retry.backoff", yc.Retry.Backoff); err != nil {
		return Config{}, err
	}
	if file.Retry.MaxBackoff, err = parseDuration("retry.max_backoff", yc.Retry.MaxBackoff); err != nil {
		return Config{}, err
	}

	cfg, err := Default().Merge(file)
	if err != nil {
		return Config{}, err
	}
	// Booleans are taken as written; manifest defaults to on.
	cfg.IncludeSelf = yc.IncludeSelf
	cfg.IncludeParent = yc.IncludeParent
	cfg.Progress = yc.Progress
	if yc.Manifest != nil {
		cfg.Manifest = *yc.Manifest
	}
	// An explicit empty list clears the default.
	if yc.SkipScopes != nil && len(yc.SkipScopes) == 0 {
		cfg.SkipScopes = []string{}
	}
	if yc.Retry.Statuses != nil && len(yc.Retry.Statuses) == 0 {
		cfg.Retry.Statuses = []int{}
	}
	return cfg, nil
}

func parseDuration(field, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the OFFLINER_ prefix; list values are
// comma-separated and properties are written as name=value pairs.
func (c *Config) LoadFromEnv() error {
	var result *multierror.Error
	env := func(name string) (string, bool) {
		v := os.Getenv(EnvPrefix + name)
		return v, v != ""
	}
	intVar := func(name string, dst *int) {
		if v, ok := env(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	durationVar := func(name string, dst *time.Duration) {
		if v, ok := env(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolVar := func(name string, dst *bool) {
		if v, ok := env(name); ok {
			*dst = v == "true" || v == "1"
		}
	}

	if v, ok := env("MIRRORS"); ok {
		c.Mirrors = splitList(v)
	}
	if v, ok := env("OUTPUT"); ok {
		c.Output = v
	}
	if v, ok := env("LOCATIONS"); ok {
		c.Locations = splitList(v)
	}
	intVar("WORKERS", &c.Workers)
	durationVar("TIMEOUT", &c.Timeout)
	if v, ok := env("PROPERTIES"); ok {
		props, err := ParseProperties(splitList(v))
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("parse %sPROPERTIES: %w", EnvPrefix, err))
		} else {
			if c.Properties == nil {
				c.Properties = make(map[string]string, len(props))
			}
			for k, v := range props {
				c.Properties[k] = v
			}
		}
	}
	boolVar("INCLUDE_SELF", &c.IncludeSelf)
	boolVar("INCLUDE_PARENT", &c.IncludeParent)
	if v, ok := env("SKIP_SCOPES"); ok {
		c.SkipScopes = splitList(v)
	}
	boolVar("MANIFEST", &c.Manifest)
	boolVar("PROGRESS", &c.Progress)
	if v, ok := env("METRICS_FILE"); ok {
		c.MetricsFile = v
	}
	if v, ok := env("RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("parse %sRATE_LIMIT: %w", EnvPrefix, err))
		} else {
			c.RateLimit = f
		}
	}
	intVar("MAX_CONSECUTIVE_FAILURES", &c.MaxConsecutiveFailures)
	intVar("RETRY_ATTEMPTS", &c.Retry.Attempts)
	durationVar("RETRY_BACKOFF", &c.Retry.Backoff)
	durationVar("RETRY_MAX_BACKOFF", &c.Retry.MaxBackoff)
	if v, ok := env("RETRY_STATUSES"); ok {
		var statuses []int
		for _, s := range splitList(v) {
			n, err := strconv.Atoi(s)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("parse %sRETRY_STATUSES: %w", EnvPrefix, err))
				statuses = nil
				break
			}
			statuses = append(statuses, n)
		}
		if statuses != nil {
			c.Retry.Statuses = statuses
		}
	}

	return result.ErrorOrNil()
}

// ParseProperties parses name=value pairs.
func ParseProperties(pairs []string) (map[string]string, error) {
	props := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid property %q: expected name=value", p)
		}
		props[name] = value
	}
	return props, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if len(c.Mirrors) == 0 {
		result = multierror.Append(result, errors.New("config: at least one mirror is required"))
	}
	for _, m := range c.Mirrors {
		if err := validateMirror(m); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.Output == "" {
		result = multierror.Append(result, errors.New("config: output is required"))
	}
	if len(c.Locations) == 0 {
		result = multierror.Append(result, errors.New("config: at least one location is required"))
	}
	if c.Workers <= 0 {
		result = multierror.Append(result, errors.New("config: workers must be positive"))
	}
	if c.Timeout < 0 {
		result = multierror.Append(result, errors.New("config: timeout must not be negative"))
	}
	if c.RateLimit < 0 {
		result = multierror.Append(result, errors.New("config: rate_limit must not be negative"))
	}
	if c.Retry.Attempts <= 0 {
		result = multierror.Append(result, errors.New("config: retry.attempts must be positive"))
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		result = multierror.Append(result, errors.New("config: retry backoff must not be negative"))
	}
	for _, s := range c.Retry.Statuses {
		if s < 100 || s > 599 {
			result = multierror.Append(result, fmt.Errorf("config: invalid retry status %d", s))
		}
	}

	return result.ErrorOrNil()
}

func validateMirror(m string) error {
	u, err := url.Parse(m)
	if err != nil {
		return fmt.Errorf("config: invalid mirror %q: %w", m, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: invalid mirror %q: scheme must be http or https", m)
	}
	if u.Host == "" {
		return fmt.Errorf("config: invalid mirror %q: missing host", m)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, including empty slices; properties
// are merged by name.
func (c Config) Merge(override Config) (Config, error) {
	merged := c
	merged.Mirrors = slices.Clone(c.Mirrors)
	merged.Locations = slices.Clone(c.Locations)
	merged.SkipScopes = slices.Clone(c.SkipScopes)
	merged.Retry.Statuses = slices.Clone(c.Retry.Statuses)
	if c.Properties != nil {
		merged.Properties = make(map[string]string, len(c.Properties))
		for k, v := range c.Properties {
			merged.Properties[k] = v
		}
	}

	if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("merge config: %w", err)
	}
	return merged, nil
}
