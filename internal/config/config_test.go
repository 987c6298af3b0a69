package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
)

func validConfig() Config {
	cfg := Default()
	cfg.Mirrors = []string{"https://repo.example.com/maven2"}
	cfg.Output = "repository"
	cfg.Locations = []string{"pom.xml"}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Workers != 8 {
		t.Errorf("expected default workers 8, got %d", cfg.Workers)
	}
	if cfg.Timeout != time.Minute {
		t.Errorf("expected default timeout 1m, got %v", cfg.Timeout)
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("expected default retry attempts 3, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 500*time.Millisecond {
		t.Errorf("expected default retry backoff 500ms, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 30*time.Second {
		t.Errorf("expected default retry max backoff 30s, got %v", cfg.Retry.MaxBackoff)
	}
	if diff := cmp.Diff([]string{"system"}, cfg.SkipScopes); diff != "" {
		t.Errorf("skip scopes (-want +got):\n%s", diff)
	}
	if !cfg.Manifest {
		t.Error("expected manifest enabled by default")
	}
	if cfg.IncludeSelf || cfg.IncludeParent {
		t.Error("expected include_self and include_parent disabled by default")
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
mirrors:
  - https://repo1.example.com/maven2
  - https://repo2.example.com/maven
output: ./out
locations:
  - pom.xml
  - extra.txt
workers: 32
timeout: 15s
properties:
  version.org.dep: 1.2.3
include_self: true
progress: true
manifest: false
rate_limit: 20
retry:
  attempts: 10
  backoff: 2s
  max_backoff: 60s
  statuses: [503]
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	want := Config{
		Mirrors:                []string{"https://repo1.example.com/maven2", "https://repo2.example.com/maven"},
		Output:                 "./out",
		Locations:              []string{"pom.xml", "extra.txt"},
		Workers:                32,
		Timeout:                15 * time.Second,
		Properties:             map[string]string{"version.org.dep": "1.2.3"},
		IncludeSelf:            true,
		SkipScopes:             []string{"system"},
		Manifest:               false,
		Progress:               true,
		RateLimit:              20,
		MaxConsecutiveFailures: 10,
		Retry: RetryConfig{
			Attempts:   10,
			Backoff:    2 * time.Second,
			MaxBackoff: 60 * time.Second,
			Statuses:   []int{503},
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromYAMLKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: out\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Workers != 8 || !cfg.Manifest || cfg.Retry.Attempts != 3 {
		t.Errorf("defaults not preserved: %+v", cfg)
	}
}

func TestLoadFromYAMLEmptyListsClearDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "skip_scopes: []\nretry:\n  statuses: []\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.SkipScopes == nil || len(cfg.SkipScopes) != 0 {
		t.Errorf("expected empty non-nil skip scopes, got %#v", cfg.SkipScopes)
	}
	if cfg.Retry.Statuses == nil || len(cfg.Retry.Statuses) != 0 {
		t.Errorf("expected empty non-nil retry statuses, got %#v", cfg.Retry.Statuses)
	}

	// Later layers that leave the lists unset keep them empty.
	merged, err := cfg.Merge(Config{Workers: 2})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.SkipScopes == nil || len(merged.SkipScopes) != 0 {
		t.Errorf("Merge lost empty skip scopes: %#v", merged.SkipScopes)
	}
	if merged.Retry.Statuses == nil || len(merged.Retry.Statuses) != 0 {
		t.Errorf("Merge lost empty retry statuses: %#v", merged.Retry.Statuses)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OFFLINER_MIRRORS", "https://a.example.com/m2, https://b.example.com/m2")
	t.Setenv("OFFLINER_OUTPUT", "/tmp/out")
	t.Setenv("OFFLINER_WORKERS", "64")
	t.Setenv("OFFLINER_PROGRESS", "true")
	t.Setenv("OFFLINER_PROPERTIES", "a=1,b=2")
	t.Setenv("OFFLINER_RETRY_ATTEMPTS", "5")
	t.Setenv("OFFLINER_RETRY_BACKOFF", "250ms")
	t.Setenv("OFFLINER_RETRY_MAX_BACKOFF", "10s")
	t.Setenv("OFFLINER_RETRY_STATUSES", "500,503")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if diff := cmp.Diff([]string{"https://a.example.com/m2", "https://b.example.com/m2"}, cfg.Mirrors); diff != "" {
		t.Errorf("mirrors (-want +got):\n%s", diff)
	}
	if cfg.Output != "/tmp/out" {
		t.Errorf("expected output /tmp/out, got %s", cfg.Output)
	}
	if cfg.Workers != 64 {
		t.Errorf("expected workers 64, got %d", cfg.Workers)
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if diff := cmp.Diff(map[string]string{"a": "1", "b": "2"}, cfg.Properties); diff != "" {
		t.Errorf("properties (-want +got):\n%s", diff)
	}
	if cfg.Retry.Attempts != 5 {
		t.Errorf("expected retry attempts 5, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 250*time.Millisecond {
		t.Errorf("expected retry backoff 250ms, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 10*time.Second {
		t.Errorf("expected retry max backoff 10s, got %v", cfg.Retry.MaxBackoff)
	}
	if diff := cmp.Diff([]int{500, 503}, cfg.Retry.Statuses); diff != "" {
		t.Errorf("retry statuses (-want +got):\n%s", diff)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("OFFLINER_WORKERS", "many")
	t.Setenv("OFFLINER_TIMEOUT", "soon")

	cfg := Default()
	err := cfg.LoadFromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Errorf("expected two errors, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "no mirrors",
			mutate:  func(c *Config) { c.Mirrors = nil },
			wantErr: "at least one mirror",
		},
		{
			name:    "unsupported mirror scheme",
			mutate:  func(c *Config) { c.Mirrors = []string{"ftp://repo.example.com"} },
			wantErr: "scheme must be http or https",
		},
		{
			name:    "unparsable mirror",
			mutate:  func(c *Config) { c.Mirrors = []string{"http://[::1"} },
			wantErr: "invalid mirror",
		},
		{
			name:    "mirror without host",
			mutate:  func(c *Config) { c.Mirrors = []string{"https:///maven2"} },
			wantErr: "missing host",
		},
		{
			name:    "missing output",
			mutate:  func(c *Config) { c.Output = "" },
			wantErr: "output is required",
		},
		{
			name:    "missing locations",
			mutate:  func(c *Config) { c.Locations = nil },
			wantErr: "at least one location",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: "workers must be positive",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Retry.Attempts = 0 },
			wantErr: "retry.attempts must be positive",
		},
		{
			name:    "bad retry status",
			mutate:  func(c *Config) { c.Retry.Statuses = []int{42} },
			wantErr: "invalid retry status 42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	merr, ok := err.(*multierror.Error)
	if !ok {
		t.Fatalf("expected *multierror.Error, got %T", err)
	}
	// mirrors, output, locations, workers, retry.attempts
	if len(merr.Errors) != 5 {
		t.Errorf("expected 5 errors, got %d: %v", len(merr.Errors), err)
	}
}

func TestMerge(t *testing.T) {
	base := validConfig()
	base.Properties = map[string]string{"a": "1", "b": "2"}

	override := Config{
		Workers:     32,
		IncludeSelf: true,
		Properties:  map[string]string{"b": "3"},
	}

	merged, err := base.Merge(override)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if diff := cmp.Diff(base.Mirrors, merged.Mirrors); diff != "" {
		t.Errorf("mirrors not preserved (-want +got):\n%s", diff)
	}
	if merged.Output != "repository" {
		t.Errorf("expected Output preserved, got %s", merged.Output)
	}
	if merged.Retry.Attempts != 3 {
		t.Errorf("expected retry attempts preserved, got %d", merged.Retry.Attempts)
	}
	if merged.Workers != 32 {
		t.Errorf("expected Workers overridden to 32, got %d", merged.Workers)
	}
	if !merged.IncludeSelf {
		t.Error("expected IncludeSelf overridden")
	}
	if diff := cmp.Diff(map[string]string{"a": "1", "b": "3"}, merged.Properties); diff != "" {
		t.Errorf("properties (-want +got):\n%s", diff)
	}
	if base.Properties["b"] != "2" {
		t.Error("Merge modified the receiver's properties")
	}
}

func TestParseProperties(t *testing.T) {
	props, err := ParseProperties([]string{"version.a=1.0", "empty="})
	if err != nil {
		t.Fatalf("ParseProperties: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"version.a": "1.0", "empty": ""}, props); diff != "" {
		t.Errorf("properties (-want +got):\n%s", diff)
	}

	if _, err := ParseProperties([]string{"novalue"}); err == nil {
		t.Error("expected error for pair without '='")
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	tests := map[string]string{
		"syntax":   "invalid: [yaml: content",
		"duration": "timeout: forever\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
				t.Fatalf("write config file: %v", err)
			}
			if _, err := LoadFromFile(configPath); err == nil {
				t.Error("expected error")
			}
		})
	}
}
