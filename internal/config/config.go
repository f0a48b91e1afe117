// Package config loads guardrev settings from defaults, an optional TOML file,
// GUARDREV_* environment variables and command-line overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides, e.g. GUARDREV_API_URL.
const EnvPrefix = "GUARDREV_"

// Config is the resolved configuration.
type Config struct {
	APIURL        string        `koanf:"api_url"`
	Policies      []string      `koanf:"policies"`
	FallbackDelay time.Duration `koanf:"fallback_delay"`
	Timeout       time.Duration `koanf:"timeout"`

	Log struct {
		File  string `koanf:"file"`
		Level string `koanf:"level"`
	} `koanf:"log"`

	Serve struct {
		Addr string `koanf:"addr"`
		Port int    `koanf:"port"`
	} `koanf:"serve"`

	// Dir holds the token and the default log file.
	Dir string `koanf:"-"`
}

// Addr is the listen address of the session bridge.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Serve.Addr, c.Serve.Port)
}

func defaults(dir string) map[string]any {
	return map[string]any{
		"api_url":        "http://localhost:8000",
		"policies":       []string{"no_secrets", "nested_loops", "blocking_calls", "enforce_logging"},
		"fallback_delay": "1.5s",
		"timeout":        "30s",
		"log.file":       filepath.Join(dir, "guardrev.log"),
		"log.level":      "info",
		"serve.addr":     "127.0.0.1",
		"serve.port":     7788,
	}
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(base, "guardrev"), nil
}

// Load resolves the configuration. path may be empty, in which case config.toml in
// dir is used when it exists. overrides are flat dotted keys that win over
// everything else; a nil map is fine.
func Load(dir, path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(dir), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, "config.toml")
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Dir = dir
	cfg.Policies = splitPolicies(cfg.Policies)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps GUARDREV_LOG_LEVEL to log.level and GUARDREV_API_URL to api_url.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range []string{"log_", "serve_"} {
		if strings.HasPrefix(key, section) {
			return strings.Replace(key, "_", ".", 1)
		}
	}
	return key
}

// splitPolicies accepts both a TOML array and a comma-separated env value.
func splitPolicies(in []string) []string {
	var out []string
	for _, p := range in {
		for _, part := range strings.Split(p, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("api_url must be an http(s) URL, got %q", c.APIURL)
	}
	if c.FallbackDelay < 0 {
		return fmt.Errorf("fallback_delay must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve.port out of range: %d", c.Serve.Port)
	}
	return nil
}

// Sample is written by `guardrev config init`.
const Sample = `# guardrev configuration

api_url = "http://localhost:8000"
policies = ["no_secrets", "nested_loops", "blocking_calls", "enforce_logging"]
fallback_delay = "1.5s"
timeout = "30s"

[log]
level = "info"

[serve]
addr = "127.0.0.1"
port = 7788
`

// Init writes the sample configuration to path unless a file is already there.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return os.WriteFile(path, []byte(Sample), 0o644)
}
