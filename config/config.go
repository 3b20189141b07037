package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/modules/api"
)

// Config collects all configuration options.
type Config struct {
	BaseURL   string        `yaml:"baseURL"`
	UserAgent string        `yaml:"userAgent"`
	Timeout   time.Duration `yaml:"timeout"`
	Refresh   Refresh       `yaml:"refresh"`
	Store     Store         `yaml:"store"`
}

// Refresh tunes the token refresh coordinator.
type Refresh struct {
	// Timeout bounds the refresh call.
	Timeout time.Duration `yaml:"timeout"`
	// WaitTimeout bounds how long a queued request waits for a refresh.
	WaitTimeout time.Duration `yaml:"waitTimeout"`
}

// Default returns a configuration talking to a local API and keeping the
// session in memory.
func Default() Config {
	return Config{
		BaseURL:   "http://localhost:3333",
		UserAgent: "gymapi",
		Timeout:   common.DefaultTimeout,
		Refresh: Refresh{
			Timeout:     api.DefaultRefreshTimeout,
			WaitTimeout: api.DefaultWaitTimeout,
		},
		Store: Store{
			Type:   "memory",
			Config: memoryStore{},
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL: %q", c.BaseURL)
	}

	if c.Timeout < 0 || c.Refresh.Timeout < 0 || c.Refresh.WaitTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if c.Store.Type == "" {
		return fmt.Errorf("store type is required")
	}
	if c.Store.Config == nil {
		return fmt.Errorf("store config is required")
	}

	return c.Store.Config.Validate()
}

// rawConfig is a general struct to be used by other config structs to unmarshal yaml config first.
type rawConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}
