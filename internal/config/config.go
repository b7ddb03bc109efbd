// Package config loads the faregate configuration: provider endpoints,
// routing defaults, persistence and API settings. Sources are the
// built-in defaults, then faregate.json (working directory first, then
// ~/.faregate), then environment variables for missing API keys.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wayfarelabs/faregate/internal/logging"
	"github.com/wayfarelabs/faregate/internal/paths"
)

// Config is the merged faregate configuration.
type Config struct {
	// DefaultModel is the routing id served when a request names no
	// model and no tenant/role default applies.
	DefaultModel string `json:"defaultModel"`

	// DefaultProvider names the provider entry that serves catalog
	// providers no entry claims. Empty means unclaimed providers are
	// unavailable.
	DefaultProvider string `json:"defaultProvider,omitempty"`

	Providers map[string]ProviderConfig `json:"providers"`

	API      APIConfig      `json:"api"`
	Usage    UsageConfig    `json:"usage"`
	Settings SettingsConfig `json:"settings"`
	Catalog  CatalogConfig  `json:"catalog"`
	Log      LogConfig      `json:"log"`

	// SkipValidation constructs transports without API keys. Requests
	// still go out and fail with the provider's auth error.
	SkipValidation bool `json:"skipValidation,omitempty"`
}

// ProviderConfig describes one upstream endpoint.
type ProviderConfig struct {
	Driver  string `json:"driver"` // "openai" or "anthropic"
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`

	// Routes lists extra catalog providers this entry serves, e.g. an
	// OpenRouter entry routing "google" and "mistralai" models.
	Routes []string `json:"routes,omitempty"`
}

type APIConfig struct {
	Listen    string `json:"listen"`
	AuthToken string `json:"authToken,omitempty"` // empty disables auth
}

type UsageConfig struct {
	Persist        bool   `json:"persist"`
	ReportSchedule string `json:"reportSchedule,omitempty"` // cron spec; empty disables
}

type SettingsConfig struct {
	Persist         bool `json:"persist"`
	CacheTTLSeconds int  `json:"cacheTtlSeconds"`
}

// CacheTTL returns the settings cache TTL as a duration.
func (s SettingsConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

type CatalogConfig struct {
	// OverridesPath points at an optional YAML catalog overlay. A
	// missing file is fine; a malformed one fails startup.
	OverridesPath string `json:"overridesPath,omitempty"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file,omitempty"`
}

// Default returns the built-in configuration: a single OpenRouter entry
// serving the whole catalog, usage and settings persistence on, daily
// usage report.
func Default() *Config {
	return &Config{
		DefaultModel:    "anthropic/claude-3.5-sonnet",
		DefaultProvider: "openrouter",
		Providers: map[string]ProviderConfig{
			"openrouter": {
				Driver:  "openai",
				BaseURL: "https://openrouter.ai/api/v1",
				Routes:  []string{"google", "meta-llama", "mistralai"},
			},
		},
		API:      APIConfig{Listen: ":8710"},
		Usage:    UsageConfig{Persist: true, ReportSchedule: "@daily"},
		Settings: SettingsConfig{Persist: true, CacheTTLSeconds: 30},
		Catalog:  CatalogConfig{OverridesPath: "~/.faregate/models.yaml"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads faregate.json from the working directory or ~/.faregate
// over the defaults. No config file is a valid state: the defaults plus
// environment API keys make a runnable setup.
func Load() (*Config, error) {
	path, err := paths.ConfigPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		logging.L_info("config: no faregate.json found, using defaults")
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return LoadFrom(path)
}

// LoadFrom reads one explicit config file over the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	// json.Unmarshal merges into a non-nil map, which would leave the
	// built-in openrouter entry alongside the user's. A providers block
	// in the file replaces the default set instead.
	var probe struct {
		DefaultProvider *string                   `json:"defaultProvider"`
		Providers       map[string]ProviderConfig `json:"providers"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.Providers != nil {
		cfg.Providers = probe.Providers
		if probe.DefaultProvider == nil {
			if _, ok := cfg.Providers[cfg.DefaultProvider]; !ok {
				cfg.DefaultProvider = ""
			}
		}
	}

	cfg.applyEnv()
	logging.L_debug("config: loaded", "path", path, "providers", len(cfg.Providers))
	return cfg, nil
}

// applyEnv fills missing provider API keys from the environment.
func (c *Config) applyEnv() {
	for name, p := range c.Providers {
		if p.APIKey != "" {
			continue
		}
		if v := os.Getenv(EnvKeyFor(name, p)); v != "" {
			p.APIKey = v
			c.Providers[name] = p
			logging.L_debug("config: provider API key taken from environment", "provider", name)
		}
	}
}

// EnvKeyFor names the environment variable consulted when a provider
// entry carries no apiKey.
func EnvKeyFor(name string, p ProviderConfig) string {
	if strings.Contains(strings.ToLower(name), "openrouter") ||
		strings.Contains(strings.ToLower(p.BaseURL), "openrouter") {
		return "OPENROUTER_API_KEY"
	}
	if p.Driver == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// Validate fails fast on a config the gateway cannot start with. Called
// once at startup; the request path never revalidates.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: no providers configured")
	}
	for name, p := range c.Providers {
		switch p.Driver {
		case "openai", "anthropic":
		default:
			return fmt.Errorf("config: provider %q: unknown driver %q", name, p.Driver)
		}
		if p.APIKey == "" && !c.SkipValidation {
			return fmt.Errorf("config: provider %q: no API key (set %s or providers.%s.apiKey)",
				name, EnvKeyFor(name, p), name)
		}
	}

	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			return fmt.Errorf("config: defaultProvider %q is not a configured provider", c.DefaultProvider)
		}
	}

	claimed := make(map[string]string)
	for name, p := range c.Providers {
		for _, route := range p.Routes {
			if prev, dup := claimed[route]; dup && prev != name {
				return fmt.Errorf("config: route %q claimed by two providers (%q, %q)", route, prev, name)
			}
			claimed[route] = name
		}
	}

	if c.DefaultModel == "" {
		return fmt.Errorf("config: defaultModel is required")
	}
	if !strings.Contains(c.DefaultModel, "/") {
		return fmt.Errorf("config: defaultModel %q is not a routing id (want provider/model)", c.DefaultModel)
	}

	if c.API.Listen == "" {
		return fmt.Errorf("config: api.listen is required")
	}
	if c.Settings.CacheTTLSeconds < 0 {
		return fmt.Errorf("config: settings.cacheTtlSeconds must not be negative")
	}
	return nil
}

// Save writes the config to path, rotating a backup of the previous
// version first.
func (c *Config) Save(path string) error {
	return BackupAndWriteJSON(path, c, DefaultBackupCount)
}
