package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but the file is missing or invalid, loading fails.
	ConfigPath string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr   *string
	StoreDataDir *string
	CacheDriver  *string
	LoggingLevel *string
}

// fileConfig mirrors Config but with pointer sections to detect presence.
type fileConfig struct {
	ListenAddr string        `toml:"listen_addr"`
	Panels     []PanelConfig `toml:"panels"`

	Store    *StoreConfig    `toml:"store"`
	Cache    *cacheConfig    `toml:"cache"`
	Sync     *syncConfig     `toml:"sync"`
	Resolver *resolverConfig `toml:"resolver"`
	Logging  *LoggingConfig  `toml:"logging"`
}

// cacheConfig holds cache settings from TOML.
type cacheConfig struct {
	Driver  string         `toml:"driver"`
	Drivers map[string]any `toml:"drivers"`
}

// syncConfig holds mirroring settings from TOML.
type syncConfig struct {
	RetryBaseDelayMS         int      `toml:"retry_base_delay_ms"`
	MaxAttempts              int      `toml:"max_attempts"`
	FallbackSignatures       []string `toml:"fallback_signatures"`
	ReconcileIntervalSeconds int      `toml:"reconcile_interval_seconds"`
	ReconcileBatchSize       int      `toml:"reconcile_batch_size"`
}

// resolverConfig holds probing settings from TOML.
type resolverConfig struct {
	ProbeTimeoutMS int `toml:"probe_timeout_ms"`
	ProbeAttempts  int `toml:"probe_attempts"`
	ProbeDelayMS   int `toml:"probe_delay_ms"`
}

// Default returns the base configuration before any file or flag overlay.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".panelsync",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Sync: SyncConfig{
			RetryBaseDelayMS:         500,
			MaxAttempts:              5,
			FallbackSignatures:       []string{"default backend - 404"},
			ReconcileIntervalSeconds: 300,
			ReconcileBatchSize:       50,
		},
		Resolver: ResolverConfig{
			ProbeTimeoutMS: 3000,
			ProbeAttempts:  3,
			ProbeDelayMS:   500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration with the following precedence:
//  1. Start from defaults
//  2. Overlay TOML config file values
//  3. Overlay CLI flags
//  4. Validate
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error (fail fast). Unknown TOML keys produce a
// warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Default()

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}

		var fc fileConfig
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}

		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if len(fc.Panels) > 0 {
		cfg.Panels = fc.Panels
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Sync != nil {
		if fc.Sync.RetryBaseDelayMS > 0 {
			cfg.Sync.RetryBaseDelayMS = fc.Sync.RetryBaseDelayMS
		}
		if fc.Sync.MaxAttempts > 0 {
			cfg.Sync.MaxAttempts = fc.Sync.MaxAttempts
		}
		if len(fc.Sync.FallbackSignatures) > 0 {
			cfg.Sync.FallbackSignatures = fc.Sync.FallbackSignatures
		}
		if fc.Sync.ReconcileIntervalSeconds > 0 {
			cfg.Sync.ReconcileIntervalSeconds = fc.Sync.ReconcileIntervalSeconds
		}
		if fc.Sync.ReconcileBatchSize > 0 {
			cfg.Sync.ReconcileBatchSize = fc.Sync.ReconcileBatchSize
		}
	}

	if fc.Resolver != nil {
		if fc.Resolver.ProbeTimeoutMS > 0 {
			cfg.Resolver.ProbeTimeoutMS = fc.Resolver.ProbeTimeoutMS
		}
		if fc.Resolver.ProbeAttempts > 0 {
			cfg.Resolver.ProbeAttempts = fc.Resolver.ProbeAttempts
		}
		if fc.Resolver.ProbeDelayMS > 0 {
			cfg.Resolver.ProbeDelayMS = fc.Resolver.ProbeDelayMS
		}
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.StoreDataDir != nil && *f.StoreDataDir != "" {
		cfg.Store.DataDir = *f.StoreDataDir
	}
	if f.CacheDriver != nil && *f.CacheDriver != "" {
		cfg.Cache.Driver = *f.CacheDriver
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
}

// validate checks the effective configuration and returns an error with a
// clear message for the first problem found.
func validate(cfg *Config) error {
	if len(cfg.Panels) != 2 {
		return fmt.Errorf("exactly two [[panels]] entries are required, got %d", len(cfg.Panels))
	}

	seenNames := make(map[string]bool, 2)
	for i, p := range cfg.Panels {
		if p.Name == "" {
			return fmt.Errorf("panels[%d]: name is required", i)
		}
		if seenNames[p.Name] {
			return fmt.Errorf("panels[%d]: duplicate panel name %q", i, p.Name)
		}
		seenNames[p.Name] = true

		if err := validateBaseURL(p.BaseURL); err != nil {
			return fmt.Errorf("panels[%d] (%s): %w", i, p.Name, err)
		}
		if p.Username == "" || p.Password == "" {
			return fmt.Errorf("panels[%d] (%s): username and password are required", i, p.Name)
		}
		if p.URLMarker == "" {
			return fmt.Errorf("panels[%d] (%s): url_marker is required for origin detection", i, p.Name)
		}
	}
	if cfg.Panels[0].URLMarker == cfg.Panels[1].URLMarker {
		return fmt.Errorf("panels must have distinct url_marker values")
	}

	switch cfg.Store.Driver {
	case "sqlite":
		// valid
	default:
		return fmt.Errorf("invalid store.driver %q: must be sqlite", cfg.Store.Driver)
	}

	switch cfg.Cache.Driver {
	case "", "memory", "valkey":
		// valid (empty defaults to memory)
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory, valkey", cfg.Cache.Driver)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of debug, info, warn, error", cfg.Logging.Level)
	}

	return nil
}

// validateBaseURL checks that a panel base URL is an absolute http(s) URL
// without query, fragment, or trailing slash noise.
func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("base_url is required")
	}
	if raw != strings.TrimSpace(raw) {
		return fmt.Errorf("invalid base_url %q: must not contain leading or trailing whitespace", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", raw, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("invalid base_url %q: must be an absolute URL with http or https scheme", raw)
	}
	switch u.Scheme {
	case "http", "https":
		// valid
	default:
		return fmt.Errorf("invalid base_url %q: scheme must be http or https, got %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base_url %q: must include a host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid base_url %q: must not include a query string or fragment", raw)
	}

	return nil
}
