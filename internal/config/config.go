// Package config provides configuration loading and validation.
package config

// Config holds the service configuration.
type Config struct {
	// ListenAddr is the address to listen on.
	// Example: ":8080"
	ListenAddr string `toml:"listen_addr"`

	// Panels are the two provisioning backends mirrored by this service.
	// Exactly two entries must be configured; they are peers of each other.
	Panels []PanelConfig `toml:"panels"`

	// Store holds persistence settings.
	Store StoreConfig `toml:"store"`

	// Cache holds cache settings.
	Cache CacheConfig `toml:"cache"`

	// Sync holds mirroring and retry settings.
	Sync SyncConfig `toml:"sync"`

	// Resolver holds subscription-link probing settings.
	Resolver ResolverConfig `toml:"resolver"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// PanelConfig describes one panel endpoint.
type PanelConfig struct {
	// Name is a stable identifier for the panel ("panel1", "panel2").
	Name string `toml:"name"`

	// BaseURL is the panel API origin, e.g. "https://panel1.example.com".
	BaseURL string `toml:"base_url"`

	// Username and Password are the panel admin credentials posted to the
	// token endpoint.
	Username string `toml:"username"`
	Password string `toml:"password"`

	// URLMarker is a substring unique to this panel's subscription URLs.
	// Webhook payloads carry no explicit panel identity, so the origin panel
	// is recognized by matching this marker against the embedded subscription
	// URL. Compatibility shim until panels can send an identity.
	URLMarker string `toml:"url_marker"`

	// DefaultInbounds are the inbound tags assigned when creating an
	// account without explicit inbounds.
	DefaultInbounds []string `toml:"default_inbounds"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is the store driver name: "sqlite" (default).
	Driver string `toml:"driver"`

	// DataDir is the directory for data files (sqlite db).
	DataDir string `toml:"data_dir"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default) or "valkey".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.valkey] addr = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// SyncConfig holds mirroring and retry settings.
type SyncConfig struct {
	// RetryBaseDelayMS is the base delay for linear retry backoff.
	// Attempt n waits n * base. Default: 500.
	RetryBaseDelayMS int `toml:"retry_base_delay_ms"`

	// MaxAttempts is the attempt budget for panel requests and token
	// acquisition. Default: 5.
	MaxAttempts int `toml:"max_attempts"`

	// FallbackSignatures are body substrings that mark a 404 as an
	// edge-proxy fallback page rather than a genuine not-found. Such
	// responses are retried.
	FallbackSignatures []string `toml:"fallback_signatures"`

	// ReconcileIntervalSeconds is how often the retry queue is drained.
	// Default: 300.
	ReconcileIntervalSeconds int `toml:"reconcile_interval_seconds"`

	// ReconcileBatchSize bounds how many queued entries one reconcile pass
	// replays. Default: 50.
	ReconcileBatchSize int `toml:"reconcile_batch_size"`
}

// ResolverConfig holds subscription-link probing settings.
type ResolverConfig struct {
	// ProbeTimeoutMS is the total timeout for one probe GET. Default: 3000.
	ProbeTimeoutMS int `toml:"probe_timeout_ms"`

	// ProbeAttempts is the per-candidate attempt budget. Default: 3.
	ProbeAttempts int `toml:"probe_attempts"`

	// ProbeDelayMS is the base delay for probe retry backoff.
	// Retry n waits n * base. Default: 500.
	ProbeDelayMS int `toml:"probe_delay_ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level"`
}

// Redacted returns a copy of the config with credentials masked,
// safe for logging.
func (c *Config) Redacted() *Config {
	out := *c
	out.Panels = make([]PanelConfig, len(c.Panels))
	copy(out.Panels, c.Panels)
	for i := range out.Panels {
		if out.Panels[i].Password != "" {
			out.Panels[i].Password = "***"
		}
	}
	if out.Cache.Drivers != nil {
		drivers := make(map[string]any, len(out.Cache.Drivers))
		for name, dc := range out.Cache.Drivers {
			if m, ok := dc.(map[string]any); ok {
				mc := make(map[string]any, len(m))
				for k, v := range m {
					if k == "password" {
						v = "***"
					}
					mc[k] = v
				}
				drivers[name] = mc
				continue
			}
			drivers[name] = dc
		}
		out.Cache.Drivers = drivers
	}
	return &out
}
