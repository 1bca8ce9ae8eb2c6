package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
	"unicode"

	"github.com/c360/bridgekit/correlation"
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/pattern"
	"github.com/c360/bridgekit/registry"
	"github.com/c360/bridgekit/significance"
	"github.com/c360/bridgekit/stream"
)

// Config is the complete agent configuration: identity, the NATS substrate,
// and per-subsystem tuning. Zero values fall back to subsystem defaults at
// load time, so a minimal file only names the agent.
type Config struct {
	Version      string              `json:"version,omitempty"`
	Agent        AgentConfig         `json:"agent"`
	NATS         NATSConfig          `json:"nats"`
	Metrics      MetricsConfig       `json:"metrics"`
	Registry     registry.Config     `json:"registry"`
	Stream       stream.Config       `json:"stream"`
	Correlation  correlation.Config  `json:"correlation"`
	Significance significance.Config `json:"significance"`
	Pattern      pattern.Config      `json:"pattern"`
}

// AgentConfig identifies this correlation agent.
type AgentConfig struct {
	// ID names the agent in pattern confirmations and registry ratings.
	ID string `json:"id"`

	// SourceGroup tags streams this agent originates; streams sharing a
	// source group are co-located for routing purposes.
	SourceGroup string `json:"source_group,omitempty"`
}

// NATSConfig defines the connection and bucket layout.
type NATSConfig struct {
	URL            string        `json:"url,omitempty"`
	Name           string        `json:"name,omitempty"`
	MaxReconnects  int           `json:"max_reconnects,omitempty"`
	ReconnectWait  time.Duration `json:"reconnect_wait,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
	RegistryBucket string        `json:"registry_bucket,omitempty"`
	PatternBucket  string        `json:"pattern_bucket,omitempty"`
}

// Options converts to natsclient connection options.
func (n NATSConfig) Options() natsclient.Options {
	opts := natsclient.DefaultOptions()
	if n.URL != "" {
		opts.URL = n.URL
	}
	if n.Name != "" {
		opts.Name = n.Name
	}
	if n.MaxReconnects != 0 {
		opts.MaxReconnects = n.MaxReconnects
	}
	if n.ReconnectWait > 0 {
		opts.ReconnectWait = n.ReconnectWait
	}
	if n.Timeout > 0 {
		opts.Timeout = n.Timeout
	}
	return opts
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr,omitempty"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			RegistryBucket: "bridgekit-registry",
			PatternBucket:  "bridgekit-patterns",
		},
		Metrics:      MetricsConfig{Enabled: true, ListenAddr: ":9341"},
		Registry:     registry.DefaultConfig(),
		Stream:       stream.DefaultConfig(),
		Correlation:  correlation.DefaultConfig(),
		Significance: significance.DefaultConfig(),
		Pattern:      pattern.DefaultConfig(),
	}
}

// Validate checks the full configuration, delegating to each subsystem.
func (c *Config) Validate() error {
	if c.Agent.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"agent.id is required")
	}
	if !isValidSubjectPart(c.Agent.ID) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("agent.id %q is not NATS-subject safe", c.Agent.ID))
	}
	if c.NATS.RegistryBucket == "" || c.NATS.PatternBucket == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"nats bucket names are required")
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	if err := c.Correlation.Validate(); err != nil {
		return fmt.Errorf("correlation: %w", err)
	}
	if err := c.Significance.Validate(); err != nil {
		return fmt.Errorf("significance: %w", err)
	}
	if err := c.Pattern.Validate(); err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	return nil
}

// isValidSubjectPart checks that a string can appear inside a NATS subject:
// alphanumeric plus dash and underscore.
func isValidSubjectPart(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// Clone deep-copies the configuration through JSON.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns an indented JSON rendering.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to a live configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps a configuration for concurrent readers.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SafeConfig", "Update",
			"config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Loader layers JSON configuration files over the defaults, then applies
// environment overrides. Later layers win field-by-field.
type Loader struct {
	layers    []string
	envPrefix string
}

// NewLoader creates a loader with the BRIDGEKIT env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "BRIDGEKIT"}
}

// AddLayer appends a configuration file layer.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// LoadFile loads a single configuration file over the defaults.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges all layers over the defaults, applies environment overrides,
// and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		cfg = mergeFromMap(cfg, raw)
	}

	l.applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	parseDurations(raw)
	return raw, nil
}

// durationFields maps config sections to the keys that accept duration
// strings ("250ms", "1h") in files; they are converted to nanoseconds before
// unmarshaling.
var durationFields = map[string][]string{
	"nats":        {"reconnect_wait", "timeout"},
	"registry":    {"heartbeat_window", "recency_half_life", "rating_interval", "auth_timeout"},
	"correlation": {"local_latency_threshold"},
}

func parseDurations(raw map[string]any) {
	for section, keys := range durationFields {
		sub, ok := raw[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			if s, ok := sub[key].(string); ok {
				if d, err := time.ParseDuration(s); err == nil {
					sub[key] = d.Nanoseconds()
				}
			}
		}
	}
}

// mergeFromMap overlays the fields present in the raw map onto the base
// config, leaving absent fields at their base values.
func mergeFromMap(base *Config, override map[string]any) *Config {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	mergedJSON, err := json.Marshal(deepMerge(baseMap, override))
	if err != nil {
		return base
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}
	return &merged
}

func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMerge(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_AGENT_ID"); val != "" {
		cfg.Agent.ID = val
	}
	if val := os.Getenv(l.envPrefix + "_SOURCE_GROUP"); val != "" {
		cfg.Agent.SourceGroup = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_ADDR"); val != "" {
		cfg.Metrics.ListenAddr = val
	}
}
