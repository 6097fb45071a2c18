package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/toolrack/toolrack/internal/logger"
	"github.com/toolrack/toolrack/internal/search"
)

var log = logger.ForComponent("config")

// Load reads a YAML config file and overlays it on Default. The caller is
// expected to run Validate on the result before using it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of Default. Unknown keys are
// rejected so typos surface instead of silently keeping defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file means all defaults.
			return cfg, nil
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and returns all problems joined together.
// Conditions that are suspicious but workable are logged, not returned.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Name == "" {
		errs = append(errs, errors.New("server.name is required"))
	}
	if c.Server.ExecTimeout <= 0 {
		errs = append(errs, errors.New("server.exec_timeout must be positive"))
	}

	if !c.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if !c.Log.Format.IsValid() {
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}

	if c.Transports.HTTP.Enabled && c.Transports.HTTP.Addr == "" {
		errs = append(errs, errors.New("transports.http.addr is required when http is enabled"))
	}
	if c.Transports.SSE.Enabled {
		if c.Transports.SSE.Addr == "" {
			errs = append(errs, errors.New("transports.sse.addr is required when sse is enabled"))
		}
		if c.Transports.SSE.MaxSessions <= 0 {
			errs = append(errs, errors.New("transports.sse.max_sessions must be positive"))
		}
	}
	if c.Transports.Socket.Enabled && c.Transports.Socket.Path == "" {
		errs = append(errs, errors.New("transports.socket.path is required when socket is enabled"))
	}
	if !c.Transports.Stdio && !c.Transports.HTTP.Enabled && !c.Transports.SSE.Enabled && !c.Transports.Socket.Enabled {
		log.Warn("no transports enabled, the server will sit idle")
	}

	if c.Reliability.DecayBase <= 0 || c.Reliability.DecayBase > 1 {
		errs = append(errs, fmt.Errorf("reliability.decay_base %v must be in (0, 1]", c.Reliability.DecayBase))
	}
	if c.Reliability.DecayUnit <= 0 {
		errs = append(errs, errors.New("reliability.decay_unit must be positive"))
	}
	if c.Reliability.MaxRecent <= 0 {
		errs = append(errs, errors.New("reliability.max_recent must be positive"))
	}
	if !c.Reliability.Store.IsValid() {
		errs = append(errs, fmt.Errorf("reliability.store %q is not one of file, sqlite", c.Reliability.Store))
	} else if c.Reliability.Store != StoreNone && c.Reliability.Path == "" {
		errs = append(errs, fmt.Errorf("reliability.path is required for store %q", c.Reliability.Store))
	}

	switch c.Search.Strategy {
	case search.StrategyRuleBased, search.StrategyHybrid:
	default:
		errs = append(errs, fmt.Errorf("search.strategy %q is not one of %s, %s",
			c.Search.Strategy, search.StrategyRuleBased, search.StrategyHybrid))
	}
	if c.Search.FailureWeight < 0 {
		errs = append(errs, errors.New("search.failure_weight must not be negative"))
	}
	if c.Search.TopK <= 0 {
		errs = append(errs, errors.New("search.top_k must be positive"))
	}

	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("retry.attempts must be at least 1"))
	}
	if c.Retry.InitialBackoff <= 0 {
		errs = append(errs, errors.New("retry.initial_backoff must be positive"))
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		errs = append(errs, errors.New("retry.max_backoff must not be below retry.initial_backoff"))
	}

	if c.State.MaxUsers <= 0 {
		errs = append(errs, errors.New("state.max_users must be positive"))
	}

	for _, pattern := range c.Expose {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("expose pattern %q is malformed", pattern))
		}
	}

	if c.Watch.Debounce <= 0 {
		errs = append(errs, errors.New("watch.debounce must be positive"))
	}
	for _, pattern := range c.Watch.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("watch.ignore pattern %q is malformed", pattern))
		}
	}

	return errors.Join(errs...)
}
