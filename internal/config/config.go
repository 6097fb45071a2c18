// Package config provides the configuration schema, loader, and hot-reload
// watcher for the toolrack server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/toolrack/toolrack/internal/catalog"
	"github.com/toolrack/toolrack/internal/logger"
	"github.com/toolrack/toolrack/internal/reliability"
	"github.com/toolrack/toolrack/internal/search"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler flavor.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == FormatText || f == FormatJSON
}

// StoreKind selects how reliability events are persisted.
type StoreKind string

const (
	StoreNone   StoreKind = ""
	StoreFile   StoreKind = "file"
	StoreSQLite StoreKind = "sqlite"
)

// IsValid reports whether k is a recognised store kind.
func (k StoreKind) IsValid() bool {
	switch k {
	case StoreNone, StoreFile, StoreSQLite:
		return true
	}
	return false
}

// Duration is a time.Duration that decodes from YAML strings like "300ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration. It is typically built with Default and
// overlaid from a YAML file via Load.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Transports  TransportsConfig  `yaml:"transports"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Search      SearchConfig      `yaml:"search"`
	Retry       RetryConfig       `yaml:"retry"`
	State       StateConfig       `yaml:"state"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// Expose limits which tools listings show, as glob patterns over tool
	// names. Empty exposes everything.
	Expose []string `yaml:"expose"`

	Watch WatchConfig `yaml:"watch"`
}

// ServerConfig holds the identity the server reports and per-call limits.
type ServerConfig struct {
	Name string `yaml:"name"`

	// ExecTimeout bounds a single tool invocation.
	ExecTimeout Duration `yaml:"exec_timeout"`
}

// LogConfig maps onto the logger package.
type LogConfig struct {
	Level     LogLevel  `yaml:"level"`
	Format    LogFormat `yaml:"format"`
	AddSource bool      `yaml:"add_source"`
}

// TransportsConfig switches the serving surfaces on and off.
type TransportsConfig struct {
	Stdio  bool         `yaml:"stdio"`
	HTTP   HTTPConfig   `yaml:"http"`
	SSE    SSEConfig    `yaml:"sse"`
	Socket SocketConfig `yaml:"socket"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type SSEConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`

	// MaxSessions bounds concurrently open event streams; the least
	// recently used session is dropped past it.
	MaxSessions int `yaml:"max_sessions"`
}

type SocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ReliabilityConfig tunes failure scoring and event persistence.
type ReliabilityConfig struct {
	DecayBase float64   `yaml:"decay_base"`
	DecayUnit Duration  `yaml:"decay_unit"`
	MaxRecent int       `yaml:"max_recent"`
	Store     StoreKind `yaml:"store"`
	Path      string    `yaml:"path"`
}

// SearchConfig tunes ranking defaults. Strategy names match the search
// package ("rule-based", "hybrid").
type SearchConfig struct {
	Strategy      string  `yaml:"strategy"`
	FailureWeight float64 `yaml:"failure_weight"`
	TopK          int     `yaml:"top_k"`
	NameBoost     float64 `yaml:"name_boost"`
	TagsBoost     float64 `yaml:"tags_boost"`
}

// RetryConfig is the HTTP invoke retry policy.
type RetryConfig struct {
	Attempts       int      `yaml:"attempts"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
}

type StateConfig struct {
	MaxUsers int `yaml:"max_users"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// WatchConfig tunes config hot reload.
type WatchConfig struct {
	Debounce Duration `yaml:"debounce"`

	// Ignore skips watcher noise, as glob patterns over file paths.
	Ignore []string `yaml:"ignore"`
}

// Default returns the full configuration with every knob at its shipped
// value. Loading a file overlays onto this, so partial files are fine.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "toolrack",
			ExecTimeout: Duration(4 * time.Minute),
		},
		Log: LogConfig{Level: LogInfo, Format: FormatText},
		Transports: TransportsConfig{
			Stdio:  true,
			HTTP:   HTTPConfig{Addr: "127.0.0.1:8791"},
			SSE:    SSEConfig{Addr: "127.0.0.1:8792", MaxSessions: 256},
			Socket: SocketConfig{Path: DefaultSocketPath()},
		},
		Reliability: ReliabilityConfig{
			DecayBase: 0.9,
			DecayUnit: Duration(time.Second),
			MaxRecent: 20,
		},
		Search: SearchConfig{
			Strategy:      search.StrategyRuleBased,
			FailureWeight: 1.0,
			TopK:          10,
			NameBoost:     3,
			TagsBoost:     2,
		},
		Retry: RetryConfig{
			Attempts:       3,
			InitialBackoff: Duration(time.Second),
			MaxBackoff:     Duration(10 * time.Second),
		},
		State:   StateConfig{MaxUsers: 1024},
		Metrics: MetricsConfig{Enabled: true},
		Watch: WatchConfig{
			Debounce: Duration(300 * time.Millisecond),
			Ignore:   []string{"**/*.swp", "**/*.tmp", "**/~*", "**/.#*"},
		},
	}
}

// DataDir is where the server keeps its socket and stores by default.
func DataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".toolrack")
}

// DefaultSocketPath returns the daemon socket location.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), "daemon.sock")
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o700)
}

// LoggerConfig maps the log section onto the logger package.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:     string(c.Log.Level),
		Format:    string(c.Log.Format),
		AddSource: c.Log.AddSource,
	}
}

// ReliabilityParams maps the reliability section onto scoring parameters.
func (c *Config) ReliabilityParams() reliability.Params {
	return reliability.Params{
		DecayBase: c.Reliability.DecayBase,
		DecayUnit: c.Reliability.DecayUnit.Std(),
		MaxRecent: c.Reliability.MaxRecent,
	}
}

// RetryPolicy maps the retry section onto the catalog's policy type.
func (c *Config) RetryPolicy() catalog.RetryPolicy {
	return catalog.RetryPolicy{
		Attempts:       c.Retry.Attempts,
		InitialBackoff: c.Retry.InitialBackoff.Std(),
		MaxBackoff:     c.Retry.MaxBackoff.Std(),
	}
}

// SearchFacadeConfig maps the search section onto facade tuning.
func (c *Config) SearchFacadeConfig() search.FacadeConfig {
	return search.FacadeConfig{
		FailureWeight:   c.Search.FailureWeight,
		NameBoost:       c.Search.NameBoost,
		TagsBoost:       c.Search.TagsBoost,
		DefaultStrategy: c.Search.Strategy,
		DefaultTopK:     c.Search.TopK,
	}
}
