// Package config loads termlens configuration from a TOML file and keeps
// the custom pattern section hot-reloadable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/asheshgoplani/termlens/internal/stream"
)

// ConfigFileName is the default config file name inside the termlens dir.
const ConfigFileName = "termlens.toml"

// Config is the top-level TOML document.
type Config struct {
	Analyzer AnalyzerConfig  `toml:"analyzer"`
	Logging  LoggingConfig   `toml:"logging"`
	Database DatabaseConfig  `toml:"database"`
	Web      WebConfig       `toml:"web"`
	Patterns []PatternConfig `toml:"patterns"`
}

// AnalyzerConfig tunes the stream analyzer.
type AnalyzerConfig struct {
	// BufferCapKiB caps the per-terminal output buffer (default 50).
	BufferCapKiB int `toml:"buffer_cap_kib"`

	// ReapIntervalSecs is the stale-state sweep interval (default 30).
	ReapIntervalSecs int `toml:"reap_interval_secs"`

	// ReservedNames extends the built-in reserved tool-name set used by
	// the agent-name heuristic.
	ReservedNames []string `toml:"reserved_names"`
}

// LoggingConfig mirrors logging.Config fields settable from the file.
type LoggingConfig struct {
	Dir    string `toml:"dir"`
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Debug  bool   `toml:"debug"`
}

// DatabaseConfig locates the tool-usage database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// WebConfig configures the WebSocket event feed.
type WebConfig struct {
	// Listen is the feed server address (empty disables the feed).
	Listen string `toml:"listen"`

	// Token, when set, is required from feed clients.
	Token string `toml:"token"`
}

// PatternConfig is one user-registered pattern.
type PatternConfig struct {
	Name  string `toml:"name"`
	Regex string `toml:"regex"`
	Event string `toml:"event"`
	// Match selects "raw" (default) or "stripped" input.
	Match string `toml:"match"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			BufferCapKiB:     50,
			ReapIntervalSecs: 30,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DefaultDir returns the termlens state directory (~/.termlens).
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home dir: %w", err)
	}
	return filepath.Join(home, ".termlens"), nil
}

// Load reads a TOML config file, applying defaults for unset fields.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.Analyzer.BufferCapKiB <= 0 {
		cfg.Analyzer.BufferCapKiB = 50
	}
	if cfg.Analyzer.ReapIntervalSecs <= 0 {
		cfg.Analyzer.ReapIntervalSecs = 30
	}
	return cfg, nil
}

// BufferCap returns the analyzer buffer cap in bytes.
func (c *Config) BufferCap() int {
	return c.Analyzer.BufferCapKiB * 1024
}

// ReapInterval returns the reaper interval as a duration.
func (c *Config) ReapInterval() time.Duration {
	return time.Duration(c.Analyzer.ReapIntervalSecs) * time.Second
}

// Compile turns a PatternConfig into a registry definition. Custom
// patterns get a generic extractor: group 1 (when present) fills the
// kind's primary name field, and the whole match lands in Message.
func (p PatternConfig) Compile() (stream.PatternDefinition, error) {
	if p.Name == "" {
		return stream.PatternDefinition{}, fmt.Errorf("config: pattern without name")
	}
	re, err := regexp.Compile(p.Regex)
	if err != nil {
		return stream.PatternDefinition{}, fmt.Errorf("config: pattern %s: %w", p.Name, err)
	}
	kind, err := stream.ParseEventKind(p.Event)
	if err != nil {
		return stream.PatternDefinition{}, fmt.Errorf("config: pattern %s: %w", p.Name, err)
	}
	target, err := stream.ParseMatchTarget(p.Match)
	if err != nil {
		return stream.PatternDefinition{}, fmt.Errorf("config: pattern %s: %w", p.Name, err)
	}

	return stream.PatternDefinition{
		Name:         p.Name,
		Regexp:       re,
		Kind:         kind,
		MatchAgainst: target,
		Extract:      genericExtractor(kind),
	}, nil
}

func genericExtractor(kind stream.EventKind) stream.Extractor {
	return func(m []string) (stream.Payload, bool) {
		p := stream.Payload{Message: m[0]}
		if len(m) > 1 && m[1] != "" {
			switch kind {
			case stream.KindToolStart, stream.KindToolEnd:
				p.ToolName = m[1]
			case stream.KindAgentSpawn, stream.KindAgentComplete, stream.KindAgentActivity:
				p.AgentName = m[1]
			default:
				p.Message = m[1]
			}
		}
		return p, true
	}
}

// CompilePatterns compiles every configured pattern, skipping invalid
// ones. The error slice reports what was skipped.
func (c *Config) CompilePatterns() ([]stream.PatternDefinition, []error) {
	var defs []stream.PatternDefinition
	var errs []error
	for _, p := range c.Patterns {
		def, err := p.Compile()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}
