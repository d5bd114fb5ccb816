// Package config loads cusipmap settings from YAML files with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	cusipmap "github.com/RxDataLab/go-cusipmap"
)

// EnvPrefix prefixes every environment override, e.g. CUSIPMAP_PARSING_WORKERS.
const EnvPrefix = "CUSIPMAP"

// Config represents the complete application configuration.
type Config struct {
	Extractor cusipmap.ExtractorOptions `mapstructure:"extractor" yaml:"extractor"`
	Parsing   ParsingConfig             `mapstructure:"parsing"   yaml:"parsing"`
	Filter    FilterConfig              `mapstructure:"filter"    yaml:"filter"`
	Mapping   cusipmap.MappingOptions   `mapstructure:"mapping"   yaml:"mapping"`
	Dynamics  cusipmap.DynamicsOptions  `mapstructure:"dynamics"  yaml:"dynamics"`
	Output    OutputConfig              `mapstructure:"output"    yaml:"output"`
	Logging   LoggingConfig             `mapstructure:"logging"   yaml:"logging"`
}

// ParsingConfig controls how filings are read and parsed.
type ParsingConfig struct {
	Concurrent bool   `mapstructure:"concurrent" yaml:"concurrent"`
	Workers    int    `mapstructure:"workers"    yaml:"workers"`
	MaxQueue   int    `mapstructure:"max_queue"  yaml:"max_queue"`
	Pattern    string `mapstructure:"pattern"    yaml:"pattern"` // glob applied to file names when walking directories
}

// Concurrency returns the worker pool bounds.
func (p ParsingConfig) Concurrency() cusipmap.ConcurrencyOptions {
	return cusipmap.ConcurrencyOptions{Workers: p.Workers, MaxQueue: p.MaxQueue}
}

// FilterConfig selects the events folded into the outputs.
type FilterConfig struct {
	CIKs           []string `mapstructure:"ciks"            yaml:"ciks"`
	From           string   `mapstructure:"from"            yaml:"from"` // YYYY-MM-DD, inclusive
	To             string   `mapstructure:"to"              yaml:"to"`
	SkipAmendments bool     `mapstructure:"skip_amendments" yaml:"skip_amendments"`
	Forms          []string `mapstructure:"forms"           yaml:"forms"`
}

// EventFilter converts the section into a cusipmap.EventFilter.
func (f FilterConfig) EventFilter() (cusipmap.EventFilter, error) {
	filter := cusipmap.EventFilter{
		SkipAmendments: f.SkipAmendments,
		Forms:          f.Forms,
	}
	if len(f.CIKs) > 0 {
		filter.CIKs = cusipmap.NormalizeCIKWhitelist(f.CIKs)
	}

	var err error
	if filter.From, err = parseBound(f.From); err != nil {
		return cusipmap.EventFilter{}, fmt.Errorf("invalid filter.from: %w", err)
	}
	if filter.To, err = parseBound(f.To); err != nil {
		return cusipmap.EventFilter{}, fmt.Errorf("invalid filter.to: %w", err)
	}
	return filter, nil
}

func parseBound(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return cusipmap.ParseFilingDate(value)
}

// OutputConfig names the files written by the pipeline.
type OutputConfig struct {
	Dir          string `mapstructure:"dir"           yaml:"dir"`
	EventsFile   string `mapstructure:"events_file"   yaml:"events_file"`
	MappingFile  string `mapstructure:"mapping_file"  yaml:"mapping_file"`
	DynamicsFile string `mapstructure:"dynamics_file" yaml:"dynamics_file"`
	SQLitePath   string `mapstructure:"sqlite_path"   yaml:"sqlite_path"` // empty disables the SQLite sink
}

// Path joins name onto the output directory unless it is absolute.
func (o OutputConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) || o.Dir == "" {
		return name
	}
	return filepath.Join(o.Dir, name)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./cusipmap.yaml
//  2. ./config/cusipmap.yaml
//  3. ~/.cusipmap/cusipmap.yaml
//
// Environment variables override config file values.
// Format: CUSIPMAP_<SECTION>_<KEY>, e.g., CUSIPMAP_PARSING_WORKERS
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("cusipmap")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".cusipmap"))

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults mirrors the library defaults so the effective configuration
// can be printed in full.
func setDefaults(v *viper.Viper) {
	ext := cusipmap.DefaultExtractorOptions()
	v.SetDefault("extractor.window_before", ext.WindowBefore)
	v.SetDefault("extractor.window_after", ext.WindowAfter)
	v.SetDefault("extractor.look_behind", ext.LookBehind)
	v.SetDefault("extractor.look_ahead", ext.LookAhead)
	v.SetDefault("extractor.context_radius", ext.ContextRadius)
	v.SetDefault("extractor.max_pieces", ext.MaxPieces)
	v.SetDefault("extractor.skip_keywords", ext.SkipKeywords)
	v.SetDefault("extractor.context_markers", ext.ContextMarkers)

	conc := cusipmap.DefaultConcurrencyOptions()
	v.SetDefault("parsing.concurrent", false)
	v.SetDefault("parsing.workers", conc.Workers)
	v.SetDefault("parsing.max_queue", conc.MaxQueue)
	v.SetDefault("parsing.pattern", "*.txt")

	v.SetDefault("filter.skip_amendments", false)

	mapping := cusipmap.DefaultMappingOptions()
	v.SetDefault("mapping.valid_lengths", mapping.ValidLengths)
	v.SetDefault("mapping.forbidden_prefixes", mapping.ForbiddenPrefixes)

	v.SetDefault("dynamics.strict_dates", false)

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.events_file", "events.csv")
	v.SetDefault("output.mapping_file", "cik-cusip-maps.csv")
	v.SetDefault("output.dynamics_file", "cik-cusip-dynamics.csv")
	v.SetDefault("output.sqlite_path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Parsing.Workers < 1 {
		return fmt.Errorf("%w: parsing.workers must be at least 1, got %d", cusipmap.ErrInvalidConfig, c.Parsing.Workers)
	}
	if c.Parsing.MaxQueue < 1 {
		return fmt.Errorf("%w: parsing.max_queue must be at least 1, got %d", cusipmap.ErrInvalidConfig, c.Parsing.MaxQueue)
	}
	if c.Mapping.ValidLengths != nil && len(c.Mapping.ValidLengths) == 0 {
		return fmt.Errorf("%w: mapping.valid_lengths must not be empty", cusipmap.ErrInvalidConfig)
	}
	if _, err := c.Filter.EventFilter(); err != nil {
		return fmt.Errorf("%w: %v", cusipmap.ErrInvalidConfig, err)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown logging.level %q", cusipmap.ErrInvalidConfig, c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown logging.format %q", cusipmap.ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
