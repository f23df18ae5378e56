// Package config holds the logspec TOML configuration.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed templates/config.tmpl
var configTemplateText string

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "logspec.toml"

// Config represents the configuration stored in logspec.toml.
type Config struct {
	Parser ParserConfig `toml:"parser"`
	Kcidb  KcidbConfig  `toml:"kcidb"`
}

// ParserConfig contains defaults for the parse and watch commands.
type ParserConfig struct {
	// Defs is the parser definitions file.
	// Defaults to "parser_defs.yaml" when not specified.
	Defs string `toml:"defs"`

	// Output is the output mode: "info", "debug" or "json".
	// Defaults to "info" when not specified.
	Output string `toml:"output"`

	// JSONFull includes hidden fields in the JSON output.
	JSONFull bool `toml:"json_full"`

	// StripANSI removes terminal escape sequences from logs before parsing.
	// Defaults to false when not specified.
	StripANSI *bool `toml:"strip_ansi"`
}

// GetDefs returns the parser definitions path.
func (p *ParserConfig) GetDefs() string {
	if p.Defs == "" {
		return "parser_defs.yaml"
	}
	return p.Defs
}

// GetOutput returns the output mode.
// Defaults to "info" when not specified or when an invalid mode is configured.
func (p *ParserConfig) GetOutput() string {
	switch p.Output {
	case "info", "debug", "json":
		return p.Output
	default:
		return "info"
	}
}

// ShouldStripANSI returns true if logs are cleaned before parsing.
// Defaults to false when not explicitly configured.
func (p *ParserConfig) ShouldStripANSI() bool {
	if p.StripANSI == nil {
		return false
	}
	return *p.StripANSI
}

// KcidbConfig contains configuration for the KCIDB issue generator.
type KcidbConfig struct {
	// DB is the database connection string.
	DB string `toml:"db"`

	// Driver is the database/sql driver: "postgres" or "sqlite3".
	// Defaults to "postgres" when not specified.
	Driver string `toml:"driver"`

	// Concurrency bounds the number of logs fetched at once.
	// Defaults to 8 when not specified.
	Concurrency *int `toml:"concurrency"`

	// HTTPTimeoutSeconds bounds each log download.
	// Defaults to 60 seconds when not specified.
	HTTPTimeoutSeconds *int `toml:"http_timeout_seconds"`

	// CacheTTLMinutes is how long a parsed log stays cached between
	// scheduled runs. Defaults to 60 minutes when not specified.
	CacheTTLMinutes *int `toml:"cache_ttl_minutes"`

	// MetricsAddr is the listen address of the Prometheus endpoint.
	// Metrics are not served when empty.
	MetricsAddr string `toml:"metrics_addr"`

	// Schedule is a cron expression. When set, the generator runs on that
	// schedule instead of once.
	Schedule string `toml:"schedule"`
}

// GetDriver returns the database driver name.
func (k *KcidbConfig) GetDriver() string {
	if k.Driver == "" {
		return "postgres"
	}
	return k.Driver
}

// GetConcurrency returns the maximum number of concurrent log fetches.
// Defaults to 8 when not specified.
func (k *KcidbConfig) GetConcurrency() int {
	if k.Concurrency != nil && *k.Concurrency > 0 {
		return *k.Concurrency
	}
	return 8
}

// GetHTTPTimeout returns the log download timeout.
// Defaults to 60 seconds when not specified.
func (k *KcidbConfig) GetHTTPTimeout() time.Duration {
	if k.HTTPTimeoutSeconds != nil && *k.HTTPTimeoutSeconds > 0 {
		return time.Duration(*k.HTTPTimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

// GetCacheTTL returns how long parsed logs are cached.
// Defaults to 60 minutes when not specified.
func (k *KcidbConfig) GetCacheTTL() time.Duration {
	if k.CacheTTLMinutes != nil && *k.CacheTTLMinutes > 0 {
		return time.Duration(*k.CacheTTLMinutes) * time.Minute
	}
	return 60 * time.Minute
}

// LoadConfig reads and parses a logspec.toml file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// LoadOptional reads path if it exists and returns an empty Config
// otherwise.
func LoadOptional(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// SaveDocumentedConfig writes a fully documented config to the specified path.
func (c *Config) SaveDocumentedConfig(path string) error {
	return os.WriteFile(path, []byte(c.GenerateDocumentedConfig()), 0600)
}

// configTemplateData holds the data used to render the config template.
type configTemplateData struct {
	Defs               string
	Output             string
	JSONFull           bool
	StripANSI          bool
	DB                 string
	Driver             string
	Concurrency        int
	HTTPTimeoutSeconds int
	CacheTTLMinutes    int
	MetricsAddr        string
	Schedule           string
}

// tomlString formats a string for TOML output with proper escaping.
func tomlString(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}

var configTemplate = template.Must(template.New("config").Funcs(template.FuncMap{
	"tomlString": tomlString,
}).Parse(configTemplateText))

// GenerateDocumentedConfig generates a documented logspec.toml with the
// effective values of c.
func (c *Config) GenerateDocumentedConfig() string {
	data := configTemplateData{
		Defs:               c.Parser.GetDefs(),
		Output:             c.Parser.GetOutput(),
		JSONFull:           c.Parser.JSONFull,
		StripANSI:          c.Parser.ShouldStripANSI(),
		DB:                 c.Kcidb.DB,
		Driver:             c.Kcidb.GetDriver(),
		Concurrency:        c.Kcidb.GetConcurrency(),
		HTTPTimeoutSeconds: int(c.Kcidb.GetHTTPTimeout() / time.Second),
		CacheTTLMinutes:    int(c.Kcidb.GetCacheTTL() / time.Minute),
		MetricsAddr:        c.Kcidb.MetricsAddr,
		Schedule:           c.Kcidb.Schedule,
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, data); err != nil {
		return fmt.Sprintf("[parser]\ndefs = %s\noutput = %s\n[kcidb]\ndriver = %s\n",
			tomlString(data.Defs), tomlString(data.Output), tomlString(data.Driver))
	}
	return buf.String()
}
