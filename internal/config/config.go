package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-mdxport/internal/dateutil"
	"github.com/alnah/go-mdxport/internal/pipeline"
	"github.com/alnah/go-mdxport/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Field length limits.
const (
	MaxPathLength       = 4096
	MaxNameLength       = 100  // component and table names
	MaxDateFormatLength = 50   // "MMM DD, YYYY", "[Week of] MMMM D"
	MaxTokenLength      = 200  // Notion integration tokens are ~50 chars
	MaxTitleLength      = 200  // proof TOC title
	MaxNotionRate       = 10.0 // requests per second
)

// DefaultNotionRate is the documented Notion API average limit.
const DefaultNotionRate = 3.0

// Config holds all configuration for an import run.
type Config struct {
	Input       InputConfig       `yaml:"input"`
	Output      OutputConfig      `yaml:"output"`
	Pandoc      PandocConfig      `yaml:"pandoc"`
	Components  ComponentsConfig  `yaml:"components"`
	FrontMatter FrontMatterConfig `yaml:"frontMatter"`
	Mappings    MappingsConfig    `yaml:"mappings"`
	Assets      AssetsConfig      `yaml:"assets"`
	Notion      NotionConfig      `yaml:"notion"`
	Proof       ProofConfig       `yaml:"proof"`
}

// InputConfig defines input source options.
type InputConfig struct {
	Default string `yaml:"default"` // used when no input argument is given
}

// OutputConfig defines output destination options.
type OutputConfig struct {
	Dir   string `yaml:"dir"`   // empty = ./output
	Clean bool   `yaml:"clean"` // wipe Dir before writing
}

// PandocConfig defines how pandoc is invoked.
type PandocConfig struct {
	Binary  string   `yaml:"binary"`  // empty = "pandoc" on PATH
	Filters []string `yaml:"filters"` // extra Lua filters, run after the built-in one
	Timeout string   `yaml:"timeout"` // Go duration, empty = no limit
}

// ComponentsConfig defines the component import block.
type ComponentsConfig struct {
	Dir string `yaml:"dir"` // import prefix, empty = ../components
}

// FrontMatterConfig defines front matter sources and defaults.
type FrontMatterConfig struct {
	Override   string `yaml:"override"`   // YAML file merged over extracted metadata
	DateFormat string `yaml:"dateFormat"` // dateutil layout, empty = "MMM DD, YYYY"
}

// MappingsConfig selects the base mapping table and adds entries to it.
type MappingsConfig struct {
	Table                 string `yaml:"table"` // asset name, empty = default
	pipeline.MappingTable `yaml:",inline"`
}

// AssetsConfig defines asset loading options.
type AssetsConfig struct {
	BasePath string `yaml:"basePath"` // Empty = use embedded assets
}

// NotionConfig defines Notion API access.
type NotionConfig struct {
	Token string  `yaml:"token"` // NOTION_TOKEN when empty
	Rate  float64 `yaml:"rate"`  // requests per second, 0 = DefaultNotionRate
}

// ProofConfig defines the review proofs written next to the MDX.
type ProofConfig struct {
	HTML     bool   `yaml:"html"`
	PDF      bool   `yaml:"pdf"`
	Style    string `yaml:"style"` // style asset name, empty = proof
	TOCTitle string `yaml:"tocTitle"`
}

// Validate checks field lengths and value ranges. Called by LoadConfig, but
// available for configs built in code.
func (c *Config) Validate() error {
	paths := []struct{ name, value string }{
		{"input.default", c.Input.Default},
		{"output.dir", c.Output.Dir},
		{"pandoc.binary", c.Pandoc.Binary},
		{"components.dir", c.Components.Dir},
		{"frontMatter.override", c.FrontMatter.Override},
		{"assets.basePath", c.Assets.BasePath},
	}
	for i, f := range c.Pandoc.Filters {
		paths = append(paths, struct{ name, value string }{fmt.Sprintf("pandoc.filters[%d]", i), f})
	}
	for _, p := range paths {
		if err := validateFieldLength(p.name, p.value, MaxPathLength); err != nil {
			return err
		}
	}

	if c.Pandoc.Timeout != "" {
		if _, err := time.ParseDuration(c.Pandoc.Timeout); err != nil {
			return fmt.Errorf("%w: pandoc.timeout: %v", ErrInvalidValue, err)
		}
	}

	if err := validateFieldLength("frontMatter.dateFormat", c.FrontMatter.DateFormat, MaxDateFormatLength); err != nil {
		return err
	}
	if c.FrontMatter.DateFormat != "" {
		if _, err := dateutil.ParseDateFormat(c.FrontMatter.DateFormat); err != nil {
			return fmt.Errorf("%w: frontMatter.dateFormat: %v", ErrInvalidValue, err)
		}
	}

	if err := validateFieldLength("mappings.table", c.Mappings.Table, MaxNameLength); err != nil {
		return err
	}
	if err := c.Mappings.MappingTable.Validate(); err != nil {
		return fmt.Errorf("mappings: %w", err)
	}

	if err := validateFieldLength("notion.token", c.Notion.Token, MaxTokenLength); err != nil {
		return err
	}
	if c.Notion.Rate < 0 || c.Notion.Rate > MaxNotionRate {
		return fmt.Errorf("%w: notion.rate: must be between 0 and %.0f, got %.2f", ErrInvalidValue, MaxNotionRate, c.Notion.Rate)
	}

	if err := validateFieldLength("proof.style", c.Proof.Style, MaxNameLength); err != nil {
		return err
	}
	return validateFieldLength("proof.tocTitle", c.Proof.TOCTitle, MaxTitleLength)
}

// NotionRate returns the configured rate or DefaultNotionRate.
func (c *Config) NotionRate() float64 {
	if c.Notion.Rate == 0 {
		return DefaultNotionRate
	}
	return c.Notion.Rate
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{Dir: "output"},
		Notion: NotionConfig{Rate: DefaultNotionRate},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if isFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/mdxport/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "mdxport", name+ext)
			if fileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
