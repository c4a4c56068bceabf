package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/alnah/go-mdxport/internal/config"
)

// envConfig holds configuration from MDXPORT_* environment variables.
// Provides CI-friendly overrides without requiring YAML files.
type envConfig struct {
	ConfigPath    string // MDXPORT_CONFIG: config file name or path
	Input         string // MDXPORT_INPUT: default input
	OutputDir     string // MDXPORT_OUTPUT_DIR: output directory
	AssetPath     string // MDXPORT_ASSET_PATH: custom asset directory
	Pandoc        string // MDXPORT_PANDOC: pandoc executable
	PandocTimeout string // MDXPORT_PANDOC_TIMEOUT: Go duration
	ComponentDir  string // MDXPORT_COMPONENT_DIR: component import prefix
	DateFormat    string // MDXPORT_DATE_FORMAT: published date layout
}

// knownEnvVars lists valid MDXPORT_* environment variables.
var knownEnvVars = map[string]bool{
	"MDXPORT_CONFIG":         true,
	"MDXPORT_INPUT":          true,
	"MDXPORT_OUTPUT_DIR":     true,
	"MDXPORT_ASSET_PATH":     true,
	"MDXPORT_PANDOC":         true,
	"MDXPORT_PANDOC_TIMEOUT": true,
	"MDXPORT_COMPONENT_DIR":  true,
	"MDXPORT_DATE_FORMAT":    true,
}

// loadEnvConfig reads configuration from environment variables.
func loadEnvConfig() *envConfig {
	return &envConfig{
		ConfigPath:    os.Getenv("MDXPORT_CONFIG"),
		Input:         os.Getenv("MDXPORT_INPUT"),
		OutputDir:     os.Getenv("MDXPORT_OUTPUT_DIR"),
		AssetPath:     os.Getenv("MDXPORT_ASSET_PATH"),
		Pandoc:        os.Getenv("MDXPORT_PANDOC"),
		PandocTimeout: os.Getenv("MDXPORT_PANDOC_TIMEOUT"),
		ComponentDir:  os.Getenv("MDXPORT_COMPONENT_DIR"),
		DateFormat:    os.Getenv("MDXPORT_DATE_FORMAT"),
	}
}

// warnUnknownEnvVars logs warnings for unrecognized MDXPORT_* variables.
func warnUnknownEnvVars(w io.Writer) {
	for _, name := range unknownEnvVars() {
		fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
	}
}

// unknownEnvVars lists the set MDXPORT_ variables nothing reads.
func unknownEnvVars() []string {
	var names []string
	for _, env := range os.Environ() {
		name, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(name, "MDXPORT_") && !knownEnvVars[name] {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// applyEnvConfig overrides config values with the variables that are set.
// Precedence is CLI flags > env vars > config file > defaults; flags are
// applied afterwards by mergeFlags.
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Input.Default, env.Input)
	set(&cfg.Output.Dir, env.OutputDir)
	set(&cfg.Assets.BasePath, env.AssetPath)
	set(&cfg.Pandoc.Binary, env.Pandoc)
	set(&cfg.Pandoc.Timeout, env.PandocTimeout)
	set(&cfg.Components.Dir, env.ComponentDir)
	set(&cfg.FrontMatter.DateFormat, env.DateFormat)
}
