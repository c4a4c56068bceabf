package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	mdxport "github.com/alnah/go-mdxport"
	"github.com/alnah/go-mdxport/internal/config"
	"github.com/alnah/go-mdxport/internal/logger"
)

// Sentinel errors for CLI setup.
var (
	ErrUsage            = errors.New("invalid arguments")
	ErrConflictingModes = errors.New("only one of --bib-only, --convert-only and --mdx-only can be set")
	ErrOutputDir        = errors.New("cannot prepare output directory")
)

// runImport parses flags, resolves the settings and imports every input.
// Errors returned here are setup errors; documents that fail on their own
// are reported by printResultsWithWriter.
func runImport(ctx context.Context, args []string, env *Environment) error {
	flags, positional, err := parseImportFlags(args, env.Stderr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if flags.help {
		printUsage(env.Stdout)
		return nil
	}
	if flags.version {
		fmt.Fprintf(env.Stdout, "mdxport %s\n", Version)
		return nil
	}

	mode, err := resolveMode(flags.mode)
	if err != nil {
		return err
	}

	warnUnknownEnvVars(env.Stderr)
	envCfg := loadEnvConfig()
	cfg, err := loadConfig(flags.common.config, envCfg)
	if err != nil {
		return err
	}
	applyEnvConfig(envCfg, cfg)
	mergeFlags(flags, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	inputs, err := resolveInputs(flags.input, positional, cfg)
	if err != nil {
		return err
	}
	files, err := discoverInputs(inputs)
	if err != nil {
		return err
	}

	outputDir := resolveOutputDir(cfg)
	if cfg.Output.Clean {
		if err := cleanOutputDir(outputDir, files); err != nil {
			return err
		}
	}

	var metadata *mdxport.FrontMatter
	if cfg.FrontMatter.Override != "" {
		if metadata, err = mdxport.LoadFrontMatter(cfg.FrontMatter.Override); err != nil {
			return fmt.Errorf("loading metadata: %w", err)
		}
	}

	needsPandoc, needsNotion := requirements(files, mode)
	if needsNotion && notionToken(cfg) == "" {
		return mdxport.ErrNotionToken
	}

	log := logger.New(env.Stderr, logger.LevelFor(flags.common.quiet, flags.common.verbose))
	imp, err := env.NewImporter(converterOptions(cfg, log, env.Now)...)
	if err != nil {
		return fmt.Errorf("setting up importer: %w", err)
	}
	defer func() { _ = imp.Close() }()

	if needsPandoc {
		if err := imp.CheckPandoc(); err != nil {
			return err
		}
	}

	results := convertBatch(ctx, imp, files, batchParams{
		outputDir: outputDir,
		mode:      mode,
		metadata:  metadata,
		proof:     cfg.Proof.HTML,
		proofPDF:  cfg.Proof.PDF,
	})
	printResultsWithWriter(results, flags.common.quiet, flags.common.verbose, env)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	return nil
}

// resolveMode maps the mode flags to a pipeline mode.
func resolveMode(f modeFlags) (mdxport.Mode, error) {
	mode, n := mdxport.ModeFull, 0
	if f.bibOnly {
		mode, n = mdxport.ModeBibOnly, n+1
	}
	if f.convertOnly {
		mode, n = mdxport.ModeConvertOnly, n+1
	}
	if f.mdxOnly {
		mode, n = mdxport.ModeMDXOnly, n+1
	}
	if n > 1 {
		return 0, ErrConflictingModes
	}
	return mode, nil
}

// loadConfig loads the config named by the flag, then MDXPORT_CONFIG, or
// returns the defaults when neither is set.
func loadConfig(name string, env *envConfig) (*config.Config, error) {
	if name == "" {
		name = env.ConfigPath
	}
	if name == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.LoadConfig(name)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// mergeFlags merges CLI flags into config. CLI values override config values.
func mergeFlags(flags *importFlags, cfg *config.Config) {
	if flags.output != "" {
		cfg.Output.Dir = flags.output
	}
	if flags.clean {
		cfg.Output.Clean = true
	}
	if flags.metadata != "" {
		cfg.FrontMatter.Override = flags.metadata
	}
	if flags.assetPath != "" {
		cfg.Assets.BasePath = flags.assetPath
	}
	if flags.notionToken != "" {
		cfg.Notion.Token = flags.notionToken
	}
	if flags.proof.html {
		cfg.Proof.HTML = true
	}
	if flags.proof.pdf {
		cfg.Proof.PDF = true
	}
}

// resolveInputs collects -i and positional inputs, falling back to
// input.default.
func resolveInputs(flagInput string, args []string, cfg *config.Config) ([]string, error) {
	var inputs []string
	if flagInput != "" {
		inputs = append(inputs, flagInput)
	}
	inputs = append(inputs, args...)
	if len(inputs) == 0 && cfg.Input.Default != "" {
		inputs = append(inputs, cfg.Input.Default)
	}
	if len(inputs) == 0 {
		return nil, mdxport.ErrNoInput
	}
	return inputs, nil
}

func resolveOutputDir(cfg *config.Config) string {
	if cfg.Output.Dir == "" {
		return config.DefaultConfig().Output.Dir
	}
	return cfg.Output.Dir
}

// cleanOutputDir removes dir. It refuses to remove the working directory,
// a filesystem root, the home directory, or a directory holding an input.
func cleanOutputDir(dir string, files []inputFile) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputDir, err)
	}

	var protected []string
	if cwd, err := os.Getwd(); err == nil {
		protected = append(protected, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		protected = append(protected, home)
	}
	if abs == filepath.Dir(abs) || slices.Contains(protected, abs) {
		return fmt.Errorf("%w: refusing to clean %s", ErrOutputDir, dir)
	}

	for _, f := range files {
		if f.Kind == mdxport.SourceNotionPage {
			continue
		}
		in, err := filepath.Abs(f.Path)
		if err != nil {
			continue
		}
		if in == abs || strings.HasPrefix(in, abs+string(filepath.Separator)) {
			return fmt.Errorf("%w: %s contains the input %s", ErrOutputDir, dir, f.Path)
		}
	}

	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputDir, err)
	}
	return nil
}

// requirements reports whether the run needs pandoc and a Notion token.
func requirements(files []inputFile, mode mdxport.Mode) (pandoc, notion bool) {
	for _, f := range files {
		switch f.Kind {
		case mdxport.SourceLaTeX:
			pandoc = pandoc || mode != mdxport.ModeBibOnly
		case mdxport.SourceNotionPage:
			notion = true
		}
	}
	return pandoc, notion
}

func notionToken(cfg *config.Config) string {
	if cfg.Notion.Token != "" {
		return cfg.Notion.Token
	}
	return strings.TrimSpace(os.Getenv(mdxport.NotionTokenEnv))
}

// converterOptions translates the merged config into converter options.
func converterOptions(cfg *config.Config, log logger.Logger, now func() time.Time) []mdxport.Option {
	opts := []mdxport.Option{
		mdxport.WithLogger(log),
		mdxport.WithNow(now),
		mdxport.WithAssetPath(cfg.Assets.BasePath),
		mdxport.WithMappings(cfg.Mappings.MappingTable),
		mdxport.WithNotionRate(cfg.NotionRate()),
	}
	if cfg.Pandoc.Binary != "" {
		opts = append(opts, mdxport.WithPandocBinary(cfg.Pandoc.Binary))
	}
	if len(cfg.Pandoc.Filters) > 0 {
		opts = append(opts, mdxport.WithPandocFilters(cfg.Pandoc.Filters...))
	}
	// Validate has already parsed the duration.
	if d, err := time.ParseDuration(cfg.Pandoc.Timeout); err == nil && d > 0 {
		opts = append(opts, mdxport.WithPandocTimeout(d))
	}
	if cfg.Mappings.Table != "" {
		opts = append(opts, mdxport.WithMappingTable(cfg.Mappings.Table))
	}
	if cfg.Components.Dir != "" {
		opts = append(opts, mdxport.WithComponentDir(cfg.Components.Dir))
	}
	if cfg.FrontMatter.DateFormat != "" {
		opts = append(opts, mdxport.WithDateFormat(cfg.FrontMatter.DateFormat))
	}
	if cfg.Notion.Token != "" {
		opts = append(opts, mdxport.WithNotionToken(cfg.Notion.Token))
	}
	if cfg.Proof.Style != "" {
		opts = append(opts, mdxport.WithProofStyle(cfg.Proof.Style))
	}
	if cfg.Proof.TOCTitle != "" {
		opts = append(opts, mdxport.WithTOCTitle(cfg.Proof.TOCTitle))
	}
	return opts
}
