package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/go-mdxport/internal/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mdxport.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Output.Dir != "output" {
		t.Errorf("Output.Dir = %q, want %q", cfg.Output.Dir, "output")
	}
	if cfg.Notion.Rate != DefaultNotionRate {
		t.Errorf("Notion.Rate = %v, want %v", cfg.Notion.Rate, DefaultNotionRate)
	}
	if cfg.Assets.BasePath != "" {
		t.Errorf("Assets.BasePath = %q, want empty", cfg.Assets.BasePath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestValidateFieldLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		value     string
		maxLength int
		wantErr   bool
	}{
		{"empty value is valid", "", 10, false},
		{"value at limit is valid", "1234567890", 10, false},
		{"value over limit returns error", "12345678901", 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateFieldLength("test.field", tt.value, tt.maxLength)
			if tt.wantErr {
				if !errors.Is(err, ErrFieldTooLong) {
					t.Fatalf("error = %v, want ErrFieldTooLong", err)
				}
				if !strings.Contains(err.Error(), "test.field") {
					t.Errorf("error %q should name the field", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestConfig_Validate - Field limits and value ranges
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults", func(*Config) {}, nil},
		{"path too long", func(c *Config) { c.Output.Dir = strings.Repeat("a", MaxPathLength+1) }, ErrFieldTooLong},
		{"filter path too long", func(c *Config) { c.Pandoc.Filters = []string{strings.Repeat("f", MaxPathLength+1)} }, ErrFieldTooLong},
		{"valid timeout", func(c *Config) { c.Pandoc.Timeout = "2m" }, nil},
		{"bad timeout", func(c *Config) { c.Pandoc.Timeout = "soon" }, ErrInvalidValue},
		{"date format preset", func(c *Config) { c.FrontMatter.DateFormat = "iso" }, nil},
		{"date format unclosed bracket", func(c *Config) { c.FrontMatter.DateFormat = "[Rev YYYY" }, ErrInvalidValue},
		{"date format too long", func(c *Config) { c.FrontMatter.DateFormat = strings.Repeat("Y", MaxDateFormatLength+1) }, ErrFieldTooLong},
		{"negative rate", func(c *Config) { c.Notion.Rate = -1 }, ErrInvalidValue},
		{"rate too high", func(c *Config) { c.Notion.Rate = MaxNotionRate + 1 }, ErrInvalidValue},
		{"token too long", func(c *Config) { c.Notion.Token = strings.Repeat("t", MaxTokenLength+1) }, ErrFieldTooLong},
		{"toc title too long", func(c *Config) { c.Proof.TOCTitle = strings.Repeat("x", MaxTitleLength+1) }, ErrFieldTooLong},
		{
			"bad mapping",
			func(c *Config) {
				c.Mappings.Commands = []pipeline.CommandMapping{{Name: "x", Type: pipeline.MappingCallout}}
			},
			pipeline.ErrInvalidMapping,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_NotionRate(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	if got := cfg.NotionRate(); got != DefaultNotionRate {
		t.Errorf("NotionRate() = %v, want %v", got, DefaultNotionRate)
	}
	cfg.Notion.Rate = 1.5
	if got := cfg.NotionRate(); got != 1.5 {
		t.Errorf("NotionRate() = %v, want 1.5", got)
	}
}

// ---------------------------------------------------------------------------
// TestLoadConfig - File loading and search
// ---------------------------------------------------------------------------

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("empty name returns ErrEmptyConfigName", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfig("")
		if !errors.Is(err, ErrEmptyConfigName) {
			t.Errorf("error = %v, want ErrEmptyConfigName", err)
		}
	})

	t.Run("valid file path loads config", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, `output:
  dir: site/src/content
  clean: true
pandoc:
  binary: /opt/pandoc/bin/pandoc
  filters: [crossref.lua]
components:
  dir: "@components"
frontMatter:
  dateFormat: long
mappings:
  table: default
  commands:
    - name: eps
      type: math
      replacement: '\varepsilon'
  environments:
    - name: lemma
      type: callout
      label: Lemma
notion:
  rate: 2
proof:
  html: true
`)

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Output.Dir != "site/src/content" || !cfg.Output.Clean {
			t.Errorf("Output = %+v", cfg.Output)
		}
		if cfg.Pandoc.Binary != "/opt/pandoc/bin/pandoc" || len(cfg.Pandoc.Filters) != 1 {
			t.Errorf("Pandoc = %+v", cfg.Pandoc)
		}
		if cfg.Components.Dir != "@components" {
			t.Errorf("Components.Dir = %q", cfg.Components.Dir)
		}
		if cfg.FrontMatter.DateFormat != "long" {
			t.Errorf("FrontMatter.DateFormat = %q", cfg.FrontMatter.DateFormat)
		}
		if cfg.Mappings.Table != "default" || len(cfg.Mappings.Commands) != 1 || len(cfg.Mappings.Environments) != 1 {
			t.Errorf("Mappings = %+v", cfg.Mappings)
		}
		if cfg.Mappings.Commands[0].Replacement != `\varepsilon` {
			t.Errorf("command replacement = %q", cfg.Mappings.Commands[0].Replacement)
		}
		if cfg.Notion.Rate != 2 {
			t.Errorf("Notion.Rate = %v, want 2", cfg.Notion.Rate)
		}
		if !cfg.Proof.HTML || cfg.Proof.PDF {
			t.Errorf("Proof = %+v", cfg.Proof)
		}
	})

	t.Run("unset fields keep defaults", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfig(writeConfig(t, "proof:\n  pdf: true\n"))
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Output.Dir != "output" {
			t.Errorf("Output.Dir = %q, want default", cfg.Output.Dir)
		}
		if cfg.Notion.Rate != DefaultNotionRate {
			t.Errorf("Notion.Rate = %v, want default", cfg.Notion.Rate)
		}
	})

	t.Run("nonexistent file path returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfig("/nonexistent/path/config.yaml")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("invalid YAML returns ErrConfigParse", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfig(writeConfig(t, "output: [unclosed"))
		if !errors.Is(err, ErrConfigParse) {
			t.Errorf("error = %v, want ErrConfigParse", err)
		}
	})

	t.Run("unknown field returns ErrConfigParse in strict mode", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfig(writeConfig(t, "watermark:\n  text: DRAFT\n"))
		if !errors.Is(err, ErrConfigParse) {
			t.Errorf("error = %v, want ErrConfigParse", err)
		}
	})

	t.Run("invalid value fails validation", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfig(writeConfig(t, "notion:\n  rate: 50\n"))
		if !errors.Is(err, ErrInvalidValue) {
			t.Errorf("error = %v, want ErrInvalidValue", err)
		}
	})
}

func TestLoadConfig_SearchByName(t *testing.T) {
	// Chdir and Setenv forbid t.Parallel.
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)

	t.Run("finds .yml in current directory", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(dir, "paper.yml"), []byte("output:\n  dir: out\n"), 0600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig("paper")
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Output.Dir != "out" {
			t.Errorf("Output.Dir = %q, want out", cfg.Output.Dir)
		}
	})

	t.Run("missing name lists tried paths", func(t *testing.T) {
		_, err := LoadConfig("absent")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("error = %v, want ErrConfigNotFound", err)
		}
		for _, want := range []string{"absent.yaml", "absent.yml"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error %q should mention %s", err, want)
			}
		}
	})
}

func TestIsFilePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"work", false},
		{"./work.yaml", true},
		{"configs/work.yaml", true},
		{`C:\work.yaml`, true},
	}
	for _, tt := range tests {
		if got := isFilePath(tt.in); got != tt.want {
			t.Errorf("isFilePath(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
