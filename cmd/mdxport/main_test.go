package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	mdxport "github.com/alnah/go-mdxport"
)

// ---------------------------------------------------------------------------
// TestRunMain - Command dispatch and exit codes
// ---------------------------------------------------------------------------

func TestRunMain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		args         func(t *testing.T, dir string) []string
		imp          *fakeImporter
		wantCode     int
		wantInStdout []string
		wantInStderr []string
	}{
		{
			name:         "version command",
			args:         func(*testing.T, string) []string { return []string{"version"} },
			wantInStdout: []string{"mdxport dev"},
		},
		{
			name:         "version flag",
			args:         func(*testing.T, string) []string { return []string{"--version"} },
			wantInStdout: []string{"mdxport dev"},
		},
		{
			name:         "help command",
			args:         func(*testing.T, string) []string { return []string{"help"} },
			wantInStdout: []string{"Usage: mdxport", "--bib-only", "notion:<page-id>"},
		},
		{
			name:         "help flag",
			args:         func(*testing.T, string) []string { return []string{"-h"} },
			wantInStdout: []string{"Usage: mdxport"},
		},
		{
			name:         "help doctor",
			args:         func(*testing.T, string) []string { return []string{"help", "doctor"} },
			wantInStdout: []string{"mdxport doctor [-c config] [--json]"},
		},
		{
			name:         "unknown flag",
			args:         func(*testing.T, string) []string { return []string{"--nope"} },
			wantCode:     ExitSetup,
			wantInStderr: []string{"invalid arguments"},
		},
		{
			name: "conflicting modes",
			args: func(t *testing.T, dir string) []string {
				return []string{"--bib-only", "--mdx-only", "-o", filepath.Join(dir, "out"), dir}
			},
			wantCode:     ExitSetup,
			wantInStderr: []string{"only one of"},
		},
		{
			name: "no input",
			args: func(t *testing.T, dir string) []string {
				return []string{"-o", filepath.Join(dir, "out")}
			},
			wantCode:     ExitSetup,
			wantInStderr: []string{"no input specified", "hint:"},
		},
		{
			name: "missing input",
			args: func(t *testing.T, dir string) []string {
				return []string{"-i", filepath.Join(dir, "none.tex")}
			},
			wantCode:     ExitSetup,
			wantInStderr: []string{"input not found", "hint:"},
		},
		{
			name: "missing config",
			args: func(t *testing.T, dir string) []string {
				return []string{"-c", filepath.Join(dir, "nope.yaml"), dir}
			},
			wantCode:     ExitSetup,
			wantInStderr: []string{"config file not found", "hint:"},
		},
		{
			name: "pandoc missing for LaTeX",
			args: func(t *testing.T, dir string) []string {
				return []string{"-o", filepath.Join(dir, "out"), latexProject(t, filepath.Join(dir, "thesis"))}
			},
			imp:          &fakeImporter{pandocErr: mdxport.ErrPandocNotFound},
			wantCode:     ExitSetup,
			wantInStderr: []string{"pandoc not found", "pandoc.org"},
		},
		{
			name: "bib-only skips the pandoc check",
			args: func(t *testing.T, dir string) []string {
				return []string{"--bib-only", "-o", filepath.Join(dir, "out"), latexProject(t, filepath.Join(dir, "thesis"))}
			},
			imp:          &fakeImporter{pandocErr: mdxport.ErrPandocNotFound},
			wantInStdout: []string{"Created"},
		},
		{
			name: "failed document keeps exit code 0",
			args: func(t *testing.T, dir string) []string {
				writeFile(t, filepath.Join(dir, "docs", "good.md"), "# Good")
				writeFile(t, filepath.Join(dir, "docs", "bad.md"), "# Bad")
				return []string{"--mdx-only", "-o", filepath.Join(dir, "out"), filepath.Join(dir, "docs")}
			},
			imp:          &fakeImporter{fail: map[string]error{"bad.md": errors.New("boom")}},
			wantInStdout: []string{"Created", "good.mdx", "1 succeeded, 1 failed"},
			wantInStderr: []string{"FAILED", "bad.md: boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			imp := tt.imp
			if imp == nil {
				imp = &fakeImporter{}
			}
			env, stdout, stderr := testEnv(imp)

			code := runMain(append([]string{"mdxport"}, tt.args(t, t.TempDir())...), env)

			if code != tt.wantCode {
				t.Errorf("runMain() = %d, want %d\nstderr: %s", code, tt.wantCode, stderr.String())
			}
			for _, want := range tt.wantInStdout {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("stdout should contain %q, got %q", want, stdout.String())
				}
			}
			for _, want := range tt.wantInStderr {
				if !strings.Contains(stderr.String(), want) {
					t.Errorf("stderr should contain %q, got %q", want, stderr.String())
				}
			}
		})
	}
}

func TestRunMain_NotionWithoutToken(t *testing.T) {
	t.Setenv(mdxport.NotionTokenEnv, "")

	imp := &fakeImporter{}
	env, _, stderr := testEnv(imp)

	code := runMain([]string{"mdxport", "-o", t.TempDir(), "notion:0123456789abcdef"}, env)
	if code != ExitSetup {
		t.Errorf("runMain() = %d, want %d", code, ExitSetup)
	}
	if !strings.Contains(stderr.String(), "NOTION_TOKEN") {
		t.Errorf("stderr should carry the token hint, got %q", stderr.String())
	}
	if len(imp.inputs) != 0 {
		t.Errorf("no document should be converted, got %d", len(imp.inputs))
	}
}

func TestRunMain_PassesInputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	meta := filepath.Join(dir, "meta.yaml")
	writeFile(t, meta, "subtitle: Draft\n")
	doc := filepath.Join(dir, "notes.md")
	writeFile(t, doc, "# Notes")
	out := filepath.Join(dir, "out")

	imp := &fakeImporter{}
	env, _, stderr := testEnv(imp)

	code := runMain([]string{"mdxport", "--mdx-only", "--proof", "--metadata", meta, "-o", out, doc}, env)
	if code != ExitSuccess {
		t.Fatalf("runMain() = %d\nstderr: %s", code, stderr.String())
	}
	if len(imp.inputs) != 1 {
		t.Fatalf("inputs = %d, want 1", len(imp.inputs))
	}

	in := imp.inputs[0]
	if in.Path != doc || in.OutputDir != out || in.Mode != mdxport.ModeMDXOnly || !in.Proof || in.ProofPDF {
		t.Errorf("input = %+v", in)
	}
	if in.Metadata == nil || in.Metadata.Subtitle != "Draft" {
		t.Errorf("metadata = %+v, want subtitle Draft", in.Metadata)
	}
	if imp.checked {
		t.Error("CheckPandoc should not run for Markdown inputs")
	}
	if !imp.closed {
		t.Error("importer should be closed")
	}
}

func TestIsCommand(t *testing.T) {
	t.Parallel()

	for s, want := range map[string]bool{"version": true, "help": true, "doctor": true, "convert": false, "thesis": false} {
		if got := isCommand(s); got != want {
			t.Errorf("isCommand(%q) = %v, want %v", s, got, want)
		}
	}
}
