package pipeline

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// TestRewriteAssetPaths
// ---------------------------------------------------------------------------

func TestRewriteAssetPaths(t *testing.T) {
	t.Parallel()

	baseDir := "/out"
	if runtime.GOOS == "windows" {
		baseDir = `C:\out`
	}

	tests := []struct {
		name         string
		html         string
		wantContains []string
		wantExcludes []string
	}{
		{
			name:         "asset path becomes file URL",
			html:         `<img src="assets/image/plot.png">`,
			wantContains: []string{`src="file://`, `assets/image/plot.png"`},
		},
		{
			name:         "dot slash prefix",
			html:         `<img src="./assets/image/plot.png">`,
			wantContains: []string{`src="file://`},
		},
		{
			name:         "absolute path unchanged",
			html:         `<img src="/abs/plot.png">`,
			wantContains: []string{`src="/abs/plot.png"`},
		},
		{
			name:         "remote image unchanged",
			html:         `<img src="https://example.com/plot.png">`,
			wantContains: []string{`src="https://example.com/plot.png"`},
		},
		{
			name:         "data URL unchanged",
			html:         `<img src="data:image/png;base64,AAAA">`,
			wantContains: []string{`src="data:image/png;base64,AAAA"`},
		},
		{
			name:         "links are not rewritten",
			html:         `<a href="notes.html">notes</a>`,
			wantContains: []string{`href="notes.html"`},
			wantExcludes: []string{"file://"},
		},
		{
			name:         "traversal outside base left alone",
			html:         `<img src="../../etc/passwd">`,
			wantContains: []string{`src="../../etc/passwd"`},
			wantExcludes: []string{"file://"},
		},
		{
			name:         "attributes preserved",
			html:         `<img src="a.png" alt="A plot" class="wide">`,
			wantContains: []string{`alt="A plot"`, `class="wide"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := RewriteAssetPaths(tt.html, baseDir)
			if err != nil {
				t.Fatalf("RewriteAssetPaths() error = %v", err)
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q\ngot: %s", want, got)
				}
			}
			for _, exclude := range tt.wantExcludes {
				if strings.Contains(got, exclude) {
					t.Errorf("output contains %q\ngot: %s", exclude, got)
				}
			}
		})
	}
}

func TestRewriteAssetPaths_EmptyBaseDir(t *testing.T) {
	t.Parallel()

	in := `<img src="a.png">`
	got, err := RewriteAssetPaths(in, "")
	if err != nil {
		t.Fatalf("RewriteAssetPaths() error = %v", err)
	}
	if got != in {
		t.Errorf("RewriteAssetPaths() = %q, want input unchanged", got)
	}
}

func TestRewriteAssetPaths_FullDocument(t *testing.T) {
	t.Parallel()

	in := "<!DOCTYPE html><html><head><title>T</title></head><body><img src=\"a.png\"></body></html>"
	got, err := RewriteAssetPaths(in, t.TempDir())
	if err != nil {
		t.Fatalf("RewriteAssetPaths() error = %v", err)
	}
	if !strings.Contains(strings.ToLower(got), "<!doctype html>") {
		t.Errorf("doctype lost: %s", got)
	}
	if !strings.Contains(got, "<title>T</title>") {
		t.Errorf("head lost: %s", got)
	}
}

func TestRewriteAssetPaths_Fragment(t *testing.T) {
	t.Parallel()

	got, err := RewriteAssetPaths(`<p>text</p><img src="a.png">`, t.TempDir())
	if err != nil {
		t.Fatalf("RewriteAssetPaths() error = %v", err)
	}
	if strings.Contains(got, "<html") || strings.Contains(got, "<body") {
		t.Errorf("fragment gained a document wrapper: %s", got)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestIsRelativePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{"", false},
		{"a.png", true},
		{"assets/image/a.png", true},
		{"../a.png", true},
		{"#fig-1", false},
		{"http://x/a.png", false},
		{"https://x/a.png", false},
		{"file:///a.png", false},
		{"data:image/png;base64,AA", false},
		{"//cdn/a.png", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			if got := isRelativePath(tt.path); got != tt.want {
				t.Errorf("isRelativePath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestIsPathUnderDir(t *testing.T) {
	t.Parallel()

	dir := filepath.FromSlash("/out")
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"child", filepath.FromSlash("/out/a.png"), true},
		{"nested", filepath.FromSlash("/out/assets/image/a.png"), true},
		{"dir itself", dir, true},
		{"sibling with prefix", filepath.FromSlash("/output/a.png"), false},
		{"parent", filepath.FromSlash("/a.png"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := isPathUnderDir(tt.path, dir); got != tt.want {
				t.Errorf("isPathUnderDir(%q, %q) = %v, want %v", tt.path, dir, got, tt.want)
			}
		})
	}
}

func TestPathToFileURL(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("unix path layout")
	}
	got := pathToFileURL("/out/my plot.png")
	if want := "file:///out/my%20plot.png"; got != want {
		t.Errorf("pathToFileURL() = %q, want %q", got, want)
	}
}
