package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mdxport "github.com/alnah/go-mdxport"
)

// ---------------------------------------------------------------------------
// Test Infrastructure - Fake importer
// ---------------------------------------------------------------------------

// fakeImporter records inputs and fails documents named in fail.
type fakeImporter struct {
	inputs    []mdxport.Input
	fail      map[string]error
	pandocErr error
	checked   bool
	closed    bool
}

func (f *fakeImporter) Convert(_ context.Context, in mdxport.Input) (*mdxport.Result, error) {
	f.inputs = append(f.inputs, in)
	if err := f.fail[filepath.Base(in.Path)]; err != nil {
		return nil, err
	}
	slug := strings.TrimSuffix(filepath.Base(in.Path), filepath.Ext(in.Path))
	return &mdxport.Result{
		Slug:    slug,
		MDXPath: filepath.Join(in.OutputDir, slug+".mdx"),
		Stats:   mdxport.Stats{Images: 2},
	}, nil
}

func (f *fakeImporter) CheckPandoc() error {
	f.checked = true
	return f.pandocErr
}

func (f *fakeImporter) Close() error {
	f.closed = true
	return nil
}

// testEnv returns an environment whose importer is imp.
func testEnv(imp *fakeImporter) (*Environment, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &Environment{
		Now:    func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) },
		Stdout: &stdout,
		Stderr: &stderr,
		NewImporter: func(...mdxport.Option) (Importer, error) {
			return imp, nil
		},
	}, &stdout, &stderr
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// latexProject writes a directory with a main file.
func latexProject(t *testing.T, dir string) string {
	t.Helper()
	writeFile(t, filepath.Join(dir, "main.tex"), "\\documentclass{article}\n\\begin{document}\nx\n\\end{document}\n")
	return dir
}
