package main

import (
	"io"
	"testing"
)

func TestParseImportFlags(t *testing.T) {
	t.Parallel()

	f, args, err := parseImportFlags([]string{
		"-i", "thesis", "-o", "site", "--clean", "--convert-only", "--metadata", "meta.yaml",
		"-c", "blog", "--asset-path", "assets", "--proof", "--proof-pdf", "--notion-token", "tok",
		"-v", "extra.md",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseImportFlags() error = %v", err)
	}

	if f.input != "thesis" || f.output != "site" || !f.clean || !f.mode.convertOnly {
		t.Errorf("flags = %+v", f)
	}
	if f.metadata != "meta.yaml" || f.common.config != "blog" || f.assetPath != "assets" || f.notionToken != "tok" {
		t.Errorf("flags = %+v", f)
	}
	if !f.proof.html || !f.proof.pdf || !f.common.verbose || f.common.quiet {
		t.Errorf("flags = %+v", f)
	}
	if len(args) != 1 || args[0] != "extra.md" {
		t.Errorf("args = %v, want [extra.md]", args)
	}
}

func TestParseImportFlags_Unknown(t *testing.T) {
	t.Parallel()

	if _, _, err := parseImportFlags([]string{"--workers", "4"}, io.Discard); err == nil {
		t.Error("unknown flag should fail")
	}
}
