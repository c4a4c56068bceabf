package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mdxport "github.com/alnah/go-mdxport"
)

// inputFile is one document of a batch.
type inputFile struct {
	Path string
	Kind mdxport.SourceKind
}

// discoverInputs expands every input into the documents it holds.
// A notion:<id> input or a file is one document. A directory that is a
// LaTeX project is one document; any other directory contributes its
// Markdown and HTML files and its LaTeX project subdirectories.
func discoverInputs(inputs []string) ([]inputFile, error) {
	var files []inputFile
	for _, in := range inputs {
		found, err := discover(in)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func discover(path string) ([]inputFile, error) {
	if strings.HasPrefix(path, mdxport.NotionPrefix) {
		kind, err := mdxport.DetectKind(path)
		if err != nil {
			return nil, err
		}
		return []inputFile{{Path: path, Kind: kind}}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", mdxport.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("accessing input: %w", err)
	}

	if !info.IsDir() {
		kind, err := mdxport.DetectKind(path)
		if err != nil {
			return nil, err
		}
		return []inputFile{{Path: path, Kind: kind}}, nil
	}

	if kind, err := mdxport.DetectKind(path); err == nil && kind == mdxport.SourceLaTeX {
		return []inputFile{{Path: path, Kind: kind}}, nil
	}
	return discoverDir(path)
}

// discoverDir lists the documents of a batch directory in name order.
// Loose .tex files are skipped: a directory without a \documentclass file
// only holds fragments.
func discoverDir(dir string) ([]inputFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var files []inputFile
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if kind, err := mdxport.DetectKind(p); err == nil && kind == mdxport.SourceLaTeX {
				files = append(files, inputFile{Path: p, Kind: kind})
			}
			continue
		}
		if !isDocumentFile(e.Name()) {
			continue
		}
		if kind, err := mdxport.DetectKind(p); err == nil {
			files = append(files, inputFile{Path: p, Kind: kind})
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: nothing to import in %s", mdxport.ErrUnsupportedInput, dir)
	}
	return files, nil
}

func isDocumentFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}
