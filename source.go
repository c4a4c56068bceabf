package mdxport

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/alnah/go-mdxport/internal/fileutil"
	"github.com/alnah/go-mdxport/internal/logger"
)

// SourceKind identifies what an input path points at.
type SourceKind int

const (
	SourceLaTeX SourceKind = iota
	SourceMarkdown
	SourceNotionHTML
	SourceNotionPage
)

func (k SourceKind) String() string {
	switch k {
	case SourceLaTeX:
		return "latex"
	case SourceMarkdown:
		return "markdown"
	case SourceNotionHTML:
		return "notion-html"
	default:
		return "notion"
	}
}

// NotionPrefix marks a Notion page id given as input.
const NotionPrefix = "notion:"

const maxIncludeDepth = 32

var (
	includeCommand = regexp.MustCompile(`\\(input|include)\s*\{([^{}]+)\}`)
	documentClass  = regexp.MustCompile(`(?m)^[^%\n]*\\documentclass\b`)
	slugUnsafe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// source is a resolved input.
type source struct {
	kind SourceKind
	path string // main file, or the page id for SourceNotionPage
	dir  string // directory relative references resolve against
	slug string
}

// resolveSource classifies path and finds the main file of a directory.
func resolveSource(path string) (source, error) {
	if id, ok := strings.CutPrefix(path, NotionPrefix); ok {
		id = strings.ReplaceAll(strings.TrimSpace(id), "-", "")
		if id == "" {
			return source{}, fmt.Errorf("%w: empty Notion page id", ErrUnsupportedInput)
		}
		return source{kind: SourceNotionPage, path: id, slug: "notion-" + id[:min(8, len(id))]}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return source{}, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return source{}, fmt.Errorf("%w: %v", ErrReadSource, err)
	}
	if info.IsDir() {
		return resolveDir(path)
	}

	kind, ok := kindForFile(path)
	if !ok {
		return source{}, fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
	}
	return source{kind: kind, path: path, dir: filepath.Dir(path), slug: Slugify(fileutil.Stem(path))}, nil
}

// DetectKind reports the kind of source at path, resolving a directory to
// its main file the way Convert does.
func DetectKind(path string) (SourceKind, error) {
	src, err := resolveSource(path)
	if err != nil {
		return 0, err
	}
	return src.kind, nil
}

func kindForFile(path string) (SourceKind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tex", ".latex":
		return SourceLaTeX, true
	case ".md", ".markdown":
		return SourceMarkdown, true
	case ".html", ".htm":
		return SourceNotionHTML, true
	}
	return 0, false
}

// resolveDir picks the main file of a LaTeX tree or a Notion export. A
// .tex file with \documentclass wins, main.tex first; otherwise the
// directory's single top-level .html page.
func resolveDir(dir string) (source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return source{}, fmt.Errorf("%w: %v", ErrReadSource, err)
	}

	var texFiles, htmlFiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch kind, ok := kindForFile(e.Name()); {
		case ok && kind == SourceLaTeX:
			texFiles = append(texFiles, e.Name())
		case ok && kind == SourceNotionHTML:
			htmlFiles = append(htmlFiles, e.Name())
		}
	}

	slices.SortFunc(texFiles, func(a, b string) int {
		if a == "main.tex" {
			return -1
		}
		if b == "main.tex" {
			return 1
		}
		return strings.Compare(a, b)
	})
	for _, name := range texFiles {
		p := filepath.Join(dir, name)
		data, err := os.ReadFile(p) // #nosec G304 -- file in the input tree
		if err != nil {
			continue
		}
		if documentClass.Match(data) {
			return source{kind: SourceLaTeX, path: p, dir: dir, slug: Slugify(filepath.Base(dir))}, nil
		}
	}

	if len(htmlFiles) > 0 {
		slices.Sort(htmlFiles)
		p := filepath.Join(dir, htmlFiles[0])
		return source{kind: SourceNotionHTML, path: p, dir: dir, slug: Slugify(fileutil.Stem(p))}, nil
	}

	return source{}, fmt.Errorf("%w: no main .tex or .html file in %s", ErrUnsupportedInput, dir)
}

// Slugify lowercases s and joins its ASCII letters and digits with hyphens.
// Accented letters lose their marks. Notion export names end with a 32-hex
// page id, which is dropped.
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	slug := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(b.String()), "-"), "-")
	if i := strings.LastIndexByte(slug, '-'); i > 0 && isNotionID(slug[i+1:]) {
		slug = slug[:i]
	}
	if slug == "" {
		return "article"
	}
	return slug
}

func isNotionID(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// loadLaTeX reads the main file and splices in \input and \include
// targets, resolved against the main file's directory the way LaTeX does.
// Missing files and include cycles leave the command in place.
func loadLaTeX(mainPath string, log logger.Logger) (string, error) {
	data, err := os.ReadFile(mainPath) // #nosec G304 -- user-provided input
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadSource, err)
	}
	root := filepath.Dir(mainPath)
	abs, _ := filepath.Abs(mainPath)
	return expandIncludes(string(data), root, map[string]bool{abs: true}, 0, log), nil
}

func expandIncludes(text, root string, active map[string]bool, depth int, log logger.Logger) string {
	if depth >= maxIncludeDepth {
		log.Warn("include depth %d reached, stopping expansion", maxIncludeDepth)
		return text
	}
	var b strings.Builder
	last := 0
	for _, loc := range includeCommand.FindAllStringSubmatchIndex(text, -1) {
		m := text[loc[0]:loc[1]]
		b.WriteString(text[last:loc[0]])
		last = loc[1]
		if commentedOut(text, loc[0]) {
			b.WriteString(m)
			continue
		}
		command := text[loc[2]:loc[3]]
		target := strings.TrimSpace(text[loc[4]:loc[5]])
		if filepath.Ext(target) == "" {
			target += ".tex"
		}
		p := filepath.Join(root, filepath.FromSlash(target))
		abs, _ := filepath.Abs(p)
		if active[abs] {
			log.Warn("include cycle at %s, left as is", target)
			b.WriteString(m)
			continue
		}
		data, err := os.ReadFile(p) // #nosec G304 -- file in the input tree
		if err != nil {
			log.Warn("cannot %s %s: %v", command, target, err)
			b.WriteString(m)
			continue
		}
		active[abs] = true
		body := expandIncludes(string(data), root, active, depth+1, log)
		delete(active, abs)
		if command == "include" {
			body = "\n" + body + "\n"
		}
		b.WriteString(body)
	}
	b.WriteString(text[last:])
	return b.String()
}

// commentedOut reports whether an unescaped % precedes pos on its line.
func commentedOut(text string, pos int) bool {
	start := strings.LastIndexByte(text[:pos], '\n') + 1
	line := text[start:pos]
	for i := 0; i < len(line); i++ {
		if line[i] == '\\' {
			i++
			continue
		}
		if line[i] == '%' {
			return true
		}
	}
	return false
}
