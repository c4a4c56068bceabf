package pipeline

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/alnah/go-mdxport/internal/fileutil"
)

// DefaultComponentDir is where the site keeps Image.astro and
// MultiImage.astro, relative to the output document.
const DefaultComponentDir = "../components"

const (
	excludeOpen  = "<exclude>"
	excludeClose = "</exclude>"
)

var (
	imageComponent = regexp.MustCompile(`<Image src=\{(\w+)\}(?: \w+="[^"]*")* zoomable downloadable />`)
	multiImage     = regexp.MustCompile(`(?s)<MultiImage\n  images=\{\[\n(.*?)  \]\}\n(.*?)/>`)
	multiEntry     = regexp.MustCompile(`^    \{ src: (\w+)\b`)
	layoutLine     = regexp.MustCompile(`(?m)^  layout="[^"]*"$`)
	variableUse    = regexp.MustCompile(`(?:src=\{|src: )(\w+)\b`)
	componentUse   = regexp.MustCompile(`<(Image|MultiImage)\b`)
)

// FinalizeOptions configures assembly of the MDX document.
type FinalizeOptions struct {
	// ComponentDir prefixes component imports. Defaults to DefaultComponentDir.
	ComponentDir string
	// OutputDir holds the document and its assets. Empty skips the dangling
	// asset check.
	OutputDir string
	// Exists reports whether an asset file is present. Defaults to
	// fileutil.FileExists.
	Exists func(path string) bool
}

// Finalize drops excluded blocks and components pointing at missing assets,
// then writes front matter, the import block and the body. Only imports
// still referenced by the body are emitted.
func Finalize(c *Context, fm FrontMatter, body string, opts FinalizeOptions) (string, Stats, error) {
	var st Stats
	body, st.Excluded = removeExcluded(body)
	if st.Excluded > 0 {
		c.Log.Debug("removed %d excluded blocks", st.Excluded)
	}

	if opts.OutputDir != "" {
		exists := opts.Exists
		if exists == nil {
			exists = fileutil.FileExists
		}
		missing := make(map[string]bool)
		for _, img := range c.Imports.Images() {
			if !exists(filepath.Join(opts.OutputDir, filepath.FromSlash(img.Path))) {
				missing[img.Var] = true
			}
		}
		if len(missing) > 0 {
			body, st.Dangling = stripDangling(body, missing)
			c.Log.Warn("removed %d image references with no asset file", st.Dangling)
		}
	}

	body = mapProse(body, compressBlankLines)

	head, err := fm.Encode()
	if err != nil {
		return "", st, err
	}
	imports := composeImports(c.Imports, body, opts.ComponentDir)

	var b strings.Builder
	b.WriteString(head)
	for _, line := range imports {
		b.WriteString(line + "\n")
	}
	if body = strings.TrimSpace(body); body != "" {
		b.WriteString("\n" + body + "\n")
	}
	return b.String(), st, nil
}

// removeExcluded deletes <exclude> blocks, nested ones included. An
// unclosed marker runs to the end of the text.
func removeExcluded(s string) (string, int) {
	if !strings.Contains(s, excludeOpen) {
		return strings.ReplaceAll(s, excludeClose, ""), 0
	}
	var b strings.Builder
	count, depth := 0, 0
	for len(s) > 0 {
		open := strings.Index(s, excludeOpen)
		if depth == 0 {
			if open == -1 {
				b.WriteString(s)
				break
			}
			b.WriteString(s[:open])
			s = s[open+len(excludeOpen):]
			depth, count = 1, count+1
			continue
		}
		closing := strings.Index(s, excludeClose)
		if closing == -1 {
			break
		}
		if open != -1 && open < closing {
			depth++
			s = s[open+len(excludeOpen):]
			continue
		}
		depth--
		s = s[closing+len(excludeClose):]
	}
	return strings.ReplaceAll(b.String(), excludeClose, ""), count
}

// stripDangling removes Image components and MultiImage entries whose
// variable is in missing. A MultiImage left with one entry keeps its
// cluster form with the layout recomputed; one left with none is removed.
func stripDangling(s string, missing map[string]bool) (string, int) {
	count := 0
	s = imageComponent.ReplaceAllStringFunc(s, func(m string) string {
		if v := imageComponent.FindStringSubmatch(m)[1]; missing[v] {
			count++
			return ""
		}
		return m
	})
	s = multiImage.ReplaceAllStringFunc(s, func(m string) string {
		parts := multiImage.FindStringSubmatch(m)
		var kept []string
		for _, line := range strings.SplitAfter(parts[1], "\n") {
			if line == "" {
				continue
			}
			if e := multiEntry.FindStringSubmatch(line); e != nil && missing[e[1]] {
				count++
				continue
			}
			kept = append(kept, line)
		}
		if len(kept) == 0 {
			return ""
		}
		rest := layoutLine.ReplaceAllString(parts[2], `  layout="`+layoutFor(len(kept))+`"`)
		return "<MultiImage\n  images={[\n" + strings.Join(kept, "") + "  ]}\n" + rest + "/>"
	})
	return s, count
}

// composeImports returns component imports followed by image imports,
// limited to what body references.
func composeImports(t *ImportTable, body, componentDir string) []string {
	if componentDir == "" {
		componentDir = DefaultComponentDir
	}
	usedComponents := make(map[string]bool)
	for _, m := range componentUse.FindAllStringSubmatch(body, -1) {
		usedComponents[m[1]] = true
	}
	usedVars := make(map[string]bool)
	for _, m := range variableUse.FindAllStringSubmatch(body, -1) {
		usedVars[m[1]] = true
	}

	var lines []string
	for _, name := range t.Components() {
		if usedComponents[name] {
			lines = append(lines, "import "+name+" from '"+componentPath(componentDir, name)+"';")
		}
	}
	for _, img := range t.Images() {
		if usedVars[img.Var] {
			lines = append(lines, "import "+img.Var+" from '"+importPath(img.Path)+"';")
		}
	}
	return lines
}

func importPath(p string) string {
	p = path.Clean(filepath.ToSlash(p))
	if strings.HasPrefix(p, "../") {
		return p
	}
	return "./" + p
}

// componentPath joins dir and the component file, keeping a leading "./"
// that path.Join would drop. Alias prefixes such as "@components" pass
// through.
func componentPath(dir, name string) string {
	p := path.Join(dir, name+".astro")
	if strings.HasPrefix(dir, "./") {
		return "./" + p
	}
	return p
}
