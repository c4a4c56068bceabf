package mdxport

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/alnah/go-mdxport/internal/logger"
)

// BibliographyFile is the name of the cleaned bibliography in the output.
const BibliographyFile = "bibliography.bib"

var (
	bibCommand = regexp.MustCompile(`\\(?:bibliography|addbibresource)\s*(?:\[[^\]]*\])?\s*\{([^{}]+)\}`)
	localField = regexp.MustCompile(`(?im)^[ \t]*(?:file|localfile|pdf)[ \t]*=[ \t]*`)
)

// findBibliographies returns the .bib files a LaTeX source names, resolved
// against dir. Without \bibliography or \addbibresource every .bib file in
// dir is used.
func findBibliographies(latex, dir string) []string {
	var out []string
	for _, m := range bibCommand.FindAllStringSubmatch(latex, -1) {
		for _, name := range strings.Split(m[1], ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if filepath.Ext(name) == "" {
				name += ".bib"
			}
			p := filepath.Join(dir, filepath.FromSlash(name))
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.bib"))
	slices.Sort(matches)
	return matches
}

// cleanBibTeX removes fields holding local file paths (file, localfile,
// pdf) that reference managers add. Values may be braced, quoted or bare.
func cleanBibTeX(s string) (string, int) {
	var b strings.Builder
	removed, last := 0, 0
	for _, loc := range localField.FindAllStringIndex(s, -1) {
		if loc[0] < last {
			continue
		}
		end := skipBibValue(s, loc[1])
		if end < len(s) && s[end] == ',' {
			end++
		}
		for end < len(s) && (s[end] == ' ' || s[end] == '\t') {
			end++
		}
		if end < len(s) && s[end] == '\n' {
			end++
		}
		b.WriteString(s[last:loc[0]])
		last = end
		removed++
	}
	b.WriteString(s[last:])
	return b.String(), removed
}

// skipBibValue returns the index just past a field value starting at i:
// the top-level comma or the entry's closing brace.
func skipBibValue(s string, i int) int {
	depth := 0
	quoted := false
	for ; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		case '"':
			if depth == 0 {
				quoted = !quoted
			}
		case ',':
			if depth == 0 && !quoted {
				return i
			}
		}
	}
	return i
}

// writeBibliography cleans and concatenates bibs into outDir. It returns
// the written path, or "" when there was nothing to write.
func writeBibliography(bibs []string, outDir string, log logger.Logger) (string, error) {
	var parts []string
	for _, p := range bibs {
		data, err := os.ReadFile(p) // #nosec G304 -- file in the input tree
		if err != nil {
			log.Warn("bibliography %s not readable: %v", p, err)
			continue
		}
		cleaned, n := cleanBibTeX(string(data))
		if n > 0 {
			log.Debug("%s: removed %d local file fields", filepath.Base(p), n)
		}
		parts = append(parts, strings.TrimSpace(cleaned))
	}
	if len(parts) == 0 {
		return "", nil
	}

	dst := filepath.Join(outDir, BibliographyFile)
	if err := os.WriteFile(dst, []byte(strings.Join(parts, "\n\n")+"\n"), 0o644); err != nil { // #nosec G306 -- published with the site
		return "", fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return dst, nil
}
