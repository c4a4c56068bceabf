package pipeline

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/alnah/go-mdxport/internal/dateutil"
	"github.com/alnah/go-mdxport/internal/yamlutil"
)

// DefaultTitle is used when neither the source nor the override names one.
const DefaultTitle = "Untitled article"

// Author is one front-matter author entry.
type Author struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url,omitempty"`
	Affiliations []int  `yaml:"affiliations,omitempty"`
}

// UnmarshalYAML accepts a bare name as well as the mapping form.
func (a *Author) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		*a = Author{Name: name}
		return nil
	}
	type plain Author
	return unmarshal((*plain)(a))
}

// Affiliation is one front-matter affiliation entry.
type Affiliation struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url,omitempty"`
}

// UnmarshalYAML accepts a bare name as well as the mapping form.
func (a *Affiliation) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		*a = Affiliation{Name: name}
		return nil
	}
	type plain Affiliation
	return unmarshal((*plain)(a))
}

// FrontMatter is the metadata block written at the top of the document.
type FrontMatter struct {
	Title                       string        `yaml:"title,omitempty"`
	Subtitle                    string        `yaml:"subtitle,omitempty"`
	Description                 string        `yaml:"description,omitempty"`
	Authors                     []Author      `yaml:"authors,omitempty"`
	Affiliations                []Affiliation `yaml:"affiliations,omitempty"`
	Published                   string        `yaml:"published,omitempty"`
	Tags                        []string      `yaml:"tags,omitempty"`
	Bibliography                string        `yaml:"bibliography,omitempty"`
	TableOfContentsAutoCollapse *bool         `yaml:"tableOfContentsAutoCollapse,omitempty"`

	// Extra holds override keys with no field above, written after them.
	Extra map[string]any `yaml:"-"`
}

var knownFrontMatterKeys = map[string]bool{
	"title": true, "subtitle": true, "description": true, "authors": true,
	"affiliations": true, "published": true, "tags": true, "bibliography": true,
	"tableOfContentsAutoCollapse": true,
}

// ParseFrontMatter decodes a YAML override. Keys without a field are kept
// in Extra and written back unchanged.
func ParseFrontMatter(data []byte) (FrontMatter, error) {
	var fm FrontMatter
	if err := yamlutil.Unmarshal(data, &fm); err != nil {
		return FrontMatter{}, fmt.Errorf("front matter: %w", err)
	}
	var all map[string]any
	if err := yamlutil.Unmarshal(data, &all); err != nil {
		return FrontMatter{}, fmt.Errorf("front matter: %w", err)
	}
	for k, v := range all {
		if knownFrontMatterKeys[k] {
			continue
		}
		if fm.Extra == nil {
			fm.Extra = make(map[string]any)
		}
		fm.Extra[k] = v
	}
	return fm, nil
}

// Encode renders the front matter between "---" fences with a fixed key
// order.
func (fm FrontMatter) Encode() (string, error) {
	var fields []yamlutil.Field
	add := func(key string, v any, present bool) {
		if present {
			fields = append(fields, yamlutil.Field{Key: key, Value: v})
		}
	}
	add("title", fm.Title, fm.Title != "")
	add("subtitle", fm.Subtitle, fm.Subtitle != "")
	add("description", fm.Description, fm.Description != "")
	add("authors", fm.Authors, len(fm.Authors) > 0)
	add("affiliations", fm.Affiliations, len(fm.Affiliations) > 0)
	add("published", fm.Published, fm.Published != "")
	add("tags", fm.Tags, len(fm.Tags) > 0)
	add("bibliography", fm.Bibliography, fm.Bibliography != "")
	if fm.TableOfContentsAutoCollapse != nil {
		add("tableOfContentsAutoCollapse", *fm.TableOfContentsAutoCollapse, true)
	}

	keys := make([]string, 0, len(fm.Extra))
	for k := range fm.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, fm.Extra[k], true)
	}
	return yamlutil.EncodeFrontMatter(yamlutil.Ordered(fields))
}

// MergeFrontMatter combines sources field by field. Earlier sources win:
// pass the static override first, then extracted fields, then defaults.
func MergeFrontMatter(sources ...FrontMatter) FrontMatter {
	var out FrontMatter
	for i := len(sources) - 1; i >= 0; i-- {
		s := sources[i]
		if s.Title != "" {
			out.Title = s.Title
		}
		if s.Subtitle != "" {
			out.Subtitle = s.Subtitle
		}
		if s.Description != "" {
			out.Description = s.Description
		}
		if len(s.Authors) > 0 {
			out.Authors = s.Authors
		}
		if len(s.Affiliations) > 0 {
			out.Affiliations = s.Affiliations
		}
		if s.Published != "" {
			out.Published = s.Published
		}
		if len(s.Tags) > 0 {
			out.Tags = s.Tags
		}
		if s.Bibliography != "" {
			out.Bibliography = s.Bibliography
		}
		if s.TableOfContentsAutoCollapse != nil {
			v := *s.TableOfContentsAutoCollapse
			out.TableOfContentsAutoCollapse = &v
		}
		for k, v := range s.Extra {
			if out.Extra == nil {
				out.Extra = make(map[string]any)
			}
			out.Extra[k] = v
		}
	}
	return out
}

// DefaultFrontMatter holds the computed defaults: placeholder title, the
// given date formatted with layout, and collapsible table of contents.
func DefaultFrontMatter(now time.Time, layout string) (FrontMatter, error) {
	published, err := dateutil.Format(layout, now)
	if err != nil {
		return FrontMatter{}, err
	}
	collapse := true
	return FrontMatter{
		Title:                       DefaultTitle,
		Published:                   published,
		TableOfContentsAutoCollapse: &collapse,
	}, nil
}

// SynthesizeFrontMatter merges override, extracted and defaults, then
// gives every author without affiliations the default index 1.
func SynthesizeFrontMatter(override, extracted, defaults FrontMatter) FrontMatter {
	fm := MergeFrontMatter(override, extracted, defaults)
	fm.Authors = slices.Clone(fm.Authors)
	for i := range fm.Authors {
		if len(fm.Authors[i].Affiliations) == 0 {
			fm.Authors[i].Affiliations = []int{1}
		}
	}
	return fm
}

// ---------------------------------------------------------------------------
// LaTeX extraction
// ---------------------------------------------------------------------------

var (
	dateLayouts = []string{
		"2006-01-02", "January 2, 2006", "January 2006", "2 January 2006",
		"Jan 2, 2006", "02/01/2006", "2006",
	}
	affiliationMarkers = []string{"inst", "textsuperscript", "thanks", "footnote"}
	affmarkMarker      = regexp.MustCompile(`\\affmark\s*(?:\[([^\]]*)\])?`)
	superscriptMarker  = regexp.MustCompile(`\$?\^(?:\{([^{}]*)\}|([0-9a-z,*]+))\$?`)
	keywordSeparators  = regexp.MustCompile(`\s*(?:[,;]|\\sep\b|\\and\b|\\quad\b)\s*`)
)

// ExtractLaTeXFrontMatter reads title, authors, affiliations, date,
// keywords and abstract from a LaTeX preamble and body.
func ExtractLaTeXFrontMatter(src string) FrontMatter {
	src = stripComments(src)
	var fm FrontMatter

	if invs := findCommands(src, "title", 1); len(invs) > 0 {
		fm.Title = plainText(invs[0].Args[0])
	}
	if invs := findCommands(src, "subtitle", 1); len(invs) > 0 {
		fm.Subtitle = plainText(invs[0].Args[0])
	}

	fm.Affiliations = extractAffiliations(src)
	var lineAffiliations []string
	fm.Authors, lineAffiliations = extractAuthors(src)
	if len(fm.Affiliations) == 0 && len(lineAffiliations) > 0 {
		fm.Affiliations, fm.Authors = affiliationsFromLines(fm.Authors, lineAffiliations)
	}

	if invs := findCommands(src, "date", 1); len(invs) > 0 {
		fm.Published = extractDate(invs[0].Args[0])
	}
	fm.Tags = extractKeywords(src)
	if envs := findEnvironments(src, "abstract"); len(envs) > 0 {
		fm.Description = plainText(envs[0].Body(src))
	}
	return fm
}

func extractDate(raw string) string {
	if strings.Contains(raw, `\today`) {
		return ""
	}
	text := plainText(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			if out, err := dateutil.Format("", t); err == nil {
				return out
			}
		}
	}
	return text
}

func extractKeywords(src string) []string {
	var raw string
	if invs := findCommands(src, "keywords", 1); len(invs) > 0 {
		raw = invs[0].Args[0]
	} else if envs := findEnvironments(src, "keywords", "keyword"); len(envs) > 0 {
		raw = envs[0].Body(src)
	}
	if raw == "" {
		return nil
	}
	var tags []string
	for _, part := range keywordSeparators.Split(raw, -1) {
		if tag := plainText(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func extractAffiliations(src string) []Affiliation {
	var out []Affiliation
	// authblk: \affil[2]{Name}
	if invs := findCommands(src, "affil", 1); len(invs) > 0 {
		byIndex := make(map[int]string)
		maxIdx := 0
		for i, inv := range invs {
			idx := i + 1
			if n, err := strconv.Atoi(strings.TrimSpace(inv.Opt)); err == nil && n > 0 {
				idx = n
			}
			byIndex[idx] = plainText(inv.Args[0])
			maxIdx = max(maxIdx, idx)
		}
		for i := 1; i <= maxIdx; i++ {
			out = append(out, Affiliation{Name: byIndex[i]})
		}
		return out
	}
	// llncs: \institute{A \and B}
	if invs := findCommands(src, "institute", 1); len(invs) > 0 {
		for _, part := range splitTopLevel(invs[0].Args[0], `\and`) {
			if name := plainText(firstLine(part)); name != "" {
				out = append(out, Affiliation{Name: name})
			}
		}
		return out
	}
	// acmart, revtex: \affiliation{...}
	for _, inv := range findCommands(src, "affiliation", 1) {
		if name := plainText(inv.Args[0]); name != "" {
			out = append(out, Affiliation{Name: name})
		}
	}
	return out
}

// extractAuthors parses \author commands. It also returns, per author, the
// text of the line below the name, which article-class papers use for the
// affiliation.
func extractAuthors(src string) ([]Author, []string) {
	var authors []Author
	var lines []string
	for _, inv := range findCommands(src, "author", 1) {
		if inv.HasOpt && len(parseIndices(inv.Opt)) > 0 && !strings.Contains(inv.Args[0], `\and`) {
			name, _ := authorName(inv.Args[0])
			authors = append(authors, Author{Name: name, Affiliations: parseIndices(inv.Opt)})
			lines = append(lines, "")
			continue
		}
		for _, chunk := range splitTopLevel(inv.Args[0], `\and`) {
			rows := splitTopLevel(chunk, `\\`)
			second := ""
			if len(rows) > 1 {
				second = plainText(rows[1])
			}
			for _, piece := range splitTopLevel(rows[0], ",") {
				name, idx := authorName(piece)
				if name == "" {
					continue
				}
				authors = append(authors, Author{Name: name, Affiliations: idx})
				lines = append(lines, second)
			}
		}
	}
	return authors, lines
}

// authorName strips affiliation markers from one author and returns the
// plain name with the indices the markers carried.
func authorName(raw string) (string, []int) {
	var idx []int
	for _, name := range affiliationMarkers {
		raw, _ = replaceCommands(raw, name, 1, func(inv invocation) (string, bool) {
			if name == "inst" || name == "textsuperscript" {
				idx = append(idx, parseIndices(inv.Args[0])...)
			}
			return "", true
		})
	}
	raw = affmarkMarker.ReplaceAllStringFunc(raw, func(m string) string {
		idx = append(idx, parseIndices(affmarkMarker.FindStringSubmatch(m)[1])...)
		return ""
	})
	raw = superscriptMarker.ReplaceAllStringFunc(raw, func(m string) string {
		sub := superscriptMarker.FindStringSubmatch(m)
		idx = append(idx, parseIndices(sub[1]+sub[2])...)
		return ""
	})
	return plainText(raw), idx
}

// parseIndices reads "1,2", "1, 3" or "a,b" into 1-based indices.
func parseIndices(s string) []int {
	var out []int
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' }) {
		if n, err := strconv.Atoi(part); err == nil && n > 0 {
			out = append(out, n)
			continue
		}
		if len(part) == 1 && part[0] >= 'a' && part[0] <= 'z' {
			out = append(out, int(part[0]-'a')+1)
		}
	}
	return out
}

// affiliationsFromLines turns the per-author second lines into an
// affiliation list and indexes authors into it.
func affiliationsFromLines(authors []Author, lines []string) ([]Affiliation, []Author) {
	var affs []Affiliation
	index := make(map[string]int)
	for i, line := range lines {
		if line == "" || strings.Contains(line, "@") || i >= len(authors) {
			continue
		}
		k, ok := index[line]
		if !ok {
			affs = append(affs, Affiliation{Name: line})
			k = len(affs)
			index[line] = k
		}
		if len(authors[i].Affiliations) == 0 {
			authors[i].Affiliations = []int{k}
		}
	}
	return affs, authors
}

func firstLine(s string) string {
	return splitTopLevel(s, `\\`)[0]
}

// ---------------------------------------------------------------------------
// Plain text
// ---------------------------------------------------------------------------

var (
	accentMarks = map[byte]string{
		'\'': "\u0301", '`': "\u0300", '^': "\u0302", '"': "\u0308", '~': "\u0303",
		'=': "\u0304", '.': "\u0307", 'c': "\u0327", 'v': "\u030c", 'u': "\u0306",
		'H': "\u030b", 'r': "\u030a", 'k': "\u0328",
	}
	letterMacros = map[string]string{
		"ss": "ß", "o": "ø", "O": "Ø", "ae": "æ", "AE": "Æ", "oe": "œ", "OE": "Œ",
		"aa": "å", "AA": "Å", "l": "ł", "L": "Ł", "i": "ı",
	}
	unwrapCommands = []string{
		"textbf", "textit", "emph", "textsc", "texttt", "textrm", "textsf",
		"mbox", "text", "url", "uppercase", "MakeUppercase",
	}
	dropCommands = []struct {
		name  string
		nargs int
	}{
		{"thanks", 1}, {"footnote", 1}, {"inst", 1}, {"textsuperscript", 1},
		{"hypertarget", 2}, {"label", 1}, {"orcidlink", 1},
	}
	accentCommand = regexp.MustCompile(`\\([\x60'^"~=.]|[cvuHrk](?:\s+|\b))\s*(?:\{\s*(\\?[A-Za-z])\s*\}|(\\?[A-Za-z]))`)
	letterCommand = regexp.MustCompile(`\\(ss|ae|AE|oe|OE|aa|AA|o|O|l|L|i)\b(?:\{\})?\s?`)
	otherCommand  = regexp.MustCompile(`\\[A-Za-z]+\*?`)
	latexEscapes  = strings.NewReplacer(
		`\\`, " ", `\&`, "&", `\%`, "%", `\$`, "$", `\#`, "#", `\_`, "_",
		`\{`, "{", `\}`, "}", `\,`, " ", `\ `, " ", "~", " ",
		"``", `"`, "''", `"`, "---", "-", "--", "-",
	)
)

// plainText renders a LaTeX fragment as Unicode text in NFC form.
func plainText(s string) string {
	s = affmarkMarker.ReplaceAllString(s, "")
	for _, d := range dropCommands {
		s, _ = replaceCommands(s, d.name, d.nargs, func(invocation) (string, bool) { return "", true })
	}
	for _, name := range unwrapCommands {
		s, _ = replaceCommands(s, name, 1, func(inv invocation) (string, bool) { return inv.Args[0], true })
	}

	s = accentCommand.ReplaceAllStringFunc(s, func(m string) string {
		sub := accentCommand.FindStringSubmatch(m)
		mark := accentMarks[strings.TrimSpace(sub[1])[0]]
		base := sub[2] + sub[3]
		if base == `\i` {
			base = "i"
		}
		return strings.TrimPrefix(base, `\`) + mark
	})
	s = letterCommand.ReplaceAllStringFunc(s, func(m string) string {
		return letterMacros[letterCommand.FindStringSubmatch(m)[1]]
	})

	s = latexEscapes.Replace(s)
	s = otherCommand.ReplaceAllString(s, "")
	s = strings.NewReplacer("{", "", "}", "").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(s)
}
