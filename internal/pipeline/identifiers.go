package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// knownPrefixes are namespace prefixes stripped from labels. Only the
// "prefix:" spelling is stripped so that normalized ids are fixed points.
var knownPrefixes = []string{
	"sec", "subsec", "ssec", "chap", "ch",
	"fig", "figure", "tab", "table",
	"eq", "eqn", "equation",
	"alg", "algo", "app", "appendix", "lst",
	"thm", "lem", "def", "prop", "cor",
}

var (
	invalidIDChars  = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	repeatedHyphens = regexp.MustCompile(`-{2,}`)
)

// NormalizeIdentifier maps a LaTeX label to an anchor-safe id.
// The result is never empty and NormalizeIdentifier(NormalizeIdentifier(s))
// equals NormalizeIdentifier(s).
func NormalizeIdentifier(id string) string {
	if out := sanitizeIdentifier(stripKnownPrefix(id)); out != "" {
		return out
	}
	if out := sanitizeIdentifier(id); out != "" {
		return out
	}
	return "ref"
}

func stripKnownPrefix(id string) string {
	lower := strings.ToLower(id)
	for _, p := range knownPrefixes {
		if strings.HasPrefix(lower, p+":") {
			return id[len(p)+1:]
		}
	}
	return id
}

func sanitizeIdentifier(s string) string {
	s = strings.ReplaceAll(s, ":", "-")
	s = invalidIDChars.ReplaceAllString(s, "")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Label kinds, used for reference text.
const (
	KindSection   = "section"
	KindAppendix  = "appendix"
	KindFigure    = "figure"
	KindTable     = "table"
	KindEquation  = "equation"
	KindAlgorithm = "algorithm"
	KindListing   = "listing"
	KindTheorem   = "theorem"
)

var kindWords = map[string]string{
	KindSection:   "Section",
	KindAppendix:  "Appendix",
	KindFigure:    "Figure",
	KindTable:     "Table",
	KindEquation:  "Equation",
	KindAlgorithm: "Algorithm",
	KindListing:   "Listing",
	KindTheorem:   "Theorem",
}

// Label is one defined identifier.
type Label struct {
	Original string
	ID       string
	Kind     string
	Number   string
	Title    string
	InMath   bool
}

// RefText renders the link text a reference command shows.
func (l Label) RefText(cmd string) string {
	num := l.Number
	if num == "" {
		num = l.ID
	}
	switch cmd {
	case "eqref":
		return "(" + num + ")"
	case "cref", "Cref", "autoref":
		word := kindWords[l.Kind]
		if l.Kind == KindEquation {
			num = "(" + num + ")"
		}
		if word == "" {
			return num
		}
		return word + " " + num
	case "nameref":
		if l.Title != "" {
			return l.Title
		}
		return num
	default:
		return num
	}
}

// IdentifierMap maps original labels to normalized ids. It is built from
// the whole document before any reference is rewritten.
type IdentifierMap struct {
	labels map[string]Label
	byNorm map[string]string
	taken  map[string]string
	order  []string
}

// NewIdentifierMap creates an empty map.
func NewIdentifierMap() *IdentifierMap {
	return &IdentifierMap{
		labels: make(map[string]Label),
		byNorm: make(map[string]string),
		taken:  make(map[string]string),
	}
}

// Define records a label and returns its id. Redefining an original keeps
// the first definition. Distinct originals that normalize to the same id
// get numeric suffixes so every anchor stays unique.
func (m *IdentifierMap) Define(l Label) string {
	if prev, ok := m.labels[l.Original]; ok {
		return prev.ID
	}
	norm := NormalizeIdentifier(l.Original)
	id := norm
	for i := 2; m.taken[id] != ""; i++ {
		id = norm + "-" + strconv.Itoa(i)
	}
	l.ID = id
	m.taken[id] = l.Original
	if _, ok := m.byNorm[norm]; !ok {
		m.byNorm[norm] = l.Original
	}
	m.labels[l.Original] = l
	m.order = append(m.order, l.Original)
	return id
}

// Lookup resolves a reference key. A key spelled with a different known
// prefix than its definition still resolves.
func (m *IdentifierMap) Lookup(original string) (Label, bool) {
	if l, ok := m.labels[original]; ok {
		return l, true
	}
	if orig, ok := m.byNorm[NormalizeIdentifier(original)]; ok {
		return m.labels[orig], true
	}
	return Label{}, false
}

// Labels returns the definitions in document order.
func (m *IdentifierMap) Labels() []Label {
	out := make([]Label, 0, len(m.order))
	for _, o := range m.order {
		out = append(out, m.labels[o])
	}
	return out
}

// Len returns the number of defined labels.
func (m *IdentifierMap) Len() int { return len(m.order) }

var (
	identifierTokens = regexp.MustCompile(
		`\\(begin|end)\s*\{([^{}]+)\}` +
			`|\\(chapter|section|subsection|subsubsection)\b(\*?)` +
			`|\\(appendix)\b` +
			`|\\label\s*\{` +
			`|\\\[|\\\]|\$\$`)

	mathEnvironments = map[string]bool{
		"equation": true, "equation*": true, "align": true, "align*": true,
		"eqnarray": true, "eqnarray*": true, "gather": true, "gather*": true,
		"multline": true, "multline*": true, "flalign": true, "flalign*": true,
		"alignat": true, "alignat*": true, "displaymath": true, "math": true,
	}

	envKinds = map[string]string{
		"figure": KindFigure, "figure*": KindFigure, "wrapfigure": KindFigure,
		"table": KindTable, "table*": KindTable, "wraptable": KindTable,
		"algorithm": KindAlgorithm, "lstlisting": KindListing,
		"theorem": KindTheorem, "lemma": KindTheorem, "proposition": KindTheorem,
		"corollary": KindTheorem, "definition": KindTheorem,
	}

	prefixKinds = map[string]string{
		"sec": KindSection, "subsec": KindSection, "ssec": KindSection,
		"chap": KindSection, "ch": KindSection,
		"fig": KindFigure, "figure": KindFigure,
		"tab": KindTable, "table": KindTable,
		"eq": KindEquation, "eqn": KindEquation, "equation": KindEquation,
		"alg": KindAlgorithm, "algo": KindAlgorithm,
		"app": KindAppendix, "appendix": KindAppendix,
		"lst": KindListing,
		"thm": KindTheorem, "lem": KindTheorem, "def": KindTheorem,
		"prop": KindTheorem, "cor": KindTheorem,
	}

	referenceCommands = []string{"ref", "eqref", "cref", "Cref", "autoref", "pageref", "nameref"}
	citeCommands      = []string{"cite", "citep", "citet", "citealp", "citeauthor", "citeyear"}
)

// numbering tracks LaTeX counters while scanning.
type numbering struct {
	sections   [4]int // chapter, section, subsection, subsubsection
	chapters   bool
	appendix   bool
	counters   map[string]int
	subfigures int
}

func (n *numbering) section(level int) {
	if level == 0 {
		n.chapters = true
	}
	n.sections[level]++
	for i := level + 1; i < len(n.sections); i++ {
		n.sections[i] = 0
	}
}

func (n *numbering) sectionNumber() string {
	start := 1
	if n.chapters {
		start = 0
	}
	last := -1
	for i := start; i < len(n.sections); i++ {
		if n.sections[i] > 0 {
			last = i
		}
	}
	if last == -1 {
		return ""
	}
	parts := make([]string, 0, last-start+1)
	for i := start; i <= last; i++ {
		v := n.sections[i]
		if i == start && n.appendix {
			parts = append(parts, string(rune('A'+max(v, 1)-1)))
			continue
		}
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, ".")
}

var sectionLevels = map[string]int{"chapter": 0, "section": 1, "subsection": 2, "subsubsection": 3}

// scanLabels walks src once, recording every \label with its kind and
// number, and whether it sits in math.
func scanLabels(c *Context, src string) Stats {
	var st Stats
	num := numbering{counters: make(map[string]int)}
	var stack []string
	inBracket, inDollar := false, false
	lastTitle := ""

	for _, m := range identifierTokens.FindAllStringSubmatchIndex(src, -1) {
		start := m[0]
		if isEscaped(src, start) {
			continue
		}
		tok := src[m[0]:m[1]]
		switch {
		case m[2] != -1:
			name := src[m[4]:m[5]]
			if src[m[2]:m[3]] == "begin" {
				stack = append(stack, name)
				if kind, ok := envKinds[name]; ok {
					num.counters[kind]++
					if kind == KindFigure {
						num.subfigures = 0
					}
				}
				if name == "subfigure" {
					num.subfigures++
				}
			} else if n := len(stack); n > 0 && stack[n-1] == name {
				stack = stack[:n-1]
			}
		case m[6] != -1:
			level := sectionLevels[src[m[6]:m[7]]]
			rest := m[1]
			if _, end, ok := readBracketed(src, rest); ok {
				rest = end
			}
			title, _, _ := readBraced(src, rest)
			lastTitle = strings.TrimSpace(title)
			if src[m[8]:m[9]] != "*" {
				num.section(level)
			}
		case m[10] != -1:
			num.appendix = true
			num.sections = [4]int{}
		case tok == `\[`:
			inBracket = true
		case tok == `\]`:
			inBracket = false
		case tok == "$$":
			inDollar = !inDollar
		default:
			key, _, ok := readBraced(src, m[1]-1)
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			inMath := inBracket || inDollar || anyMath(stack)
			kind, number := labelKind(&num, stack, inMath, key)
			title := ""
			if kind == KindSection || kind == KindAppendix {
				title = lastTitle
			}
			c.IDs.Define(Label{Original: key, Kind: kind, Number: number, Title: title, InMath: inMath})
			st.Labels++
		}
	}
	return st
}

func anyMath(stack []string) bool {
	for _, e := range stack {
		if mathEnvironments[e] {
			return true
		}
	}
	return false
}

func labelKind(num *numbering, stack []string, inMath bool, key string) (string, string) {
	if inMath {
		num.counters[KindEquation]++
		return KindEquation, strconv.Itoa(num.counters[KindEquation])
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == "subfigure" {
			return KindFigure, fmt.Sprintf("%d%c", num.counters[KindFigure], 'a'+max(num.subfigures, 1)-1)
		}
		if kind, ok := envKinds[stack[i]]; ok {
			return kind, strconv.Itoa(num.counters[kind])
		}
	}
	if p, _, ok := strings.Cut(key, ":"); ok {
		if kind, ok := prefixKinds[strings.ToLower(p)]; ok && kind != KindSection && kind != KindAppendix {
			num.counters[kind]++
			return kind, strconv.Itoa(num.counters[kind])
		}
	}
	if num.appendix {
		return KindAppendix, num.sectionNumber()
	}
	return KindSection, num.sectionNumber()
}

// NormalizeIdentifiers builds the document's IdentifierMap and rewrites
// labels into anchors and references into links. Labels in math become
// \eqanchor sentinels placed by the cleaner after conversion.
func NormalizeIdentifiers(c *Context, src string) (string, Stats) {
	st := scanLabels(c, stripComments(src))

	out, _ := replaceCommands(src, "label", 1, func(inv invocation) (string, bool) {
		l, ok := c.IDs.Lookup(strings.TrimSpace(inv.Args[0]))
		if !ok {
			return "", false
		}
		if l.InMath {
			return `\eqanchor{` + l.ID + `}`, true
		}
		return `\hypertarget{` + l.ID + `}{}`, true
	})

	for _, cmd := range referenceCommands {
		out, _ = replaceCommands(out, cmd, 1, func(inv invocation) (string, bool) {
			links, ok := resolveReferences(c, cmd, inv.Args[0])
			if !ok {
				st.Unresolved++
				c.Log.Debug("unresolved \\%s{%s}", cmd, inv.Args[0])
				return "", false
			}
			st.References++
			return links, true
		})
	}

	st.Citations = collectCitations(c, out)
	if st.Unresolved > 0 {
		c.Log.Warn("%d unresolved references left as text", st.Unresolved)
	}
	return out, st
}

func resolveReferences(c *Context, cmd, keys string) (string, bool) {
	var links []string
	for _, key := range strings.Split(keys, ",") {
		l, ok := c.IDs.Lookup(strings.TrimSpace(key))
		if !ok {
			return "", false
		}
		links = append(links, `\hyperlink{`+l.ID+`}{`+l.RefText(cmd)+`}`)
	}
	return strings.Join(links, ", "), true
}

func collectCitations(c *Context, src string) int {
	seen := make(map[string]bool, len(c.Citations))
	for _, k := range c.Citations {
		seen[k] = true
	}
	n := 0
	for _, cmd := range citeCommands {
		for _, inv := range findCommands(src, cmd, 1) {
			for _, key := range strings.Split(inv.Args[0], ",") {
				key = strings.TrimSpace(key)
				if key == "" {
					continue
				}
				n++
				if !seen[key] {
					seen[key] = true
					c.Citations = append(c.Citations, key)
				}
			}
		}
	}
	return n
}
