package pipeline

import (
	"regexp"
	"strings"
)

// CleanerPasses returns the repairs applied to converter output, in order.
// Every pass is idempotent and the sequence as a whole is too:
// Clean(Clean(t)) == Clean(t). Smart punctuation is plain ASCII before
// comments are removed, orphan labels become equation anchors before
// anchors are placed, bracketed spans become HTML before braces are
// escaped, and blank lines are compressed last.
func CleanerPasses() []Pass {
	return []Pass{
		proseTextPass("replaceSmartPunctuation", replaceSmartPunctuation),
		proseTextPass("removeHTMLComments", removeHTMLComments),
		proseTextPass("unescapeMarkers", unescapeMarkers),
		proseMathPass("removeGroupingCommands", removeGroupingCommands),
		proseMathPass("simplifyBracketDelimiters", simplifyBracketDelimiters),
		proseTextPass("stripOrphanLabels", stripOrphanLabels),
		proseTextPass("placeEquationAnchors", placeEquationAnchors),
		proseMathPass("fixMathCommands", fixMathCommands),
		proseMathPass("expandMatrixShorthand", expandMatrixShorthand),
		proseTextPass("splitDisplayMath", splitDisplayMath),
		proseTextPass("hyphenateColonAttributes", hyphenateColonAttributes),
		proseTextPass("convertBracketedAnchors", convertBracketedAnchors),
		proseTextPass("dedupeAnchors", dedupeAnchors),
		proseTextPass("escapeBraces", escapeBraces),
		proseTextPass("normalizeListMarkers", normalizeListMarkers),
		proseTextPass("continueQuoteMarkers", continueQuoteMarkers),
		proseTextPass("compressBlankLines", compressBlankLines),
	}
}

// Clean repairs converter artifacts in Markdown text.
func Clean(c *Context, text string) (string, Stats) {
	return RunPasses(c, text, CleanerPasses())
}

// proseTextPass applies fn outside fenced code blocks.
func proseTextPass(name string, fn func(string) string) Pass {
	return textPass(name, func(s string) string { return mapProse(s, fn) })
}

// proseMathPass applies fn to math spans outside fenced code blocks.
func proseMathPass(name string, fn func(string) string) Pass {
	return proseTextPass(name, func(s string) string {
		return mapMath(s, func(body string, _ bool) string { return fn(body) })
	})
}

var (
	htmlComment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	escapedMarker  = regexp.MustCompile(`\\?<(/?)exclude\\?>`)
	eqAnchorInMath = regexp.MustCompile(`\\eqanchor\s*\{([^{}]*)\}`)
	bracketedSpan  = regexp.MustCompile(`\[([^\[\]]*)\]\{#([^{}\s]+)\}`)
	anchorSpan     = regexp.MustCompile(`<span id="([^"]+)"(?: class="[^"]*")?></span>`)
	colonAttribute = regexp.MustCompile(`\b(id|for|name|aria-labelledby)="([^"]*:[^"]*)"`)
	colonFragment  = regexp.MustCompile(`(href="#|\]\(#)([^")\s]*:[^")\s]*)`)
	listMarker     = regexp.MustCompile(`(?m)^((?:> ?)*[ \t]*)([-*+]|\d{1,9}[.)])[ \t]{2,}(\S)`)
	bulletMarker   = regexp.MustCompile(`(?m)^((?:> ?)*[ \t]*)[*+]([ \t]+\S)`)
	quotePrefix    = regexp.MustCompile(`^(?:>[ \t]?)+`)
	linePrefix     = regexp.MustCompile(`^[ \t]*(?:>[ \t]*)*`)
	blankRun       = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)

	smartPunctuation = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`,
		"‘", "'", "’", "'", "‚", "'",
		"–", "-", "—", "--", "…", "...",
		"\u00a0", " ",
	)
)

func removeHTMLComments(s string) string {
	return htmlComment.ReplaceAllString(s, "")
}

// unescapeMarkers restores <exclude> markers the converter escaped.
func unescapeMarkers(s string) string {
	return escapedMarker.ReplaceAllString(s, "<${1}exclude>")
}

var groupingCommands = []string{"begingroup", "endgroup", "bgroup", "egroup", "nonumber", "notag"}

// removeGroupingCommands drops TeX grouping primitives from math.
func removeGroupingCommands(s string) string {
	for _, name := range groupingCommands {
		s, _ = replaceCommands(s, name, 0, func(invocation) (string, bool) { return "", true })
	}
	return s
}

var sizedBrackets = regexp.MustCompile(`\\(?:big|Big|bigg|Bigg)[lrm]?\s*([\[\]])`)

// simplifyBracketDelimiters turns \left[ ... \right] pairs and sized
// brackets into plain brackets. Pairs with other delimiters are kept.
func simplifyBracketDelimiters(s string) string {
	s = sizedBrackets.ReplaceAllString(s, "$1")

	type pair struct{ left, right int }
	var stack []int
	var drop []pair
	for i := 0; i < len(s); i++ {
		switch {
		case commandAt(s, i, "left"):
			stack = append(stack, i)
		case commandAt(s, i, "right") && len(stack) > 0:
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if delimiterAfter(s, open+len(`\left`)) == "[" && delimiterAfter(s, i+len(`\right`)) == "]" {
				drop = append(drop, pair{open, i})
			}
		}
	}
	if len(drop) == 0 {
		return s
	}
	cut := make(map[int]int, 2*len(drop))
	for _, p := range drop {
		cut[p.left] = len(`\left`)
		cut[p.right] = len(`\right`)
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if n, ok := cut[i]; ok {
			i += n - 1
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func delimiterAfter(s string, i int) string {
	i = skipSpaces(s, i)
	if i >= len(s) {
		return ""
	}
	return s[i : i+1]
}

// stripOrphanLabels removes \label commands the converter left behind.
// In display math they become equation anchor sentinels instead.
func stripOrphanLabels(s string) string {
	s = mapMath(s, func(body string, display bool) string {
		out, _ := replaceCommands(body, "label", 1, func(inv invocation) (string, bool) {
			if !display {
				return "", true
			}
			return `\eqanchor{` + NormalizeIdentifier(strings.TrimSpace(inv.Args[0])) + `}`, true
		})
		return out
	})
	return mapOutsideMath(s, func(text string) string {
		out, _ := replaceCommands(text, "label", 1, func(invocation) (string, bool) { return "", true })
		return out
	})
}

// placeEquationAnchors moves \eqanchor sentinels out of display math into
// anchor spans written just before the block.
func placeEquationAnchors(s string) string {
	if !strings.Contains(s, `\eqanchor`) {
		return s
	}
	var b strings.Builder
	last := 0
	for _, span := range displaySpans(s) {
		body := s[span[0]+2 : span[1]-2]
		ids := eqAnchorInMath.FindAllStringSubmatch(body, -1)
		if len(ids) == 0 {
			continue
		}
		b.WriteString(s[last:span[0]])
		for _, m := range ids {
			b.WriteString(`<span id="` + strings.TrimSpace(m[1]) + `" class="eq-anchor"></span>`)
		}
		b.WriteString("$$" + eqAnchorInMath.ReplaceAllString(body, "") + "$$")
		last = span[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// displaySpans returns [start, end) of every $$...$$ block.
func displaySpans(s string) [][2]int {
	var spans [][2]int
	for i := 0; i < len(s); {
		open := indexUnescaped(s, "$$", i)
		if open == -1 {
			break
		}
		end := indexUnescaped(s, "$$", open+2)
		if end == -1 {
			break
		}
		spans = append(spans, [2]int{open, end + 2})
		i = end + 2
	}
	return spans
}

// mathRenames maps commands the web math renderer lacks onto supported ones.
var mathRenames = map[string]string{
	"hdots":                  `\ldots`,
	"mathellipsis":           `\ldots`,
	"dotsc":                  `\ldots`,
	"bm":                     `\boldsymbol`,
	"mathbbm":                `\mathbb`,
	"mathds":                 `\mathbb`,
	"operatornamewithlimits": `\operatorname*`,
	"intertext":              `\text`,
	"nicefrac":               `\frac`,
	"textnormal":             `\text`,
}

func fixMathCommands(s string) string {
	for name, repl := range mathRenames {
		s, _ = replaceCommands(s, name, 0, func(invocation) (string, bool) { return repl, true })
	}
	return s
}

var matrixShorthands = []string{"pmatrix", "bmatrix", "Bmatrix", "vmatrix", "Vmatrix", "matrix"}

// expandMatrixShorthand rewrites \pmatrix{a & b \\ c & d} into an explicit
// environment with one row per line. A body without \\ or \cr separates
// rows with ';' and cells with ','.
func expandMatrixShorthand(s string) string {
	for _, name := range matrixShorthands {
		s, _ = replaceCommands(s, name, 1, func(inv invocation) (string, bool) {
			rows := matrixRows(inv.Args[0])
			return `\begin{` + name + "}\n" + strings.Join(rows, " \\\\\n") + "\n\\end{" + name + "}", true
		})
	}
	return s
}

func matrixRows(body string) []string {
	var raw []string
	switch {
	case strings.Contains(body, `\\`) || strings.Contains(body, `\cr`):
		raw = splitTopLevel(strings.ReplaceAll(body, `\cr`, `\\`), `\\`)
	default:
		for _, row := range splitTopLevel(body, ";") {
			cells := splitTopLevel(row, ",")
			for i := range cells {
				cells[i] = strings.TrimSpace(cells[i])
			}
			raw = append(raw, strings.Join(cells, " & "))
		}
	}
	rows := raw[:0]
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			rows = append(rows, r)
		}
	}
	return rows
}

// splitDisplayMath puts every $$ delimiter on its own line, separated from
// surrounding paragraph text by a blank line. Lines inside block quotes
// and list items keep their prefix. Blocks already in that shape are left alone.
func splitDisplayMath(s string) string {
	for {
		fixed := false
		for _, span := range displaySpans(s) {
			if !isSplitDisplay(s, span) {
				s = splitDisplay(s, span)
				fixed = true
				break
			}
		}
		if !fixed {
			return s
		}
	}
}

func isSplitDisplay(s string, span [2]int) bool {
	lineStart := strings.LastIndexByte(s[:span[0]], '\n') + 1
	q := linePrefix.FindString(s[lineStart:span[0]])
	if lineStart+len(q) != span[0] || !strings.HasPrefix(s[span[0]+2:], "\n") {
		return false
	}
	closing := span[1] - 2
	if !strings.HasSuffix(s[:closing], "\n"+q) {
		return false
	}
	return span[1] == len(s) || s[span[1]] == '\n'
}

func splitDisplay(s string, span [2]int) string {
	lineStart := strings.LastIndexByte(s[:span[0]], '\n') + 1
	q := linePrefix.FindString(s[lineStart:span[0]])
	qBlank := strings.TrimRight(q, " \t")

	var b strings.Builder
	b.WriteString(s[:lineStart])
	if before := strings.TrimRight(s[lineStart+len(q):span[0]], " \t"); before != "" {
		b.WriteString(q + before + "\n" + qBlank + "\n")
	}

	b.WriteString(q + "$$\n")
	for _, line := range strings.Split(strings.TrimSpace(s[span[0]+2:span[1]-2]), "\n") {
		line = strings.TrimPrefix(line, qBlank)
		line = strings.TrimRight(strings.TrimLeft(line, " \t"), " \t")
		if line != "" {
			b.WriteString(q + line + "\n")
		}
	}
	b.WriteString(q + "$$")

	lineEnd := len(s)
	if k := strings.IndexByte(s[span[1]:], '\n'); k != -1 {
		lineEnd = span[1] + k
	}
	if after := strings.TrimSpace(s[span[1]:lineEnd]); after != "" {
		b.WriteString("\n" + qBlank + "\n" + q + after)
	}
	b.WriteString(s[lineEnd:])
	return b.String()
}

func replaceSmartPunctuation(s string) string {
	return smartPunctuation.Replace(s)
}

// escapeBraces escapes { and } in text so MDX does not read them as
// expressions. Math spans, inline code and HTML tags are left alone.
func escapeBraces(s string) string {
	return mapOutsideMath(s, func(text string) string {
		if !strings.ContainsAny(text, "{}") {
			return text
		}
		var b strings.Builder
		b.Grow(len(text) + 8)
		inCode, inTag := false, false
		for i := 0; i < len(text); i++ {
			ch := text[i]
			switch {
			case ch == '`':
				inCode = !inCode
			case inCode:
			case ch == '<' && !isEscaped(text, i) && i+1 < len(text) && (isLetter(text[i+1]) || text[i+1] == '/'):
				inTag = true
			case ch == '>' && inTag:
				inTag = false
			case (ch == '{' || ch == '}') && !inTag && !isEscaped(text, i):
				b.WriteByte('\\')
			}
			b.WriteByte(ch)
		}
		return b.String()
	})
}

// hyphenateColonAttributes replaces ':' in id-like attribute values and
// in-page link fragments, since MDX reserves ':' in those positions.
func hyphenateColonAttributes(s string) string {
	s = colonAttribute.ReplaceAllStringFunc(s, func(m string) string {
		sub := colonAttribute.FindStringSubmatch(m)
		return sub[1] + `="` + strings.ReplaceAll(sub[2], ":", "-") + `"`
	})
	return colonFragment.ReplaceAllStringFunc(s, func(m string) string {
		sub := colonFragment.FindStringSubmatch(m)
		return sub[1] + strings.ReplaceAll(sub[2], ":", "-")
	})
}

// convertBracketedAnchors turns pandoc bracketed spans "[text]{#id}" into
// HTML anchors.
func convertBracketedAnchors(s string) string {
	return bracketedSpan.ReplaceAllStringFunc(s, func(m string) string {
		sub := bracketedSpan.FindStringSubmatch(m)
		id := strings.ReplaceAll(sub[2], ":", "-")
		return `<span id="` + id + `">` + sub[1] + `</span>`
	})
}

// dedupeAnchors keeps the first empty anchor span for each id.
func dedupeAnchors(s string) string {
	seen := make(map[string]bool)
	return anchorSpan.ReplaceAllStringFunc(s, func(m string) string {
		id := anchorSpan.FindStringSubmatch(m)[1]
		if seen[id] {
			return ""
		}
		seen[id] = true
		return m
	})
}

// normalizeListMarkers collapses the padding after list markers to one
// space and spells bullets as '-'.
func normalizeListMarkers(s string) string {
	s = listMarker.ReplaceAllString(s, "$1$2 $3")
	return bulletMarker.ReplaceAllString(s, "${1}-$2")
}

// continueQuoteMarkers adds the '>' marker to lazy continuation lines of
// block quotes.
func continueQuoteMarkers(s string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		prev, line := lines[i-1], lines[i]
		if !strings.HasPrefix(prev, ">") || strings.TrimSpace(line) == "" || strings.HasPrefix(line, ">") {
			continue
		}
		if startsBlock(line) {
			continue
		}
		q := strings.TrimRight(quotePrefix.FindString(prev), " \t") + " "
		lines[i] = q + strings.TrimLeft(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func startsBlock(line string) bool {
	t := strings.TrimLeft(line, " \t")
	for _, p := range []string{"#", "```", "~~~", "|", "<", "$$", "---", "- ", "* ", "+ "} {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

func compressBlankLines(s string) string {
	return blankRun.ReplaceAllString(s, "\n\n")
}
