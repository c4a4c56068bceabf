package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

// Math placeholders use Private Use Area characters so they cannot collide
// with source text and survive every regex pass untouched.
const (
	placeholderStart = "\uE010" // U+E010
	placeholderEnd   = "\uE011" // U+E011
)

var (
	hyphenatedWrap   = regexp.MustCompile(`([A-Za-z])-\n([a-z])`)
	missingSpace     = regexp.MustCompile(`([a-z]{2,})\.([A-Z][a-z])`)
	dollarDisplay    = regexp.MustCompile(`(?s)\$\$(.+?)\$\$`)
	alignEnvironment = []string{"align", "align*", "eqnarray", "eqnarray*", "flalign", "flalign*", "alignat", "alignat*"}
	displayEnvs      = []string{"equation", "equation*", "displaymath"}
	verbatimEnvs     = []string{"verbatim", "lstlisting", "minted"}
)

// PreprocessPasses returns the structural passes in the order they must run:
// later passes assume comments are gone and display math is canonical.
func PreprocessPasses() []Pass {
	return []Pass{
		textPass("stripComments", stripComments),
		{Name: "repairLineWraps", Apply: repairLineWraps},
		textPass("normalizeMath", normalizeMath),
		{Name: "extractFigures", Apply: extractFigures},
		{Name: "convertAlgorithms", Apply: convertAlgorithms},
	}
}

// Preprocess simplifies LaTeX into a form pandoc converts predictably.
func Preprocess(c *Context, src string) (string, Stats) {
	return RunPasses(c, src, PreprocessPasses())
}

// stripComments removes % comments outside verbatim environments.
// Lines holding only a comment are dropped; \% is kept.
func stripComments(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	verbatim := ""
	for _, line := range lines {
		if verbatim != "" {
			out = append(out, line)
			if strings.Contains(line, `\end{`+verbatim+`}`) {
				verbatim = ""
			}
			continue
		}
		if env := openedVerbatim(line); env != "" {
			verbatim = env
			out = append(out, line)
			continue
		}

		cut := commentStart(line)
		if cut == -1 {
			out = append(out, line)
			continue
		}
		kept := strings.TrimRight(line[:cut], " \t")
		if strings.TrimSpace(kept) == "" {
			continue
		}
		out = append(out, kept)
	}
	return strings.Join(out, "\n")
}

func openedVerbatim(line string) string {
	for _, env := range verbatimEnvs {
		if strings.Contains(line, `\begin{`+env+`}`) && !strings.Contains(line, `\end{`+env+`}`) {
			return env
		}
	}
	return ""
}

func commentStart(line string) int {
	for i := 0; i < len(line); i++ {
		if line[i] == '%' && !isEscaped(line, i) {
			return i
		}
	}
	return -1
}

// repairLineWraps rejoins words hyphenated across a line break and adds
// the space missing between a sentence end and the next sentence.
func repairLineWraps(_ *Context, s string) (string, Stats) {
	var st Stats
	st.Repairs += len(hyphenatedWrap.FindAllStringIndex(s, -1))
	s = hyphenatedWrap.ReplaceAllString(s, "$1$2")
	st.Repairs += len(missingSpace.FindAllStringIndex(s, -1))
	s = missingSpace.ReplaceAllString(s, "$1. $2")
	return s, st
}

// normalizeMath makes \[ ... \] the only display math spelling, then strips
// alignment '&' from display blocks. Align-family environments are
// swapped for placeholders first so their '&' survive.
func normalizeMath(s string) string {
	s = dollarDisplay.ReplaceAllStringFunc(s, func(m string) string {
		return `\[` + strings.TrimSpace(m[2:len(m)-2]) + `\]`
	})
	s, _ = replaceEnvironments(s, displayEnvs, func(env environment) (string, bool) {
		return `\[` + strings.TrimSpace(env.Body(s)) + `\]`, true
	})

	var saved []string
	s, _ = replaceEnvironments(s, alignEnvironment, func(env environment) (string, bool) {
		saved = append(saved, s[env.Start:env.End])
		return placeholderStart + strconv.Itoa(len(saved)-1) + placeholderEnd, true
	})

	s = mapBracketMath(s, stripAlignment)

	for i, block := range saved {
		s = strings.Replace(s, placeholderStart+strconv.Itoa(i)+placeholderEnd, block, 1)
	}
	return s
}

// tabularMath matches what makes '&' a cell separator inside display math:
// row breaks and the plain TeX matrix and cases commands.
var tabularMath = regexp.MustCompile(`\\\\|\\cr\b|\\(?:[pbBvV]?matrix|cases)\b`)

// stripAlignment removes unescaped '&' from a display block that holds no
// nested environment and no rows; environments, matrices and cases need
// them.
func stripAlignment(body string) string {
	if strings.Contains(body, `\begin{`) || strings.Contains(body, placeholderStart) || tabularMath.MatchString(body) {
		return body
	}
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		if body[i] == '&' && !isEscaped(body, i) {
			continue
		}
		b.WriteByte(body[i])
	}
	return b.String()
}

// mapBracketMath applies fn to the body of every \[ ... \] block.
func mapBracketMath(s string, fn func(string) string) string {
	var b strings.Builder
	last := 0
	for {
		open := indexUnescaped(s, `\[`, last)
		if open == -1 {
			break
		}
		end := indexUnescaped(s, `\]`, open+2)
		if end == -1 {
			break
		}
		b.WriteString(s[last : open+2])
		b.WriteString(fn(s[open+2 : end]))
		b.WriteString(`\]`)
		last = end + 2
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// indexUnescaped finds sub at or after from where its leading backslash is
// not itself escaped.
func indexUnescaped(s, sub string, from int) int {
	for from < len(s) {
		k := strings.Index(s[from:], sub)
		if k == -1 {
			return -1
		}
		at := from + k
		if !isEscaped(s, at) {
			return at
		}
		from = at + 1
	}
	return -1
}
