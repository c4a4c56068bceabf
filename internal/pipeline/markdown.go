package pipeline

import (
	"regexp"
	"strings"
)

var fenceOpen = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})")

// mapProse applies fn to every stretch of text outside fenced code blocks.
// Fence lines and code are copied unchanged.
func mapProse(s string, fn func(string) string) string {
	var b, chunk strings.Builder
	b.Grow(len(s))
	flush := func() {
		if chunk.Len() > 0 {
			b.WriteString(fn(chunk.String()))
			chunk.Reset()
		}
	}

	fence := ""
	for _, line := range strings.SplitAfter(s, "\n") {
		if fence == "" {
			if m := fenceOpen.FindStringSubmatch(line); m != nil {
				flush()
				fence = m[1]
				b.WriteString(line)
				continue
			}
			chunk.WriteString(line)
			continue
		}
		b.WriteString(line)
		if closesFence(line, fence) {
			fence = ""
		}
	}
	flush()
	return b.String()
}

func closesFence(line, fence string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) >= len(fence) && strings.Trim(trimmed, fence[:1]) == ""
}

// mapMath applies fn to the body of every $...$ and $$...$$ span and leaves
// the surrounding text alone. An unmatched delimiter ends the scan.
func mapMath(s string, fn func(body string, display bool) string) string {
	var b strings.Builder
	last := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '$' || isEscaped(s, i) {
			continue
		}
		delim := "$"
		if i+1 < len(s) && s[i+1] == '$' {
			delim = "$$"
		}
		end := indexUnescaped(s, delim, i+len(delim))
		if end == -1 {
			break
		}
		b.WriteString(s[last : i+len(delim)])
		b.WriteString(fn(s[i+len(delim):end], delim == "$$"))
		b.WriteString(delim)
		last = end + len(delim)
		i = last - 1
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// mapOutsideMath applies fn to the text between math spans.
func mapOutsideMath(s string, fn func(string) string) string {
	var b strings.Builder
	last := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '$' || isEscaped(s, i) {
			continue
		}
		delim := "$"
		if i+1 < len(s) && s[i+1] == '$' {
			delim = "$$"
		}
		end := indexUnescaped(s, delim, i+len(delim))
		if end == -1 {
			break
		}
		b.WriteString(fn(s[last:i]))
		b.WriteString(s[i : end+len(delim)])
		last = end + len(delim)
		i = last - 1
	}
	b.WriteString(fn(s[last:]))
	return b.String()
}
