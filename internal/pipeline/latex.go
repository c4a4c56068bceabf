package pipeline

import (
	"strings"
)

// isEscaped reports whether s[i] is preceded by an odd run of backslashes.
func isEscaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func skipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// readGroup reads a balanced open...close group starting at s[i].
// Escaped delimiters do not count. It returns the inner text and the index
// just past the closing delimiter.
func readGroup(s string, i int, open, closer byte) (inner string, end int, ok bool) {
	if i >= len(s) || s[i] != open {
		return "", i, false
	}
	depth := 0
	for j := i; j < len(s); j++ {
		if isEscaped(s, j) {
			continue
		}
		switch s[j] {
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[i+1 : j], j + 1, true
			}
		}
	}
	return "", i, false
}

// readBraced reads a {...} argument at s[i], skipping leading whitespace.
func readBraced(s string, i int) (string, int, bool) {
	return readGroup(s, skipSpaces(s, i), '{', '}')
}

// readBracketed reads an optional [...] argument at s[i]. Braces inside
// the brackets may contain ']'.
func readBracketed(s string, i int) (string, int, bool) {
	j := skipSpaces(s, i)
	if j >= len(s) || s[j] != '[' {
		return "", i, false
	}
	braces := 0
	for k := j + 1; k < len(s); k++ {
		if isEscaped(s, k) {
			continue
		}
		switch s[k] {
		case '{':
			braces++
		case '}':
			braces--
		case ']':
			if braces == 0 {
				return s[j+1 : k], k + 1, true
			}
		}
	}
	return "", i, false
}

// commandAt reports whether an unescaped \name starts at s[i] and is not
// the prefix of a longer command.
func commandAt(s string, i int, name string) bool {
	if !strings.HasPrefix(s[i:], `\`+name) || isEscaped(s, i) {
		return false
	}
	next := i + 1 + len(name)
	return next >= len(s) || !isLetter(s[next]) || !isLetter(name[len(name)-1])
}

// invocation is one parsed \name[opt]{arg}... occurrence.
type invocation struct {
	Start, End int
	Star       bool
	Opt        string
	HasOpt     bool
	Args       []string
}

// findCommands returns every \name occurrence with nargs braced arguments.
// Occurrences with missing arguments are skipped.
func findCommands(s, name string, nargs int) []invocation {
	var out []invocation
	for i := 0; i < len(s); {
		k := strings.Index(s[i:], `\`+name)
		if k == -1 {
			break
		}
		start := i + k
		if !commandAt(s, start, name) {
			i = start + 1
			continue
		}
		inv, ok := parseInvocation(s, start, len(name), nargs)
		if !ok {
			i = start + 1
			continue
		}
		out = append(out, inv)
		i = inv.End
	}
	return out
}

func parseInvocation(s string, start, nameLen, nargs int) (invocation, bool) {
	inv := invocation{Start: start}
	pos := start + 1 + nameLen
	if pos < len(s) && s[pos] == '*' {
		inv.Star = true
		pos++
	}
	// Argument-less commands keep a following "[...]" as text.
	if nargs > 0 {
		if opt, end, ok := readBracketed(s, pos); ok {
			inv.Opt, inv.HasOpt, pos = opt, true, end
		}
	}
	for a := 0; a < nargs; a++ {
		arg, end, ok := readBraced(s, pos)
		if !ok {
			return inv, false
		}
		inv.Args = append(inv.Args, arg)
		pos = end
	}
	inv.End = pos
	return inv, true
}

// replaceCommands rewrites every \name invocation with nargs arguments.
// fn returning ok=false keeps the occurrence as is.
func replaceCommands(s, name string, nargs int, fn func(inv invocation) (string, bool)) (string, int) {
	invs := findCommands(s, name, nargs)
	if len(invs) == 0 {
		return s, 0
	}
	var b strings.Builder
	b.Grow(len(s))
	last, n := 0, 0
	for _, inv := range invs {
		repl, ok := fn(inv)
		if !ok {
			continue
		}
		b.WriteString(s[last:inv.Start])
		b.WriteString(repl)
		last = inv.End
		n++
	}
	b.WriteString(s[last:])
	return b.String(), n
}

// environment is one \begin{name}...\end{name} span.
type environment struct {
	Name                      string
	Start, BodyStart, BodyEnd int
	End                       int
}

// Body returns the text between \begin{name} and \end{name}.
func (e environment) Body(s string) string { return s[e.BodyStart:e.BodyEnd] }

// findEnvironments returns the outermost environments whose name is in
// names, matching nested environments of the same name.
func findEnvironments(s string, names ...string) []environment {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []environment
	for i := 0; i < len(s); {
		k := strings.Index(s[i:], `\begin`)
		if k == -1 {
			break
		}
		start := i + k
		name, bodyStart, ok := readBraced(s, start+len(`\begin`))
		if !ok || isEscaped(s, start) || !want[name] {
			i = start + 1
			continue
		}
		bodyEnd, end, ok := matchEnd(s, name, bodyStart)
		if !ok {
			i = start + 1
			continue
		}
		out = append(out, environment{Name: name, Start: start, BodyStart: bodyStart, BodyEnd: bodyEnd, End: end})
		i = end
	}
	return out
}

// matchEnd finds the \end{name} closing an environment whose body starts at from.
func matchEnd(s, name string, from int) (bodyEnd, end int, ok bool) {
	begin, finish := `\begin{`+name+`}`, `\end{`+name+`}`
	depth := 1
	for i := from; i < len(s); {
		nb := strings.Index(s[i:], begin)
		ne := strings.Index(s[i:], finish)
		if ne == -1 {
			return 0, 0, false
		}
		if nb != -1 && nb < ne {
			depth++
			i += nb + len(begin)
			continue
		}
		depth--
		if depth == 0 {
			return i + ne, i + ne + len(finish), true
		}
		i += ne + len(finish)
	}
	return 0, 0, false
}

// replaceEnvironments rewrites environments via fn; ok=false keeps the
// original text byte for byte.
func replaceEnvironments(s string, names []string, fn func(env environment) (string, bool)) (string, int) {
	envs := findEnvironments(s, names...)
	if len(envs) == 0 {
		return s, 0
	}
	var b strings.Builder
	b.Grow(len(s))
	last, n := 0, 0
	for _, env := range envs {
		repl, ok := fn(env)
		if !ok {
			continue
		}
		b.WriteString(s[last:env.Start])
		b.WriteString(repl)
		last = env.End
		n++
	}
	b.WriteString(s[last:])
	return b.String(), n
}

// splitTopLevel splits s on sep where sep is outside any brace group.
func splitTopLevel(s string, sep string) []string {
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '{' && !isEscaped(s, i):
			depth++
		case s[i] == '}' && !isEscaped(s, i):
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], sep):
			if isLetter(sep[len(sep)-1]) && i+len(sep) < len(s) && isLetter(s[i+len(sep)]) {
				continue
			}
			parts = append(parts, s[last:i])
			i += len(sep) - 1
			last = i + 1
		}
	}
	return append(parts, s[last:])
}
