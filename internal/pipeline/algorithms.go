package pipeline

import (
	"regexp"
	"strings"
)

var (
	algorithmEnvironments = []string{"algorithm", "algorithm*", "algorithmic", "tikzpicture"}

	// algorithmic keywords: depth change before and after the line, and
	// the spelled-out word
	algorithmKeywords = map[string]struct {
		dedent, indent int
		word           string
	}{
		"If":           {0, 1, "if"},
		"ElsIf":        {-1, 1, "else if"},
		"ElseIf":       {-1, 1, "else if"},
		"Else":         {-1, 1, "else"},
		"EndIf":        {-1, 0, "end if"},
		"For":          {0, 1, "for"},
		"ForAll":       {0, 1, "for all"},
		"ForEach":      {0, 1, "for each"},
		"EndFor":       {-1, 0, "end for"},
		"While":        {0, 1, "while"},
		"EndWhile":     {-1, 0, "end while"},
		"Repeat":       {0, 1, "repeat"},
		"Until":        {-1, 0, "until"},
		"Loop":         {0, 1, "loop"},
		"EndLoop":      {-1, 0, "end loop"},
		"Function":     {0, 1, "function"},
		"EndFunction":  {-1, 0, "end function"},
		"Procedure":    {0, 1, "procedure"},
		"EndProcedure": {-1, 0, "end procedure"},
		"Return":       {0, 0, "return"},
		"State":        {0, 0, ""},
		"Statex":       {0, 0, ""},
		"Require":      {0, 0, "Require:"},
		"Ensure":       {0, 0, "Ensure:"},
		"Input":        {0, 0, "Input:"},
		"Output":       {0, 0, "Output:"},
	}

	// keywords whose first braced argument is a condition or header
	conditionKeywords = map[string]bool{
		"If": true, "ElsIf": true, "ElseIf": true, "For": true, "ForAll": true,
		"ForEach": true, "While": true, "Until": true,
	}
	blockSuffix = map[string]string{
		"If": " then", "ElsIf": " then", "ElseIf": " then",
		"For": " do", "ForAll": " do", "ForEach": " do", "While": " do",
	}

	algorithmStatement = regexp.MustCompile(`\\([A-Z][A-Za-z]*)\b`)

	// Longer spellings come first: the replacer tries arguments in order.
	mathSymbols = strings.NewReplacer(
		`\gets`, "<-", `\leftarrow`, "<-", `\rightarrow`, "->", `\to`, "->",
		`\left`, "", `\right`, "",
		`\leq`, "<=", `\le`, "<=", `\geq`, ">=", `\ge`, ">=",
		`\neq`, "!=", `\ne`, "!=", `\times`, "*", `\cdot`, "*",
		`\infty`, "inf", `\in`, "in", `\land`, "and", `\lor`, "or", `\lnot`, "not",
		`\{`, "{", `\}`, "}", `\_`, "_", `\%`, "%", `\&`, "&", `\$`, "$",
		`\;`, " ", `\,`, " ", `\ `, " ", `~`, " ",
	)

	formattingCommands = []string{"textbf", "textit", "emph", "texttt", "textsc", "mathrm", "mathbf", "mathit", "mathcal", "text", "textrm", "mbox"}
)

// convertAlgorithms turns pseudo-code and TikZ environments into verbatim
// blocks pandoc keeps as code.
func convertAlgorithms(_ *Context, s string) (string, Stats) {
	out, _ := replaceEnvironments(s, algorithmEnvironments, func(env environment) (string, bool) {
		body := env.Body(s)
		if env.Name == "tikzpicture" {
			return "\\begin{verbatim}\n" + strings.Trim(body, "\n") + "\n\\end{verbatim}", true
		}
		return renderAlgorithm(body), true
	})
	return out, Stats{}
}

func renderAlgorithm(body string) string {
	var b strings.Builder
	if caption := captionOf(body); caption != "" {
		b.WriteString(`\textbf{` + caption + "}\n\n")
	}
	if id := anchorOf(body); id != "" {
		b.WriteString(`\hypertarget{` + id + "}{}\n")
	}

	steps := body
	if envs := findEnvironments(body, "algorithmic"); len(envs) > 0 {
		steps = envs[0].Body(body)
	}
	if _, end, ok := readBracketed(steps, 0); ok {
		steps = steps[end:]
	}

	b.WriteString("\\begin{verbatim}\n")
	for _, line := range pseudocodeLines(steps) {
		b.WriteString(line + "\n")
	}
	b.WriteString(`\end{verbatim}`)
	return b.String()
}

// pseudocodeLines spells out algorithmicx statements, indenting two
// spaces per block level.
func pseudocodeLines(s string) []string {
	s, _ = replaceCommands(s, "caption", 1, func(invocation) (string, bool) { return "", true })
	s, _ = replaceCommands(s, "label", 1, func(invocation) (string, bool) { return "", true })
	s, _ = replaceCommands(s, "hypertarget", 2, func(invocation) (string, bool) { return "", true })

	var lines []string
	depth := 0
	matches := algorithmStatement.FindAllStringSubmatchIndex(s, -1)
	for i, m := range matches {
		name := s[m[2]:m[3]]
		kw, ok := algorithmKeywords[name]
		if !ok || isEscaped(s, m[0]) {
			continue
		}
		end := len(s)
		for j := i + 1; j < len(matches); j++ {
			if _, next := algorithmKeywords[s[matches[j][2]:matches[j][3]]]; next {
				end = matches[j][0]
				break
			}
		}
		segment := s[m[1]:end]

		line := kw.word
		switch {
		case name == "Function" || name == "Procedure":
			fn, rest, _ := readBraced(segment, 0)
			args, _, _ := readBraced(segment, rest)
			line += " " + plainCode(fn) + "(" + plainCode(args) + ")"
		case conditionKeywords[name]:
			cond, rest, ok := readBraced(segment, 0)
			if ok {
				line += " " + plainCode(cond)
				segment = segment[rest:]
			}
			line += blockSuffix[name]
			if tail := plainCode(segment); tail != "" {
				line += " " + tail
			}
		default:
			if text := plainCode(segment); text != "" {
				if line != "" {
					line += " "
				}
				line += text
			}
		}

		depth = max(depth+kw.dedent, 0)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, strings.Repeat("  ", depth)+line)
		}
		depth += kw.indent
	}
	return lines
}

// plainCode strips LaTeX markup from a pseudo-code fragment.
func plainCode(s string) string {
	s, _ = replaceCommands(s, "Comment", 1, func(inv invocation) (string, bool) {
		return "// " + strings.TrimSpace(inv.Args[0]), true
	})
	s, _ = replaceCommands(s, "Call", 2, func(inv invocation) (string, bool) {
		return inv.Args[0] + "(" + inv.Args[1] + ")", true
	})
	for _, cmd := range formattingCommands {
		s, _ = replaceCommands(s, cmd, 1, func(inv invocation) (string, bool) { return inv.Args[0], true })
	}
	s = mathSymbols.Replace(s)
	s = strings.NewReplacer("$", "", "{", "", "}", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
