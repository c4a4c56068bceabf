package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alnah/go-mdxport/internal/assets"
	"github.com/alnah/go-mdxport/internal/yamlutil"
)

// Mapping entry types.
const (
	MappingInline  = "inline"
	MappingMath    = "math"
	MappingCallout = "callout"
	MappingExclude = "exclude"
)

// ErrInvalidMapping is returned for malformed mapping tables.
var ErrInvalidMapping = errors.New("invalid mapping")

// CommandMapping rewrites one LaTeX command.
type CommandMapping struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Args        int    `yaml:"args,omitempty"`
	Replacement string `yaml:"replacement"`
}

// EnvironmentMapping rewrites one LaTeX environment.
type EnvironmentMapping struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Label string `yaml:"label,omitempty"`
}

// MappingTable is the command and environment mapping configuration.
type MappingTable struct {
	Commands     []CommandMapping     `yaml:"commands,omitempty"`
	Environments []EnvironmentMapping `yaml:"environments,omitempty"`
}

// ParseMappingTable decodes and validates a YAML mapping table.
func ParseMappingTable(data []byte) (MappingTable, error) {
	var t MappingTable
	if err := yamlutil.UnmarshalStrict(data, &t); err != nil {
		return MappingTable{}, fmt.Errorf("%w: %w", ErrInvalidMapping, err)
	}
	if err := t.Validate(); err != nil {
		return MappingTable{}, err
	}
	return t, nil
}

// LoadMappingTable loads a named table through loader.
func LoadMappingTable(loader assets.AssetLoader, name string) (MappingTable, error) {
	content, err := loader.Load(assets.Mapping, name)
	if err != nil {
		return MappingTable{}, err
	}
	return ParseMappingTable([]byte(content))
}

// Validate checks entry names, types and argument counts.
func (t MappingTable) Validate() error {
	for i, c := range t.Commands {
		if c.Name == "" || strings.ContainsAny(c.Name, `\{}[] `) {
			return fmt.Errorf("%w: commands[%d]: bad name %q", ErrInvalidMapping, i, c.Name)
		}
		if c.Type != MappingInline && c.Type != MappingMath {
			return fmt.Errorf("%w: commands[%d] (%s): type must be %q or %q, got %q",
				ErrInvalidMapping, i, c.Name, MappingInline, MappingMath, c.Type)
		}
		if c.Args < 0 || c.Args > 9 {
			return fmt.Errorf("%w: commands[%d] (%s): args must be 0-9, got %d", ErrInvalidMapping, i, c.Name, c.Args)
		}
	}
	for i, e := range t.Environments {
		if e.Name == "" || strings.ContainsAny(e.Name, `\{} `) {
			return fmt.Errorf("%w: environments[%d]: bad name %q", ErrInvalidMapping, i, e.Name)
		}
		switch e.Type {
		case MappingCallout:
			if e.Label == "" {
				return fmt.Errorf("%w: environments[%d] (%s): callout needs a label", ErrInvalidMapping, i, e.Name)
			}
		case MappingExclude:
		default:
			return fmt.Errorf("%w: environments[%d] (%s): type must be %q or %q, got %q",
				ErrInvalidMapping, i, e.Name, MappingCallout, MappingExclude, e.Type)
		}
	}
	return nil
}

// Merge returns t with o's entries added. Entries in o replace entries of t
// with the same name.
func (t MappingTable) Merge(o MappingTable) MappingTable {
	out := MappingTable{}
	cmdIdx := make(map[string]int)
	for _, c := range append(append([]CommandMapping(nil), t.Commands...), o.Commands...) {
		if i, ok := cmdIdx[c.Name]; ok {
			out.Commands[i] = c
			continue
		}
		cmdIdx[c.Name] = len(out.Commands)
		out.Commands = append(out.Commands, c)
	}
	envIdx := make(map[string]int)
	for _, e := range append(append([]EnvironmentMapping(nil), t.Environments...), o.Environments...) {
		if i, ok := envIdx[e.Name]; ok {
			out.Environments[i] = e
			continue
		}
		envIdx[e.Name] = len(out.Environments)
		out.Environments = append(out.Environments, e)
	}
	return out
}

// Dialect selects how the mapper renders callouts and where math entries
// apply.
type Dialect int

const (
	// DialectLaTeX targets source that pandoc converts afterwards.
	DialectLaTeX Dialect = iota
	// DialectMarkdown targets Markdown that skips conversion.
	DialectMarkdown
)

// macroDefinitions start lines holding user macro bodies, which must not
// be rewritten.
var macroDefinitions = []string{
	"newcommand", "renewcommand", "providecommand", "DeclareMathOperator",
	"newenvironment", "renewenvironment", "def",
}

// Mapper applies a MappingTable to document text.
type Mapper struct {
	table   MappingTable
	dialect Dialect
	envs    map[string]EnvironmentMapping
}

// NewMapper creates a mapper for table in the given dialect.
func NewMapper(table MappingTable, dialect Dialect) *Mapper {
	envs := make(map[string]EnvironmentMapping, len(table.Environments))
	for _, e := range table.Environments {
		envs[e.Name] = e
	}
	return &Mapper{table: table, dialect: dialect, envs: envs}
}

// Pass wraps Apply for use in RunPasses.
func (m *Mapper) Pass() Pass {
	return Pass{Name: "mapCommands", Apply: m.Apply}
}

// Apply rewrites mapped commands and environments. Unknown commands are
// left alone. Stats.Commands counts every replacement.
func (m *Mapper) Apply(c *Context, text string) (string, Stats) {
	var st Stats
	var saved []string
	protect := func(s string) string {
		saved = append(saved, s)
		return placeholderStart + strconv.Itoa(len(saved)-1) + placeholderEnd
	}

	if m.dialect == DialectLaTeX {
		text, _ = replaceEnvironments(text, verbatimEnvs, func(env environment) (string, bool) {
			return protect(text[env.Start:env.End]), true
		})
		text = protectDefinitions(text, protect)
		text, st.Commands = m.applyCommands(text, func(CommandMapping) bool { return true })
	} else {
		text = mapProse(text, func(prose string) string {
			prose = mapMath(prose, func(body string, _ bool) string {
				out, n := m.applyCommands(body, func(cm CommandMapping) bool { return cm.Type == MappingMath })
				st.Commands += n
				return out
			})
			return mapOutsideMath(prose, func(plain string) string {
				out, n := m.applyCommands(plain, func(cm CommandMapping) bool { return cm.Type == MappingInline })
				st.Commands += n
				return out
			})
		})
	}

	var n int
	text, n = m.applyEnvironments(text)
	st.Commands += n

	for i := len(saved) - 1; i >= 0; i-- {
		text = strings.Replace(text, placeholderStart+strconv.Itoa(i)+placeholderEnd, saved[i], 1)
	}
	if st.Commands > 0 {
		c.Log.Debug("mapped %d commands and environments", st.Commands)
	}
	return text, st
}

func protectDefinitions(s string, protect func(string) string) string {
	lines := strings.SplitAfter(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		for _, name := range macroDefinitions {
			if commandAt(trimmed, 0, name) {
				body := strings.TrimRight(line, "\n")
				lines[i] = protect(body) + line[len(body):]
				break
			}
		}
	}
	return strings.Join(lines, "")
}

func (m *Mapper) applyCommands(s string, use func(CommandMapping) bool) (string, int) {
	total := 0
	for _, cm := range m.table.Commands {
		if !use(cm) {
			continue
		}
		var n int
		s, n = replaceCommands(s, cm.Name, cm.Args, func(inv invocation) (string, bool) {
			return expandArguments(cm.Replacement, inv.Args), true
		})
		total += n
	}
	return s, total
}

// expandArguments substitutes #1..#9 in a replacement.
func expandArguments(repl string, args []string) string {
	if len(args) == 0 || !strings.Contains(repl, "#") {
		return repl
	}
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		if repl[i] == '#' && i+1 < len(repl) && repl[i+1] >= '1' && repl[i+1] <= '9' {
			if k := int(repl[i+1] - '1'); k < len(args) {
				b.WriteString(args[k])
			}
			i++
			continue
		}
		b.WriteByte(repl[i])
	}
	return b.String()
}

func (m *Mapper) applyEnvironments(s string) (string, int) {
	if len(m.envs) == 0 {
		return s, 0
	}
	names := make([]string, 0, len(m.envs))
	for _, e := range m.table.Environments {
		names = append(names, e.Name)
	}

	total := 0
	out, n := replaceEnvironments(s, names, func(env environment) (string, bool) {
		mapping := m.envs[env.Name]
		body := env.Body(s)
		opt := ""
		if o, end, ok := readBracketed(body, 0); ok {
			opt, body = strings.TrimSpace(o), body[end:]
		}
		inner, k := m.applyEnvironments(body)
		total += k
		inner = strings.TrimSpace(inner)

		if mapping.Type == MappingExclude {
			return "\n\n<exclude>\n\n" + inner + "\n\n</exclude>\n\n", true
		}
		return m.renderCallout(mapping.Label, opt, inner), true
	})
	return out, total + n
}

func (m *Mapper) renderCallout(label, opt, body string) string {
	head := label
	if opt != "" {
		head += " (" + opt + ")"
	}
	if m.dialect == DialectLaTeX {
		return "\\begin{quote}\n\\textbf{" + head + ".} " + body + "\n\\end{quote}"
	}

	lines := strings.Split(body, "\n")
	var b strings.Builder
	b.WriteString("> **" + head + ".** " + strings.TrimSpace(lines[0]))
	for _, line := range lines[1:] {
		b.WriteString("\n>")
		if line = strings.TrimRight(line, " \t"); line != "" {
			b.WriteString(" " + line)
		}
	}
	return b.String()
}
