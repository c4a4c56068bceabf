package pipeline

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alnah/go-mdxport/internal/logger"
)

// Format identifies the markup a document enters the pipeline in.
type Format int

const (
	FormatLaTeX Format = iota
	FormatMarkdown
)

func (f Format) String() string {
	if f == FormatLaTeX {
		return "latex"
	}
	return "markdown"
}

// AssetDir is where image assets live relative to the output document.
const AssetDir = "assets/image"

// Document is one unit of conversion.
type Document struct {
	Format     Format
	Source     string
	SourceDir  string
	OutputPath string
	Metadata   FrontMatter
}

// Stats counts what each stage did. Stages return a Stats value; the
// orchestrator sums them with Add.
type Stats struct {
	Labels     int
	References int
	Unresolved int
	Citations  int
	Commands   int
	Figures    int
	Images     int
	Repairs    int
	Excluded   int
	Dangling   int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Labels += o.Labels
	s.References += o.References
	s.Unresolved += o.Unresolved
	s.Citations += o.Citations
	s.Commands += o.Commands
	s.Figures += o.Figures
	s.Images += o.Images
	s.Repairs += o.Repairs
	s.Excluded += o.Excluded
	s.Dangling += o.Dangling
}

// String renders non-zero counters as "name=value" pairs.
func (s Stats) String() string {
	fields := []struct {
		name string
		n    int
	}{
		{"labels", s.Labels},
		{"references", s.References},
		{"unresolved", s.Unresolved},
		{"citations", s.Citations},
		{"commands", s.Commands},
		{"figures", s.Figures},
		{"images", s.Images},
		{"repairs", s.Repairs},
		{"excluded", s.Excluded},
		{"dangling", s.Dangling},
	}
	var parts []string
	for _, f := range fields {
		if f.n != 0 {
			parts = append(parts, f.name+"="+strconv.Itoa(f.n))
		}
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, " ")
}

// Asset is a source file to copy under AssetDir.
type Asset struct {
	Source string // absolute path or URL
	Name   string // file name under AssetDir
}

// RelPath returns the asset path as written in the body.
func (a Asset) RelPath() string { return path.Join(AssetDir, a.Name) }

// AssetSet records assets in insertion order. Two sources with the same
// base name get distinct names, and so does a source whose name is
// occupied outside the set.
type AssetSet struct {
	order    []Asset
	bySource map[string]int
	names    map[string]bool
	occupied func(name, source string) bool
}

// NewAssetSet creates an empty set.
func NewAssetSet() *AssetSet {
	return &AssetSet{bySource: make(map[string]int), names: make(map[string]bool)}
}

// SetOccupied installs a check for names already in use where the assets
// are copied, such as files another document wrote to the same directory.
func (s *AssetSet) SetOccupied(occupied func(name, source string) bool) {
	s.occupied = occupied
}

// Add records source and returns its path relative to the output document.
// Adding the same source twice returns the same path.
func (s *AssetSet) Add(source string) string {
	return s.AddNamed(source, filepath.Base(source))
}

// AddNamed is Add with an explicit file name, used when the source name
// carries no useful stem (remote URLs, hashed media).
func (s *AssetSet) AddNamed(source, name string) string {
	if i, ok := s.bySource[source]; ok {
		return s.order[i].RelPath()
	}
	name = s.claim(source, name)
	s.bySource[source] = len(s.order)
	s.order = append(s.order, Asset{Source: source, Name: name})
	return s.order[len(s.order)-1].RelPath()
}

// Reserve picks a free asset path for a source that will not be copied,
// so that a reference to it cannot resolve to another file.
func (s *AssetSet) Reserve(source, name string) string {
	return path.Join(AssetDir, s.claim(source, name))
}

func (s *AssetSet) claim(source, name string) string {
	name = uniqueFileName(name, func(n string) bool {
		return s.names[n] || (s.occupied != nil && s.occupied(n, source))
	})
	s.names[name] = true
	return name
}

// Entries returns the recorded assets in insertion order.
func (s *AssetSet) Entries() []Asset {
	return append([]Asset(nil), s.order...)
}

// Len returns the number of recorded assets.
func (s *AssetSet) Len() int { return len(s.order) }

func uniqueFileName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// Context is the per-document arena threaded through every stage.
// It is never shared between documents.
type Context struct {
	SourceDir     string
	GraphicsPaths []string
	IDs           *IdentifierMap
	Imports       *ImportTable
	Assets        *AssetSet
	Citations     []string
	Log           logger.Logger
}

// NewContext creates a fresh arena for one document.
func NewContext(sourceDir string, log logger.Logger) *Context {
	if log == nil {
		log = logger.NewNop()
	}
	return &Context{
		SourceDir: sourceDir,
		IDs:       NewIdentifierMap(),
		Imports:   NewImportTable(),
		Assets:    NewAssetSet(),
		Log:       log,
	}
}

// Pass is one named, independently testable text transform.
type Pass struct {
	Name  string
	Apply func(c *Context, text string) (string, Stats)
}

// RunPasses applies passes in order and sums their stats.
func RunPasses(c *Context, text string, passes []Pass) (string, Stats) {
	var total Stats
	for _, p := range passes {
		out, st := p.Apply(c, text)
		if out != text {
			c.Log.Debug("%s: changed %d -> %d bytes", p.Name, len(text), len(out))
		}
		total.Add(st)
		text = out
	}
	return text, total
}

// textPass lifts a stats-free transform into a Pass.
func textPass(name string, fn func(string) string) Pass {
	return Pass{Name: name, Apply: func(_ *Context, s string) (string, Stats) { return fn(s), Stats{} }}
}
