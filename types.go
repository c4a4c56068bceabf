package mdxport

import (
	"net/http"
	"time"

	"github.com/alnah/go-mdxport/internal/logger"
	"github.com/alnah/go-mdxport/internal/pipeline"
)

// FrontMatter is the metadata block written at the top of an MDX document.
type FrontMatter = pipeline.FrontMatter

// Stats counts what the pipeline stages did to one document.
type Stats = pipeline.Stats

// MappingTable holds command and environment mapping entries.
type MappingTable = pipeline.MappingTable

// CommandMapping rewrites one LaTeX command.
type CommandMapping = pipeline.CommandMapping

// EnvironmentMapping rewrites one LaTeX environment.
type EnvironmentMapping = pipeline.EnvironmentMapping

// Mode selects which part of the pipeline Convert runs.
type Mode int

const (
	// ModeFull converts the source into an MDX document.
	ModeFull Mode = iota
	// ModeConvertOnly stops after pandoc and writes its Markdown.
	ModeConvertOnly
	// ModeMDXOnly runs the Markdown stages on an existing Markdown file.
	ModeMDXOnly
	// ModeBibOnly only cleans and copies the bibliography.
	ModeBibOnly
)

// Input holds the per-document conversion parameters.
type Input struct {
	// Path is a .tex or .md file, a directory, a Notion .html export, or
	// notion:<page-id>.
	Path string
	// OutputDir receives the MDX file, assets and bibliography.
	OutputDir string
	// Slug names the output files. Empty derives it from the source.
	Slug string
	Mode Mode
	// Metadata is merged over the metadata extracted from the source.
	Metadata *FrontMatter
	// Proof writes <slug>.proof.html next to the MDX file.
	Proof bool
	// ProofPDF writes <slug>.proof.pdf, rendered with headless Chrome.
	ProofPDF bool
}

// Result describes the files one conversion wrote.
type Result struct {
	Kind             SourceKind
	Slug             string
	MDXPath          string
	MarkdownPath     string
	BibliographyPath string
	ProofHTMLPath    string
	ProofPDFPath     string
	Assets           int
	Stats            Stats
}

// Option configures a Converter.
type Option func(*Converter)

// converterConfig holds internal configuration for Converter.
type converterConfig struct {
	pandocBinary  string
	pandocFilters []string
	pandocTimeout time.Duration
	assetPath     string
	mappingName   string
	mappings      MappingTable
	componentDir  string
	dateFormat    string
	notionToken   string
	notionRate    float64
	proofStyle    string
	tocTitle      string
	pdfTimeout    time.Duration
}

const (
	defaultPDFTimeout = 30 * time.Second
	defaultNotionRate = 3.0
)

// WithLogger sets the logger for stage diagnostics.
func WithLogger(log logger.Logger) Option {
	return func(c *Converter) {
		if log != nil {
			c.log = log
		}
	}
}

// WithPandocBinary sets the pandoc executable. Default: "pandoc" on PATH.
func WithPandocBinary(path string) Option {
	return func(c *Converter) { c.cfg.pandocBinary = path }
}

// WithPandocFilters adds Lua filters run after the built-in one.
func WithPandocFilters(paths ...string) Option {
	return func(c *Converter) { c.cfg.pandocFilters = append(c.cfg.pandocFilters, paths...) }
}

// WithPandocTimeout bounds each pandoc run.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithPandocTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("mdxport: WithPandocTimeout duration must be positive")
	}
	return func(c *Converter) { c.cfg.pandocTimeout = d }
}

// WithCommandRunner replaces the process runner used for pandoc.
func WithCommandRunner(r CommandRunner) Option {
	return func(c *Converter) { c.runner = r }
}

// WithAssetPath loads filters, mappings and styles from dir before falling
// back to the embedded ones.
func WithAssetPath(dir string) Option {
	return func(c *Converter) { c.cfg.assetPath = dir }
}

// WithMappingTable selects the base mapping table by asset name.
func WithMappingTable(name string) Option {
	return func(c *Converter) { c.cfg.mappingName = name }
}

// WithMappings adds entries to the base mapping table, replacing entries
// with the same name.
func WithMappings(t MappingTable) Option {
	return func(c *Converter) { c.cfg.mappings = c.cfg.mappings.Merge(t) }
}

// WithComponentDir sets the import prefix of Image and MultiImage.
func WithComponentDir(dir string) Option {
	return func(c *Converter) { c.cfg.componentDir = dir }
}

// WithDateFormat sets the layout of the default published date.
func WithDateFormat(layout string) Option {
	return func(c *Converter) { c.cfg.dateFormat = layout }
}

// WithNow sets the clock used for the default published date.
func WithNow(now func() time.Time) Option {
	return func(c *Converter) { c.now = now }
}

// WithNotionToken sets the Notion integration token.
func WithNotionToken(token string) Option {
	return func(c *Converter) { c.cfg.notionToken = token }
}

// WithNotionRate sets the Notion API request rate in requests per second.
func WithNotionRate(perSecond float64) Option {
	return func(c *Converter) {
		if perSecond > 0 {
			c.cfg.notionRate = perSecond
		}
	}
}

// WithNotionSource replaces the Notion API client.
func WithNotionSource(src NotionSource) Option {
	return func(c *Converter) { c.notion = src }
}

// WithHTTPClient sets the client used to download remote images.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Converter) { c.http = client }
}

// WithProofStyle selects the proof stylesheet by asset name.
func WithProofStyle(name string) Option {
	return func(c *Converter) { c.cfg.proofStyle = name }
}

// WithTOCTitle sets the heading of the proof table of contents.
func WithTOCTitle(title string) Option {
	return func(c *Converter) { c.cfg.tocTitle = title }
}

// WithTimeout bounds page loading when rendering proof PDFs.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("mdxport: WithTimeout duration must be positive")
	}
	return func(c *Converter) { c.cfg.pdfTimeout = d }
}
