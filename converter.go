package mdxport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	h2m "github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/alnah/go-mdxport/internal/assets"
	"github.com/alnah/go-mdxport/internal/dateutil"
	"github.com/alnah/go-mdxport/internal/fileutil"
	"github.com/alnah/go-mdxport/internal/hints"
	"github.com/alnah/go-mdxport/internal/logger"
	"github.com/alnah/go-mdxport/internal/pipeline"
	"github.com/alnah/go-mdxport/internal/yamlutil"
)

// Compile-time interface implementation checks.
var (
	_ pipeline.HTMLConverter  = (*pipeline.GoldmarkConverter)(nil)
	_ pipeline.CSSInjector    = (*pipeline.CSSInjection)(nil)
	_ pipeline.HeaderInjector = (*pipeline.HeaderInjection)(nil)
	_ pipeline.TOCInjector    = (*pipeline.TOCInjection)(nil)
	_ CommandRunner           = (*ExecRunner)(nil)
)

// Output file permissions. The output tree is published with the site.
const (
	filePerm = 0o644
	dirPerm  = 0o750
)

// Converter runs the import pipeline. Create with NewConverter, convert
// documents one at a time with Convert, and call Close when done.
// A Converter is not safe for concurrent use.
type Converter struct {
	cfg    converterConfig
	log    logger.Logger
	runner CommandRunner
	now    func() time.Time
	notion NotionSource
	http   *http.Client

	assets     *assets.Overlay
	mappings   pipeline.MappingTable
	pandoc     *PandocConverter
	exportConv *h2m.Converter
	proofer    *pipeline.Proofer
	proofCSS   string
	pdf        pdfConverter
}

// NewConverter creates a Converter. Asset, mapping and style errors are
// reported here so a bad setup fails before any document is read.
// pandoc is not looked up; call CheckPandoc before converting LaTeX.
func NewConverter(opts ...Option) (*Converter, error) {
	c := &Converter{
		cfg: converterConfig{
			mappingName:  assets.DefaultMappingName,
			componentDir: pipeline.DefaultComponentDir,
			notionRate:   defaultNotionRate,
			proofStyle:   assets.ProofStyleName,
			pdfTimeout:   defaultPDFTimeout,
		},
		log:    logger.NewNop(),
		runner: &ExecRunner{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	overlay, err := assets.NewOverlay(c.cfg.assetPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssetPath, err)
	}
	c.assets = overlay
	if overlay.Custom() {
		c.log.Debug("assets from %s; mapping tables: %s",
			c.cfg.assetPath, strings.Join(overlay.Names(assets.Mapping), ", "))
	}
	if err := c.prepare(); err != nil {
		_ = overlay.Close()
		return nil, err
	}
	return c, nil
}

// prepare loads the mapping table, the equation filter and the proof style.
func (c *Converter) prepare() error {
	base, err := c.loadMappings(c.cfg.mappingName)
	if err != nil {
		return err
	}
	c.mappings = base.Merge(c.cfg.mappings)
	if err := c.mappings.Validate(); err != nil {
		return err
	}

	if c.cfg.dateFormat != "" {
		if _, err := dateutil.Format(c.cfg.dateFormat, c.now()); err != nil {
			return err
		}
	}

	filter, err := c.assets.Load(assets.Filter, assets.EquationFilterName)
	if err != nil {
		return fmt.Errorf("loading pandoc filter: %w", err)
	}
	c.pandoc = NewPandocConverter(filter)
	c.pandoc.Runner = c.runner
	c.pandoc.Filters = c.cfg.pandocFilters
	c.pandoc.Timeout = c.cfg.pandocTimeout
	c.pandoc.Log = c.log
	if c.cfg.pandocBinary != "" {
		c.pandoc.Binary = c.cfg.pandocBinary
	}

	if c.proofCSS, err = c.loadStyle(c.cfg.proofStyle); err != nil {
		return err
	}
	c.proofer = pipeline.NewProofer()
	c.exportConv = newNotionHTMLConverter()
	return nil
}

// loadMappings accepts an asset name or a path to a YAML table.
func (c *Converter) loadMappings(name string) (pipeline.MappingTable, error) {
	if !fileutil.IsFilePath(name) {
		t, err := pipeline.LoadMappingTable(c.assets, name)
		if err != nil {
			return pipeline.MappingTable{}, fmt.Errorf("loading mapping table %q: %w", name, err)
		}
		return t, nil
	}
	data, err := os.ReadFile(name) // #nosec G304 -- user-provided path
	if err != nil {
		return pipeline.MappingTable{}, fmt.Errorf("loading mapping table %q: %w", name, err)
	}
	return pipeline.ParseMappingTable(data)
}

// loadStyle accepts an asset name or a path to a stylesheet.
func (c *Converter) loadStyle(name string) (string, error) {
	if fileutil.IsFilePath(name) {
		data, err := os.ReadFile(name) // #nosec G304 -- user-provided path
		if err != nil {
			return "", fmt.Errorf("loading style file %q: %w", name, err)
		}
		return string(data), nil
	}
	css, err := c.assets.Load(assets.Style, name)
	if err != nil {
		return "", fmt.Errorf("loading style %q: %w", name, err)
	}
	return css, nil
}

// CheckPandoc reports ErrPandocNotFound when pandoc cannot be executed.
func (c *Converter) CheckPandoc() error {
	return c.pandoc.Check()
}

// Close releases the browser used for PDF proofs and the asset directory.
func (c *Converter) Close() error {
	var pdfErr error
	if c.pdf != nil {
		pdfErr = c.pdf.Close()
	}
	return errors.Join(pdfErr, c.assets.Close())
}

// Convert imports one document into in.OutputDir.
// Recovers from internal panics to prevent crashes from propagating to callers.
func (c *Converter) Convert(ctx context.Context, in Input) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	src, err := resolveSource(in.Path)
	if err != nil {
		return nil, err
	}
	if err := checkMode(in.Mode, src.kind); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(in.OutputDir, dirPerm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}

	media, cleanup, err := fileutil.MakeTempDir()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	defer cleanup()

	res := &Result{Kind: src.kind, Slug: src.slug}
	if in.Slug != "" {
		res.Slug = in.Slug
	}
	pc := pipeline.NewContext(src.dir, c.log)
	pc.Assets.SetOccupied(assetOccupied(in.OutputDir))

	doc, err := c.readSource(ctx, src, media, res, in.Slug == "")
	if err != nil {
		return nil, err
	}
	doc.OutputPath = filepath.Join(in.OutputDir, res.Slug+".mdx")

	if in.Mode == ModeBibOnly {
		if _, err := c.bibliography(doc, in.OutputDir, res); err != nil {
			return nil, err
		}
		return res, nil
	}

	body, err := c.toMarkdown(ctx, pc, doc, media, res)
	if err != nil {
		return nil, err
	}
	if in.Mode == ModeConvertOnly {
		res.MarkdownPath = filepath.Join(in.OutputDir, res.Slug+".md")
		if err := writeOutput(res.MarkdownPath, body); err != nil {
			return nil, err
		}
		return res, nil
	}

	body, st := pipeline.RunPasses(pc, body, []pipeline.Pass{
		{Name: "clean", Apply: pipeline.Clean},
		pipeline.LocalizeImagesPass(),
		pipeline.ComponentizePass(),
	})
	res.Stats.Add(st)

	if doc.Metadata.Bibliography == "" {
		if _, err := c.bibliography(doc, in.OutputDir, res); err != nil {
			return nil, err
		}
	}

	if res.Assets, err = copyAssets(pc.Assets, in.OutputDir, c.log); err != nil {
		return nil, err
	}

	fm, err := c.frontMatter(in.Metadata, doc.Metadata)
	if err != nil {
		return nil, err
	}
	mdx, st, err := pipeline.Finalize(pc, fm, body, pipeline.FinalizeOptions{
		ComponentDir: c.cfg.componentDir,
		OutputDir:    in.OutputDir,
	})
	if err != nil {
		return nil, err
	}
	res.Stats.Add(st)

	res.MDXPath = doc.OutputPath
	if err := writeOutput(res.MDXPath, mdx); err != nil {
		return nil, err
	}
	if in.Proof || in.ProofPDF {
		c.writeProofs(ctx, mdx, in, res)
	}
	return res, nil
}

// validateInput checks the fields every conversion needs.
func validateInput(in Input) error {
	if strings.TrimSpace(in.Path) == "" {
		return ErrNoInput
	}
	if strings.TrimSpace(in.OutputDir) == "" {
		return ErrNoOutput
	}
	return nil
}

func checkMode(mode Mode, kind SourceKind) error {
	switch {
	case mode == ModeConvertOnly && kind != SourceLaTeX:
		return fmt.Errorf("%w: convert-only needs a LaTeX source, got %s", ErrUnsupportedInput, kind)
	case mode == ModeMDXOnly && kind != SourceMarkdown:
		return fmt.Errorf("%w: mdx-only needs a Markdown file, got %s", ErrUnsupportedInput, kind)
	}
	return nil
}

// readSource loads the document text and the metadata its source carries.
// LaTeX stays LaTeX; every other source is read as Markdown.
func (c *Converter) readSource(ctx context.Context, src source, media string, res *Result, deriveSlug bool) (*pipeline.Document, error) {
	doc := &pipeline.Document{Format: pipeline.FormatMarkdown, SourceDir: src.dir}

	switch src.kind {
	case SourceLaTeX:
		text, err := loadLaTeX(src.path, c.log)
		if err != nil {
			return nil, err
		}
		doc.Format = pipeline.FormatLaTeX
		doc.Source = text
		doc.Metadata = pipeline.ExtractLaTeXFrontMatter(text)

	case SourceMarkdown:
		data, err := os.ReadFile(src.path) // #nosec G304 -- user-provided input
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadSource, err)
		}
		doc.Source = string(data)

	case SourceNotionHTML:
		page, err := readNotionExport(src.path, c.exportConv)
		if err != nil {
			return nil, err
		}
		doc.Source = page.Markdown
		doc.Metadata = c.notionMetadata(page)

	case SourceNotionPage:
		notion, err := c.notionSource()
		if err != nil {
			return nil, err
		}
		page, err := fetchNotionPage(ctx, notion, src.path, newDownloader(c.http, media, c.log))
		if err != nil {
			return nil, err
		}
		doc.Source = page.Markdown
		doc.SourceDir = media
		doc.Metadata = c.notionMetadata(page)
		if deriveSlug && page.Title != "" {
			res.Slug = Slugify(page.Title)
		}
	}
	return doc, nil
}

func (c *Converter) notionMetadata(page notionPage) pipeline.FrontMatter {
	return pipeline.FrontMatter{
		Title:     page.Title,
		Tags:      page.Tags,
		Published: publishedDate(page.Created, c.cfg.dateFormat),
	}
}

// notionDateLayouts covers API timestamps and the export's property rows.
var notionDateLayouts = []string{"2006-01-02", "January 2, 2006 3:04 PM", "January 2, 2006"}

func publishedDate(created, layout string) string {
	for _, l := range notionDateLayouts {
		t, err := time.Parse(l, created)
		if err != nil {
			continue
		}
		if out, err := dateutil.Format(layout, t); err == nil {
			return out
		}
	}
	return ""
}

// toMarkdown runs the stages before the Cleaner: the LaTeX passes and
// pandoc, or front matter extraction and mapping for Markdown.
func (c *Converter) toMarkdown(ctx context.Context, pc *pipeline.Context, doc *pipeline.Document, media string, res *Result) (string, error) {
	if doc.Format == pipeline.FormatLaTeX {
		text, st := pipeline.RunPasses(pc, doc.Source, []pipeline.Pass{
			{Name: "normalizeIdentifiers", Apply: pipeline.NormalizeIdentifiers},
			{Name: "preprocess", Apply: pipeline.Preprocess},
			pipeline.NewMapper(c.mappings, pipeline.DialectLaTeX).Pass(),
		})
		res.Stats.Add(st)
		if st.Unresolved > 0 {
			c.log.Warn("%d references could not be resolved", st.Unresolved)
		}
		return c.pandoc.Convert(ctx, PandocRequest{
			Source:      text,
			ResourceDir: doc.SourceDir,
			MediaDir:    media,
		})
	}

	fm, body, err := pipeline.PrepareMarkdown(doc.Source)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadSource, err)
	}
	doc.Metadata = pipeline.MergeFrontMatter(doc.Metadata, fm)
	body, st := pipeline.NewMapper(c.mappings, pipeline.DialectMarkdown).Apply(pc, body)
	res.Stats.Add(st)
	return body, nil
}

// bibliography cleans the .bib files next to the source into the output
// and points the document's metadata at the copy.
func (c *Converter) bibliography(doc *pipeline.Document, outDir string, res *Result) (string, error) {
	if doc.SourceDir == "" || res.Kind == SourceNotionPage {
		return "", nil
	}
	latex := ""
	if doc.Format == pipeline.FormatLaTeX {
		latex = doc.Source
	}
	path, err := writeBibliography(findBibliographies(latex, doc.SourceDir), outDir, c.log)
	if err != nil || path == "" {
		return "", err
	}
	res.BibliographyPath = path
	doc.Metadata.Bibliography = BibliographyFile
	return path, nil
}

// frontMatter merges the caller's override, the extracted metadata and the
// computed defaults.
func (c *Converter) frontMatter(override *FrontMatter, extracted FrontMatter) (FrontMatter, error) {
	defaults, err := pipeline.DefaultFrontMatter(c.now(), c.cfg.dateFormat)
	if err != nil {
		return FrontMatter{}, err
	}
	var o FrontMatter
	if override != nil {
		o = *override
	}
	return pipeline.SynthesizeFrontMatter(o, extracted, defaults), nil
}

// writeProofs renders the review copies. Failures are logged: a proof
// never fails the import.
func (c *Converter) writeProofs(ctx context.Context, mdx string, in Input, res *Result) {
	page, err := c.proofer.Render(ctx, mdx, pipeline.ProofOptions{
		CSS:      c.proofCSS,
		BaseDir:  in.OutputDir,
		TOCTitle: c.cfg.tocTitle,
	})
	if err != nil {
		c.log.Warn("proof for %s: %v", res.Slug, err)
		return
	}

	if in.Proof {
		p := filepath.Join(in.OutputDir, res.Slug+".proof.html")
		if err := writeOutput(p, page); err != nil {
			c.log.Warn("proof for %s: %v", res.Slug, err)
		} else {
			res.ProofHTMLPath = p
		}
	}

	if in.ProofPDF {
		if c.pdf == nil {
			c.pdf = newProofPrinter(c.cfg.pdfTimeout)
		}
		pdf, err := c.pdf.ToPDF(ctx, page)
		if err != nil {
			var hint string
			if errors.Is(err, ErrBrowserConnect) {
				hint = hints.ForBrowserConnect()
			}
			c.log.Warn("PDF proof for %s: %v%s", res.Slug, err, hint)
			return
		}
		p := filepath.Join(in.OutputDir, res.Slug+".proof.pdf")
		if err := writeOutput(p, string(pdf)); err != nil {
			c.log.Warn("PDF proof for %s: %v", res.Slug, err)
			return
		}
		res.ProofPDFPath = p
	}
}

func writeOutput(path, content string) error {
	if err := os.WriteFile(path, []byte(content), filePerm); err != nil { // #nosec G306 -- published with the site
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}

// LoadFrontMatter reads a static front matter override. Keys without a
// dedicated field are kept and written after the known ones.
func LoadFrontMatter(path string) (*FrontMatter, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided path
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadSource, err)
	}
	if block, _, ok := yamlutil.SplitFrontMatter(string(data)); ok {
		data = []byte(block)
	}
	fm, err := pipeline.ParseFrontMatter(data)
	if err != nil {
		return nil, err
	}
	return &fm, nil
}
