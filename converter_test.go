package mdxport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
)

var fixedNow = func() time.Time { return time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC) }

// pngBytes is enough of a PNG for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newTestConverter(t *testing.T, opts ...Option) *Converter {
	t.Helper()
	c, err := NewConverter(append([]Option{WithNow(fixedNow)}, opts...)...)
	if err != nil {
		t.Fatalf("NewConverter() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readOutput(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func assertContains(t *testing.T, got string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

// ---------------------------------------------------------------------------
// TestNewConverter
// ---------------------------------------------------------------------------

func TestNewConverter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{name: "defaults"},
		{name: "custom filters and timeout", opts: []Option{WithPandocFilters("a.lua"), WithPandocTimeout(time.Minute)}},
		{name: "missing asset path", opts: []Option{WithAssetPath("/nonexistent/mdxport-assets")}, wantErr: ErrInvalidAssetPath},
		{name: "unknown mapping table", opts: []Option{WithMappingTable("nope")}, wantErr: errAny},
		{name: "bad date format", opts: []Option{WithDateFormat("[Rev YYYY")}, wantErr: errAny},
		{name: "unknown proof style", opts: []Option{WithProofStyle("nope")}, wantErr: errAny},
		{
			name:    "invalid extra mapping",
			opts:    []Option{WithMappings(MappingTable{Environments: []EnvironmentMapping{{Name: "box", Type: "bogus"}}})},
			wantErr: errAny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := NewConverter(tt.opts...)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("NewConverter() error = %v", err)
				}
				if c.pandoc == nil || c.proofCSS == "" || len(c.mappings.Commands) == 0 {
					t.Errorf("converter not fully initialized: %+v", c)
				}
				return
			}
			if err == nil {
				t.Fatal("NewConverter() error = nil, want error")
			}
			if tt.wantErr != errAny && !errors.Is(err, tt.wantErr) {
				t.Errorf("NewConverter() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

var errAny = errors.New("any error")

func TestWithTimeout_PanicsOnNonPositive(t *testing.T) {
	t.Parallel()

	for name, fn := range map[string]func(){
		"WithTimeout":       func() { WithTimeout(0) },
		"WithPandocTimeout": func() { WithPandocTimeout(-time.Second) },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if recover() == nil {
					t.Errorf("%s did not panic", name)
				}
			}()
			fn()
		})
	}
}

// ---------------------------------------------------------------------------
// TestConverter_Convert: validation
// ---------------------------------------------------------------------------

func TestConverter_ConvertValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page.html"), "<html></html>")
	writeFile(t, filepath.Join(dir, "notes.md"), "# Notes")

	c := newTestConverter(t)
	tests := []struct {
		name    string
		in      Input
		wantErr error
	}{
		{"no input", Input{OutputDir: dir}, ErrNoInput},
		{"no output", Input{Path: "a.tex"}, ErrNoOutput},
		{"missing file", Input{Path: filepath.Join(dir, "none.tex"), OutputDir: dir}, ErrInputNotFound},
		{"convert-only on markdown", Input{Path: filepath.Join(dir, "notes.md"), OutputDir: dir, Mode: ModeConvertOnly}, ErrUnsupportedInput},
		{"mdx-only on html", Input{Path: filepath.Join(dir, "page.html"), OutputDir: dir, Mode: ModeMDXOnly}, ErrUnsupportedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Convert(context.Background(), tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("Convert() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConverter_ConvertNotionWithoutToken(t *testing.T) {
	t.Setenv(NotionTokenEnv, "")

	c := newTestConverter(t)
	_, err := c.Convert(context.Background(), Input{Path: "notion:abc123", OutputDir: t.TempDir()})
	if !errors.Is(err, ErrNotionToken) {
		t.Errorf("Convert() error = %v, want ErrNotionToken", err)
	}
}

// ---------------------------------------------------------------------------
// TestConverter_Convert: LaTeX
// ---------------------------------------------------------------------------

func latexFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.tex"), strings.Join([]string{
		`\documentclass{article}`,
		`\title{Deep Nets}`,
		`\author{Ada Lovelace}`,
		`\begin{document}`,
		`\input{intro}`,
		`\bibliography{refs}`,
		`\end{document}`,
	}, "\n"))
	writeFile(t, filepath.Join(dir, "intro.tex"), `\section{Intro}\label{sec:intro}`+"\nSee Section~\\ref{sec:intro} and \\cite{knuth84}.")
	writeFile(t, filepath.Join(dir, "refs.bib"), "@book{knuth84,\n  title = {The TeXbook},\n  file = {/home/ada/papers/texbook.pdf},\n  year = {1984}\n}\n")
	return dir
}

func TestConverter_ConvertLaTeX(t *testing.T) {
	t.Parallel()

	src := latexFixture(t)
	out := t.TempDir()
	runner := &fakeRunner{output: "## Intro <span id=\"intro\"></span>\n\nSee Section [1](#intro) and [@knuth84].\n"}
	c := newTestConverter(t, WithCommandRunner(runner))

	res, err := c.Convert(context.Background(), Input{Path: src, OutputDir: out})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if res.Kind != SourceLaTeX || res.Slug != Slugify(filepath.Base(src)) {
		t.Errorf("result = %+v", res)
	}
	assertContains(t, runner.input, `\hypertarget{intro}{}`, `\hyperlink{intro}`)
	if runner.flag("--resource-path=") != src {
		t.Errorf("resource path = %q, want %q", runner.flag("--resource-path="), src)
	}

	mdx := readOutput(t, res.MDXPath)
	assertContains(t, mdx,
		"title: Deep Nets",
		"Ada Lovelace",
		"bibliography: bibliography.bib",
		"tableOfContentsAutoCollapse: true",
		"## Intro",
	)
	if !strings.HasPrefix(mdx, "---\n") || !strings.HasSuffix(mdx, "\n") || strings.HasSuffix(mdx, "\n\n") {
		t.Errorf("unexpected framing:\n%q", mdx)
	}

	bib := readOutput(t, res.BibliographyPath)
	if strings.Contains(bib, "texbook.pdf") {
		t.Errorf("local file field kept:\n%s", bib)
	}
	assertContains(t, bib, "@book{knuth84", "year = {1984}")

	if res.Stats.Labels != 1 || res.Stats.References != 1 {
		t.Errorf("stats = %s", res.Stats)
	}
}

func TestConverter_ConvertOnly(t *testing.T) {
	t.Parallel()

	src := latexFixture(t)
	out := t.TempDir()
	runner := &fakeRunner{output: "raw pandoc output\n"}
	c := newTestConverter(t, WithCommandRunner(runner))

	res, err := c.Convert(context.Background(), Input{Path: filepath.Join(src, "main.tex"), OutputDir: out, Mode: ModeConvertOnly})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if got := readOutput(t, res.MarkdownPath); got != "raw pandoc output\n" {
		t.Errorf("markdown = %q", got)
	}
	if filepath.Base(res.MarkdownPath) != "main.md" {
		t.Errorf("markdown path = %s", res.MarkdownPath)
	}
	if res.MDXPath != "" {
		t.Errorf("convert-only wrote MDX: %s", res.MDXPath)
	}
}

func TestConverter_BibOnly(t *testing.T) {
	t.Parallel()

	src := latexFixture(t)
	out := t.TempDir()
	runner := &fakeRunner{}
	c := newTestConverter(t, WithCommandRunner(runner))

	res, err := c.Convert(context.Background(), Input{Path: src, OutputDir: out, Mode: ModeBibOnly})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if runner.calls != 0 {
		t.Error("pandoc ran in bib-only mode")
	}
	if res.BibliographyPath != filepath.Join(out, BibliographyFile) {
		t.Errorf("bibliography path = %q", res.BibliographyPath)
	}
	if _, err := os.Stat(filepath.Join(out, res.Slug+".mdx")); !os.IsNotExist(err) {
		t.Error("bib-only wrote an MDX file")
	}
}

func TestConverter_ConvertLaTeXPandocFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{stderr: "Error at \"source\" (line 5)", err: errors.New("exit status 64")}
	c := newTestConverter(t, WithCommandRunner(runner))

	_, err := c.Convert(context.Background(), Input{Path: latexFixture(t), OutputDir: t.TempDir()})
	if !errors.Is(err, ErrConversion) {
		t.Fatalf("Convert() error = %v, want ErrConversion", err)
	}
	assertContains(t, err.Error(), `Error at "source" (line 5)`)
}

// ---------------------------------------------------------------------------
// TestConverter_Convert: Markdown
// ---------------------------------------------------------------------------

func TestConverter_ConvertMarkdown(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "figs", "plot.png"), string(pngBytes))
	writeFile(t, filepath.Join(src, "My Paper.md"), strings.Join([]string{
		"---",
		"tags: [vision]",
		"---",
		"# A Study",
		"",
		"Intro with ==key== words.",
		"",
		"![A plot](figs/plot.png)",
		"",
		"![gone](figs/missing.png)",
		"",
	}, "\n"))
	out := t.TempDir()

	c := newTestConverter(t, WithComponentDir("@components"))
	res, err := c.Convert(context.Background(), Input{
		Path:      filepath.Join(src, "My Paper.md"),
		OutputDir: out,
		Metadata:  &FrontMatter{Subtitle: "Preprint", Extra: map[string]any{"draft": true}},
		Mode:      ModeMDXOnly,
	})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if res.Slug != "my-paper" || res.Assets != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(out, "assets", "image", "plot.png")); err != nil {
		t.Errorf("asset not copied: %v", err)
	}

	mdx := readOutput(t, res.MDXPath)
	assertContains(t, mdx,
		"title: A Study",
		"subtitle: Preprint",
		"- vision",
		"published: Mar 14, 2025",
		"draft: true",
		"import Image from '@components/Image.astro';",
		"import plot from './assets/image/plot.png';",
		`<Image src={plot} alt="A plot" caption="A plot"`,
		"<mark>key</mark>",
	)
	if strings.Contains(mdx, "# A Study") {
		t.Errorf("H1 kept in body:\n%s", mdx)
	}
	if strings.Contains(mdx, "missing.png") || res.Stats.Dangling != 1 {
		t.Errorf("dangling image kept (dangling=%d):\n%s", res.Stats.Dangling, mdx)
	}
}

func TestConverter_ConvertSharedAssetDir(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	doc := "# Doc\n\n![Plot](plot.png)\n"
	writeFile(t, filepath.Join(src, "a", "doc.md"), doc)
	writeFile(t, filepath.Join(src, "a", "plot.png"), string(pngBytes)+"a")
	writeFile(t, filepath.Join(src, "b", "doc.md"), doc)
	writeFile(t, filepath.Join(src, "b", "plot.png"), string(pngBytes)+"b")
	writeFile(t, filepath.Join(src, "c", "doc.md"), "# Doc\n\n![Gone](plot.png)\n")
	out := t.TempDir()

	c := newTestConverter(t)
	convert := func(dir, slug string) string {
		t.Helper()
		res, err := c.Convert(context.Background(), Input{
			Path:      filepath.Join(src, dir, "doc.md"),
			OutputDir: out,
			Slug:      slug,
			Mode:      ModeMDXOnly,
		})
		if err != nil {
			t.Fatalf("Convert(%s) error = %v", dir, err)
		}
		return readOutput(t, res.MDXPath)
	}

	first := convert("a", "first")
	second := convert("b", "second")
	again := convert("a", "first")
	missing := convert("c", "third")

	assertContains(t, first, "'./assets/image/plot.png'")
	assertContains(t, second, "'./assets/image/plot-2.png'")
	if again != first {
		t.Errorf("re-import changed the document:\n%s", again)
	}
	if strings.Contains(missing, "plot") {
		t.Errorf("missing image resolved to another document's file:\n%s", missing)
	}

	for name, want := range map[string]string{"plot.png": "a", "plot-2.png": "b"} {
		got := readOutput(t, filepath.Join(out, "assets", "image", name))
		if !strings.HasSuffix(got, want) {
			t.Errorf("%s holds the wrong image", name)
		}
	}
	entries, err := os.ReadDir(filepath.Join(out, "assets", "image"))
	if err != nil || len(entries) != 2 {
		t.Errorf("asset dir has %d files, want 2 (err = %v)", len(entries), err)
	}
}

func TestConverter_Proof(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "note.md"), "# Proofed\n\n## Section\n\nText.\n")
	out := t.TempDir()

	pdf := &mockPDFConverter{Result: []byte("%PDF-1.7")}
	c := newTestConverter(t)
	c.pdf = pdf

	res, err := c.Convert(context.Background(), Input{
		Path: filepath.Join(src, "note.md"), OutputDir: out, Proof: true, ProofPDF: true,
	})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	page := readOutput(t, res.ProofHTMLPath)
	assertContains(t, page, "Proofed", "Section")
	if got := readOutput(t, res.ProofPDFPath); got != "%PDF-1.7" {
		t.Errorf("pdf = %q", got)
	}
	if pdf.HTML != page {
		t.Error("PDF rendered from a different page than the HTML proof")
	}

	if err := c.Close(); err != nil || !pdf.Closed {
		t.Errorf("Close() = %v, closed = %v", err, pdf.Closed)
	}
}

func TestConverter_ProofPDFFailureIsSoft(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "note.md"), "Text.\n")

	c := newTestConverter(t)
	c.pdf = &mockPDFConverter{Err: ErrBrowserConnect}

	res, err := c.Convert(context.Background(), Input{Path: filepath.Join(src, "note.md"), OutputDir: t.TempDir(), ProofPDF: true})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if res.ProofPDFPath != "" || res.MDXPath == "" {
		t.Errorf("result = %+v", res)
	}
}

// ---------------------------------------------------------------------------
// TestConverter_Convert: Notion
// ---------------------------------------------------------------------------

// fakeNotion serves a page and its block tree from memory.
type fakeNotion struct {
	page     *notionapi.Page
	children map[string][]notionapi.Block
	err      error
}

func (f *fakeNotion) Page(_ context.Context, _ string) (*notionapi.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func (f *fakeNotion) Children(_ context.Context, id string) ([]notionapi.Block, error) {
	return f.children[id], nil
}

func text(s string) []notionapi.RichText {
	return []notionapi.RichText{{PlainText: s, Text: &notionapi.Text{Content: s}}}
}

func TestConverter_ConvertNotionPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	notion := &fakeNotion{
		page: &notionapi.Page{
			CreatedTime: time.Date(2024, time.October, 3, 16, 12, 0, 0, time.UTC),
			Properties: notionapi.Properties{
				"Name": &notionapi.TitleProperty{Title: text("Research Notes")},
				"Tags": &notionapi.MultiSelectProperty{MultiSelect: []notionapi.Option{{Name: "ml"}}},
			},
		},
		children: map[string][]notionapi.Block{
			"page1": {
				&notionapi.Heading1Block{Heading1: notionapi.Heading{RichText: text("Intro")}},
				&notionapi.ParagraphBlock{Paragraph: notionapi.Paragraph{RichText: text("Energy is $E$.")}},
				&notionapi.ImageBlock{Image: notionapi.Image{
					External: &notionapi.FileObject{URL: srv.URL + "/files/plot?sig=abc"},
					Caption:  text("Loss curve"),
				}},
			},
		},
	}

	out := t.TempDir()
	c := newTestConverter(t, WithNotionSource(notion), WithHTTPClient(srv.Client()))
	res, err := c.Convert(context.Background(), Input{Path: "notion:page1", OutputDir: out})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if res.Kind != SourceNotionPage || res.Slug != "research-notes" {
		t.Errorf("result = %+v", res)
	}
	mdx := readOutput(t, res.MDXPath)
	assertContains(t, mdx,
		"title: Research Notes",
		"- ml",
		"published: Oct 03, 2024",
		"## Intro",
		"import plot from './assets/image/plot.png';",
		`caption="Loss curve"`,
	)
	if _, err := os.Stat(filepath.Join(out, "assets", "image", "plot.png")); err != nil {
		t.Errorf("downloaded image not copied: %v", err)
	}
}

func TestConverter_ConvertNotionFetchError(t *testing.T) {
	t.Parallel()

	c := newTestConverter(t, WithNotionSource(&fakeNotion{err: ErrNotionFetch}))
	_, err := c.Convert(context.Background(), Input{Path: "notion:page1", OutputDir: t.TempDir()})
	if !errors.Is(err, ErrNotionFetch) {
		t.Errorf("Convert() error = %v, want ErrNotionFetch", err)
	}
}

func TestConverter_ConvertNotionExport(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "Notes 0123456789abcdef0123456789abcdef", "chart.png"), string(pngBytes))
	writeFile(t, filepath.Join(src, "Notes 0123456789abcdef0123456789abcdef.html"), notionExportHTML)
	out := t.TempDir()

	c := newTestConverter(t)
	res, err := c.Convert(context.Background(), Input{Path: src, OutputDir: out})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if res.Kind != SourceNotionHTML || res.Slug != "notes" {
		t.Errorf("result = %+v", res)
	}
	mdx := readOutput(t, res.MDXPath)
	assertContains(t, mdx,
		"title: Export Title",
		"- physics",
		"$$\nE = mc^2\n$$",
		"$x$",
		"import chart from './assets/image/chart.png';",
		`caption="A chart"`,
	)
}

// ---------------------------------------------------------------------------
// TestLoadFrontMatter
// ---------------------------------------------------------------------------

func TestLoadFrontMatter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	plain := filepath.Join(dir, "meta.yaml")
	writeFile(t, plain, "title: Override\nlayout: wide\n")
	fenced := filepath.Join(dir, "meta.md")
	writeFile(t, fenced, "---\ntitle: Fenced\n---\n")

	fm, err := LoadFrontMatter(plain)
	if err != nil {
		t.Fatalf("LoadFrontMatter() error = %v", err)
	}
	if fm.Title != "Override" || fm.Extra["layout"] != "wide" {
		t.Errorf("front matter = %+v", fm)
	}

	fm, err = LoadFrontMatter(fenced)
	if err != nil || fm.Title != "Fenced" {
		t.Errorf("LoadFrontMatter(fenced) = %+v, %v", fm, err)
	}

	if _, err := LoadFrontMatter(filepath.Join(dir, "none.yaml")); !errors.Is(err, ErrReadSource) {
		t.Errorf("missing file error = %v, want ErrReadSource", err)
	}
}
