package pipeline

import (
	"context"

	"github.com/alnah/go-mdxport/internal/yamlutil"
)

// ProofOptions configures RenderProof.
type ProofOptions struct {
	CSS      string // stylesheet content, empty for none
	BaseDir  string // directory the MDX image imports are relative to
	TOCTitle string
	NoTOC    bool
}

// Proofer renders a finished MDX document as reviewable HTML.
type Proofer struct {
	Converter HTMLConverter
	Header    HeaderInjector
	TOC       TOCInjector
	CSS       CSSInjector
}

// NewProofer wires the goldmark converter and the built-in injectors.
func NewProofer() *Proofer {
	return &Proofer{
		Converter: NewGoldmarkConverter(),
		Header:    NewHeaderInjection(),
		TOC:       NewTOCInjection(),
		CSS:       &CSSInjection{},
	}
}

// Render converts mdx, adds the metadata header and a TOC, inlines the
// stylesheet and points image sources at the files under BaseDir.
func (p *Proofer) Render(ctx context.Context, mdx string, opts ProofOptions) (string, error) {
	out, err := p.Converter.ToHTML(ctx, mdx)
	if err != nil {
		return "", err
	}

	var header *HeaderData
	if block, _, ok := yamlutil.SplitFrontMatter(mdx); ok {
		if fm, err := ParseFrontMatter([]byte(block)); err == nil {
			header = NewHeaderData(fm)
		}
	}
	if out, err = p.Header.InjectHeader(ctx, out, header); err != nil {
		return "", err
	}

	if !opts.NoTOC {
		toc := &TOCData{Title: opts.TOCTitle, MinDepth: 2, MaxDepth: 3}
		if out, err = p.TOC.InjectTOC(ctx, out, toc); err != nil {
			return "", err
		}
	}

	out = p.CSS.InjectCSS(ctx, out, opts.CSS)
	return RewriteAssetPaths(out, opts.BaseDir)
}
