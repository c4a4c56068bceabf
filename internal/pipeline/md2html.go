package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"path"
	"regexp"
	"strconv"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/alnah/go-mdxport/internal/yamlutil"
)

// ErrHTMLConversion indicates proof HTML conversion failed.
var ErrHTMLConversion = errors.New("HTML conversion failed")

// htmlTemplate wraps goldmark's fragment output in a complete HTML5 document.
const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
%s
</body>
</html>`

var (
	importLine     = regexp.MustCompile(`(?m)^import (\w+) from '([^']+)';\n?`)
	componentAttr  = regexp.MustCompile(`(\w+)="([^"]*)"`)
	entryField     = regexp.MustCompile(`(\w+): ("(?:[^"\\]|\\.)*"|\w+)`)
	multiImageAttr = regexp.MustCompile(`(?m)^  (caption|id)="([^"]*)"$`)
)

// HTMLConverter abstracts MDX to HTML conversion.
type HTMLConverter interface {
	ToHTML(ctx context.Context, mdx string) (string, error)
}

// GoldmarkConverter renders a finished MDX document as standalone HTML.
// Image components become <figure> elements pointing at the imported
// files; other JSX passes through as raw HTML.
type GoldmarkConverter struct {
	md goldmark.Markdown
}

// NewGoldmarkConverter creates a GoldmarkConverter with GFM extensions and syntax highlighting.
func NewGoldmarkConverter() *GoldmarkConverter {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			gmhtml.WithXHTML(),
			gmhtml.WithUnsafe(), // anchors and figures are raw HTML
		),
	)
	return &GoldmarkConverter{md: md}
}

// ToHTML converts mdx to an HTML5 document. Goldmark does not take a
// context, so conversion runs in a goroutine raced against ctx.
func (c *GoldmarkConverter) ToHTML(ctx context.Context, mdx string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	title, body := proofMarkdown(mdx)

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := c.md.Convert([]byte(body), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrHTMLConversion, err)}
			return
		}
		done <- result{html: fmt.Sprintf(htmlTemplate, html.EscapeString(title), buf.String())}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}

// proofMarkdown strips front matter and imports from mdx and rewrites the
// image components into HTML figures.
func proofMarkdown(mdx string) (title, body string) {
	title = DefaultTitle
	if block, rest, ok := yamlutil.SplitFrontMatter(mdx); ok {
		if fm, err := ParseFrontMatter([]byte(block)); err == nil && fm.Title != "" {
			title = fm.Title
		}
		mdx = rest
	}

	sources := make(map[string]string)
	for _, m := range importLine.FindAllStringSubmatch(mdx, -1) {
		sources[m[1]] = path.Clean(m[2])
	}
	body = importLine.ReplaceAllString(mdx, "")

	body = imageComponent.ReplaceAllStringFunc(body, func(m string) string {
		src := sources[imageComponent.FindStringSubmatch(m)[1]]
		attrs := make(map[string]string)
		for _, a := range componentAttr.FindAllStringSubmatch(m, -1) {
			attrs[a[1]] = a[2]
		}
		img := `<img src="` + html.EscapeString(src) + `" alt="` + attrs["alt"] + `" />`
		return figureHTML(attrs["id"], []string{img}, attrs["caption"])
	})

	body = multiImage.ReplaceAllStringFunc(body, func(m string) string {
		parts := multiImage.FindStringSubmatch(m)
		var imgs []string
		for _, line := range strings.Split(parts[1], "\n") {
			fields := make(map[string]string)
			for _, f := range entryField.FindAllStringSubmatch(line, -1) {
				v := f[2]
				if u, err := strconv.Unquote(v); err == nil {
					v = u
				}
				fields[f[1]] = v
			}
			v, ok := fields["src"]
			if !ok {
				continue
			}
			img := `<img src="` + html.EscapeString(sources[v]) + `" alt="` + html.EscapeString(fields["alt"]) + `" />`
			imgs = append(imgs, figureHTML(fields["id"], []string{img}, html.EscapeString(fields["caption"])))
		}
		attrs := make(map[string]string)
		for _, a := range multiImageAttr.FindAllStringSubmatch(parts[2], -1) {
			attrs[a[1]] = a[2]
		}
		return figureHTML(attrs["id"], imgs, attrs["caption"])
	})
	return title, body
}

// figureHTML renders a raw HTML block; caption is already escaped.
func figureHTML(id string, children []string, caption string) string {
	var b strings.Builder
	b.WriteString("<figure")
	if id != "" {
		b.WriteString(` id="` + html.EscapeString(id) + `"`)
	}
	b.WriteString(">\n")
	for _, c := range children {
		b.WriteString(c + "\n")
	}
	if caption != "" {
		b.WriteString("<figcaption>" + caption + "</figcaption>\n")
	}
	b.WriteString("</figure>")
	return b.String()
}
