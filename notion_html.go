package mdxport

import (
	"fmt"
	"os"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/strikethrough"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// notionPage is a Notion page rendered to Markdown, with the metadata the
// page carries outside its body.
type notionPage struct {
	Title    string
	Tags     []string
	Created  string
	Markdown string
}

// newNotionHTMLConverter builds the converter for Notion HTML exports.
// Equations keep their TeX source, image figures become Markdown images
// with the caption as alt text, and callouts become block quotes.
func newNotionHTMLConverter() *converter.Converter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			strikethrough.NewStrikethroughPlugin(),
			table.NewTablePlugin(),
		),
	)
	conv.Register.RendererFor("figure", converter.TagTypeBlock, renderNotionFigure, converter.PriorityEarly)
	conv.Register.RendererFor("span", converter.TagTypeInline, renderInlineEquation, converter.PriorityEarly)
	return conv
}

func renderNotionFigure(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
	switch {
	case dom.HasClass(n, "equation"):
		tex := texAnnotation(n)
		if tex == "" {
			return converter.RenderTryNext
		}
		_, _ = w.WriteString("\n\n$$\n" + tex + "\n$$\n\n")
		return converter.RenderSuccess

	case dom.HasClass(n, "image"):
		img := dom.FindFirstNode(n, func(c *html.Node) bool { return c.DataAtom == atom.Img })
		if img == nil {
			return converter.RenderTryNext
		}
		src := dom.GetAttributeOr(img, "src", "")
		alt := ""
		if caption := dom.FindFirstNode(n, func(c *html.Node) bool { return c.DataAtom == atom.Figcaption }); caption != nil {
			alt = strings.TrimSpace(dom.CollectText(caption))
		}
		if alt == "" {
			alt = dom.GetAttributeOr(img, "alt", "")
		}
		_, _ = w.WriteString("\n\n![" + escapeAlt(alt) + "](" + src + ")\n\n")
		return converter.RenderSuccess

	case dom.HasClass(n, "callout"):
		var body strings.Builder
		for _, child := range dom.AllChildElements(n) {
			if dom.FindFirstNode(child, func(c *html.Node) bool { return dom.HasClass(c, "icon") }) != nil {
				continue
			}
			ctx.RenderNodes(ctx, &body, child)
		}
		_, _ = w.WriteString("\n\n" + quoteLines(strings.TrimSpace(body.String())) + "\n\n")
		return converter.RenderSuccess
	}
	return converter.RenderTryNext
}

func renderInlineEquation(_ converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
	if !dom.HasClass(n, "notion-text-equation-token") {
		return converter.RenderTryNext
	}
	tex := texAnnotation(n)
	if tex == "" {
		return converter.RenderTryNext
	}
	_, _ = w.WriteString("$" + tex + "$")
	return converter.RenderSuccess
}

// texAnnotation returns the TeX source KaTeX keeps in its MathML output.
func texAnnotation(n *html.Node) string {
	ann := dom.FindFirstNode(n, func(c *html.Node) bool {
		return c.Type == html.ElementNode && c.Data == "annotation" &&
			dom.GetAttributeOr(c, "encoding", "") == "application/x-tex"
	})
	if ann == nil {
		return ""
	}
	return strings.TrimSpace(dom.CollectText(ann))
}

func escapeAlt(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`, "\n", " ").Replace(s)
}

func quoteLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	return strings.Join(lines, "\n")
}

// readNotionExport converts one exported Notion page. The title comes from
// the page header, tags from its multi-select property rows.
func readNotionExport(path string, conv *converter.Converter) (notionPage, error) {
	f, err := os.Open(path) // #nosec G304 -- user-provided input
	if err != nil {
		return notionPage{}, fmt.Errorf("%w: %v", ErrReadSource, err)
	}
	defer func() { _ = f.Close() }()

	doc, err := html.Parse(f)
	if err != nil {
		return notionPage{}, fmt.Errorf("%w: parsing %s: %v", ErrReadSource, path, err)
	}

	var page notionPage
	if h := dom.FindFirstNode(doc, func(n *html.Node) bool { return dom.HasClass(n, "page-title") }); h != nil {
		page.Title = strings.TrimSpace(dom.CollectText(h))
	}
	if props := dom.FindFirstNode(doc, func(n *html.Node) bool { return dom.HasClass(n, "properties") }); props != nil {
		page.Tags, page.Created = exportProperties(props)
	}

	// The header repeats title and properties; the body is what remains.
	root := doc
	if body := dom.FindFirstNode(doc, func(n *html.Node) bool { return dom.HasClass(n, "page-body") }); body != nil {
		root = body
	} else if header := dom.FindFirstNode(doc, func(n *html.Node) bool { return n.DataAtom == atom.Header }); header != nil {
		dom.RemoveNode(header)
	}

	md, err := conv.ConvertNode(root)
	if err != nil {
		return notionPage{}, fmt.Errorf("%w: converting %s: %v", ErrReadSource, path, err)
	}
	page.Markdown = string(md)
	return page, nil
}

func exportProperties(table *html.Node) (tags []string, created string) {
	rows := dom.FindAllNodes(table, func(n *html.Node) bool { return n.DataAtom == atom.Tr })
	for _, row := range rows {
		th := dom.FindFirstNode(row, func(n *html.Node) bool { return n.DataAtom == atom.Th })
		if th == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(dom.CollectText(th)))
		switch {
		case dom.HasClass(row, "property-row-multi_select") && isTagProperty(name):
			for _, v := range dom.FindAllNodes(row, func(n *html.Node) bool { return dom.HasClass(n, "selected-value") }) {
				if tag := strings.TrimSpace(dom.CollectText(v)); tag != "" {
					tags = append(tags, tag)
				}
			}
		case dom.HasClass(row, "property-row-created_time"):
			if td := dom.FindFirstNode(row, func(n *html.Node) bool { return n.DataAtom == atom.Td }); td != nil {
				created = strings.TrimSpace(dom.CollectText(td))
			}
		}
	}
	return tags, created
}

func isTagProperty(name string) bool {
	switch name {
	case "tags", "tag", "keywords", "topics":
		return true
	}
	return false
}
