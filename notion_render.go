package mdxport

import (
	"context"
	"strconv"
	"strings"

	"github.com/jomei/notionapi"
)

// maxBlockDepth bounds recursion into nested blocks.
const maxBlockDepth = 8

// blockRenderer turns Notion blocks into the Markdown the rest of the
// pipeline reads. Headings shift down one level: the page title is the
// document's only H1.
type blockRenderer struct {
	src   NotionSource
	media *downloader
}

func (r *blockRenderer) render(ctx context.Context, id string) (string, error) {
	var b strings.Builder
	if err := r.renderChildren(ctx, &b, id, 0); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()) + "\n", nil
}

func (r *blockRenderer) renderChildren(ctx context.Context, b *strings.Builder, id string, depth int) error {
	if depth > maxBlockDepth {
		return nil
	}
	blocks, err := r.src.Children(ctx, id)
	if err != nil {
		return err
	}
	return r.renderBlocks(ctx, b, blocks, depth)
}

func (r *blockRenderer) renderBlocks(ctx context.Context, b *strings.Builder, blocks []notionapi.Block, depth int) error {
	indent := strings.Repeat("    ", depth)
	ordinal := 0
	for _, block := range blocks {
		if _, ok := block.(*notionapi.NumberedListItemBlock); ok {
			ordinal++
		} else {
			ordinal = 0
		}

		switch blk := block.(type) {
		case *notionapi.ParagraphBlock:
			writeBlock(b, indent, richTextMarkdown(blk.Paragraph.RichText))
		case *notionapi.Heading1Block:
			writeBlock(b, indent, "## "+richTextMarkdown(blk.Heading1.RichText))
		case *notionapi.Heading2Block:
			writeBlock(b, indent, "### "+richTextMarkdown(blk.Heading2.RichText))
		case *notionapi.Heading3Block:
			writeBlock(b, indent, "#### "+richTextMarkdown(blk.Heading3.RichText))
		case *notionapi.BulletedListItemBlock:
			writeItem(b, indent, "- ", richTextMarkdown(blk.BulletedListItem.RichText))
		case *notionapi.NumberedListItemBlock:
			writeItem(b, indent, strconv.Itoa(ordinal)+". ", richTextMarkdown(blk.NumberedListItem.RichText))
		case *notionapi.ToDoBlock:
			box := "[ ] "
			if blk.ToDo.Checked {
				box = "[x] "
			}
			writeItem(b, indent, "- "+box, richTextMarkdown(blk.ToDo.RichText))
		case *notionapi.ToggleBlock:
			writeItem(b, indent, "- ", richTextMarkdown(blk.Toggle.RichText))
		case *notionapi.QuoteBlock:
			writeBlock(b, indent, quoteLines(richTextMarkdown(blk.Quote.RichText)))
		case *notionapi.CalloutBlock:
			writeBlock(b, indent, quoteLines(richTextMarkdown(blk.Callout.RichText)))
		case *notionapi.CodeBlock:
			lang := strings.ToLower(strings.ReplaceAll(blk.Code.Language, " ", ""))
			if lang == "plaintext" {
				lang = ""
			}
			writeBlock(b, indent, "```"+lang+"\n"+plainRichText(blk.Code.RichText)+"\n```")
		case *notionapi.EquationBlock:
			writeBlock(b, indent, "$$\n"+strings.TrimSpace(blk.Equation.Expression)+"\n$$")
		case *notionapi.DividerBlock:
			writeBlock(b, indent, "---")
		case *notionapi.BookmarkBlock:
			writeBlock(b, indent, "<"+blk.Bookmark.URL+">")
		case *notionapi.ImageBlock:
			if err := r.renderImage(ctx, b, indent, blk); err != nil {
				return err
			}
		case *notionapi.TableBlock:
			if err := r.renderTable(ctx, b, indent, blk); err != nil {
				return err
			}
			continue
		default:
			continue
		}

		if block.GetHasChildren() {
			if err := r.renderChildren(ctx, b, string(block.GetID()), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeBlock writes a paragraph-level block followed by a blank line.
func writeBlock(b *strings.Builder, indent, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		if line != "" {
			b.WriteString(indent + line)
		}
	}
	b.WriteString("\n\n")
}

// writeItem writes a list item; items of one list are separated by a
// single newline so the list stays tight.
func writeItem(b *strings.Builder, indent, marker, text string) {
	s := b.String()
	if strings.HasSuffix(s, "\n\n") && isListLine(lastLine(s)) {
		trimmed := strings.TrimSuffix(s, "\n")
		b.Reset()
		b.WriteString(trimmed)
	}
	b.WriteString(indent + marker + strings.ReplaceAll(text, "\n", "\n"+indent+"    ") + "\n\n")
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	return s[strings.LastIndexByte(s, '\n')+1:]
}

func isListLine(line string) bool {
	line = strings.TrimLeft(line, " ")
	if strings.HasPrefix(line, "- ") {
		return true
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && strings.HasPrefix(line[i:], ". ")
}

func (r *blockRenderer) renderImage(ctx context.Context, b *strings.Builder, indent string, blk *notionapi.ImageBlock) error {
	var url string
	switch {
	case blk.Image.File != nil:
		url = blk.Image.File.URL
	case blk.Image.External != nil:
		url = blk.Image.External.URL
	}
	if url == "" {
		return nil
	}
	src := url
	if r.media != nil {
		local, err := r.media.Fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.media.log().Warn("image %s not downloaded: %v", redactQuery(url), err)
		} else {
			src = local
		}
	}
	alt := escapeAlt(plainRichText(blk.Image.Caption))
	writeBlock(b, indent, "!["+alt+"](<"+src+">)")
	return nil
}

func (r *blockRenderer) renderTable(ctx context.Context, b *strings.Builder, indent string, blk *notionapi.TableBlock) error {
	rows, err := r.src.Children(ctx, string(blk.GetID()))
	if err != nil {
		return err
	}
	var lines []string
	for _, row := range rows {
		tr, ok := row.(*notionapi.TableRowBlock)
		if !ok {
			continue
		}
		cells := make([]string, 0, len(tr.TableRow.Cells))
		for _, cell := range tr.TableRow.Cells {
			cells = append(cells, strings.ReplaceAll(richTextMarkdown(cell), "|", `\|`))
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		if len(lines) == 1 {
			sep := make([]string, len(cells))
			for i := range sep {
				sep[i] = "---"
			}
			lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
		}
	}
	if len(lines) > 0 {
		writeBlock(b, indent, strings.Join(lines, "\n"))
	}
	return nil
}

// richTextMarkdown renders rich text runs with their annotations. Inline
// equations become $...$ math.
func richTextMarkdown(runs []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range runs {
		if rt.Equation != nil {
			b.WriteString("$" + strings.TrimSpace(rt.Equation.Expression) + "$")
			continue
		}
		text := rt.PlainText
		if rt.Text != nil {
			text = rt.Text.Content
		}
		b.WriteString(annotate(text, rt))
	}
	return b.String()
}

// annotate wraps the non-blank core of text so markers never sit next to
// a space, which Markdown would not treat as emphasis.
func annotate(text string, rt notionapi.RichText) string {
	core := strings.TrimSpace(text)
	if core == "" {
		return text
	}
	lead := text[:strings.Index(text, core)]
	trail := text[len(lead)+len(core):]

	if a := rt.Annotations; a != nil {
		if a.Code {
			core = "`" + core + "`"
		} else {
			if a.Bold {
				core = "**" + core + "**"
			}
			if a.Italic {
				core = "*" + core + "*"
			}
			if a.Strikethrough {
				core = "~~" + core + "~~"
			}
		}
	}

	href := rt.Href
	if rt.Text != nil && rt.Text.Link != nil && rt.Text.Link.Url != "" {
		href = rt.Text.Link.Url
	}
	if href != "" {
		core = "[" + core + "](" + href + ")"
	}
	return lead + core + trail
}

func plainRichText(runs []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range runs {
		if rt.Text != nil {
			b.WriteString(rt.Text.Content)
			continue
		}
		b.WriteString(rt.PlainText)
	}
	return b.String()
}
