package pipeline

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/alnah/go-mdxport/internal/yamlutil"
)

var (
	crlfOrCR = regexp.MustCompile(`\r\n?`)

	// ==text== highlights, as exported by Notion.
	highlightPattern = regexp.MustCompile(`==([^=\n]+)==`)
)

// headingParser parses Markdown sources for metadata only; it never renders.
var headingParser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// PrepareMarkdown normalizes a Markdown source and lifts its metadata: a
// leading YAML front matter block and the first level-one heading, which
// becomes the title and is removed from the body. A front matter title
// wins over the heading, but the heading is removed either way.
func PrepareMarkdown(src string) (FrontMatter, string, error) {
	src = strings.TrimPrefix(normalizeLineEndings(src), "\ufeff")

	var fm FrontMatter
	if block, body, ok := yamlutil.SplitFrontMatter(src); ok {
		if strings.TrimSpace(block) != "" {
			parsed, err := ParseFrontMatter([]byte(block))
			if err != nil {
				return FrontMatter{}, "", err
			}
			fm = parsed
		}
		src = body
	}

	title, body := extractTitle(src)
	if fm.Title == "" {
		fm.Title = title
	}
	return fm, convertHighlights(body), nil
}

func normalizeLineEndings(content string) string {
	return crlfOrCR.ReplaceAllString(content, "\n")
}

// convertHighlights turns ==text== into <mark> elements outside code and
// math.
func convertHighlights(content string) string {
	return mapProse(content, func(s string) string {
		return mapOutsideMath(s, func(plain string) string {
			return highlightPattern.ReplaceAllString(plain, "<mark>$1</mark>")
		})
	})
}

// extractTitle returns the text of the first ATX level-one heading and src
// without that heading's line.
func extractTitle(src string) (string, string) {
	source := []byte(src)
	doc := headingParser.Parse(text.NewReader(source))

	var heading *ast.Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			heading = h
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if heading == nil || heading.Lines().Len() == 0 {
		return "", src
	}

	seg := heading.Lines().At(0)
	start := strings.LastIndexByte(src[:seg.Start], '\n') + 1
	if !strings.HasPrefix(strings.TrimLeft(src[start:], " "), "#") {
		return "", src // setext headings stay in the body
	}
	end := len(src)
	if i := strings.IndexByte(src[seg.Stop:], '\n'); i != -1 {
		end = seg.Stop + i + 1
	}

	title := strings.TrimSpace(inlineText(heading, source))
	body := src[:start] + strings.TrimLeft(src[end:], "\n")
	return title, body
}

// inlineText concatenates the literal text under n.
func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
