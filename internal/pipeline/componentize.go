package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/alnah/go-mdxport/internal/fileutil"
)

var (
	markdownImage = regexp.MustCompile(
		`(?:<span id="([^"]+)"[^>]*></span>[ \t]*)?` +
			`!\[((?:[^\[\]]|\[[^\[\]]*\])*)\]\(<?([^)\s>]+)>?(?:\s+"((?:[^"\\]|\\.)*)")?\)` +
			`(?:[ \t]*<span id="([^"]+)"[^>]*></span>)?`)
	imgTag       = regexp.MustCompile(`<img\b[^>]*>`)
	figureOpen   = regexp.MustCompile(`<figure\b`)
	figureMarker = regexp.MustCompile(`<(/?)figure\b[^>]*>`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// Componentize rewrites local image references into Image and MultiImage
// components and records the imports they need. Remote images and figures
// it cannot parse are left as they are.
func Componentize(c *Context, text string) (string, Stats) {
	var st Stats
	out := mapProse(text, func(s string) string {
		s = componentizeFigures(c, s, &st)
		s = componentizeImgTags(c, s, &st)
		return componentizeMarkdownImages(c, s, &st)
	})
	return out, st
}

// ComponentizePass wraps Componentize for use in RunPasses.
func ComponentizePass() Pass {
	return Pass{Name: "componentize", Apply: Componentize}
}

func isLocalImage(src string) bool {
	return src != "" && !fileutil.IsURL(src) && !strings.HasPrefix(src, "/")
}

// ---------------------------------------------------------------------------
// <figure> blocks
// ---------------------------------------------------------------------------

func componentizeFigures(c *Context, s string, st *Stats) string {
	var b strings.Builder
	last := 0
	for {
		loc := figureOpen.FindStringIndex(s[last:])
		if loc == nil {
			break
		}
		start := last + loc[0]
		end := matchFigureEnd(s, start)
		if end == -1 {
			break
		}
		group, ok := parseFigureHTML(s[start:end])
		b.WriteString(s[last:start])
		if ok {
			b.WriteString(renderComponent(c, group))
			st.Images += len(group.Images)
		} else {
			c.Log.Debug("figure left as HTML: %.60q", s[start:end])
			b.WriteString(s[start:end])
		}
		last = end
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// matchFigureEnd returns the index just past the </figure> closing the
// figure opened at start, or -1.
func matchFigureEnd(s string, start int) int {
	depth := 0
	for _, m := range figureMarker.FindAllStringSubmatchIndex(s[start:], -1) {
		if m[3] > m[2] {
			depth--
		} else {
			depth++
		}
		if depth == 0 {
			return start + m[1]
		}
	}
	return -1
}

// parseFigureHTML reads a figure, or a cluster of nested figures sharing
// one outer caption, into a FigureGroup.
func parseFigureHTML(block string) (FigureGroup, bool) {
	doc, _, err := parseHTML(block)
	if err != nil {
		return FigureGroup{}, false
	}
	outer := findElement(doc, atom.Figure)
	if outer == nil {
		return FigureGroup{}, false
	}

	var g FigureGroup
	g.ID = attr(outer, "id")
	var nested []*html.Node
	for n := outer.FirstChild; n != nil; n = n.NextSibling {
		collectFigures(n, &nested)
	}

	if len(nested) == 0 {
		for _, img := range findElements(outer, atom.Img) {
			g.Images = append(g.Images, FigureImage{Src: attr(img, "src"), Alt: attr(img, "alt")})
		}
	} else {
		for _, f := range nested {
			imgs := findElements(f, atom.Img)
			if len(imgs) == 0 {
				continue
			}
			img := FigureImage{Src: attr(imgs[0], "src"), Alt: attr(imgs[0], "alt"), ID: attr(f, "id")}
			if figcap := directChild(f, atom.Figcaption); figcap != nil {
				img.Caption = captionText(figcap)
				if img.ID == "" {
					img.ID = anchorID(figcap)
				}
			}
			g.Images = append(g.Images, img)
		}
	}
	if figcap := directChild(outer, atom.Figcaption); figcap != nil {
		g.Caption = captionText(figcap)
		if g.ID == "" {
			g.ID = anchorID(figcap)
		}
	}
	if g.ID == "" {
		g.ID = anchorOutsideFigures(outer)
	}

	if len(g.Images) == 0 {
		return FigureGroup{}, false
	}
	for _, img := range g.Images {
		if !isLocalImage(img.Src) {
			return FigureGroup{}, false
		}
	}
	if len(g.Images) == 1 && g.Caption == "" {
		g.Caption = g.Images[0].Caption
		g.Images[0].Caption = ""
	}
	return g, true
}

// collectFigures appends the outermost figure elements under n.
func collectFigures(n *html.Node, out *[]*html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Figure {
		*out = append(*out, n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectFigures(c, out)
	}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func findElements(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func directChild(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// anchorID returns the id of the first element with one under n.
func anchorID(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if id := attr(c, "id"); id != "" {
			return id
		}
		if id := anchorID(c); id != "" {
			return id
		}
	}
	return ""
}

func anchorOutsideFigures(outer *html.Node) string {
	for c := outer.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom == atom.Figure {
			continue
		}
		if id := attr(c, "id"); id != "" {
			return id
		}
	}
	return ""
}

func captionText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// ---------------------------------------------------------------------------
// Bare <img> and Markdown images
// ---------------------------------------------------------------------------

func componentizeImgTags(c *Context, s string, st *Stats) string {
	return imgTag.ReplaceAllStringFunc(s, func(tag string) string {
		doc, _, err := parseHTML(tag)
		if err != nil {
			return tag
		}
		img := findElement(doc, atom.Img)
		if img == nil || !isLocalImage(attr(img, "src")) {
			return tag
		}
		st.Images++
		return renderComponent(c, FigureGroup{
			Images:  []FigureImage{{Src: attr(img, "src"), Alt: attr(img, "alt")}},
			Caption: attr(img, "title"),
			ID:      attr(img, "id"),
		})
	})
}

func componentizeMarkdownImages(c *Context, s string, st *Stats) string {
	return replaceAllSubmatchFunc(markdownImage, s, func(m []string, start, end int) string {
		alt, src, title := m[2], m[3], unescapeMarkdown(m[4])
		if !isLocalImage(src) {
			return m[0]
		}
		id := m[1]
		if id == "" {
			id = m[5]
		}
		caption := title
		if caption == "" && aloneOnLine(s, start, end) {
			caption = alt
		}
		st.Images++
		return renderComponent(c, FigureGroup{
			Images:  []FigureImage{{Src: src, Alt: unescapeMarkdown(alt)}},
			Caption: unescapeMarkdown(caption),
			ID:      id,
		})
	})
}

// replaceAllSubmatchFunc is ReplaceAllStringFunc with submatches and
// match offsets.
func replaceAllSubmatchFunc(re *regexp.Regexp, s string, fn func(m []string, start, end int) string) string {
	idx := re.FindAllStringSubmatchIndex(s, -1)
	if len(idx) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range idx {
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] >= 0 {
				groups[i] = s[loc[2*i]:loc[2*i+1]]
			}
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(fn(groups, loc[0], loc[1]))
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func aloneOnLine(s string, start, end int) bool {
	lineStart := strings.LastIndexByte(s[:start], '\n') + 1
	lineEnd := len(s)
	if k := strings.IndexByte(s[end:], '\n'); k != -1 {
		lineEnd = end + k
	}
	before := linePrefix.ReplaceAllString(s[lineStart:start], "")
	return strings.TrimSpace(before) == "" && strings.TrimSpace(s[end:lineEnd]) == ""
}

var markdownEscape = regexp.MustCompile(`\\([\\\x60*_{}\[\]()#+\-.!"'<>|$])`)

func unescapeMarkdown(s string) string {
	return markdownEscape.ReplaceAllString(s, "$1")
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// renderComponent emits an Image for a single image and a MultiImage for a
// cluster, registering variables and components in the import table.
func renderComponent(c *Context, g FigureGroup) string {
	if len(g.Images) == 1 {
		img := g.Images[0]
		c.Imports.UseComponent(ComponentImage)
		v := c.Imports.Image(img.Src)
		var b strings.Builder
		b.WriteString("<Image src={" + v + "}")
		b.WriteString(` alt="` + attrText(img.Alt) + `"`)
		if caption := attrText(g.Caption); caption != "" {
			b.WriteString(` caption="` + caption + `"`)
		}
		if g.ID != "" {
			b.WriteString(` id="` + g.ID + `"`)
		}
		b.WriteString(" zoomable downloadable />")
		return b.String()
	}

	c.Imports.UseComponent(ComponentMultiImage)
	entries := make([]string, 0, len(g.Images))
	for _, img := range g.Images {
		entries = append(entries, multiImageEntry(c.Imports.Image(img.Src), img))
	}
	return renderMultiImage(entries, g.Caption, g.ID)
}

func multiImageEntry(v string, img FigureImage) string {
	fields := []string{"src: " + v, "alt: " + strconv.Quote(plainAttr(img.Alt))}
	if caption := plainAttr(img.Caption); caption != "" {
		fields = append(fields, "caption: "+strconv.Quote(caption))
	}
	if img.ID != "" {
		fields = append(fields, "id: "+strconv.Quote(img.ID))
	}
	return "{ " + strings.Join(fields, ", ") + " }"
}

func renderMultiImage(entries []string, caption, id string) string {
	var b strings.Builder
	b.WriteString("<MultiImage\n  images={[\n")
	for _, e := range entries {
		b.WriteString("    " + e + ",\n")
	}
	b.WriteString("  ]}\n")
	if caption = attrText(caption); caption != "" {
		b.WriteString(`  caption="` + caption + "\"\n")
	}
	if id != "" {
		b.WriteString(`  id="` + id + "\"\n")
	}
	b.WriteString(`  layout="` + layoutFor(len(entries)) + "\"\n")
	b.WriteString("  zoomable\n  downloadable\n/>")
	return b.String()
}

// plainAttr collapses whitespace and drops the brace escapes added for
// prose, since attribute values are plain strings.
func plainAttr(s string) string {
	s = strings.NewReplacer(`\{`, "{", `\}`, "}").Replace(s)
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// attrText is plainAttr escaped for a double-quoted JSX attribute.
func attrText(s string) string {
	return strings.ReplaceAll(plainAttr(s), `"`, "&quot;")
}
