package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strconv"
	"strings"
)

// ErrHeaderRender indicates the proof header template failed.
var ErrHeaderRender = errors.New("proof header rendering failed")

// CSSInjector defines the contract for CSS injection into HTML.
type CSSInjector interface {
	InjectCSS(ctx context.Context, htmlContent, cssContent string) string
}

// CSSInjection injects CSS as a <style> block into HTML content.
type CSSInjection struct{}

// InjectCSS inserts a <style> block before </head>, after <body>, or at
// the start of the content, whichever is found first.
func (s *CSSInjection) InjectCSS(ctx context.Context, htmlContent, cssContent string) string {
	if cssContent == "" || ctx.Err() != nil {
		return htmlContent
	}

	styleBlock := "<style>" + sanitizeCSS(cssContent) + "</style>"
	lowerHTML := strings.ToLower(htmlContent)

	if idx := strings.Index(lowerHTML, "</head>"); idx != -1 {
		return htmlContent[:idx] + styleBlock + htmlContent[idx:]
	}
	if pos := afterBodyTag(htmlContent, lowerHTML); pos != -1 {
		return htmlContent[:pos] + styleBlock + htmlContent[pos:]
	}
	return styleBlock + htmlContent
}

// sanitizeCSS escapes sequences that could close the <style> block.
func sanitizeCSS(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}

// afterBodyTag returns the offset just past the opening <body ...> tag, or -1.
func afterBodyTag(htmlContent, lowerHTML string) int {
	idx := strings.Index(lowerHTML, "<body")
	if idx == -1 {
		return -1
	}
	closeIdx := strings.Index(htmlContent[idx:], ">")
	if closeIdx == -1 {
		return -1
	}
	return idx + closeIdx + 1
}

// HeaderData is the article metadata shown above the proof body.
type HeaderData struct {
	Title       string
	Subtitle    string
	Authors     []string
	Date        string
	Description string
	Tags        []string
}

// NewHeaderData summarizes front matter for the proof header.
func NewHeaderData(fm FrontMatter) *HeaderData {
	data := &HeaderData{
		Title:       fm.Title,
		Subtitle:    fm.Subtitle,
		Date:        fm.Published,
		Description: fm.Description,
		Tags:        fm.Tags,
	}
	for _, a := range fm.Authors {
		name := a.Name
		if len(a.Affiliations) > 0 {
			idx := make([]string, len(a.Affiliations))
			for i, n := range a.Affiliations {
				idx[i] = strconv.Itoa(n)
			}
			name += " (" + strings.Join(idx, ",") + ")"
		}
		data.Authors = append(data.Authors, name)
	}
	return data
}

const headerTemplate = `<header class="proof-meta">
<h1>{{.Title}}</h1>
{{- if .Subtitle}}
<p class="subtitle">{{.Subtitle}}</p>
{{- end}}
{{- if .Authors}}
<p class="authors">{{range $i, $a := .Authors}}{{if $i}}, {{end}}{{$a}}{{end}}</p>
{{- end}}
{{- if .Date}}
<p class="date">{{.Date}}</p>
{{- end}}
{{- if .Description}}
<p class="description">{{.Description}}</p>
{{- end}}
{{- if .Tags}}
<p class="tags">{{range $i, $t := .Tags}}{{if $i}} · {{end}}{{$t}}{{end}}</p>
{{- end}}
</header>`

// HeaderInjector defines the contract for header injection into HTML.
type HeaderInjector interface {
	InjectHeader(ctx context.Context, htmlContent string, data *HeaderData) (string, error)
}

// HeaderInjection renders front matter as a header after <body>.
type HeaderInjection struct {
	tmpl *template.Template
}

// NewHeaderInjection creates a HeaderInjection with the built-in template.
func NewHeaderInjection() *HeaderInjection {
	return &HeaderInjection{tmpl: template.Must(template.New("header").Parse(headerTemplate))}
}

// InjectHeader renders data and inserts it after <body>. A nil data leaves
// htmlContent unchanged.
func (h *HeaderInjection) InjectHeader(ctx context.Context, htmlContent string, data *HeaderData) (string, error) {
	if data == nil {
		return htmlContent, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHeaderRender, err)
	}

	if pos := afterBodyTag(htmlContent, strings.ToLower(htmlContent)); pos != -1 {
		return htmlContent[:pos] + buf.String() + htmlContent[pos:], nil
	}
	return buf.String() + htmlContent, nil
}

// TOCData holds TOC configuration for injection.
type TOCData struct {
	Title    string
	MinDepth int // minimum heading level, 2 skips the title
	MaxDepth int
}

// TOCInjector defines the contract for TOC injection into HTML.
type TOCInjector interface {
	InjectTOC(ctx context.Context, htmlContent string, data *TOCData) (string, error)
}

type headingInfo struct {
	Level int
	ID    string
	Text  string
}

var (
	// Captures: 1=level, 2=id, 3=inner HTML.
	headingPattern = regexp.MustCompile(`(?is)<h([1-6])[^>]*\bid="([^"]*)"[^>]*>(.*?)</h[1-6]>`)
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	headerEnd      = regexp.MustCompile(`(?i)</header>`)
)

// stripHTMLTags removes tags and decodes entities so the text is not
// escaped twice when written back.
func stripHTMLTags(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}

// extractHeadings returns headings with an id between minDepth and maxDepth.
func extractHeadings(htmlContent string, minDepth, maxDepth int) []headingInfo {
	var headings []headingInfo
	for _, m := range headingPattern.FindAllStringSubmatch(htmlContent, -1) {
		level, _ := strconv.Atoi(m[1])
		if level < minDepth || level > maxDepth {
			continue
		}
		headings = append(headings, headingInfo{Level: level, ID: m[2], Text: stripHTMLTags(m[3])})
	}
	return headings
}

// numberingState tracks hierarchical TOC numbers. The shallowest first
// heading becomes depth 1 and skipped levels nest one step.
type numberingState struct {
	counters     [6]int
	minLevelSeen int
	lastLevel    int
}

func (n *numberingState) next(level int) (numStr string, effectiveDepth int) {
	if n.minLevelSeen == 0 {
		n.minLevelSeen = level
	}
	effectiveDepth = max(level-n.minLevelSeen+1, 1)
	if n.lastLevel > 0 && effectiveDepth > n.lastLevel+1 {
		effectiveDepth = n.lastLevel + 1
	}
	for i := effectiveDepth; i < len(n.counters); i++ {
		n.counters[i] = 0
	}
	n.counters[effectiveDepth-1]++
	n.lastLevel = effectiveDepth

	parts := make([]string, effectiveDepth)
	for i := range parts {
		parts[i] = strconv.Itoa(n.counters[i])
	}
	return strings.Join(parts, ".") + ".", effectiveDepth
}

func generateNumberedTOC(headings []headingInfo, title string) string {
	if len(headings) == 0 {
		return ""
	}

	var buf strings.Builder
	buf.WriteString(`<nav class="toc">`)
	if title != "" {
		buf.WriteString(`<h2 class="toc-title">` + html.EscapeString(title) + `</h2>`)
	}
	buf.WriteString(`<div class="toc-list">`)

	var numbering numberingState
	for _, h := range headings {
		num, depth := numbering.next(h.Level)
		buf.WriteString(`<div class="toc-item"`)
		if depth > 1 {
			fmt.Fprintf(&buf, ` style="padding-left:%.1fem"`, float64(depth-1)*1.5)
		}
		buf.WriteString(`><a href="#` + html.EscapeString(h.ID) + `">`)
		buf.WriteString(num + " " + html.EscapeString(h.Text))
		buf.WriteString(`</a></div>`)
	}

	buf.WriteString(`</div></nav>`)
	return buf.String()
}

// TOCInjection implements TOCInjector.
type TOCInjection struct{}

// NewTOCInjection creates a new TOC injector.
func NewTOCInjection() *TOCInjection {
	return &TOCInjection{}
}

// InjectTOC inserts a numbered TOC after the proof header, or after <body>
// when there is none. A nil data or a body without headings is returned
// unchanged.
func (t *TOCInjection) InjectTOC(ctx context.Context, htmlContent string, data *TOCData) (string, error) {
	if data == nil {
		return htmlContent, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tocHTML := generateNumberedTOC(extractHeadings(htmlContent, data.MinDepth, data.MaxDepth), data.Title)
	if tocHTML == "" {
		return htmlContent, nil
	}

	if loc := headerEnd.FindStringIndex(htmlContent); loc != nil {
		return htmlContent[:loc[1]] + tocHTML + htmlContent[loc[1]:], nil
	}
	if pos := afterBodyTag(htmlContent, strings.ToLower(htmlContent)); pos != -1 {
		return htmlContent[:pos] + tocHTML + htmlContent[pos:], nil
	}
	return tocHTML + htmlContent, nil
}
