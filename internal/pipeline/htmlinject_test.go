package pipeline

import (
	"context"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// CSS
// ---------------------------------------------------------------------------

func TestSanitizeCSS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"no escape needed", "body { color: red; }", "body { color: red; }"},
		{"escapes style close", "</style>", `<\/style>`},
		{"multiple occurrences", "</a></b>", `<\/a><\/b>`},
		{"case variation", "</STYLE>", `<\/STYLE>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := sanitizeCSS(tt.input); got != tt.expected {
				t.Errorf("sanitizeCSS(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInjectCSS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		html     string
		css      string
		expected string
	}{
		{
			name:     "empty CSS returns HTML unchanged",
			html:     "<html><head></head><body>Hello</body></html>",
			css:      "",
			expected: "<html><head></head><body>Hello</body></html>",
		},
		{
			name:     "injects before </head>",
			html:     "<html><head></head><body>Hello</body></html>",
			css:      "p{}",
			expected: "<html><head><style>p{}</style></head><body>Hello</body></html>",
		},
		{
			name:     "injects after <body> with attributes",
			html:     `<html><body class="main">Hello</body></html>`,
			css:      "p{}",
			expected: `<html><body class="main"><style>p{}</style>Hello</body></html>`,
		},
		{
			name:     "prepends to a fragment",
			html:     "<p>Hello</p>",
			css:      "p{}",
			expected: "<style>p{}</style><p>Hello</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			injector := &CSSInjection{}
			if got := injector.InjectCSS(context.Background(), tt.html, tt.css); got != tt.expected {
				t.Errorf("InjectCSS() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestInjectCSS_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := "<html><head></head></html>"
	if got := (&CSSInjection{}).InjectCSS(ctx, in, "p{}"); got != in {
		t.Errorf("InjectCSS() with cancelled context = %q, want input unchanged", got)
	}
}

// ---------------------------------------------------------------------------
// Header
// ---------------------------------------------------------------------------

func TestNewHeaderData(t *testing.T) {
	t.Parallel()

	fm := FrontMatter{
		Title:     "Paper",
		Published: "Mar 04, 2024",
		Authors: []Author{
			{Name: "Ada Lovelace", Affiliations: []int{1, 2}},
			{Name: "Alan Turing"},
		},
	}
	data := NewHeaderData(fm)

	want := []string{"Ada Lovelace (1,2)", "Alan Turing"}
	if strings.Join(data.Authors, "|") != strings.Join(want, "|") {
		t.Errorf("Authors = %q, want %q", data.Authors, want)
	}
	if data.Title != "Paper" || data.Date != "Mar 04, 2024" {
		t.Errorf("Title/Date = %q/%q", data.Title, data.Date)
	}
}

func TestInjectHeader(t *testing.T) {
	t.Parallel()

	h := NewHeaderInjection()
	data := &HeaderData{Title: "A & B", Authors: []string{"Ada", "Alan"}, Tags: []string{"x"}}

	got, err := h.InjectHeader(context.Background(), "<html><body><p>x</p></body></html>", data)
	if err != nil {
		t.Fatalf("InjectHeader() error = %v", err)
	}
	for _, want := range []string{
		`<body><header class="proof-meta">`,
		"<h1>A &amp; B</h1>",
		`<p class="authors">Ada, Alan</p>`,
		`<p class="tags">x</p>`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\ngot: %s", want, got)
		}
	}
	if strings.Contains(got, "subtitle") {
		t.Errorf("empty subtitle rendered: %s", got)
	}
}

func TestInjectHeader_NilData(t *testing.T) {
	t.Parallel()

	in := "<body></body>"
	got, err := NewHeaderInjection().InjectHeader(context.Background(), in, nil)
	if err != nil || got != in {
		t.Errorf("InjectHeader(nil) = %q, %v; want input unchanged", got, err)
	}
}

func TestInjectHeader_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewHeaderInjection().InjectHeader(ctx, "<body></body>", &HeaderData{}); err == nil {
		t.Error("InjectHeader() with cancelled context: expected error")
	}
}

// ---------------------------------------------------------------------------
// TOC
// ---------------------------------------------------------------------------

func TestExtractHeadings(t *testing.T) {
	t.Parallel()

	in := `<h1 id="t">Title</h1><h2 id="a">Intro <em>now</em></h2><h3 id="b">A &amp; B</h3><h2>No id</h2><h4 id="c">Deep</h4>`
	got := extractHeadings(in, 2, 3)

	want := []headingInfo{
		{Level: 2, ID: "a", Text: "Intro now"},
		{Level: 3, ID: "b", Text: "A & B"},
	}
	if len(got) != len(want) {
		t.Fatalf("extractHeadings() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("heading %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNumberingState_Next(t *testing.T) {
	t.Parallel()

	var n numberingState
	levels := []int{2, 3, 3, 2, 4}
	want := []string{"1.", "1.1.", "1.2.", "2.", "2.1."}
	for i, level := range levels {
		if got, _ := n.next(level); got != want[i] {
			t.Errorf("next(%d) #%d = %q, want %q", level, i, got, want[i])
		}
	}
}

func TestInjectTOC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		html      string
		wantIndex string
	}{
		{
			name:      "after proof header",
			html:      `<body><header class="proof-meta"><h1>T</h1></header><h2 id="a">A</h2></body>`,
			wantIndex: `</header><nav class="toc">`,
		},
		{
			name:      "after body without header",
			html:      `<body><h2 id="a">A</h2></body>`,
			wantIndex: `<body><nav class="toc">`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NewTOCInjection().InjectTOC(context.Background(), tt.html, &TOCData{Title: "Contents", MinDepth: 2, MaxDepth: 3})
			if err != nil {
				t.Fatalf("InjectTOC() error = %v", err)
			}
			if !strings.Contains(got, tt.wantIndex) {
				t.Errorf("output missing %q\ngot: %s", tt.wantIndex, got)
			}
			if !strings.Contains(got, `<a href="#a">1. A</a>`) {
				t.Errorf("TOC entry missing\ngot: %s", got)
			}
		})
	}
}

func TestInjectTOC_NoHeadings(t *testing.T) {
	t.Parallel()

	in := "<body><p>x</p></body>"
	got, err := NewTOCInjection().InjectTOC(context.Background(), in, &TOCData{MinDepth: 2, MaxDepth: 3})
	if err != nil || got != in {
		t.Errorf("InjectTOC() = %q, %v; want input unchanged", got, err)
	}
}
