package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// stripComments / repairLineWraps / normalizeMath
// ---------------------------------------------------------------------------

func TestStripComments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comment", "text % note", "text"},
		{"comment-only line dropped", "a\n% note\nb", "a\nb"},
		{"escaped percent kept", `50\% of cases`, `50\% of cases`},
		{"escaped backslash before percent", `a\\% gone`, `a\\`},
		{"verbatim untouched", "\\begin{verbatim}\n% kept\n\\end{verbatim}", "\\begin{verbatim}\n% kept\n\\end{verbatim}"},
		{"no comments", "plain\ntext", "plain\ntext"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := stripComments(tt.in); got != tt.want {
				t.Errorf("stripComments(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRepairLineWraps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		in          string
		want        string
		wantRepairs int
	}{
		{"hyphenated wrap", "conver-\nsion", "conversion", 1},
		{"sentence glued", "the end.Next one", "the end. Next one", 1},
		{"capital after hyphen kept", "Franco-\nPrussian", "Franco-\nPrussian", 0},
		{"abbreviation untouched", "see Fig.3", "see Fig.3", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, st := repairLineWraps(nil, tt.in)
			if got != tt.want {
				t.Errorf("repairLineWraps(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if st.Repairs != tt.wantRepairs {
				t.Errorf("Repairs = %d, want %d", st.Repairs, tt.wantRepairs)
			}
		})
	}
}

func TestNormalizeMath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"dollar display", "$$ a + b $$", `\[a + b\]`},
		{"equation environment", "\\begin{equation}\nx &= 1\n\\end{equation}", `\[x = 1\]`},
		{"starred equation", `\begin{equation*}y\end{equation*}`, `\[y\]`},
		{"align kept verbatim", `\begin{align}a &= b\\ c &= d\end{align}`, `\begin{align}a &= b\\ c &= d\end{align}`},
		{"nested cases keep ampersands", `\[f = \begin{cases} 1 & x > 0 \end{cases}\]`, `\[f = \begin{cases} 1 & x > 0 \end{cases}\]`},
		{"escaped ampersand kept", `\[a \& b & c\]`, `\[a \& b  c\]`},
		{"inline math untouched", "$a & b$", "$a & b$"},
		{"pmatrix shorthand keeps cells", `\[\pmatrix{1 & 2 \\ 3 & 4}\]`, `\[\pmatrix{1 & 2 \\ 3 & 4}\]`},
		{"cases shorthand keeps cells", `\[\cases{0 & x<0 \cr 1 & x \ge 0}\]`, `\[\cases{0 & x<0 \cr 1 & x \ge 0}\]`},
		{"rows keep cells", `$$a & b \\ c & d$$`, `\[a & b \\ c & d\]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := normalizeMath(tt.in); got != tt.want {
				t.Errorf("normalizeMath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// extractFigures
// ---------------------------------------------------------------------------

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("\x89PNG\r\n\x1a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExtractFigures_SingleImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImage(t, dir, "img/plot.png")

	src := `\begin{figure}[t]
\centering
\includegraphics[width=\linewidth]{img/plot}
\caption{A plot}
\hypertarget{plot}{}
\end{figure}`

	c := NewContext(dir, nil)
	got, st := extractFigures(c, src)

	want := "\\begin{figure}\n\\centering\n\\includegraphics{assets/image/plot.png}\n\\caption{A plot}\n\\label{plot}\n\\end{figure}"
	if got != want {
		t.Errorf("extractFigures() =\n%s\nwant\n%s", got, want)
	}
	if st.Figures != 1 {
		t.Errorf("Figures = %d, want 1", st.Figures)
	}
	if c.Assets.Len() != 1 || c.Assets.Entries()[0].Name != "plot.png" {
		t.Errorf("assets = %+v, want plot.png", c.Assets.Entries())
	}
}

func TestExtractFigures_GraphicsPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImage(t, dir, "figs/chart.jpg")

	c := NewContext(dir, nil)
	got, _ := extractFigures(c, "\\graphicspath{{figs/}}\nText \\includegraphics{chart}")

	if strings.Contains(got, `\graphicspath`) {
		t.Errorf("graphicspath not removed: %q", got)
	}
	if !strings.Contains(got, `\includegraphics{assets/image/chart.jpg}`) {
		t.Errorf("image not resolved through graphicspath: %q", got)
	}
}

func TestExtractFigures_MissingImage(t *testing.T) {
	t.Parallel()

	c := NewContext(t.TempDir(), nil)
	got, _ := extractFigures(c, `\includegraphics{plots/missing.png}`)

	if got != `\includegraphics{assets/image/missing.png}` {
		t.Errorf("extractFigures() = %q", got)
	}
	if c.Assets.Len() != 0 {
		t.Errorf("missing image recorded as asset")
	}
}

func TestExtractFigures_Subfigures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImage(t, dir, "a.png")
	writeImage(t, dir, "b.png")

	src := `\begin{figure}
\begin{subfigure}[b]{0.45\linewidth}
\includegraphics{a}
\caption{Left}
\hypertarget{left}{}
\end{subfigure}
\subfloat[Right]{\includegraphics{b}}
\caption{Both}
\hypertarget{both}{}
\end{figure}`

	c := NewContext(dir, nil)
	got, st := extractFigures(c, src)

	for _, want := range []string{
		"\\begin{subfigure}{\\linewidth}\n\\includegraphics{assets/image/a.png}\n\\caption{Left}\n\\label{left}\n\\end{subfigure}",
		"\\begin{subfigure}{\\linewidth}\n\\includegraphics{assets/image/b.png}\n\\caption{Right}\n\\end{subfigure}",
		"\\caption{Both}\n\\label{both}\n\\end{figure}",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\ngot:\n%s", want, got)
		}
	}
	if st.Figures != 1 {
		t.Errorf("Figures = %d, want 1", st.Figures)
	}
}

func TestExtractFigures_NoImageUntouched(t *testing.T) {
	t.Parallel()

	src := `\begin{figure}\begin{tabular}{cc}a & b\end{tabular}\caption{Table-like}\end{figure}`
	got, st := extractFigures(NewContext("", nil), src)

	if got != src {
		t.Errorf("figure without image changed:\n%s", got)
	}
	if st.Figures != 0 {
		t.Errorf("Figures = %d, want 0", st.Figures)
	}
}

func TestImageCandidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		first string
		last  string
	}{
		{"plot", "plot.png", "plot"},
		{"plot.png", "plot.png", "plot.pdf"},
		{"plot.pdf", "plot.png", "plot.pdf"},
		{"data.v2", "data.v2.png", "data.v2"},
	}
	for _, tt := range tests {
		got := imageCandidates(tt.in)
		if got[0] != tt.first || got[len(got)-1] != tt.last {
			t.Errorf("imageCandidates(%q) = %v, want first %q last %q", tt.in, got, tt.first, tt.last)
		}
	}
}

func TestLayoutFor(t *testing.T) {
	t.Parallel()

	want := map[int]string{1: "auto", 2: "2-column", 3: "3-column", 4: "4-column", 5: "auto"}
	for n, layout := range want {
		if got := layoutFor(n); got != layout {
			t.Errorf("layoutFor(%d) = %q, want %q", n, got, layout)
		}
	}
}

// ---------------------------------------------------------------------------
// convertAlgorithms
// ---------------------------------------------------------------------------

func TestConvertAlgorithms(t *testing.T) {
	t.Parallel()

	src := `\begin{algorithm}
\caption{Sum}\label{alg:sum}
\begin{algorithmic}[1]
\Require $n \geq 0$
\State $s \gets 0$
\For{$i \gets 1$ to $n$}
\State $s \gets s + i$ \Comment{accumulate}
\EndFor
\If{$s > 10$}
\State \Return $s$
\Else
\State \Call{Fail}{s}
\EndIf
\end{algorithmic}
\end{algorithm}`

	want := `\textbf{Sum}

\hypertarget{sum}{}
\begin{verbatim}
Require: n >= 0
s <- 0
for i <- 1 to n do
  s <- s + i // accumulate
end for
if s > 10 then
  return s
else
  Fail(s)
end if
\end{verbatim}`

	got, _ := convertAlgorithms(nil, src)
	if got != want {
		t.Errorf("convertAlgorithms() =\n%s\nwant\n%s", got, want)
	}
}

func TestConvertAlgorithms_TikZ(t *testing.T) {
	t.Parallel()

	src := "\\begin{tikzpicture}\n\\draw (0,0) -- (1,1);\n\\end{tikzpicture}"
	got, _ := convertAlgorithms(nil, src)

	want := "\\begin{verbatim}\n\\draw (0,0) -- (1,1);\n\\end{verbatim}"
	if got != want {
		t.Errorf("convertAlgorithms() = %q, want %q", got, want)
	}
}

func TestPlainCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{`$x \leq y$`, "x <= y"},
		{`$a \neq \infty$`, "a != inf"},
		{`\textbf{foo}\_bar`, "foo_bar"},
		{`$x \in S \land y$`, "x in S and y"},
		{`$\left( a \right)$`, "( a )"},
	}
	for _, tt := range tests {
		if got := plainCode(tt.in); got != tt.want {
			t.Errorf("plainCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Preprocess
// ---------------------------------------------------------------------------

func TestPreprocess_NoOpOnPlainText(t *testing.T) {
	t.Parallel()

	src := "Just a paragraph with $x$ inline."
	got, st := Preprocess(NewContext("", nil), src)
	if got != src {
		t.Errorf("Preprocess() = %q, want unchanged", got)
	}
	if st != (Stats{}) {
		t.Errorf("stats = %+v, want zero", st)
	}
}

func TestPreprocess_MatrixShorthandReachesCleaner(t *testing.T) {
	t.Parallel()

	got, _ := Preprocess(NewContext("", nil), `\[\pmatrix{1 & 2 \\ 3 & 4}\]`)
	if !strings.Contains(got, `\pmatrix{1 & 2 \\ 3 & 4}`) {
		t.Fatalf("Preprocess() = %q, cell separators lost", got)
	}
	want := "\\begin{pmatrix}\n1 & 2 \\\\\n3 & 4\n\\end{pmatrix}"
	if expanded := expandMatrixShorthand(`\pmatrix{1 & 2 \\ 3 & 4}`); expanded != want {
		t.Errorf("expandMatrixShorthand() = %q, want %q", expanded, want)
	}
}
