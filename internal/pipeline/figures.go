package pipeline

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/alnah/go-mdxport/internal/fileutil"
)

// imageExtensions are probed in order when an \includegraphics path has no
// usable extension. Web formats come before PDF.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".svg", ".gif", ".webp", ".pdf"}

var figureEnvironments = []string{"figure", "figure*", "wrapfigure"}

// FigureImage is one image inside a figure.
type FigureImage struct {
	Src     string
	Alt     string
	Caption string
	ID      string
}

// FigureGroup is a set of images sharing one caption.
type FigureGroup struct {
	Images  []FigureImage
	Caption string
	ID      string
}

// Layout picks the MultiImage layout for the group size.
func (g FigureGroup) Layout() string {
	return layoutFor(len(g.Images))
}

func layoutFor(n int) string {
	switch n {
	case 2:
		return "2-column"
	case 3:
		return "3-column"
	case 4:
		return "4-column"
	default:
		return "auto"
	}
}

// extractFigures resolves every image path against the source tree, then
// rebuilds figure environments into the simplified form pandoc maps onto
// <figure> elements.
func extractFigures(c *Context, s string) (string, Stats) {
	var st Stats
	c.GraphicsPaths = append(c.GraphicsPaths, graphicsPaths(s)...)
	s, _ = replaceCommands(s, "graphicspath", 1, func(invocation) (string, bool) { return "", true })

	s, _ = replaceCommands(s, "includegraphics", 1, func(inv invocation) (string, bool) {
		return `\includegraphics{` + resolveImage(c, strings.TrimSpace(inv.Args[0])) + `}`, true
	})

	s, st.Figures = replaceEnvironments(s, figureEnvironments, func(env environment) (string, bool) {
		group, ok := parseFigure(env.Body(s))
		if !ok {
			return "", false
		}
		return renderFigure(group), true
	})
	return s, st
}

// graphicsPaths parses \graphicspath{{a/}{b/}} into its directories.
func graphicsPaths(s string) []string {
	var dirs []string
	for _, inv := range findCommands(s, "graphicspath", 1) {
		list := inv.Args[0]
		for pos := 0; ; {
			dir, end, ok := readBraced(list, pos)
			if !ok {
				break
			}
			if dir = strings.TrimSpace(dir); dir != "" {
				dirs = append(dirs, dir)
			}
			pos = end
		}
	}
	return dirs
}

// resolveImage finds the file an \includegraphics path points to and
// records it in the asset set. Misses keep an asset path so the finalizer
// can report them as dangling.
func resolveImage(c *Context, p string) string {
	if p == "" || fileutil.IsURL(p) {
		return p
	}
	if strings.HasPrefix(p, AssetDir+"/") {
		return p
	}
	for _, dir := range searchDirs(c) {
		for _, candidate := range imageCandidates(p) {
			full := candidate
			if !filepath.IsAbs(full) {
				full = filepath.Join(dir, candidate)
			}
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				if abs, err := filepath.Abs(full); err == nil {
					full = abs
				}
				return c.Assets.Add(full)
			}
		}
	}
	c.Log.Warn("image not found: %s", p)
	return c.Assets.Reserve(filepath.Join(c.SourceDir, p), path.Base(filepath.ToSlash(p)))
}

func searchDirs(c *Context) []string {
	base := c.SourceDir
	if base == "" {
		base = "."
	}
	dirs := []string{base}
	for _, g := range c.GraphicsPaths {
		if filepath.IsAbs(g) {
			dirs = append(dirs, g)
			continue
		}
		dirs = append(dirs, filepath.Join(base, g))
	}
	return dirs
}

func imageCandidates(p string) []string {
	ext := strings.ToLower(filepath.Ext(p))
	known := false
	for _, e := range imageExtensions {
		if ext == e {
			known = true
			break
		}
	}
	stem := p
	if known {
		stem = strings.TrimSuffix(p, filepath.Ext(p))
	}

	var out []string
	if known && ext != ".pdf" {
		out = append(out, p)
	}
	for _, e := range imageExtensions {
		out = append(out, stem+e)
	}
	if !known {
		out = append(out, p)
	}
	return out
}

// parseFigure reads images, captions and ids from a figure body.
// A body without any image is reported as not a figure.
func parseFigure(body string) (FigureGroup, bool) {
	var g FigureGroup
	rest := body

	// subfigure environments
	rest, _ = replaceEnvironments(rest, []string{"subfigure"}, func(env environment) (string, bool) {
		inner := env.Body(rest)
		if _, end, ok := readBracketed(inner, 0); ok {
			inner = inner[end:]
		}
		if width, end, ok := readBraced(inner, 0); ok && !strings.Contains(width, `\includegraphics`) {
			inner = inner[end:]
		}
		for i, img := range figureImages(inner) {
			if i == 0 {
				img.Caption = captionOf(inner)
				img.ID = anchorOf(inner)
			}
			g.Images = append(g.Images, img)
		}
		return "", true
	})

	// \subfloat[caption]{\includegraphics{..}}
	rest, _ = replaceCommands(rest, "subfloat", 1, func(inv invocation) (string, bool) {
		for i, img := range figureImages(inv.Args[0]) {
			if i == 0 {
				img.Caption = strings.TrimSpace(inv.Opt)
				img.ID = anchorOf(inv.Args[0])
			}
			g.Images = append(g.Images, img)
		}
		return "", true
	})

	g.Images = append(g.Images, figureImages(rest)...)
	if len(g.Images) == 0 {
		return FigureGroup{}, false
	}
	g.Caption = captionOf(rest)
	g.ID = anchorOf(rest)
	return g, true
}

func figureImages(s string) []FigureImage {
	var out []FigureImage
	for _, inv := range findCommands(s, "includegraphics", 1) {
		src := strings.TrimSpace(inv.Args[0])
		out = append(out, FigureImage{Src: src, Alt: fileutil.Stem(src)})
	}
	return out
}

func captionOf(s string) string {
	invs := findCommands(s, "caption", 1)
	if len(invs) == 0 {
		return ""
	}
	return strings.TrimSpace(invs[0].Args[0])
}

// anchorOf returns the first anchor id in s, spelled either as the
// \hypertarget the normalizer emits or as a raw \label.
func anchorOf(s string) string {
	if invs := findCommands(s, "hypertarget", 2); len(invs) > 0 {
		return strings.TrimSpace(invs[0].Args[0])
	}
	if invs := findCommands(s, "label", 1); len(invs) > 0 {
		return NormalizeIdentifier(strings.TrimSpace(invs[0].Args[0]))
	}
	return ""
}

func renderFigure(g FigureGroup) string {
	var b strings.Builder
	b.WriteString("\\begin{figure}\n\\centering\n")
	if len(g.Images) == 1 && g.Images[0].Caption == "" && g.Images[0].ID == "" {
		b.WriteString(`\includegraphics{` + g.Images[0].Src + "}\n")
	} else {
		for _, img := range g.Images {
			b.WriteString("\\begin{subfigure}{\\linewidth}\n")
			b.WriteString(`\includegraphics{` + img.Src + "}\n")
			if img.Caption != "" {
				b.WriteString(`\caption{` + img.Caption + "}\n")
			}
			if img.ID != "" {
				b.WriteString(`\label{` + img.ID + "}\n")
			}
			b.WriteString("\\end{subfigure}\n")
		}
	}
	if g.Caption != "" {
		b.WriteString(`\caption{` + g.Caption + "}\n")
	}
	if g.ID != "" {
		b.WriteString(`\label{` + g.ID + "}\n")
	}
	b.WriteString(`\end{figure}`)
	return b.String()
}
