// Package pipeline implements the document stages that turn a LaTeX or
// Markdown source into an MDX article body.
//
// Stages run strictly in order for one document:
//   - identifier normalization (labels, references, citations)
//   - structural preprocessing (comments, line wraps, math, figures, algorithms)
//   - command and environment mapping
//   - post-conversion cleaning of pandoc output
//   - image and figure componentization
//   - front matter synthesis
//   - import composition and final assembly
//
// Running pandoc, reading sources and writing files are left to the root
// mdxport package. Every stage takes a *Context, the per-document arena that
// holds the identifier map, import table and asset set, and returns a Stats
// value that the caller sums.
//
// The package also renders proof HTML from the finished body with goldmark
// so the result can be reviewed in a browser.
package pipeline
