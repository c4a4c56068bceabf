// Package mdxport imports research documents into MDX articles.
//
// # Quick Start
//
// Create a converter, convert a source, and close when done:
//
//	conv, err := mdxport.NewConverter()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conv.Close()
//
//	result, err := conv.Convert(ctx, mdxport.Input{
//	    Path:      "paper/main.tex",
//	    OutputDir: "site/src/content/article",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.MDXPath, result.Stats)
//
// # Sources
//
// Input.Path selects the source:
//
//   - a .tex file, or a directory holding one with \documentclass
//   - a Markdown file (.md)
//   - a Notion HTML export (.html file or the export directory)
//   - notion:<page-id>, fetched through the Notion API
//
// LaTeX sources have \input and \include expanded, then run through
// identifier normalization, structural preprocessing and command mapping
// before pandoc converts them to Markdown. Every source then goes through
// the cleaner, the image componentizer, front matter synthesis and the
// finalizer, which writes the import block and the body.
//
// # Output
//
// Convert writes <slug>.mdx, the images it references under assets/image,
// and a cleaned bibliography.bib when the source cites one. Input.Mode
// stops earlier (ModeConvertOnly writes pandoc's Markdown) or starts later
// (ModeMDXOnly runs the Markdown stages only). Input.Proof and
// Input.ProofPDF add a reviewable HTML or PDF rendering of the result.
//
// # Configuration
//
// Use functional options to customize the converter:
//
//	conv, err := mdxport.NewConverter(
//	    mdxport.WithPandocBinary("/opt/pandoc/bin/pandoc"),
//	    mdxport.WithComponentDir("@components"),
//	    mdxport.WithLogger(logger.New(os.Stderr, logger.DebugLevel)),
//	)
package mdxport
