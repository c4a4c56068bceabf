package main

import (
	"io"

	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

// modeFlags select which part of the pipeline runs. At most one is set.
type modeFlags struct {
	bibOnly     bool
	convertOnly bool
	mdxOnly     bool
}

// proofFlags hold the review proof outputs.
type proofFlags struct {
	html bool
	pdf  bool
}

// importFlags holds all flags of an import run.
type importFlags struct {
	common      commonFlags
	input       string
	output      string
	clean       bool
	mode        modeFlags
	proof       proofFlags
	metadata    string
	assetPath   string
	notionToken string
	version     bool
	help        bool
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show stage statistics and timing")
}

// addModeFlags adds the pipeline mode flags to a FlagSet.
func addModeFlags(fs *flag.FlagSet, f *modeFlags) {
	fs.BoolVar(&f.bibOnly, "bib-only", false, "only clean and copy the bibliography")
	fs.BoolVar(&f.convertOnly, "convert-only", false, "stop after pandoc and write the raw markdown")
	fs.BoolVar(&f.mdxOnly, "mdx-only", false, "run the MDX stages on an existing markdown file")
}

// addProofFlags adds proof output flags to a FlagSet.
func addProofFlags(fs *flag.FlagSet, f *proofFlags) {
	fs.BoolVar(&f.html, "proof", false, "also write an HTML proof of the body")
	fs.BoolVar(&f.pdf, "proof-pdf", false, "also write a PDF proof (headless Chrome)")
}

// parseImportFlags parses import flags and returns positional args.
func parseImportFlags(args []string, stderr io.Writer) (*importFlags, []string, error) {
	fs := flag.NewFlagSet("mdxport", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := &importFlags{}

	fs.StringVarP(&f.input, "input", "i", "", "LaTeX file or directory, Notion export, or notion:<page-id>")
	fs.StringVarP(&f.output, "output", "o", "", "output directory (default ./output)")
	fs.BoolVar(&f.clean, "clean", false, "wipe the output directory first")
	fs.StringVar(&f.metadata, "metadata", "", "YAML front matter override")
	fs.StringVar(&f.assetPath, "asset-path", "", "custom asset directory (filters, mappings, styles)")
	fs.StringVar(&f.notionToken, "notion-token", "", "Notion integration token (default $NOTION_TOKEN)")
	fs.BoolVar(&f.version, "version", false, "show version")
	fs.BoolVarP(&f.help, "help", "h", false, "show help")

	addCommonFlags(fs, &f.common)
	addModeFlags(fs, &f.mode)
	addProofFlags(fs, &f.proof)

	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}
