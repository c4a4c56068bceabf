package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdxport [flags] [input...]")
	fmt.Fprintln(w, "       mdxport <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Import LaTeX projects and Notion pages as MDX documents.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input:")
	fmt.Fprintln(w, "  a LaTeX main file or project directory, a Markdown file (--mdx-only),")
	fmt.Fprintln(w, "  a Notion HTML export (.html or directory), or notion:<page-id>.")
	fmt.Fprintln(w, "  A directory holding several documents is imported as a batch.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input/Output:")
	fmt.Fprintln(w, "  -i, --input <path>        Input (or positional argument, or input.default)")
	fmt.Fprintln(w, "  -o, --output <dir>        Output directory (default ./output)")
	fmt.Fprintln(w, "      --clean               Wipe the output directory first")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "      --metadata <path>     YAML front matter override")
	fmt.Fprintln(w, "      --asset-path <dir>    Custom filters, mappings and styles")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Modes:")
	fmt.Fprintln(w, "      --bib-only            Only clean and copy the bibliography")
	fmt.Fprintln(w, "      --convert-only        Stop after pandoc and write <slug>.md")
	fmt.Fprintln(w, "      --mdx-only            Run the MDX stages on a Markdown file")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Proofs:")
	fmt.Fprintln(w, "      --proof               Also write <slug>.proof.html")
	fmt.Fprintln(w, "      --proof-pdf           Also write <slug>.proof.pdf (needs Chrome)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notion:")
	fmt.Fprintln(w, "      --notion-token <tok>  Integration token (default $NOTION_TOKEN)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output control:")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Show stage statistics and timing")
	fmt.Fprintln(w, "      --version             Show version")
	fmt.Fprintln(w, "  -h, --help                Show this help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  doctor [-c cfg] [--json]  Check the setup an import would use")
	fmt.Fprintln(w, "  version                   Show version information")
	fmt.Fprintln(w, "  help                      Show this help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  MDXPORT_CONFIG, MDXPORT_INPUT, MDXPORT_OUTPUT_DIR, MDXPORT_ASSET_PATH,")
	fmt.Fprintln(w, "  MDXPORT_PANDOC, MDXPORT_PANDOC_TIMEOUT, MDXPORT_COMPONENT_DIR,")
	fmt.Fprintln(w, "  MDXPORT_DATE_FORMAT, NOTION_TOKEN")
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdxport doctor [-c config] [--json]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Resolve the config and environment the way an import does, then check")
	fmt.Fprintln(w, "the assets it names, the pandoc version, Chrome for PDF proofs and the")
	fmt.Fprintln(w, "Notion token. Warnings keep the exit code at 0.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -c, --config string   Config file name or path")
	fmt.Fprintln(w, "      --json            Print the report as JSON")
}

// runHelp prints help for a command, or the main usage.
func runHelp(args []string, env *Environment) {
	if len(args) > 0 && args[0] == "doctor" {
		printDoctorUsage(env.Stdout)
		return
	}
	printUsage(env.Stdout)
}
