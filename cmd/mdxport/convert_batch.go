package main

import (
	"context"
	"fmt"
	"time"

	mdxport "github.com/alnah/go-mdxport"
)

// batchParams holds the per-run conversion parameters.
type batchParams struct {
	outputDir string
	mode      mdxport.Mode
	metadata  *mdxport.FrontMatter
	proof     bool
	proofPDF  bool
}

// ConversionResult holds the outcome of a single import.
type ConversionResult struct {
	InputPath string
	Result    *mdxport.Result
	Err       error
	Duration  time.Duration
}

// ResultSummary counts the outcomes of a batch.
type ResultSummary struct {
	Succeeded int
	Failed    int
}

// convertBatch imports files one after another. Every document runs
// through its own pipeline; a failure does not stop the batch, a canceled
// context does.
func convertBatch(ctx context.Context, imp Importer, files []inputFile, p batchParams) []ConversionResult {
	results := make([]ConversionResult, 0, len(files))
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		results = append(results, convertFile(ctx, imp, f, p))
	}
	return results
}

func convertFile(ctx context.Context, imp Importer, f inputFile, p batchParams) ConversionResult {
	start := time.Now()
	res, err := imp.Convert(ctx, mdxport.Input{
		Path:      f.Path,
		OutputDir: p.outputDir,
		Mode:      p.mode,
		Metadata:  p.metadata,
		Proof:     p.proof,
		ProofPDF:  p.proofPDF,
	})
	return ConversionResult{
		InputPath: f.Path,
		Result:    res,
		Err:       err,
		Duration:  time.Since(start),
	}
}

// countResults tallies succeeded and failed imports.
func countResults(results []ConversionResult) ResultSummary {
	var summary ResultSummary
	for _, r := range results {
		if r.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}
	return summary
}

// outputPath returns the main file an import wrote.
func outputPath(r *mdxport.Result) string {
	switch {
	case r == nil:
		return ""
	case r.MDXPath != "":
		return r.MDXPath
	case r.MarkdownPath != "":
		return r.MarkdownPath
	default:
		return r.BibliographyPath
	}
}

// printResultsWithWriter outputs import results and returns the number of
// failed documents.
func printResultsWithWriter(results []ConversionResult, quiet, verbose bool, env *Environment) int {
	summary := countResults(results)
	written := make(map[string]string)

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(env.Stderr, "FAILED %s: %s\n", r.InputPath, describeDocumentError(r.Err))
			continue
		}

		out := outputPath(r.Result)
		if prev, ok := written[out]; ok && out != "" {
			fmt.Fprintf(env.Stderr, "warning: %s overwrote the output of %s\n", r.InputPath, prev)
		}
		written[out] = r.InputPath

		if quiet {
			continue
		}
		if out == "" {
			fmt.Fprintf(env.Stdout, "Skipped %s: nothing to write\n", r.InputPath)
			continue
		}

		if verbose {
			fmt.Fprintf(env.Stdout, "%s -> %s (%v)\n", r.InputPath, out, r.Duration.Round(time.Millisecond))
			fmt.Fprintf(env.Stdout, "  %s: %s, assets=%d\n", r.Result.Kind, r.Result.Stats, r.Result.Assets)
		} else {
			fmt.Fprintf(env.Stdout, "Created %s\n", out)
		}
	}

	if !quiet && len(results) > 1 {
		fmt.Fprintf(env.Stdout, "\n%d succeeded, %d failed\n", summary.Succeeded, summary.Failed)
	}

	return summary.Failed
}
