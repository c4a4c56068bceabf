package mdxport

import "errors"

// Sentinel errors for library operations.
var (
	// Setup errors.
	ErrPandocNotFound   = errors.New("pandoc not found")
	ErrNoInput          = errors.New("no input specified")
	ErrNoOutput         = errors.New("no output directory specified")
	ErrInputNotFound    = errors.New("input not found")
	ErrUnsupportedInput = errors.New("unsupported input")
	ErrInvalidAssetPath = errors.New("invalid asset path")
	ErrNotionToken      = errors.New("notion token missing")

	// Per-document errors.
	ErrConversion  = errors.New("pandoc conversion failed")
	ErrReadSource  = errors.New("failed to read source")
	ErrWriteOutput = errors.New("failed to write output")
	ErrNotionFetch = errors.New("notion fetch failed")

	// Proof PDF errors.
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrPDFGeneration  = errors.New("PDF generation failed")
)
