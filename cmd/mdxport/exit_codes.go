package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	mdxport "github.com/alnah/go-mdxport"
	"github.com/alnah/go-mdxport/internal/assets"
	"github.com/alnah/go-mdxport/internal/config"
	"github.com/alnah/go-mdxport/internal/hints"
)

// Exit codes for the mdxport CLI. A document that fails on its own is
// reported and does not change the exit code; only setup errors do.
const (
	ExitSuccess = 0
	ExitSetup   = 1
)

// exitCodeFor returns the exit code for an error returned by runImport.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitSetup
}

// describeError formats err with an actionable hint when one applies.
// It uses errors.Is, so callers must wrap with fmt.Errorf("%w", err).
func describeError(err error) string {
	msg := "error: " + err.Error()

	switch {
	case errors.Is(err, mdxport.ErrPandocNotFound):
		return msg + hints.ForPandocNotFound()
	case errors.Is(err, mdxport.ErrNotionToken):
		return msg + hints.ForNotionToken()
	case errors.Is(err, mdxport.ErrNoInput),
		errors.Is(err, mdxport.ErrInputNotFound),
		errors.Is(err, mdxport.ErrUnsupportedInput):
		return msg + hints.ForInput()
	case errors.Is(err, config.ErrConfigNotFound):
		return msg + hints.ForConfigNotFound(configSearchPaths(err))
	case errors.Is(err, assets.ErrAssetNotFound) && strings.Contains(err.Error(), "mapping"):
		return msg + hints.ForMappingNotFound(assets.NewEmbeddedLoader().List(assets.Mapping))
	case errors.Is(err, ErrOutputDir):
		return msg + hints.ForOutputDirectory()
	}
	return msg
}

// describeDocumentError formats the failure of one document in a batch.
func describeDocumentError(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, mdxport.ErrNotionFetch):
		return msg + hints.ForNotionFetch(msg)
	case errors.Is(err, mdxport.ErrConversion):
		return msg + hints.ForConversion(msg)
	}
	return msg
}

// configSearchPaths extracts the paths listed by a "tried a, b" error, or
// the user config directory when the message lists none.
func configSearchPaths(err error) []string {
	if _, tried, ok := strings.Cut(err.Error(), "tried "); ok {
		return strings.Split(tried, ", ")
	}
	if dir, uerr := os.UserConfigDir(); uerr == nil {
		return []string{filepath.Join(dir, "mdxport", "<name>.yaml")}
	}
	return nil
}
