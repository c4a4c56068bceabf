// Package hints appends a short "what to try next" line to CLI errors.
// Every hint renders as "\n  hint: <text>", or as "" when nothing applies.
package hints

import (
	"os"
	"strings"

	"github.com/alnah/go-mdxport/internal/fileutil"
)

// IsInContainer reports whether /.dockerenv exists. Tests replace it.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// ciVars are set by the CI systems whose runners lack a Chrome sandbox.
var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// InCI reports whether any known CI variable is set.
func InCI() bool {
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

func ForPandocNotFound() string {
	return format("install pandoc (https://pandoc.org/installing.html), set MDXPORT_PANDOC, or set pandoc.binary in the config")
}

func ForNotionToken() string {
	return format("pass --notion-token or set NOTION_TOKEN; share the page with the integration")
}

func ForInput() string {
	return format("pass a .tex file, a directory, a Notion .html export, or notion:<page-id>")
}

// ForNotionFetch reads the Notion API error code out of msg.
func ForNotionFetch(msg string) string {
	switch {
	case strings.Contains(msg, "unauthorized"):
		return format("the token was rejected; copy it again from the integration settings")
	case strings.Contains(msg, "object_not_found"), strings.Contains(msg, "restricted_resource"):
		return format("open the page in Notion and add the integration under Connections")
	case strings.Contains(msg, "rate_limited"):
		return format("lower notion.rate in the config")
	}
	return ""
}

// ForConversion points at the pandoc filters when one of them failed.
// Parse errors in the LaTeX itself get no hint.
func ForConversion(msg string) string {
	if strings.Contains(msg, "Error running filter") {
		return format("check the Lua filters listed under pandoc.filters")
	}
	return ""
}

// ForBrowserConnect suggests the rod variables that make headless Chrome
// start where it failed to.
func ForBrowserConnect() string {
	var hints []string
	if (InCI() || IsInContainer()) && os.Getenv("ROD_NO_SANDBOX") != "1" {
		hints = append(hints, "set ROD_NO_SANDBOX=1 for Docker/CI")
	}
	if os.Getenv("ROD_BROWSER_BIN") == "" {
		hints = append(hints, "set ROD_BROWSER_BIN to a Chrome or Chromium binary")
	}
	return format(strings.Join(hints, "; "))
}

// ForConfigNotFound suggests --config, or creating the file in the user
// config directory when that was one of the searched paths.
func ForConfigNotFound(searchedPaths []string) string {
	for _, p := range searchedPaths {
		if strings.Contains(filepathSlash(p), ".config/mdxport") {
			return format("use --config /path/to/file.yaml or create " + p)
		}
	}
	return format("use --config /path/to/file.yaml")
}

func ForOutputDirectory() string {
	return format("check parent directory exists and is writable")
}

// ForMappingNotFound lists the mapping tables that do exist.
func ForMappingNotFound(available []string) string {
	if len(available) == 0 {
		return ""
	}
	return format("available: " + strings.Join(available, ", "))
}

func filepathSlash(p string) string { return strings.ReplaceAll(p, `\`, "/") }

func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}
