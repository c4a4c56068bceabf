package mdxport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-mdxport/internal/fileutil"
	"github.com/alnah/go-mdxport/internal/logger"
	"github.com/alnah/go-mdxport/internal/process"
)

// PandocTarget is the Markdown variant pandoc writes. Attribute and div
// syntaxes are disabled so anchors come out as raw HTML spans.
const PandocTarget = "markdown" +
	"-native_divs-native_spans-fenced_divs-bracketed_spans" +
	"-header_attributes-link_attributes-raw_attribute" +
	"+raw_html+tex_math_dollars"

// DefaultPandocBinary is the executable looked up on PATH.
const DefaultPandocBinary = "pandoc"

// CommandRunner abstracts command execution to enable testing without real subprocesses.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec. A cancelled context
// kills the whole process group.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := process.Command(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// PandocRequest is one LaTeX to Markdown conversion.
type PandocRequest struct {
	Source      string // preprocessed LaTeX
	ResourceDir string // where pandoc looks up images and includes
	MediaDir    string // where embedded media is extracted, owned by the caller
}

// PandocConverter converts LaTeX to Markdown by invoking the pandoc CLI.
type PandocConverter struct {
	Runner  CommandRunner
	Binary  string
	Filter  string   // built-in Lua filter source, written to a temp file per run
	Filters []string // extra Lua filter paths, run after the built-in one
	Timeout time.Duration
	Log     logger.Logger

	lookPath func(string) (string, error)
}

// NewPandocConverter creates a PandocConverter with a real command runner.
func NewPandocConverter(filter string) *PandocConverter {
	return &PandocConverter{
		Runner:   &ExecRunner{},
		Binary:   DefaultPandocBinary,
		Filter:   filter,
		Log:      logger.NewNop(),
		lookPath: exec.LookPath,
	}
}

// Check reports ErrPandocNotFound when the binary cannot be executed.
func (p *PandocConverter) Check() error {
	lookPath := p.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(p.binary()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPandocNotFound, p.binary(), err)
	}
	return nil
}

// Convert runs pandoc on req.Source and returns the Markdown it wrote.
// Temp files are removed on every path. A failed run returns ErrConversion
// carrying pandoc's stderr verbatim.
func (p *PandocConverter) Convert(ctx context.Context, req PandocRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	inPath, cleanupIn, err := fileutil.WriteTempFile(req.Source, "tex")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversion, err)
	}
	defer cleanupIn()

	filterPath := ""
	if p.Filter != "" {
		path, cleanupFilter, err := fileutil.WriteTempFile(p.Filter, "lua")
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrConversion, err)
		}
		defer cleanupFilter()
		filterPath = path
	}

	outPath := strings.TrimSuffix(inPath, ".tex") + ".md"
	defer func() { _ = os.Remove(outPath) }()

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := p.args(inPath, outPath, filterPath, req)
	p.log().Debug("running %s %s", p.binary(), strings.Join(args, " "))

	_, stderr, err := p.Runner.Run(ctx, p.binary(), args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", ErrConversion, ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrPandocNotFound, p.binary())
		}
		return "", fmt.Errorf("%w: %s: %v", ErrConversion, strings.TrimSpace(stderr), err)
	}
	if s := strings.TrimSpace(stderr); s != "" {
		p.log().Debug("pandoc: %s", s)
	}

	out, err := os.ReadFile(outPath) // #nosec G304 -- temp path we created
	if err != nil {
		return "", fmt.Errorf("%w: reading pandoc output: %v", ErrConversion, err)
	}
	return string(out), nil
}

// args builds the fixed pandoc flag set.
func (p *PandocConverter) args(inPath, outPath, filterPath string, req PandocRequest) []string {
	args := []string{
		inPath,
		"-f", "latex",
		"-t", PandocTarget,
		"--wrap=none",
		"--shift-heading-level-by=1",
		"-o", outPath,
	}
	if req.MediaDir != "" {
		args = append(args, "--extract-media="+req.MediaDir)
	}
	if req.ResourceDir != "" {
		args = append(args, "--resource-path="+req.ResourceDir)
	}
	if filterPath != "" {
		args = append(args, "--lua-filter="+filterPath)
	}
	for _, f := range p.Filters {
		args = append(args, "--lua-filter="+filepath.Clean(f))
	}
	return args
}

func (p *PandocConverter) binary() string {
	if p.Binary == "" {
		return DefaultPandocBinary
	}
	return p.Binary
}

func (p *PandocConverter) log() logger.Logger {
	if p.Log == nil {
		return logger.NewNop()
	}
	return p.Log
}
