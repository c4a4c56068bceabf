package mdxport

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-mdxport/internal/fileutil"
	"github.com/alnah/go-mdxport/internal/hints"
	"github.com/alnah/go-mdxport/internal/process"
)

// pdfConverter prints proof HTML. The Converter starts one lazily, on the
// first document that asks for a PDF proof.
type pdfConverter interface {
	ToPDF(ctx context.Context, htmlContent string) ([]byte, error)
	Close() error
}

// filePrinter prints an HTML file already on disk.
type filePrinter interface {
	PrintFile(ctx context.Context, path string) ([]byte, error)
	Close() error
}

var (
	_ pdfConverter = (*proofPrinter)(nil)
	_ filePrinter  = (*chromePrinter)(nil)
)

// Proofs are read side by side with the LaTeX PDF, so they use A4 and
// number their pages.
var proofPage = proto.PagePrintToPDF{
	PaperWidth:          floatPtr(8.27),
	PaperHeight:         floatPtr(11.69),
	MarginTop:           floatPtr(0.8),
	MarginBottom:        floatPtr(0.8),
	MarginLeft:          floatPtr(0.8),
	MarginRight:         floatPtr(0.8),
	PrintBackground:     true,
	DisplayHeaderFooter: true,
	HeaderTemplate:      "<span></span>",
	FooterTemplate: `<div style="font-size:8px;width:100%;text-align:center">` +
		`<span class="pageNumber"></span> / <span class="totalPages"></span></div>`,
}

func floatPtr(v float64) *float64 { return &v }

// chromePrinter drives one headless Chrome through rod. rod downloads a
// Chromium when none is installed and ROD_BROWSER_BIN is unset.
type chromePrinter struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	timeout  time.Duration
}

func newChromePrinter(timeout time.Duration) *chromePrinter {
	return &chromePrinter{timeout: timeout}
}

// start launches the browser on first use. Containers and CI runners get
// --no-sandbox, as does any browser named by ROD_BROWSER_BIN.
func (p *chromePrinter) start() error {
	if p.browser != nil {
		return nil
	}

	l := launcher.New()
	bin := os.Getenv("ROD_BROWSER_BIN")
	if bin != "" {
		l = l.Bin(bin)
	}
	if bin != "" || hints.InCI() || hints.IsInContainer() {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	p.launcher = l

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		p.stop()
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	p.browser = browser
	return nil
}

// stop kills the browser's process group, renderers included.
func (p *chromePrinter) stop() {
	if p.launcher == nil {
		return
	}
	if pid := p.launcher.PID(); pid > 0 {
		process.KillGroup(pid)
	}
	p.launcher.Kill()
	p.launcher = nil
}

func (p *chromePrinter) Close() error {
	var err error
	if p.browser != nil {
		err = p.browser.Close()
		p.browser = nil
	}
	p.stop()
	return err
}

// PrintFile loads path and prints it once the load event fired. The page
// gets the context's remaining time, or the printer's timeout without one.
func (p *chromePrinter) PrintFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.start(); err != nil {
		return nil, err
	}

	page, err := p.browser.Page(proto.TargetCreateTarget{URL: "file://" + path})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer page.Close()

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if timeout = time.Until(deadline); timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := proofPage
	stream, err := page.PDF(&req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFGeneration, err)
	}
	pdf, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF stream: %v", ErrPDFGeneration, err)
	}
	return pdf, nil
}

// proofPrinter stages proof HTML in a temp file for the printer. Image
// sources must already be absolute file:// URLs.
type proofPrinter struct {
	printer filePrinter
}

func newProofPrinter(timeout time.Duration) *proofPrinter {
	return &proofPrinter{printer: newChromePrinter(timeout)}
}

func (c *proofPrinter) ToPDF(ctx context.Context, htmlContent string) ([]byte, error) {
	path, cleanup, err := fileutil.WriteTempFile(htmlContent, "html")
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return c.printer.PrintFile(ctx, path)
}

func (c *proofPrinter) Close() error {
	if c.printer == nil {
		return nil
	}
	return c.printer.Close()
}
