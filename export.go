package mdbanner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-mdbanner/internal/fileutil"
	"github.com/alnah/go-mdbanner/internal/process"
)

// PageSize names a PDF paper size.
type PageSize string

// Paper sizes.
const (
	PageLetter PageSize = "letter"
	PageA4     PageSize = "a4"
	PageLegal  PageSize = "legal"
)

// paperInches maps sizes to width and height in inches.
var paperInches = map[PageSize][2]float64{
	PageLetter: {8.5, 11},
	PageA4:     {8.27, 11.69},
	PageLegal:  {8.5, 14},
}

// ParsePageSize parses a paper size (case-insensitive). The empty string
// selects PageLetter.
func ParsePageSize(s string) (PageSize, error) {
	if s == "" {
		return PageLetter, nil
	}
	p := PageSize(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := paperInches[p]; !ok {
		return "", fmt.Errorf("%w: %q (want letter, a4 or legal)", ErrInvalidPageSize, s)
	}
	return p, nil
}

const marginInches = 0.5

// PDFExporter prints a self-contained HTML document to PDF.
type PDFExporter interface {
	ToPDF(ctx context.Context, htmlContent string) ([]byte, error)
	Close() error
}

// pdfRenderer abstracts PDF rendering from an HTML file to enable testing without a browser.
type pdfRenderer interface {
	RenderFromFile(ctx context.Context, filePath string) ([]byte, error)
	Close() error
}

var (
	_ PDFExporter = (*rodExporter)(nil)
	_ pdfRenderer = (*rodRenderer)(nil)
)

// rodRenderer implements pdfRenderer using go-rod.
// Rod automatically downloads Chromium on first run if not found.
type rodRenderer struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	timeout  time.Duration
	page     PageSize
}

func newRodRenderer(timeout time.Duration, page PageSize) *rodRenderer {
	return &rodRenderer{timeout: timeout, page: page}
}

// ensureBrowser lazily connects to the browser.
func (r *rodRenderer) ensureBrowser() error {
	if r.browser != nil {
		return nil
	}

	l := launcher.New()

	// Pre-installed browser (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" || os.Getenv("ROD_NO_SANDBOX") == "1" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	r.launcher = l

	r.browser = rod.New().ControlURL(u)
	if err := r.browser.Connect(); err != nil {
		r.browser = nil
		r.stopLauncher()
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	return nil
}

// Close releases browser resources, then kills what is left of the
// browser process tree.
func (r *rodRenderer) Close() error {
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	r.stopLauncher()
	return err
}

func (r *rodRenderer) stopLauncher() {
	if r.launcher == nil {
		return
	}
	process.KillTree(r.launcher.PID())
	r.launcher.Kill()
	r.launcher.Cleanup()
	r.launcher = nil
}

// RenderFromFile opens a local HTML file in headless Chrome and prints it.
func (r *rodRenderer) RenderFromFile(ctx context.Context, filePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.ensureBrowser(); err != nil {
		return nil, err
	}

	page, err := r.browser.Page(proto.TargetCreateTarget{URL: fileutil.PathToFileURL(filePath)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer page.Close()

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := page.PDF(buildPDFOptions(r.page))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFGeneration, err)
	}

	pdfBuf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF stream: %v", ErrPDFGeneration, err)
	}

	return pdfBuf, nil
}

// buildPDFOptions prints backgrounds, which banners are made of.
func buildPDFOptions(size PageSize) *proto.PagePrintToPDF {
	dims, ok := paperInches[size]
	if !ok {
		dims = paperInches[PageLetter]
	}
	return &proto.PagePrintToPDF{
		PaperWidth:      floatPtr(dims[0]),
		PaperHeight:     floatPtr(dims[1]),
		MarginTop:       floatPtr(marginInches),
		MarginBottom:    floatPtr(marginInches),
		MarginLeft:      floatPtr(marginInches),
		MarginRight:     floatPtr(marginInches),
		PrintBackground: true,
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

// rodExporter prints HTML through a temp file and headless Chrome.
type rodExporter struct {
	renderer pdfRenderer
}

// NewPDFExporter creates an exporter backed by headless Chrome. The
// browser starts on first use.
func NewPDFExporter(timeout time.Duration, page PageSize) PDFExporter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &rodExporter{renderer: newRodRenderer(timeout, page)}
}

// ToPDF converts HTML content to PDF bytes.
func (c *rodExporter) ToPDF(ctx context.Context, htmlContent string) ([]byte, error) {
	tmpPath, cleanup, err := fileutil.WriteTempFile(htmlContent, "html")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return c.renderer.RenderFromFile(ctx, tmpPath)
}

// Close releases browser resources.
func (c *rodExporter) Close() error {
	if c.renderer != nil {
		return c.renderer.Close()
	}
	return nil
}
