// Package snapshot prints downloaded evidence pages to PDF with headless Chrome,
// so letters can embed them without a browser.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"hcletter/internal/logging"
)

// Printer converts HTML files to PDF. One browser is started per Printer.
type Printer struct {
	Timeout time.Duration // per page

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPrinter starts a headless browser bound to ctx.
func NewPrinter(ctx context.Context, timeout time.Duration) (*Printer, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Printer{
		Timeout: timeout,
		ctx:     browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

// Close shuts the browser down.
func (p *Printer) Close() { p.cancel() }

// PrintFile writes src (an HTML file) as a PDF next to it and returns the PDF path.
func (p *Printer) PrintFile(src string) (string, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}
	tabCtx, cancel := chromedp.NewContext(p.ctx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, p.Timeout)
	defer cancelTimeout()

	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("file://"+filepath.ToSlash(abs)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var perr error
			pdf, _, perr = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			return perr
		}),
	)
	if err != nil {
		return "", fmt.Errorf("print %s: %w", src, err)
	}
	dst := strings.TrimSuffix(abs, filepath.Ext(abs)) + ".pdf"
	if err := os.WriteFile(dst, pdf, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	return dst, nil
}

// PrintDir prints every .html file in dir. Individual failures are logged
// and counted; the first one is returned alongside the count of successes.
func (p *Printer) PrintDir(dir string) (int, error) {
	logger := logging.New("snapshot")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}
	var first error
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".html") {
			continue
		}
		dst, err := p.PrintFile(filepath.Join(dir, e.Name()))
		if err != nil {
			logger.Warn("snapshot failed", "file", e.Name(), "error", err)
			if first == nil {
				first = err
			}
			continue
		}
		logger.Debug("snapshot written", "pdf", dst)
		n++
	}
	return n, first
}
