// Package exporter prints dashboard pages to PDF with headless Chrome.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"car-dashboard/config"
	"car-dashboard/utils"
)

// Page is one dashboard page to export.
type Page struct {
	Name string
	Path string
}

// DefaultPages are the dashboard's top-level pages.
var DefaultPages = []Page{
	{Name: "home", Path: "/"},
	{Name: "explorer", Path: "/explorer"},
	{Name: "relationships", Path: "/relationships"},
	{Name: "predictor", Path: "/predictor"},
	{Name: "explainability", Path: "/explainability"},
}

// Result reports the outcome of one page export.
type Result struct {
	Page  string
	File  string
	Bytes int
	Err   error
}

// Exporter renders pages of a running dashboard to PDF files.
type Exporter struct {
	cfg     config.ExportConfig
	baseURL string
	logger  *utils.Logger
	pool    *utils.WorkerPool
	retry   *utils.RetryConfig

	mu      sync.Mutex
	results []Result
}

// New creates an Exporter for the dashboard served at baseURL.
func New(cfg config.ExportConfig, baseURL string, logger *utils.Logger) *Exporter {
	return &Exporter{
		cfg:     cfg,
		baseURL: baseURL,
		logger:  logger,
		pool:    utils.NewWorkerPool(cfg.MaxConcurrency, 250*time.Millisecond),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

// Export prints every page once and writes it to the export directory.
// Results are ordered by page name; the returned error joins all failures.
func (e *Exporter) Export(ctx context.Context, pages []Page) ([]Result, error) {
	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("exporter: create %s: %w", e.cfg.Dir, err)
	}

	chromeBin := findChromeBinary(e.cfg.ChromeBin)
	e.logger.Info("[exporter] Using browser binary: %s", chromeBin)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(chromeBin)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	// Start the browser before tabs are opened concurrently.
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("exporter: start browser: %w", err)
	}

	e.mu.Lock()
	e.results = nil
	e.mu.Unlock()

	seen := utils.NewKeySet()
	for _, p := range pages {
		p := p
		if !seen.Add(p.Name) {
			e.logger.Debug("[exporter] Skipping duplicate page %s", p.Name)
			continue
		}
		e.pool.Submit(func() {
			e.record(e.exportPage(browserCtx, p))
		})
	}
	e.pool.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	sort.Slice(e.results, func(i, j int) bool { return e.results[i].Page < e.results[j].Page })

	var errs []error
	for _, r := range e.results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Page, r.Err))
		}
	}
	e.logger.Info("[exporter] Exported %d/%d pages to %s", len(e.results)-len(errs), len(e.results), e.cfg.Dir)
	return e.results, errors.Join(errs...)
}

func (e *Exporter) record(r Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, r)
}

func (e *Exporter) exportPage(browserCtx context.Context, p Page) Result {
	res := Result{Page: p.Name, File: outputFile(e.cfg.Dir, p)}

	target, err := pageURL(e.baseURL, p.Path)
	if err != nil {
		res.Err = err
		return res
	}

	var pdf []byte
	res.Err = e.retry.Do(browserCtx, "print-"+p.Name, func(ctx context.Context) error {
		tabCtx, cancel := chromedp.NewContext(ctx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, 60*time.Second)
		defer cancelTimeout()

		return chromedp.Run(tabCtx,
			chromedp.Navigate(target),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.ActionFunc(func(ctx context.Context) error {
				buf, _, err := page.PrintToPDF().
					WithPrintBackground(true).
					WithPaperWidth(8.27).
					WithPaperHeight(11.69).
					Do(ctx)
				if err != nil {
					return fmt.Errorf("print to pdf: %w", err)
				}
				pdf = buf
				return nil
			}),
		)
	})
	if res.Err != nil {
		e.logger.Error("[exporter] %s failed: %v", p.Name, res.Err)
		return res
	}

	if err := os.WriteFile(res.File, pdf, 0o644); err != nil {
		res.Err = fmt.Errorf("write %s: %w", res.File, err)
		return res
	}
	res.Bytes = len(pdf)
	e.logger.Info("[exporter] %s → %s (%d bytes)", target, res.File, res.Bytes)
	return res
}

func allocatorOptions(chromeBin string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(1280, 1024),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}
	return opts
}

// pageURL resolves path against the dashboard base URL.
func pageURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("exporter: invalid base URL %q", base)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("exporter: invalid page path %q: %w", path, err)
	}
	return u.ResolveReference(ref).String(), nil
}

func outputFile(dir string, p Page) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '-'
		}
		return r
	}, p.Name)
	return filepath.Join(dir, "dashboard-"+name+".pdf")
}

// findChromeBinary locates Chrome/Chromium. An explicitly configured path wins.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
