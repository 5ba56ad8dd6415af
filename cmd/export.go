package cmd

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"car-dashboard/exporter"
)

var (
	flagExportURL string
	flagExportDir string
	flagPages     []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print dashboard pages to PDF with headless Chrome",
	Long: `Export loads each dashboard page in headless Chrome and prints it to PDF.
Without --url an in-process dashboard is started on a loopback port.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("out") {
			cfg.Export.Dir = flagExportDir
		}

		pages, err := selectPages(flagPages)
		if err != nil {
			return err
		}

		base := flagExportURL
		if base == "" {
			url, stop, err := startLocalDashboard(ctx)
			if err != nil {
				return err
			}
			defer stop()
			base = url
		}

		results, err := exporter.New(cfg.Export, base, logger).Export(ctx, pages)
		out := cmd.OutOrStdout()
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(out, "✗ %s: %v\n", r.Page, r.Err)
				continue
			}
			fmt.Fprintf(out, "✓ %s → %s\n", r.Page, r.File)
		}
		return err
	},
}

func init() {
	exportCmd.Flags().StringVar(&flagExportURL, "url", "", "base URL of a running dashboard")
	exportCmd.Flags().StringVar(&flagExportDir, "out", "", "output directory (overrides EXPORT_DIR)")
	exportCmd.Flags().StringSliceVar(&flagPages, "pages", nil, "pages to export (default all)")
	rootCmd.AddCommand(exportCmd)
}

// selectPages maps page names to dashboard pages, keeping the given order.
func selectPages(names []string) ([]exporter.Page, error) {
	if len(names) == 0 {
		return exporter.DefaultPages, nil
	}
	byName := make(map[string]exporter.Page, len(exporter.DefaultPages))
	known := make([]string, 0, len(exporter.DefaultPages))
	for _, p := range exporter.DefaultPages {
		byName[p.Name] = p
		known = append(known, p.Name)
	}

	pages := make([]exporter.Page, 0, len(names))
	for _, n := range names {
		p, ok := byName[strings.TrimSpace(n)]
		if !ok {
			return nil, fmt.Errorf("unknown page %q (choose from %s)", n, strings.Join(known, ", "))
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// startLocalDashboard serves the dashboard on a free loopback port and
// returns its base URL and a function that shuts it down.
func startLocalDashboard(ctx context.Context) (string, func(), error) {
	srv, err := newDashboard()
	if err != nil {
		return "", nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("export: listen: %w", err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(srvCtx, ln) }()

	stop := func() {
		cancel()
		if err := <-done; err != nil {
			logger.Warn("Dashboard shutdown: %v", err)
		}
	}
	return "http://" + ln.Addr().String(), stop, nil
}
