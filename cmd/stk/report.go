package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/openadas/stk/internal/report"
	"github.com/openadas/stk/internal/val"
	"github.com/openadas/stk/internal/valdb"
)

func handleReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	runID := fs.Int64("id", 0, "Test run to render (required)")
	out := fs.String("out", "", "Output PDF path (default <output_dir>/reports/run-<id>.pdf)")
	plotDir := fs.String("plots", "", "Attach every PNG under this folder to the report")
	fs.Parse(args)

	if *runID < 1 {
		fmt.Fprintln(os.Stderr, "Error: -id flag is required. Use 'stk serve' or the runs API to find run ids.")
		fs.Usage()
		os.Exit(1)
	}

	cfg, done := setup()
	defer done()

	db, err := valdb.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	path := *out
	if path == "" {
		path = filepath.Join(cfg.ReportDir(), fmt.Sprintf("run-%d.pdf", *runID))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create report directory: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := writeRunReport(ctx, db, *runID, *plotDir, path); err != nil {
		fmt.Fprintf(os.Stderr, "Report failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", path)
}

// writeRunReport renders the stored run to a PDF at path, attaching the
// PNG plots under plotDir (sorted by name) when given.
func writeRunReport(ctx context.Context, db *valdb.DB, runID int64, plotDir, path string) error {
	run, err := db.LoadTestRun(ctx, runID, val.LevelFull)
	if err != nil {
		return err
	}

	gen := report.NewGenerator(run)
	if plotDir != "" {
		plots, err := collectPlots(plotDir)
		if err != nil {
			return err
		}
		for _, p := range plots {
			caption := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
			gen.AddPlot(caption, p)
		}
	}

	return gen.WriteFile(path)
}

// collectPlots lists the PNG files directly under dir, sorted by name.
func collectPlots(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plot folder: %w", err)
	}
	var plots []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		plots = append(plots, filepath.Join(dir, e.Name()))
	}
	sort.Strings(plots)
	return plots, nil
}
