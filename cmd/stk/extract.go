package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/openadas/stk/internal/config"
	"github.com/openadas/stk/internal/rfe"
)

// extractFlags registers the extraction options on fs and returns the bound
// values. Shared between extract and watch.
func extractFlags(fs *flag.FlagSet) *rfe.ExtractOptions {
	opts := rfe.DefaultExtractOptions()
	fs.Int64Var(&opts.Start, "start", opts.Start, "Start timestamp in recording microseconds (-1 for recording start)")
	fs.Int64Var(&opts.Stop, "stop", opts.Stop, "Stop timestamp in recording microseconds (-1 for recording end)")
	fs.Int64Var(&opts.Step, "step", opts.Step, "Extract every n-th cycle only (-1 for all)")
	fs.StringVar((*string)(&opts.Format), "format", string(opts.Format), "Output format: jpeg, bmp, avi, pgm or pfds")
	fs.StringVar(&opts.Codec, "codec", "", "Video codec for avi output")
	fs.StringVar(&opts.Device, "device", opts.Device, "Recording device to extract from")
	fs.StringVar(&opts.Channel, "channel", "", "Device channel")
	fs.BoolVar(&opts.Color, "color", false, "Bayer-decode to color instead of grayscale")
	fs.StringVar((*string)(&opts.Brightness), "brightness", "", "Brightness enhancement: DO, FD or 90")
	return &opts
}

func handleExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	opts := extractFlags(fs)
	outDir := fs.String("out", "", "Output folder (default <output_dir>/extract/<recording>)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: no recording given. Usage: stk extract [options] <recording>...")
		os.Exit(1)
	}

	cfg, done := setup()
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, recording := range fs.Args() {
		if err := runExtract(ctx, cfg, *opts, recording, *outDir, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
			os.Exit(1)
		}
	}
}

// runExtract extracts one recording and reports the produced files on w.
// An empty outDir places the files under the configured extract folder,
// named after the recording.
func runExtract(ctx context.Context, cfg config.Config, opts rfe.ExtractOptions, recording, outDir string, w io.Writer) error {
	ex, err := rfe.New(cfg.ExtractorPath)
	if err != nil {
		return err
	}

	if outDir == "" {
		base := strings.TrimSuffix(filepath.Base(recording), filepath.Ext(recording))
		outDir = filepath.Join(cfg.ExtractDir(), base)
	}
	opts.Folder = outDir

	start := time.Now()
	switch opts.Format {
	case rfe.FormatPFDS:
		files, err := ex.CreatePFDS(ctx, recording, opts)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(w, f)
		}
		fmt.Fprintf(w, "%d packet files from %s in %s\n", len(files), recording, time.Since(start).Round(time.Millisecond))
	case rfe.FormatAVI:
		res, err := ex.CreateAVI(ctx, recording, opts)
		if err != nil {
			return err
		}
		reportResult(w, res, recording, start)
	default:
		res, err := ex.ExtractImages(ctx, recording, opts)
		if err != nil {
			return err
		}
		reportResult(w, res, recording, start)
	}
	return nil
}

func reportResult(w io.Writer, res *rfe.Result, recording string, start time.Time) {
	for _, f := range res.Extracted {
		fmt.Fprintln(w, f)
	}
	fmt.Fprintf(w, "%d extracted, %d already existing from %s in %s\n",
		len(res.Extracted), len(res.Existing), recording, time.Since(start).Round(time.Millisecond))
}

func handleInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: usage: stk info <recording>")
		os.Exit(1)
	}

	cfg, done := setup()
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ex, err := rfe.New(cfg.ExtractorPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	info, err := ex.Info(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read recording info: %v\n", err)
		os.Exit(1)
	}
	printRecInfo(os.Stdout, fs.Arg(0), info)
}

func printRecInfo(w io.Writer, recording string, info rfe.RecInfo) {
	fmt.Fprintf(w, "%s\n", recording)
	fmt.Fprintf(w, "  start: %d us\n", info.Start)
	fmt.Fprintf(w, "  stop:  %d us\n", info.Stop)
	fmt.Fprintf(w, "  span:  %s\n", time.Duration(info.Stop-info.Start)*time.Microsecond)
}

func handleCodecs(args []string) {
	fs := flag.NewFlagSet("codecs", flag.ExitOnError)
	fs.Parse(args)

	cfg, done := setup()
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ex, err := rfe.New(cfg.ExtractorPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	codecs, err := ex.Codecs(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list codecs: %v\n", err)
		os.Exit(1)
	}
	printSortedMap(os.Stdout, codecs)
}

func handleDevices(args []string) {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: usage: stk devices <recording>")
		os.Exit(1)
	}

	cfg, done := setup()
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ex, err := rfe.New(cfg.ExtractorPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	devices, err := ex.Devices(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
		os.Exit(1)
	}
	printSortedMap(os.Stdout, devices)
}

func printSortedMap(w io.Writer, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-20s %s\n", k, m[k])
	}
}
