package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/openadas/stk/internal/archive"
	"github.com/openadas/stk/internal/checksum"
)

func handleChecksum(args []string) {
	fs := flag.NewFlagSet("checksum", flag.ExitOnError)
	mode := fs.String("mode", "full", "Hash mode: full, fast or content")
	ignore := fs.String("ignore", "", "Comma-separated glob patterns to skip")
	workers := fs.Int("workers", 0, "Concurrent hashing workers for directory trees (0 for CPU count)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: usage: stk checksum [options] <path>...")
		os.Exit(1)
	}

	_, done := setup()
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runChecksum(ctx, fs.Args(), *mode, *ignore, *workers, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Checksum failed: %v\n", err)
		os.Exit(1)
	}
}

// runChecksum prints one "<digest>  <path>" line per argument, dirs hashed
// as concurrent trees and files streamed whole.
func runChecksum(ctx context.Context, paths []string, mode, ignore string, workers int, w io.Writer) error {
	m, err := checksum.ParseMode(mode)
	if err != nil {
		return err
	}
	opt := checksum.Options{Mode: m}
	if ignore != "" {
		opt.Ignore = strings.Split(ignore, ",")
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		var digest string
		if info.IsDir() {
			digest, err = checksum.Tree(ctx, path, workers, opt)
		} else {
			digest, err = checksum.Files([]string{path}, opt)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  %s\n", digest, path)
	}
	return nil
}

func handleUnpack(args []string) {
	fs := flag.NewFlagSet("unpack", flag.ExitOnError)
	all := fs.Bool("all", false, "Treat the source as a folder and unpack every archive under it")
	quiet := fs.Bool("quiet", false, "Suppress 7z tool output")
	fs.Parse(args)

	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "Error: usage: stk unpack [options] <archive|folder> [dest]")
		os.Exit(1)
	}

	_, done := setup()
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := fs.Arg(0)
	dest := fs.Arg(1)
	if err := runUnpack(ctx, src, dest, *all, *quiet, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Unpack failed: %v\n", err)
		os.Exit(1)
	}
}

// runUnpack extracts one archive, or with all set every archive under src.
// An empty dest extracts next to the source, named after it.
func runUnpack(ctx context.Context, src, dest string, all, quiet bool, w io.Writer) error {
	if all {
		if dest == "" {
			dest = src
		}
		n, err := archive.UnpackAll(ctx, src, dest, quiet)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "unpacked %d archive(s) into %s\n", n, dest)
		return nil
	}

	if dest == "" {
		dest = strings.TrimSuffix(src, filepath.Ext(src))
	}

	switch strings.ToLower(filepath.Ext(src)) {
	case ".zip":
		files, err := archive.Unzip(src, dest)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "unpacked %d file(s) into %s\n", len(files), dest)
	case ".7z":
		if err := archive.Un7zip(ctx, src, dest, quiet); err != nil {
			return err
		}
		fmt.Fprintf(w, "unpacked %s into %s\n", src, dest)
	default:
		return fmt.Errorf("unsupported archive %q, need .zip or .7z", src)
	}
	return nil
}
