package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openadas/stk/internal/monitoring"
	"github.com/openadas/stk/internal/val"
)

func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	opts := extractFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: usage: stk watch [options] <folder>")
		os.Exit(1)
	}
	dir := fs.Arg(0)

	cfg, done := setup()
	defer done()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Each extraction is published as one runtime job so the station's
	// progress shows up on the job channel. Without a Redis address the
	// publisher is nil and every publish is a no-op.
	pub := val.NewPublisher(cfg.RedisAddr, "")
	defer pub.Close()
	node, _ := os.Hostname()
	var jobID int64

	monitoring.Logf("watching %s for new recordings", dir)
	err := watchFolder(ctx, dir, cfg.WatchEvery(), func(path string) {
		jobID++
		job := val.NewRuntimeJob(node, jobID)
		publishJobState(ctx, pub, job, val.JobRunning)

		monitoring.Logf("extracting %s", path)
		state := val.JobFinished
		if err := runExtract(ctx, cfg, *opts, path, "", os.Stdout); err != nil {
			monitoring.Logf("failed to extract %s: %v", path, err)
			state = val.JobFailed
		}
		publishJobState(ctx, pub, job, state)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		os.Exit(1)
	}
}

// publishJobState reports a state transition, logging instead of failing
// when the Redis instance is unreachable.
func publishJobState(ctx context.Context, pub *val.Publisher, job *val.RuntimeJob, state val.JobState) {
	if err := pub.PublishState(ctx, job, state); err != nil {
		monitoring.Logf("job publish: %v", err)
	}
}

// watchFolder calls handle for every recording dropped into dir, once the
// file has settled: recordings are copied in over seconds, so an event only
// counts after settle time passes with no further writes to the same path.
// Blocks until ctx is cancelled.
func watchFolder(ctx context.Context, dir string, settle time.Duration, handle func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".rec") {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			monitoring.Logf("watch error: %v", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				// A rename away from the folder also raises an
				// event; only surviving files count.
				if _, err := os.Stat(path); err != nil {
					continue
				}
				handle(path)
			}
		}
	}
}
