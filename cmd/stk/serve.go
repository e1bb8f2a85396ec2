package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openadas/stk/internal/api"
	"github.com/openadas/stk/internal/monitoring"
	"github.com/openadas/stk/internal/valdb"
)

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", "", "Listen address (default from config)")
	admin := fs.Bool("admin", false, "Attach the tailsql and debug admin routes")
	fs.Parse(args)

	cfg, done := setup()
	defer done()

	addr := *listen
	if addr == "" {
		addr = cfg.ListenAddr
	}

	db, err := valdb.OpenAndMigrate(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	mux, err := newServeMux(db, *admin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to assemble routes: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitoring.Logf("serving results from %s on %s", cfg.DBPath, addr)
	if err := serveHTTP(ctx, addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		os.Exit(1)
	}
}

// newServeMux assembles the browser surface: JSON endpoints under /api,
// chart pages under /charts, and optionally the admin debugging routes.
func newServeMux(db *valdb.DB, admin bool) (*http.ServeMux, error) {
	mux := http.NewServeMux()

	s := api.NewServer(db)
	mux.Handle("/api/", http.StripPrefix("/api", s.ServeMux()))
	mux.Handle("/charts/", http.StripPrefix("/charts", s.ChartsMux()))
	mux.HandleFunc("/", indexPage)

	if admin {
		if err := db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func indexPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!doctype html>
<title>stk results</title>
<h1>stk results browser</h1>
<ul>
<li><a href="/api/runs">/api/runs</a> - stored test runs</li>
<li>/api/run?id=N[&amp;level=basic|info|full] - one run as JSON</li>
<li>/charts/cases?id=N - processed time and distance per case</li>
<li>/charts/results?id=N - measurement results scatter</li>
</ul>
`)
}

// serveHTTP runs the server until ctx is cancelled, then shuts it down with
// a five second grace period.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	monitoring.Logf("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}
