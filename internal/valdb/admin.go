package valdb

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/openadas/stk/internal/monitoring"
)

// AttachAdminRoutes mounts the debug surface on mux: a tailsql read-only
// SQL browser under /debug/tailsql/ and a backup download under
// /debug/backup. Access control is tsweb's.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Validation results",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a database backup now", http.HandlerFunc(db.handleBackup))
	return nil
}

// handleBackup snapshots the database with VACUUM INTO and streams the
// file back gzip-compressed. The snapshot is removed after the download.
func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("failed to stream backup: %v", err)
	}
}
