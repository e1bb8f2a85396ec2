package valdb

import (
	"fmt"
	"io"
)

// RunMigrateCommand dispatches the `stk db <action>` migration commands
// against the database at dbPath. Output goes to w.
func RunMigrateCommand(w io.Writer, dbPath string, args []string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("missing migrate action")
	}

	// Open without migrating; the commands below manage the schema.
	db, err := Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	switch action := args[0]; action {
	case "up":
		if err := db.MigrateUp(); err != nil {
			return err
		}
		return printVersion(w, db, "all migrations applied")

	case "down":
		if err := db.MigrateDown(); err != nil {
			return err
		}
		return printVersion(w, db, "rolled back one migration")

	case "status":
		status, err := db.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "current version: %d (latest: %d)\n", status.Version, status.Latest)
		fmt.Fprintf(w, "dirty: %v\n", status.Dirty)
		fmt.Fprintf(w, "schema_migrations table exists: %v\n", status.Applied)
		if status.Dirty {
			fmt.Fprintln(w, "WARNING: a migration failed mid-execution; inspect the database and run 'stk db force <version>' to recover")
		} else if status.Version < status.Latest {
			fmt.Fprintf(w, "%d migration(s) pending; run 'stk db up'\n", status.Latest-status.Version)
		}
		return nil

	case "version":
		if len(args) < 2 {
			return fmt.Errorf("usage: stk db version <version>")
		}
		var target uint
		if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		if err := db.MigrateTo(target); err != nil {
			return err
		}
		return printVersion(w, db, fmt.Sprintf("migrated to version %d", target))

	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: stk db force <version>")
		}
		var target int
		if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		if err := db.MigrateForce(target); err != nil {
			return err
		}
		fmt.Fprintf(w, "migration version forced to %d\n", target)
		return nil

	case "help":
		PrintMigrateHelp(w)
		return nil

	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func printVersion(w io.Writer, db *DB, msg string) error {
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s; current version: %d (dirty: %v)\n", msg, version, dirty)
	return nil
}

// PrintMigrateHelp writes the migrate command reference to w.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprintln(w, "Database migration commands")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: stk db [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up              Apply all pending migrations")
	fmt.Fprintln(w, "  down            Roll back one migration")
	fmt.Fprintln(w, "  status          Show current migration status")
	fmt.Fprintln(w, "  version <N>     Migrate up or down to version N")
	fmt.Fprintln(w, "  force <N>       Force the recorded version to N (recovery only)")
	fmt.Fprintln(w, "  help            Show this help message")
}
