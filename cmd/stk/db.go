package main

import (
	"fmt"
	"os"

	"github.com/openadas/stk/internal/valdb"
)

func handleDB(args []string) {
	cfg, done := setup()
	defer done()

	if err := valdb.RunMigrateCommand(os.Stdout, cfg.DBPath, args); err != nil {
		fmt.Fprintf(os.Stderr, "Migration command failed: %v\n", err)
		os.Exit(1)
	}
}
