// Command stk is the scripting toolkit front end: recording extraction,
// results bookkeeping, report rendering and a read-only results browser
// behind one binary.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/openadas/stk/internal/config"
	"github.com/openadas/stk/internal/logging"
	"github.com/openadas/stk/internal/version"
)

var configPath = flag.String("config", "", "Configuration file path (default ./stk.yaml when present)")

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "extract":
		handleExtract(args)
	case "info":
		handleInfo(args)
	case "codecs":
		handleCodecs(args)
	case "devices":
		handleDevices(args)
	case "watch":
		handleWatch(args)
	case "ego":
		handleEgo(args)
	case "db":
		handleDB(args)
	case "report":
		handleReport(args)
	case "checksum":
		handleChecksum(args)
	case "unpack":
		handleUnpack(args)
	case "serve":
		handleServe(args)
	case "version":
		fmt.Printf("stk %s\n", version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the configuration and routes library logging through a zap
// logger built from it. The returned sync func belongs in a defer.
func setup() (config.Config, func()) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := logging.Parse(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to parse log level: %v", err)
	}
	logger, err := logging.New("stk", level, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	logging.Route(logger)

	return cfg, func() {
		logging.Route(nil)
		_ = logger.Sync()
	}
}

func printUsage() {
	fmt.Println(`stk - scripting toolkit for recording extraction and validation bookkeeping

Usage: stk [-config <file>] <command> [options]

Commands:
  extract    Extract images or video from a recording
  info       Show the time range of a recording
  codecs     List the codecs of the installed extractor
  devices    List the devices contained in a recording
  watch      Watch a drop folder and extract new recordings
  ego        Summarize the ego motion of a vehicle bus log
  db         Manage the results database schema
  report     Render a stored test run to PDF
  checksum   Hash files or a directory tree
  unpack     Extract zip/7z archives
  serve      Serve stored results over HTTP
  version    Show stk version
  help       Show this help message

Common Flags:
  -config <file>       Configuration file (default ./stk.yaml when present)
                       Settings may also come from STK_* environment
                       variables; flags override both.

Examples:
  # Extract every tenth camera frame of a recording as JPEG
  stk extract -step 10 drive_0423.rec

  # Cut an AVI between two recording timestamps (microseconds)
  stk extract -format avi -start 12000000 -stop 18000000 drive_0423.rec

  # Apply pending schema migrations, then inspect the version
  stk db up
  stk db status

  # Render run 42 with the plots of its output folder attached
  stk report -id 42 -plots out/plots/drive_0423

  # Watch a drop folder on a batch station
  stk watch /mnt/ingest

  # Summarize a candump log and render the drive plots
  stk ego -plots drive_0423.log

  # Browse results at http://localhost:8075
  stk serve -admin

Use "stk <command> -h" for the flags of one command.`)
}
