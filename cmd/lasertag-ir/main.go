package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dbehnke/lasertag-ir/pkg/config"
	"github.com/dbehnke/lasertag-ir/pkg/logger"
	"github.com/dbehnke/lasertag-ir/pkg/web"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: lasertag-ir [flags] [command]

Commands:
  serve    run the transmitter, receiver and web API (default)
  encode   print the raw pulses for a shot
  decode   decode raw pulses from arguments or stdin

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	// Parse command line flags
	configFile := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Usage = usage
	flag.Parse()

	// Show version
	if *showVersion {
		fmt.Printf("lasertag-ir %s (commit %s, built %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	cmd := "serve"
	args := flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "encode":
		os.Exit(runEncode(args, os.Stdout, os.Stderr))
	case "decode":
		os.Exit(runDecode(args, os.Stdin, os.Stdout, os.Stderr))
	case "serve":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.New(logger.Config{Level: "info"}).Error("Failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	// Validate only mode
	if *validate {
		log.Info("Configuration is valid")
		os.Exit(0)
	}

	log.Info("Starting lasertag-ir",
		logger.String("version", version),
		logger.String("build_time", buildTime),
		logger.String("config_file", *configFile))

	web.SetVersionInfo(version, commit, buildTime)

	if err := serve(cfg, log); err != nil {
		log.Error("Fatal error", logger.Error(err))
		os.Exit(1)
	}
}
