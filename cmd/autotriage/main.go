// Package main is the entry point for the autotriage CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/autotriage/internal/config"
	"github.com/dshills/autotriage/internal/issue"
	"github.com/dshills/autotriage/internal/log"
	"github.com/dshills/autotriage/internal/report"
	"github.com/dshills/autotriage/internal/review"
	"github.com/dshills/autotriage/internal/triage"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	configPath string
	issueRef   string
	outputDir  string
	logLevel   string
	noAI       bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	levelName := opts.logLevel
	if levelName == "" {
		levelName = cfg.LogLevel()
	}
	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel(levelName)
	logger := log.New(logCfg)

	ref, err := issue.ParseRef(opts.issueRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var provider review.Provider
	if !opts.noAI {
		provider, err = review.NewProvider(cfg.AI())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v (use -no-ai to skip the assessment)\n", err)
			return 1
		}
	}

	// Ctrl-C cancels the run; the deferred harness stop still executes.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := triage.NewRunner(cfg, provider, logger)
	data, err := runner.Run(ctx, ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	outputDir := opts.outputDir
	if outputDir == "" {
		outputDir = cfg.Report().OutputDir
	}
	path, err := report.WriteFile(outputDir, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	color := report.ColorEnabled(cfg.Report().Color, os.Stdout.Fd())
	report.Summary(os.Stdout, data, color)
	fmt.Printf("report written to %s\n", path)
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.outputDir, "out", "", "Report output directory (overrides config)")
	flag.StringVar(&opts.outputDir, "o", "", "Report output directory (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.noAI, "no-ai", false, "Skip the AI assessment")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "autotriage - language-server-grounded GitHub issue triage\n\n")
		fmt.Fprintf(os.Stderr, "Usage: autotriage [options] <owner/repo#number | issue URL>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  autotriage microsoft/TypeScript#50139\n")
		fmt.Fprintf(os.Stderr, "  autotriage -c triage.json -o reports https://github.com/owner/repo/issues/7\n")
		fmt.Fprintf(os.Stderr, "  autotriage -no-ai owner/repo#7          Collect findings without an assessment\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("autotriage %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	opts.issueRef = flag.Arg(0)

	return opts
}
