// Command cpextract converts competitive-programming contest PDFs into
// Markdown, one file per problem.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/cpextract/internal/config"
)

const usageText = `usage: cpextract [-config path] [-out dir] [-v] <command> [args]

commands:
  single <pdf>          convert one PDF
  batch <dir>           convert every PDF in a directory
  split <md>            split an aggregated Markdown file into problems
  index <problems dir>  write index.md for a directory of problem files
  validate <md>...      report LaTeX issues in Markdown files
  serve                 run the HTTP API
  setup [path]          write a default config file (config.json)
  config                print the effective configuration
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cpextract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "JSON config file (default config.json when present)")
	outDir := fs.String("out", "", "output directory or gs://bucket/prefix")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fmt.Fprintln(stderr, "\nflags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if *verbose {
		opts.Level = slog.LevelDebug
	}
	var log *slog.Logger
	if cmd == "serve" {
		log = slog.New(slog.NewJSONHandler(stdout, opts))
	} else {
		log = slog.New(slog.NewTextHandler(stderr, opts))
	}

	if cmd == "setup" {
		return runSetup(rest, stdout, log)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("load configuration", "error", err)
		return 1
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: log, stdout: stdout}
	switch cmd {
	case "single":
		return a.single(ctx, rest)
	case "batch":
		return a.batch(ctx, rest)
	case "split":
		return a.split(ctx, rest)
	case "index":
		return a.index(ctx, rest)
	case "validate":
		return a.validate(rest)
	case "serve":
		return a.serve(ctx)
	case "config":
		return a.printConfig()
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}
}
