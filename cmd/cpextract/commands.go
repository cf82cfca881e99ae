package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dgallion1/cpextract/internal/api"
	"github.com/dgallion1/cpextract/internal/config"
	"github.com/dgallion1/cpextract/internal/output"
	"github.com/dgallion1/cpextract/internal/pipeline"
	"github.com/dgallion1/cpextract/internal/problem"
	"github.com/dgallion1/cpextract/internal/recognize"
	"github.com/dgallion1/cpextract/internal/render"
)

type app struct {
	cfg    config.Config
	log    *slog.Logger
	stdout io.Writer
}

// stack is everything a conversion needs. close releases it.
type stack struct {
	runner *pipeline.Runner
	llm    *recognize.Instrumented
	sink   output.Sink
}

func (s *stack) close(log *slog.Logger) {
	if err := s.llm.Close(); err != nil {
		log.Warn("close recognition client", "error", err)
	}
	if err := s.sink.Close(); err != nil {
		log.Warn("close output", "error", err)
	}
}

func (a *app) build(ctx context.Context) (*stack, error) {
	if err := a.cfg.ValidateRecognition(); err != nil {
		return nil, err
	}
	client, err := recognize.New(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	llm := &recognize.Instrumented{Client: client, Stats: recognize.NewLLMStats(time.Hour)}

	sink, err := output.Open(ctx, a.cfg.OutputDir)
	if err != nil {
		client.Close()
		return nil, err
	}
	raster := render.New(a.cfg.DPI, a.cfg.RenderWorkers, a.log)
	runner, err := pipeline.NewRunner(a.cfg, raster, llm, sink, a.log)
	if err != nil {
		client.Close()
		sink.Close()
		return nil, err
	}
	a.log.Info("recognition client ready", "provider", a.cfg.Provider, "model", client.Model(), "output", a.cfg.OutputDir)
	return &stack{runner: runner, llm: llm, sink: sink}, nil
}

func (a *app) single(ctx context.Context, args []string) int {
	if len(args) != 1 {
		a.log.Error("usage: cpextract single <pdf>")
		return 2
	}
	st, err := a.build(ctx)
	if err != nil {
		a.log.Error("setup failed", "error", err)
		return 1
	}
	defer st.close(a.log)

	res, err := st.runner.ProcessFile(ctx, args[0])
	a.report(res, err)
	a.log.Info("llm stats", "stats", st.llm.Stats.Snapshot())
	if err != nil {
		return 1
	}
	return 0
}

func (a *app) batch(ctx context.Context, args []string) int {
	if len(args) != 1 {
		a.log.Error("usage: cpextract batch <dir>")
		return 2
	}
	st, err := a.build(ctx)
	if err != nil {
		a.log.Error("setup failed", "error", err)
		return 1
	}
	defer st.close(a.log)

	res, err := st.runner.ProcessBatch(ctx, args[0])
	if err != nil {
		a.log.Error("batch failed", "error", err)
		return 1
	}
	for _, f := range res.Files {
		a.report(f.Result, f.Err)
	}
	fmt.Fprintf(a.stdout, "\n%d succeeded, %d failed (%d unreadable, %d recognition failures) in %s\n",
		res.Succeeded(), len(res.Failed()),
		res.Count(render.ErrSourceUnreadable), res.Count(recognize.ErrRecognitionFailed),
		res.Duration.Round(time.Millisecond))
	a.log.Info("llm stats", "stats", st.llm.Stats.Snapshot())
	return exitCode(res)
}

// exitCode is 1 when any file in the batch failed.
func exitCode(res *pipeline.BatchResult) int {
	if len(res.Failed()) > 0 {
		return 1
	}
	return 0
}

func (a *app) report(res *pipeline.FileResult, err error) {
	if res == nil {
		return
	}
	if err != nil {
		fmt.Fprintf(a.stdout, "FAIL %s: %v\n", res.Source, err)
		return
	}
	fmt.Fprintf(a.stdout, "OK   %s: %d pages, %d problems, %d latex issues (%s)\n",
		res.Source, res.Pages, len(res.Problems), len(res.Issues), res.Duration.Round(time.Millisecond))
	if res.Document != "" {
		fmt.Fprintf(a.stdout, "     document: %s\n", res.Document)
	}
	if res.Index != "" {
		fmt.Fprintf(a.stdout, "     index:    %s\n", res.Index)
	}
	for _, is := range res.Issues {
		fmt.Fprintf(a.stdout, "     %s\n", is)
	}
}

func (a *app) splitter() (*problem.Splitter, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	return pipeline.NewSplitter(a.cfg, a.log)
}

func (a *app) split(ctx context.Context, args []string) int {
	if len(args) != 1 {
		a.log.Error("usage: cpextract split <md>")
		return 2
	}
	splitter, err := a.splitter()
	if err != nil {
		a.log.Error("invalid configuration", "error", err)
		return 1
	}
	sink, err := output.Open(ctx, a.cfg.OutputDir)
	if err != nil {
		a.log.Error("open output", "error", err)
		return 1
	}
	defer sink.Close()

	res, err := pipeline.SplitMarkdown(ctx, args[0], splitter, sink, a.cfg.GenerateIndex)
	if err != nil {
		a.log.Error("split failed", "source", args[0], "error", err)
		return 1
	}
	for i, p := range res.Problems {
		fmt.Fprintf(a.stdout, "%-4s %-40s %s\n", p.ID, p.Title, res.Files[i])
	}
	fmt.Fprint(a.stdout, "\n"+res.Stats.Summary())
	return 0
}

func (a *app) index(ctx context.Context, args []string) int {
	if len(args) != 1 {
		a.log.Error("usage: cpextract index <problems dir>")
		return 2
	}
	splitter, err := a.splitter()
	if err != nil {
		a.log.Error("invalid configuration", "error", err)
		return 1
	}

	dir := filepath.Clean(args[0])
	parent := filepath.Dir(dir)
	entries, err := pipeline.IndexDir(dir, parent, splitter)
	if err != nil {
		a.log.Error("index failed", "dir", dir, "error", err)
		return 1
	}

	sink, err := output.NewLocalSink(parent)
	if err != nil {
		a.log.Error("open output", "error", err)
		return 1
	}
	title := filepath.Base(parent)
	if title == "." || title == string(filepath.Separator) {
		title = ""
	}
	if err := sink.Write(ctx, "index.md", []byte(problem.Index(title, entries))); err != nil {
		a.log.Error("write index", "error", err)
		return 1
	}
	fmt.Fprintf(a.stdout, "indexed %d problems: %s\n", len(entries), sink.Location("index.md"))
	return 0
}

// validate prints issues but only fails when the file cannot be read.
func (a *app) validate(args []string) int {
	if len(args) == 0 {
		a.log.Error("usage: cpextract validate <md>...")
		return 2
	}
	code := 0
	for _, path := range args {
		issues, err := pipeline.ValidateMarkdown(path)
		if err != nil {
			a.log.Error("validate failed", "source", path, "error", err)
			code = 1
			continue
		}
		if len(issues) == 0 {
			fmt.Fprintf(a.stdout, "%s: ok\n", path)
			continue
		}
		for _, is := range issues {
			fmt.Fprintf(a.stdout, "%s:%s\n", path, is)
		}
	}
	return code
}

func (a *app) serve(ctx context.Context) int {
	if err := a.cfg.ValidateServer(); err != nil {
		a.log.Error("invalid configuration", "error", err)
		return 1
	}
	st, err := a.build(ctx)
	if err != nil {
		a.log.Error("setup failed", "error", err)
		return 1
	}
	defer st.close(a.log)
	splitter, err := pipeline.NewSplitter(a.cfg, a.log)
	if err != nil {
		a.log.Error("invalid configuration", "error", err)
		return 1
	}

	orch := pipeline.NewOrchestrator(st.runner, a.cfg.QueueSize, a.cfg.FileWorkers, a.cfg.JobTTL, a.log)
	orch.Start(context.WithoutCancel(ctx))

	srv := api.NewServer(orch, splitter, st.llm, a.log, a.cfg)
	httpServer := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		a.log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
	}()

	a.log.Info("starting cpextract", "port", a.cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Error("server error", "error", err)
		return 1
	}
	<-done
	return 0
}

func (a *app) printConfig() int {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.cfg.ToFile(false)); err != nil {
		a.log.Error("print configuration", "error", err)
		return 1
	}
	if err := a.cfg.Validate(); err != nil {
		a.log.Warn("configuration is invalid", "error", err)
	}
	return 0
}

func runSetup(args []string, stdout io.Writer, log *slog.Logger) int {
	path := "config.json"
	if len(args) > 0 {
		path = args[0]
	}
	if err := config.Default().WriteFile(path, true); err != nil {
		log.Error("setup failed", "error", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote %s; set api_settings.api_key or CPX_API_KEY before converting\n", path)
	return 0
}
