package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yangwenmai/arxivdaily/internal/api"
	"github.com/yangwenmai/arxivdaily/internal/runner"
	"github.com/yangwenmai/arxivdaily/internal/scheduler"
)

var (
	servePort    string
	serveStubLLM bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with the run controller and scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default $PORT or 8080)")
	serveCmd.Flags().BoolVar(&serveStubLLM, "stub-llm", false, "Answer LLM test prompts locally instead of calling the configured endpoints")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	if servePort != "" {
		cfg.Port = servePort
	}

	st, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	resolver := newResolver(cfg, st)
	clients, err := newClients(cfg, serveStubLLM)
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(cfg, runOptions(cfg, resolver, clients)...)
	if err != nil {
		return err
	}
	runs := runner.NewController(orch, runner.NewStateStore(cfg.LogBufferLines), runner.WithHistory(st))
	sched := scheduler.New(runs, scheduler.NewFileStore(cfg.ScheduleFile), cfg.SchedulerInterval)

	srv := api.New(api.Deps{
		Store:      st,
		Runs:       runs,
		Schedule:   sched,
		Steps:      orch,
		Resolver:   resolver,
		Clients:    clients,
		CORSOrigin: cfg.CORSOrigin,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(gCtx)
		return nil
	})
	g.Go(func() error {
		slog.Info("arxivdaily server listening", "addr", "http://localhost:"+cfg.Port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if runs.Running() {
		slog.Info("stopping active pipeline run")
		runs.Cancel()
	}
	runs.Wait()
	return err
}
