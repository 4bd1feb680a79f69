package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/arxivdaily/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline [name] [--date YYYY-MM-DD] [--SLLM 1|2|3] [--user-id N] [--Zo T|F] [args...]",
	Short: "Run a pipeline in the foreground",
	Long: `Run a pipeline step by step, skipping steps whose output for the run date
already exists. Unrecognized arguments are passed to the first step only.
The process exits with the failing step's exit code.`,
	DisableFlagParsing: true,
	RunE:               runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	name := "default"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return cmd.Help()
		}
	}

	rc, extra, err := pipeline.ParseArgs(args, os.Getenv, time.Now())
	if err != nil {
		return err
	}
	st, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	clients, err := newClients(cfg, false)
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(cfg, runOptions(cfg, newResolver(cfg, st), clients)...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = orch.Run(ctx, pipeline.Invocation{
		Pipeline:  name,
		Context:   rc,
		ExtraArgs: extra,
		Output:    os.Stdout,
	})
	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) && stepErr.ExitCode > 0 {
		cmd.PrintErrln("Error:", err)
		closeDB()
		os.Exit(stepErr.ExitCode)
	}
	return err
}
