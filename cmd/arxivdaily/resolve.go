package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/arxivdaily/internal/engine"
	"github.com/yangwenmai/arxivdaily/internal/llmconfig"
)

var (
	resolveUserID int64
	resolveModule string
	resolveSLLM   int
	resolvePing   bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the effective LLM configuration for a user and module",
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().Int64Var(&resolveUserID, "user-id", 0, "User whose presets and settings apply (0 = defaults only)")
	resolveCmd.Flags().StringVar(&resolveModule, "module", "", "Module to resolve (default: all)")
	resolveCmd.Flags().IntVar(&resolveSLLM, "SLLM", 0, "Global backend selector (1, 2 or 3)")
	resolveCmd.Flags().BoolVar(&resolvePing, "ping", false, "Send a one-line prompt with the resolved configuration")
	rootCmd.AddCommand(resolveCmd)
}

type resolveOutput struct {
	Module string              `json:"module"`
	Config any                 `json:"config,omitempty"`
	Error  string              `json:"error,omitempty"`
	Probe  *engine.ProbeResult `json:"probe,omitempty"`
}

func runResolve(_ *cobra.Command, _ []string) error {
	modules := llmconfig.Modules()
	if resolveModule != "" {
		m, err := llmconfig.ParseModule(resolveModule)
		if err != nil {
			return err
		}
		modules = []llmconfig.Module{m}
	}

	st, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	resolver := newResolver(cfg, st)

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.HTTPTimeout)
	defer cancel()

	var failed bool
	out := make([]resolveOutput, 0, len(modules))
	for _, m := range modules {
		res := resolveOutput{Module: string(m)}
		ec, err := resolver.Resolve(ctx, llmconfig.Request{UserID: resolveUserID, Module: m, SLLM: resolveSLLM})
		if err != nil {
			failed = true
			res.Error = err.Error()
			out = append(out, res)
			continue
		}
		res.Config = ec.Masked()
		if resolvePing {
			p := engine.Probe(ctx, engine.NewChatClient(ec, engine.WithTimeout(cfg.HTTPTimeout)))
			failed = failed || !p.OK
			res.Probe = &p
		}
		out = append(out, res)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("one or more modules could not be resolved or reached")
	}
	return nil
}
