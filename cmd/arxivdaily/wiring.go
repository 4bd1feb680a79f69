package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yangwenmai/arxivdaily/internal/config"
	"github.com/yangwenmai/arxivdaily/internal/engine"
	"github.com/yangwenmai/arxivdaily/internal/llmconfig"
	"github.com/yangwenmai/arxivdaily/internal/model"
	"github.com/yangwenmai/arxivdaily/internal/pipeline"
	"github.com/yangwenmai/arxivdaily/internal/store"
)

// newRegistry builds the step catalog and applies the optional overrides file.
func newRegistry(c config.Config) (*pipeline.Registry, error) {
	reg := pipeline.NewRegistry(pipeline.Options{PythonBin: c.PythonBin, ControllerDir: c.ControllerDir})
	if c.PipelinesFile == "" {
		return reg, nil
	}
	ov, err := pipeline.LoadOverrides(c.PipelinesFile)
	if err != nil {
		return nil, err
	}
	if err := ov.Apply(reg); err != nil {
		return nil, fmt.Errorf("apply %s: %w", c.PipelinesFile, err)
	}
	slog.Info("pipeline overrides applied", "file", c.PipelinesFile, "pipelines", reg.Pipelines())
	return reg, nil
}

func newOrchestrator(c config.Config, opts ...pipeline.OrchestratorOption) (*pipeline.Orchestrator, error) {
	reg, err := newRegistry(c)
	if err != nil {
		return nil, err
	}
	opts = append([]pipeline.OrchestratorOption{pipeline.WithWorkDir(c.StepWorkDir)}, opts...)
	return pipeline.NewOrchestrator(reg, pipeline.ExecRunner{Grace: c.StopGrace}, c.DataRoot, opts...), nil
}

// runOptions makes every run resolve its LLM steps against the user's settings
// first, and probe each endpoint when LLM_PREFLIGHT_PROBE is set.
func runOptions(c config.Config, resolver *llmconfig.Resolver, clients func(model.EffectiveLLMConfig) engine.Completer) []pipeline.OrchestratorOption {
	opts := []pipeline.OrchestratorOption{pipeline.WithResolver(resolver)}
	if c.PreflightProbe {
		opts = append(opts, pipeline.WithConfigCheck(probeCheck(clients)))
	}
	return opts
}

func probeCheck(clients func(model.EffectiveLLMConfig) engine.Completer) pipeline.ConfigCheck {
	return func(ctx context.Context, step pipeline.Step, cfg model.EffectiveLLMConfig) error {
		res := engine.Probe(ctx, clients(cfg))
		if !res.OK {
			return fmt.Errorf("%s (%s) did not answer: %s", cfg.BaseURL, cfg.Model, res.Error)
		}
		slog.Info("llm endpoint reachable", "step", step.Name, "model", cfg.Model, "latency_ms", res.LatencyMS)
		return nil
	}
}

// openStore opens the SQLite database. The returned func closes it.
func openStore(c config.Config) (*store.Store, func(), error) {
	db, err := store.OpenSQLite(c.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	s, err := store.New(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	return s, func() { db.Close() }, nil
}

func newResolver(c config.Config, s *store.Store) *llmconfig.Resolver {
	return llmconfig.NewResolver(s, s, llmconfig.NewDefaults(c))
}

func newClients(c config.Config, stub bool) (func(model.EffectiveLLMConfig) engine.Completer, error) {
	if stub {
		slog.Warn("llm calls are stubbed; probes answer without contacting any endpoint")
		s := &engine.StubClient{}
		return func(model.EffectiveLLMConfig) engine.Completer { return s }, nil
	}
	cache, err := engine.NewClientCache(engine.DefaultCacheSize, c.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("client cache: %w", err)
	}
	return func(cfg model.EffectiveLLMConfig) engine.Completer { return cache.Get(cfg) }, nil
}
