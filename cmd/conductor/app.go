package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/conductor/internal/api"
	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/internal/decompose"
	"github.com/ShayCichocki/conductor/internal/lifecycle"
	"github.com/ShayCichocki/conductor/internal/logging"
	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/internal/registry"
	"github.com/ShayCichocki/conductor/internal/router"
	"github.com/ShayCichocki/conductor/internal/state"
	"github.com/ShayCichocki/conductor/internal/tracing"
)

// eventBuffer is the emitter's channel size.
const eventBuffer = 64

// app holds every wired component for one command invocation.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *registry.Registry
	router     *router.Router
	decomposer *decompose.Decomposer
	executor   *lifecycle.DefaultExecutor
	manager    *lifecycle.Manager
	journal    *state.DB
	emitter    *orchestrator.EventEmitter
	orch       *orchestrator.Orchestrator

	closers []func() error
}

// appOptions adjusts wiring per command.
type appOptions struct {
	// watch forces hot reload on regardless of agents.watch.
	watch bool
	// events creates an emitter the command will drain.
	events bool
}

// loadConfig applies --config, --agents, and --verbose.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if agentsDir != "" {
		cfg.Agents.Dir = agentsDir
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newApp wires the configured components.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	a.closers = append(a.closers, closeLog)

	shutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	a.closers = append(a.closers, func() error { return shutdown(context.Background()) })

	if opts.events {
		a.emitter = orchestrator.NewEventEmitter(eventBuffer, logger)
	}

	a.registry = registry.New(registry.Options{Logger: logger, Debounce: cfg.Agents.Debounce})
	a.closers = append(a.closers, a.registry.Close)
	if a.emitter != nil {
		orchestrator.WatchRegistry(a.registry, a.emitter)
	}

	classifier, err := a.classifier()
	if err != nil {
		return nil, err
	}

	a.router = router.New(a.registry, router.Options{
		AgentsDir:           cfg.Agents.Dir,
		Watch:               cfg.Agents.Watch || opts.watch,
		ConfidenceThreshold: cfg.Router.ConfidenceThreshold,
		Classifier:          classifier,
		FallbackAgent:       cfg.Router.FallbackAgent,
		Logger:              logger,
	})
	a.decomposer = decompose.New(a.router, logger)

	if cfg.Journal.Path != "" {
		db, err := state.OpenJournal(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = db
		a.closers = append(a.closers, db.Close)
	}

	var recorder state.RunRecorder
	if a.journal != nil {
		recorder = a.journal
	}

	a.executor = lifecycle.NewDefaultExecutor(cfg.Lifecycle.MockDelay)
	a.manager = lifecycle.NewManager(a.executor, lifecycle.Options{
		DefaultTimeout: cfg.Lifecycle.DefaultTimeout,
		Logger:         logger,
		OnTransition:   orchestrator.TransitionHook(recorder, a.emitter, logger),
	})

	a.orch = orchestrator.New(orchestrator.RequiredConfig{
		Agents:     a.registry,
		Decomposer: a.decomposer,
		Manager:    a.manager,
	},
		orchestrator.WithLogger(logger),
		orchestrator.WithEmitter(a.emitter),
		orchestrator.WithWaitTimeout(cfg.Lifecycle.WaitTimeout),
	)

	return a, nil
}

// classifier returns the configured level-2 classifier; nil means the rules.
func (a *app) classifier() (router.Classifier, error) {
	if a.cfg.Router.Classifier != "llm" {
		return nil, nil
	}

	llm := a.cfg.LLM
	clientCfg := api.ClientConfig{
		Model:              anthropic.Model(llm.Model),
		UseAWSBedrock:      llm.UseBedrock,
		AWSRegion:          llm.AWSRegion,
		AWSProfile:         llm.AWSProfile,
		RequestsPerSecond:  llm.RequestsPerSecond,
		Burst:              llm.Burst,
		BreakerMaxFailures: llm.BreakerMaxFailures,
		BreakerTimeout:     llm.BreakerTimeout,
		Logger:             a.logger,
	}
	if config.NeedsAPIKey(a.cfg) {
		key, _, err := config.ResolveAPIKey(a.cfg)
		if err != nil {
			return nil, err
		}
		clientCfg.APIKey = key
	}

	client, err := api.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}

	return router.NewLLMClassifier(client, a.registry, router.LLMOptions{
		CacheTTL:      llm.CacheTTL,
		FallbackAgent: a.cfg.Router.FallbackAgent,
		Logger:        a.logger,
	}), nil
}

// discover loads the agents directory once.
func (a *app) discover(ctx context.Context, watch bool) (*registry.Snapshot, error) {
	return a.registry.Discover(ctx, a.cfg.Agents.Dir, registry.DiscoverOptions{Watch: watch})
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() error {
	a.emitter.Close()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
