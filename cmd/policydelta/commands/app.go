package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/compare"
	"github.com/policydelta/policydelta/pkg/config"
	"github.com/policydelta/policydelta/pkg/filter"
	"github.com/policydelta/policydelta/pkg/hierarchy"
	"github.com/policydelta/policydelta/pkg/policy"
	"github.com/policydelta/policydelta/pkg/remote"
	"github.com/policydelta/policydelta/pkg/store"
	"github.com/policydelta/policydelta/pkg/telemetry"
	"github.com/policydelta/policydelta/pkg/workflow"
)

// app holds the wired collaborators for one CLI invocation.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	client       *remote.Client
	orchestrator *workflow.Orchestrator
	guard        *policy.Guard
	history      *store.HistoryStore
	tracer       *telemetry.Tracer
}

// newApp loads the configuration and constructs the full collaborator graph.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.DefaultConfig()
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	metrics, err := telemetry.NewMetrics(cfg.Telemetry.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics: %w", err)
	}
	if cfg.Telemetry.Metrics.Enabled {
		if err := metrics.StartMetricsServer(logger); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	tracer, err := telemetry.NewTracer(cfg.Telemetry.Tracing,
		cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Telemetry.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to build tracer: %w", err)
	}

	client, err := remote.NewClient(remote.ClientConfig{
		Endpoint:    cfg.Target.Endpoint,
		Username:    cfg.Target.Username,
		Password:    cfg.Target.Password,
		Timeout:     cfg.Target.Timeout.Std(),
		SchemaPaths: cfg.Target.SchemaPaths,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build remote client: %w", err)
	}

	var rules *filter.RuleSet
	if cfg.Filter.RulesPath != "" {
		rules, err = filter.LoadRuleSet(cfg.Filter.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load filter rules: %w", err)
		}
	}
	engine := filter.NewEngine(rules, logger)

	artifacts, err := store.NewArtifactStore(cfg.Artifacts.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	var history *store.HistoryStore
	if cfg.History.Path != "" {
		history, err = store.NewHistoryStore(store.HistoryConfig{Path: cfg.History.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		if err := history.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to init history store: %w", err)
		}
		if err := history.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate history store: %w", err)
		}
	}

	guard, err := policy.NewGuard(policy.Mode(cfg.Guard.Mode), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy guard: %w", err)
	}
	if len(cfg.Guard.PolicyPaths) > 0 {
		if err := guard.LoadPolicies(ctx, cfg.Guard.PolicyPaths); err != nil {
			return nil, fmt.Errorf("failed to load guard policies: %w", err)
		}
	}

	orchestrator, err := workflow.NewOrchestrator(workflow.Config{
		Exporter:   client,
		Applier:    client,
		Schemas:    client,
		Comparator: compare.NewComparator(engine, client, logger),
		Builder:    hierarchy.NewBuilder(logger),
		Artifacts:  artifacts,
		History:    history,
		Guard:      guard,
		Metrics:    metrics,
		Tracer:     tracer,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}

	return &app{
		cfg:          cfg,
		logger:       logger,
		client:       client,
		orchestrator: orchestrator,
		guard:        guard,
		history:      history,
		tracer:       tracer,
	}, nil
}

// Close flushes telemetry and closes the history store.
func (a *app) Close(ctx context.Context) {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to shut down tracer")
	}
}
