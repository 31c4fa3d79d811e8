package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/policydelta/policydelta/pkg/policy"
	"github.com/policydelta/policydelta/pkg/workflow"
)

func newWatchCommand() *cobra.Command {
	var (
		proposedPath string
		domain       string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recompute the what-if delta whenever the proposed file changes",
		Long: `Watch the proposed configuration file and recompute the what-if delta on
every change. Guard policy files from the configuration are watched and
reloaded too. Runs until interrupted.`,
		Example: `  policydelta watch --proposed desired.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			scope := pickDomain(domain, a.cfg.Domain)
			runDiff := func() {
				opCtx, err := a.orchestrator.Execute(ctx, workflow.Request{
					Target:       a.cfg.Target.Endpoint,
					Domain:       scope,
					ProposedPath: proposedPath,
					WhatIf:       true,
				})
				if err != nil {
					a.logger.Error().Err(err).Msg("What-if run failed")
				}
				if opCtx != nil {
					printOperation(opCtx)
				}
			}

			if len(a.cfg.Guard.PolicyPaths) > 0 {
				loader := policy.NewLoader(a.logger)
				reload := func(policies []policy.Policy) error {
					return a.guard.ReplacePolicies(ctx, policies)
				}
				if err := loader.Watch(ctx, a.cfg.Guard.PolicyPaths, reload); err != nil {
					a.logger.Warn().Err(err).Msg("Failed to watch guard policies")
				} else {
					defer func() { _ = loader.StopWatching() }()
				}
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()
			if err := watcher.Add(proposedPath); err != nil {
				return fmt.Errorf("failed to watch %s: %w", proposedPath, err)
			}

			a.logger.Info().Str("path", proposedPath).Msg("Watching proposed configuration")
			runDiff()

			return watchLoop(ctx, watcher, a.logger, runDiff)
		},
	}

	cmd.Flags().StringVarP(&proposedPath, "proposed", "p", "", "proposed configuration file")
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "domain scope (overrides config)")
	_ = cmd.MarkFlagRequired("proposed")

	return cmd
}

// watchLoop reruns fn on write/create events, debounced so editors that save
// in multiple writes trigger one run.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, logger zerolog.Logger, fn func()) error {
	const debounce = 500 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug().Str("file", event.Name).Msg("Proposed configuration changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, fn)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}
