package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/darkdragon/drift-api-router/internal/apply"
	"github.com/darkdragon/drift-api-router/internal/discovery"
	"github.com/darkdragon/drift-api-router/internal/health"
	"github.com/darkdragon/drift-api-router/internal/metrics"
	"github.com/darkdragon/drift-api-router/internal/model"
	"github.com/darkdragon/drift-api-router/internal/registry"
	"github.com/darkdragon/drift-api-router/internal/render"
	"github.com/darkdragon/drift-api-router/internal/routing"
	"github.com/darkdragon/drift-api-router/internal/store"
)

// SnapshotReader loads the tier configuration for one pass.
type SnapshotReader interface {
	Snapshot(ctx context.Context, tierName string) (store.Snapshot, error)
}

// Installer puts rendered artifacts into effect.
type Installer interface {
	Apply(ctx context.Context, artifact render.Artifact) (apply.Outcome, error)
}

// StatusPublisher shares the status document outside the host.
type StatusPublisher interface {
	Publish(ctx context.Context, status []byte, outcome string) error
}

// Components are the pass stages wired together by the controller.
// Metrics and Publisher are optional.
type Components struct {
	Reader     SnapshotReader
	Registry   registry.Registry
	Discoverer *discovery.Discoverer
	Prober     *health.Prober
	Builder    *routing.Builder
	Renderer   *render.Renderer
	Installer  Installer
	Metrics    *metrics.Recorder
	Publisher  StatusPublisher
}

// Controller runs sync passes for one tier, either once or on a fixed interval.
type Controller struct {
	tier       string
	components Components
	interval   time.Duration
	log        *slog.Logger
}

func NewController(tier string, components Components, interval time.Duration, logger *slog.Logger) *Controller {
	return &Controller{
		tier:       tier,
		components: components,
		interval:   interval,
		log:        logger,
	}
}

// Run executes a pass immediately and then on every tick. With runOnce it
// returns the result of the single pass.
func (controller *Controller) Run(ctx context.Context, runOnce bool) error {
	if runOnce {
		_, err := controller.Pass(ctx)
		return err
	}

	if _, err := controller.Pass(ctx); err != nil {
		controller.log.Error("initial sync failed", "error", err)
	}

	ticker := time.NewTicker(controller.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := controller.Pass(ctx); err != nil {
				controller.log.Error("sync failed", "error", err)
			}
		}
	}
}

// Pass performs one full discovery, probe, build, render and apply cycle.
func (controller *Controller) Pass(ctx context.Context) (apply.Outcome, error) {
	started := time.Now()
	logger := controller.log.With("tier", controller.tier, "pass_id", uuid.NewString())

	artifact, outcome, err := controller.syncOnce(ctx, logger)
	label := string(outcome)
	if err != nil {
		switch {
		case errors.Is(err, apply.ErrValidation):
			label = "invalid"
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			label = "cancelled"
		default:
			label = "failed"
		}
	}
	controller.components.Metrics.ObservePass(label, time.Since(started))

	if err == nil && controller.components.Publisher != nil {
		if pubErr := controller.components.Publisher.Publish(ctx, artifact.Status, label); pubErr != nil {
			logger.Warn("status publish failed", "error", pubErr)
		}
	}

	if err != nil {
		return outcome, err
	}
	logger.Info("sync pass complete", "outcome", outcome, "duration", time.Since(started))
	return outcome, nil
}

func (controller *Controller) syncOnce(ctx context.Context, logger *slog.Logger) (render.Artifact, apply.Outcome, error) {
	components := controller.components

	snapshot, err := components.Reader.Snapshot(ctx, controller.tier)
	if err != nil {
		return render.Artifact{}, "", fmt.Errorf("read tier config: %w", err)
	}

	instances, err := components.Registry.ListRunningInstances(ctx, snapshot.Tier)
	if err != nil {
		return render.Artifact{}, "", fmt.Errorf("list instances: %w", err)
	}
	ids := make([]string, 0, len(instances))
	for _, instance := range instances {
		ids = append(ids, instance.ID)
	}
	terminating, err := components.Registry.ListTerminating(ctx, snapshot.Tier, ids)
	if err != nil {
		return render.Artifact{}, "", fmt.Errorf("list terminating instances: %w", err)
	}

	targets, discoveryErrors := components.Discoverer.Discover(instances, terminating, snapshot.Deployables)
	for _, discoverErr := range discoveryErrors {
		logger.Warn("instance excluded", "error", discoverErr)
		components.Metrics.ObserveExclusion(exclusionReason(discoverErr))
	}

	probed := components.Prober.Probe(ctx, targets, health.OptionsFromSettings(snapshot.Settings))
	// Abandoned probes read as unhealthy; never render or apply from them.
	if err := ctx.Err(); err != nil {
		return render.Artifact{}, "", fmt.Errorf("pass cancelled: %w", err)
	}
	components.Metrics.SetTargets(countTargets(probed.Targets), countTargets(probed.Healthy))

	table, buildErrors := components.Builder.Build(routing.Input{
		Config:  snapshot,
		Targets: probed.Targets,
		Healthy: probed.Healthy,
	})
	for _, buildErr := range buildErrors {
		logger.Warn("route skipped", "error", buildErr)
	}

	artifact, err := components.Renderer.Render(table)
	if err != nil {
		return render.Artifact{}, "", err
	}

	outcome, err := components.Installer.Apply(ctx, artifact)
	if err != nil {
		return artifact, outcome, err
	}
	return artifact, outcome, nil
}

func exclusionReason(err error) string {
	switch {
	case errors.Is(err, discovery.ErrPartialTags):
		return "partial_tags"
	case errors.Is(err, discovery.ErrBadPort):
		return "bad_port"
	case errors.Is(err, discovery.ErrUnknownDeployable):
		return "unknown_deployable"
	default:
		return "other"
	}
}

func countTargets(targets map[string][]model.Target) map[string]int {
	counts := make(map[string]int, len(targets))
	for deployable, list := range targets {
		counts[deployable] = len(list)
	}
	return counts
}
