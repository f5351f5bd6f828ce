package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/darkdragon/drift-api-router/internal/apply"
	"github.com/darkdragon/drift-api-router/internal/config"
	"github.com/darkdragon/drift-api-router/internal/controller"
	"github.com/darkdragon/drift-api-router/internal/discovery"
	"github.com/darkdragon/drift-api-router/internal/docker"
	"github.com/darkdragon/drift-api-router/internal/health"
	"github.com/darkdragon/drift-api-router/internal/metrics"
	"github.com/darkdragon/drift-api-router/internal/publish"
	"github.com/darkdragon/drift-api-router/internal/registry"
	"github.com/darkdragon/drift-api-router/internal/registry/ec2"
	"github.com/darkdragon/drift-api-router/internal/render"
	"github.com/darkdragon/drift-api-router/internal/routing"
	"github.com/darkdragon/drift-api-router/internal/store"
	"github.com/darkdragon/drift-api-router/internal/store/postgres"
)

type wiring struct {
	components controller.Components
	closers    []func()
}

func (w *wiring) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
}

func wire(ctx context.Context, cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder) (*wiring, error) {
	w := &wiring{}

	reader, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	w.closers = append(w.closers, closeStore)

	var dockerAdapter *docker.Adapter
	if cfg.Registry == config.RegistryDocker || cfg.Nginx.ReloadContainer != "" {
		dockerAdapter, err = docker.NewAdapter(cfg.Docker)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("initialize Docker adapter: %w", err)
		}
		w.closers = append(w.closers, func() { _ = dockerAdapter.Close() })
	}

	var reg registry.Registry = dockerAdapter
	if cfg.Registry == config.RegistryEC2 {
		ec2Registry, err := ec2.New()
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("initialize EC2 registry: %w", err)
		}
		reg = ec2Registry
	}

	renderer, err := render.NewRenderer(render.Platform{
		PID:  cfg.Nginx.PIDPath,
		Log:  cfg.Nginx.LogDir,
		Root: cfg.Nginx.RootDir,
	})
	if err != nil {
		w.Close()
		return nil, err
	}

	var reloader apply.Reloader = apply.CommandReloader{Args: apply.SplitCommand(cfg.Nginx.ReloadCmd)}
	if cfg.Nginx.ReloadContainer != "" {
		reloader = apply.ContainerReloader{Signaler: dockerAdapter, Container: cfg.Nginx.ReloadContainer}
	}
	applier := apply.NewApplier(apply.Options{
		ConfigPath: cfg.Nginx.ConfigPath,
		StatusPath: cfg.Nginx.StatusPath,
		DryRun:     cfg.Controller.DryRun,
	}, apply.CommandValidator{Args: apply.SplitCommand(cfg.Nginx.ValidateCmd)}, reloader, logger)

	w.components = controller.Components{
		Reader:     reader,
		Registry:   reg,
		Discoverer: discovery.NewDiscoverer(logger),
		Prober:     health.NewProber(logger, cfg.Probe.Concurrency, recorder),
		Builder:    routing.NewBuilder(logger),
		Renderer:   renderer,
		Installer:  applier,
		Metrics:    recorder,
	}

	if cfg.RedisURL != "" {
		publisher, err := publish.NewRedisPublisher(cfg.RedisURL, cfg.Tier, logger)
		if err != nil {
			logger.Warn("status publishing disabled", "error", err)
		} else {
			w.components.Publisher = publisher
			w.closers = append(w.closers, publisher.Close)
		}
	}
	return w, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Reader, func(), error) {
	if cfg.Backend == config.StorePostgres {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect config store: %w", err)
		}
		return store.NewReader(postgres.New(pool)), pool.Close, nil
	}

	memory, err := store.LoadFile(cfg.File)
	if err != nil {
		return nil, nil, fmt.Errorf("load config store: %w", err)
	}
	return store.NewReader(memory), func() {}, nil
}

// printer stands in for the applier when the config is only displayed.
type printer struct {
	out io.Writer
}

func (p printer) Apply(ctx context.Context, artifact render.Artifact) (apply.Outcome, error) {
	if _, err := p.out.Write(artifact.Config); err != nil {
		return "", err
	}
	return apply.OutcomeDryRun, nil
}
