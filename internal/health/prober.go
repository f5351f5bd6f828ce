package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/darkdragon/drift-api-router/internal/model"
)

const (
	DefaultMaxInFlight = 16
	maxBodySnippet     = 256
)

// Options controls one probing round.
type Options struct {
	Enabled bool
	Timeout time.Duration
	Port    int
}

// OptionsFromSettings derives probe options from the tier's nginx settings.
func OptionsFromSettings(settings model.GatewaySettings) Options {
	return Options{
		Enabled: settings.HealthcheckEnabled(),
		Timeout: settings.Timeout(),
		Port:    settings.Port(),
	}
}

// Result holds every probed target and the healthy subset, both keyed by deployable.
type Result struct {
	Targets map[string][]model.Target
	Healthy map[string][]model.Target
}

// Observer is notified of every probe outcome.
type Observer interface {
	ObserveProbe(deployable string, healthy bool, duration time.Duration)
}

// Prober checks target liveness with a plain HTTP GET on /.
type Prober struct {
	client      *http.Client
	log         *slog.Logger
	maxInFlight int64
	observer    Observer
}

func NewProber(logger *slog.Logger, maxInFlight int, observer Observer) *Prober {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Prober{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log:         logger,
		maxInFlight: int64(maxInFlight),
		observer:    observer,
	}
}

type probeJob struct {
	deployable string
	index      int
}

// Probe returns copies of targets with health recorded. Probes run concurrently up
// to the in-flight limit; one failure never affects another target. When ctx is
// cancelled the remaining targets are recorded unhealthy.
func (prober *Prober) Probe(ctx context.Context, targets map[string][]model.Target, opts Options) Result {
	probed := make(map[string][]model.Target, len(targets))
	for deployable, list := range targets {
		probed[deployable] = append([]model.Target(nil), list...)
	}

	if !opts.Enabled {
		prober.log.Info("not running health checks on targets, as configured")
		for _, list := range probed {
			for i := range list {
				list[i].Health = model.HealthUnchecked
				list[i].Healthy = true
			}
		}
		return Result{Targets: probed, Healthy: healthySubset(probed)}
	}

	sem := semaphore.NewWeighted(prober.maxInFlight)
	var group sync.WaitGroup
	for deployable, list := range probed {
		for i := range list {
			job := probeJob{deployable: deployable, index: i}
			if err := sem.Acquire(ctx, 1); err != nil {
				list[i].Health = "probe abandoned: " + err.Error()
				list[i].Healthy = false
				continue
			}
			group.Add(1)
			go func(target *model.Target) {
				defer group.Done()
				defer sem.Release(1)
				prober.probeOne(ctx, job.deployable, target, opts)
			}(&list[i])
		}
	}
	group.Wait()

	return Result{Targets: probed, Healthy: healthySubset(probed)}
}

func (prober *Prober) probeOne(ctx context.Context, deployable string, target *model.Target, opts Options) {
	start := time.Now()
	healthy, status := prober.check(ctx, target.PrivateAddress, opts)
	duration := time.Since(start)

	target.Healthy = healthy
	target.Health = status
	if !healthy {
		prober.log.Warn("target health check failed", "deployable", deployable, "address", target.PrivateAddress, "status", status)
	}
	if prober.observer != nil {
		prober.observer.ObserveProbe(deployable, healthy, duration)
	}
}

func (prober *Prober) check(ctx context.Context, address string, opts Options) (bool, string) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = model.DefaultHealthcheckTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/", net.JoinHostPort(address, strconv.Itoa(opts.Port)))
	request, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, err.Error()
	}

	resp, err := prober.client.Do(request)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false, fmt.Sprintf("%d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return true, model.HealthOK
}

func healthySubset(targets map[string][]model.Target) map[string][]model.Target {
	healthy := make(map[string][]model.Target, len(targets))
	for deployable, list := range targets {
		subset := []model.Target{}
		for _, target := range list {
			if target.Healthy {
				subset = append(subset, target)
			}
		}
		healthy[deployable] = subset
	}
	return healthy
}
