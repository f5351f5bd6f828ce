package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Recorder exports pass and probe metrics. A nil Recorder records nothing.
type Recorder struct {
	passTotal       *prometheus.CounterVec
	passDuration    prometheus.Histogram
	probeTotal      *prometheus.CounterVec
	probeDuration   *prometheus.HistogramVec
	discoveryErrors *prometheus.CounterVec
	targets         *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewRecorder registers the collectors with registry. Collectors already
// registered by an earlier Recorder are reused.
func NewRecorder(registry *prometheus.Registry) *Recorder {
	recorder := &Recorder{
		passTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drift",
			Subsystem: "api_router",
			Name:      "passes_total",
			Help:      "Count of sync passes by outcome",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "drift",
			Subsystem: "api_router",
			Name:      "pass_duration_seconds",
			Help:      "Duration of complete sync passes",
			Buckets:   histogramBuckets,
		}),
		probeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drift",
			Subsystem: "api_router",
			Name:      "probes_total",
			Help:      "Count of target health probes",
		}, []string{"deployable", "result"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drift",
			Subsystem: "api_router",
			Name:      "probe_duration_seconds",
			Help:      "Latency distribution of target health probes",
			Buckets:   histogramBuckets,
		}, []string{"deployable"}),
		discoveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drift",
			Subsystem: "api_router",
			Name:      "discovery_exclusions_total",
			Help:      "Instances excluded from discovery by reason",
		}, []string{"reason"}),
		targets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "drift",
			Subsystem: "api_router",
			Name:      "targets",
			Help:      "Targets per deployable from the last pass",
		}, []string{"deployable", "state"}),
		gatherer: registry,
	}

	collectors := []prometheus.Collector{
		recorder.passTotal, recorder.passDuration, recorder.probeTotal,
		recorder.probeDuration, recorder.discoveryErrors, recorder.targets,
	}
	for _, collector := range collectors {
		err := registry.Register(collector)
		var are prometheus.AlreadyRegisteredError
		if err == nil || !errors.As(err, &are) {
			continue
		}
		switch existing := are.ExistingCollector.(type) {
		case *prometheus.CounterVec:
			if collector == recorder.passTotal {
				recorder.passTotal = existing
			} else if collector == recorder.probeTotal {
				recorder.probeTotal = existing
			} else {
				recorder.discoveryErrors = existing
			}
		case *prometheus.HistogramVec:
			recorder.probeDuration = existing
		case prometheus.Histogram:
			recorder.passDuration = existing
		case *prometheus.GaugeVec:
			recorder.targets = existing
		}
	}
	return recorder
}

func (recorder *Recorder) ObservePass(outcome string, duration time.Duration) {
	if recorder == nil {
		return
	}
	recorder.passTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
	recorder.passDuration.Observe(duration.Seconds())
}

// ObserveProbe satisfies health.Observer.
func (recorder *Recorder) ObserveProbe(deployable string, healthy bool, duration time.Duration) {
	if recorder == nil {
		return
	}
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	recorder.probeTotal.With(prometheus.Labels{"deployable": deployable, "result": result}).Inc()
	recorder.probeDuration.With(prometheus.Labels{"deployable": deployable}).Observe(duration.Seconds())
}

func (recorder *Recorder) ObserveExclusion(reason string) {
	if recorder == nil {
		return
	}
	recorder.discoveryErrors.With(prometheus.Labels{"reason": reason}).Inc()
}

// SetTargets replaces the target gauges with counts from the latest pass.
func (recorder *Recorder) SetTargets(total map[string]int, healthy map[string]int) {
	if recorder == nil {
		return
	}
	recorder.targets.Reset()
	for deployable, count := range total {
		recorder.targets.With(prometheus.Labels{"deployable": deployable, "state": "registered"}).Set(float64(count))
		recorder.targets.With(prometheus.Labels{"deployable": deployable, "state": "healthy"}).Set(float64(healthy[deployable]))
	}
}

func (recorder *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(recorder.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (recorder *Recorder) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
