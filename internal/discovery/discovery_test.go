package discovery

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/darkdragon/drift-api-router/internal/model"
	"github.com/darkdragon/drift-api-router/internal/registry"
)

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestDiscoverer(t *testing.T) *Discoverer {
	return NewDiscoverer(slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func apiInstance(id, status, target, port string) registry.Instance {
	tags := map[string]string{TagName: "name-" + id}
	if status != "" {
		tags[TagStatus] = status
	}
	if target != "" {
		tags[TagTarget] = target
	}
	if port != "" {
		tags[TagPort] = port
	}
	return registry.Instance{ID: id, Tags: tags, PrivateAddress: "10.0.0." + id}
}

var deployables = []model.Deployable{
	{Name: "svc-a", Tier: "T1", IsActive: true},
	{Name: "svc-b", Tier: "T1", IsActive: true},
}

func TestDiscoverOrdersTargetsByInstance(t *testing.T) {
	discoverer := newTestDiscoverer(t)

	instances := []registry.Instance{
		apiInstance("3", "online", "svc-a", "8080"),
		apiInstance("1", "online2", "svc-a", "8080"),
		apiInstance("2", "online", "svc-b", "9000"),
	}

	targets, errs := discoverer.Discover(instances, nil, deployables)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(targets["svc-a"]) != 2 {
		t.Fatalf("expected 2 svc-a targets, got %d", len(targets["svc-a"]))
	}
	if targets["svc-a"][0].InstanceID != "1" || targets["svc-a"][1].InstanceID != "3" {
		t.Fatalf("unexpected target order: %+v", targets["svc-a"])
	}
	if got := targets["svc-b"][0].Address(); got != "10.0.0.2:9000" {
		t.Fatalf("expected 10.0.0.2:9000, got %s", got)
	}
}

func TestDiscoverExclusions(t *testing.T) {
	discoverer := newTestDiscoverer(t)

	instances := []registry.Instance{
		{ID: "untagged", Tags: map[string]string{TagName: "bastion"}},
		apiInstance("1", "online", "", "8080"),
		apiInstance("2", "online", "svc-a", "http"),
		apiInstance("3", "online", "svc-zz", "8080"),
		apiInstance("4", "offline", "svc-a", "8080"),
		apiInstance("5", "online", "svc-a", ""),
	}

	targets, errs := discoverer.Discover(instances, nil, deployables)
	if len(targets) != 0 {
		t.Fatalf("expected no targets, got %+v", targets)
	}
	if len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(errs), errs)
	}
	if !errors.Is(errs[0], ErrPartialTags) {
		t.Fatalf("expected partial tags error, got %v", errs[0])
	}
	if !errors.Is(errs[1], ErrBadPort) {
		t.Fatalf("expected bad port error, got %v", errs[1])
	}
	if !errors.Is(errs[2], ErrUnknownDeployable) {
		t.Fatalf("expected unknown deployable error, got %v", errs[2])
	}
	if !errors.Is(errs[3], ErrPartialTags) {
		t.Fatalf("expected missing port to be partial tags, got %v", errs[3])
	}
}

func TestDiscoverKeepsDrainingTargets(t *testing.T) {
	discoverer := newTestDiscoverer(t)

	instances := []registry.Instance{
		apiInstance("1", "online", "svc-a", "8080"),
		apiInstance("2", "online", "svc-a", "8080"),
	}
	terminating := map[string]struct{}{"2": {}}

	targets, errs := discoverer.Discover(instances, terminating, deployables)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(targets["svc-a"]) != 2 {
		t.Fatalf("expected draining target to be kept, got %+v", targets["svc-a"])
	}
	if targets["svc-a"][0].Draining || !targets["svc-a"][1].Draining {
		t.Fatalf("expected only instance 2 draining: %+v", targets["svc-a"])
	}
}

func TestParseTagsRejectsSignedPort(t *testing.T) {
	_, declared, err := parseTags(apiInstance("1", "online", "svc-a", "+80"))
	if !declared || !errors.Is(err, ErrBadPort) {
		t.Fatalf("expected bad port for signed value, got declared=%v err=%v", declared, err)
	}
}
