package routing

import (
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/darkdragon/drift-api-router/internal/model"
	"github.com/darkdragon/drift-api-router/internal/store"
)

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestBuilder(t *testing.T) *Builder {
	return NewBuilder(slog.New(slog.NewTextHandler(testWriter{t}, nil)))
}

func baseSnapshot() store.Snapshot {
	return store.Snapshot{
		Tier: model.Tier{Name: "T1", AWS: &model.AWSSettings{Region: "eu-west-1"}},
		Deployables: []model.Deployable{
			{Name: "svc-a", Tier: "T1", IsActive: true},
			{Name: "svc-b", Tier: "T1", IsActive: true},
		},
		Routes: []model.Route{
			{Tier: "T1", DeployableName: "svc-b"},
			{Tier: "T1", DeployableName: "svc-a", RequiresAPIKey: true},
		},
	}
}

func TestBuildEntryWithHealthyTarget(t *testing.T) {
	target := model.Target{InstanceID: "i-1", PrivateAddress: "10.0.0.1", Port: 8080, Status: "online", Deployable: "svc-a", Healthy: true, Health: model.HealthOK}

	table, warnings := newTestBuilder(t).Build(Input{
		Config:  baseSnapshot(),
		Targets: map[string][]model.Target{"svc-a": {target}},
		Healthy: map[string][]model.Target{"svc-a": {target}},
	})
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if len(table.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(table.Entries))
	}

	svcA := table.Entries[0]
	if svcA.Name() != "svc-a" || !svcA.RequiresAPIKey() {
		t.Fatalf("unexpected first entry: %+v", svcA)
	}
	if len(svcA.HealthyTargets) != 1 || svcA.HealthyTargets[0].Address() != "10.0.0.1:8080" {
		t.Fatalf("unexpected healthy targets: %+v", svcA.HealthyTargets)
	}
	if svcA.Route.API != "svc-a" {
		t.Fatalf("expected api prefix to default to deployable name, got %q", svcA.Route.API)
	}

	svcB := table.Entries[1]
	if svcB.Targets == nil || svcB.HealthyTargets == nil || len(svcB.Targets) != 0 || len(svcB.HealthyTargets) != 0 {
		t.Fatalf("expected empty non-nil target lists for svc-b, got %+v", svcB)
	}
}

func TestBuildDropsStaleAndDuplicateRoutes(t *testing.T) {
	snapshot := baseSnapshot()
	snapshot.Routes = append(snapshot.Routes,
		model.Route{Tier: "T1", DeployableName: "svc-gone"},
		model.Route{Tier: "T1", DeployableName: "svc-a", API: "other"},
	)

	table, warnings := newTestBuilder(t).Build(Input{Config: snapshot})
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	if len(table.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(table.Entries))
	}
	if table.Entries[0].Route.API != "svc-a" {
		t.Fatalf("expected first svc-a route to win, got %q", table.Entries[0].Route.API)
	}
}

func TestBuildTenantProductJoin(t *testing.T) {
	snapshot := baseSnapshot()
	snapshot.Products = []model.Product{
		{Name: "prod-live", OrganizationName: "org", State: "active", Deployables: []string{"svc-b", "svc-a"}},
		{Name: "prod-off", OrganizationName: "org", State: "inactive"},
		{Name: "prod-empty", OrganizationName: "org", State: "active"},
	}
	snapshot.TenantNames = []model.TenantName{
		{TenantName: "t-live", ProductName: "prod-live"},
		{TenantName: "t-init", ProductName: "prod-live"},
		{TenantName: "t-orphan", ProductName: "prod-off"},
	}
	snapshot.Tenants = []model.Tenant{
		{Name: "t-live", Tier: "T1", State: "active"},
		{Name: "t-init", Tier: "T1", State: "initializing"},
		{Name: "t-orphan", Tier: "T1", State: "active"},
	}

	table, _ := newTestBuilder(t).Build(Input{Config: snapshot})

	if _, ok := table.ActiveTenants["t-orphan"]; ok {
		t.Fatalf("tenant on inactive product must not be active")
	}
	if _, ok := table.ActiveTenants["t-init"]; ok {
		t.Fatalf("initializing tenant must not be active")
	}
	if table.ActiveTenants["t-live"].Name != "prod-live" {
		t.Fatalf("expected t-live on prod-live, got %+v", table.ActiveTenants)
	}

	gotProducts := []string{}
	for _, product := range table.Products {
		gotProducts = append(gotProducts, product.Name)
	}
	if diff := cmp.Diff([]string{"prod-live", "prod-off"}, gotProducts); diff != "" {
		t.Fatalf("products mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"t-init", "t-live"}, table.Products[0].Tenants); diff != "" {
		t.Fatalf("tenants mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"svc-a", "svc-b"}, table.Products[0].Deployables); diff != "" {
		t.Fatalf("deployables mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildKeySets(t *testing.T) {
	snapshot := baseSnapshot()
	snapshot.APIKeys = []model.APIKey{
		{Name: "zeta", KeyType: model.KeyTypeCustom, InUse: true},
		{Name: "alpha", KeyType: model.KeyTypeCustom, InUse: true},
		{Name: "retired", KeyType: model.KeyTypeCustom, InUse: false},
		{Name: "prod-live-1234", KeyType: model.KeyTypeProduct, ProductName: "prod-live", InUse: true},
	}

	table, _ := newTestBuilder(t).Build(Input{Config: snapshot})

	if diff := cmp.Diff([]string{"alpha", "zeta"}, table.CustomKeys); diff != "" {
		t.Fatalf("custom keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"prod-live-1234": "prod-live"}, table.ProductKeys); diff != "" {
		t.Fatalf("product keys mismatch (-want +got):\n%s", diff)
	}
}
