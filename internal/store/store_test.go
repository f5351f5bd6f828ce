package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/darkdragon/drift-api-router/internal/model"
)

func TestFilterMatches(t *testing.T) {
	record := Record{"tier_name": "T1", "is_active": true, "assignment_order": float64(2)}

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty", filter: nil, want: true},
		{name: "string", filter: Filter{"tier_name": "T1"}, want: true},
		{name: "int against float", filter: Filter{"assignment_order": 2}, want: true},
		{name: "bool mismatch", filter: Filter{"is_active": false}, want: false},
		{name: "missing field", filter: Filter{"state": "active"}, want: false},
	}
	for _, tc := range cases {
		if got := tc.filter.Matches(record); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestMemoryFindKeepsOrder(t *testing.T) {
	memory := NewMemory(map[string][]Record{
		TableDeployables: {
			{"deployable_name": "b", "tier_name": "T1"},
			{"deployable_name": "a", "tier_name": "T1"},
			{"deployable_name": "c", "tier_name": "T2"},
		},
	})

	table, err := memory.Table(TableDeployables)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := table.Find(context.Background(), Filter{"tier_name": "T1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[0]["deployable_name"] != "b" || rows[1]["deployable_name"] != "a" {
		t.Fatalf("unexpected rows: %v", rows)
	}

	_, found, err := table.Get(context.Background(), Filter{"deployable_name": "zz"})
	if err != nil || found {
		t.Fatalf("expected no record, got found=%v err=%v", found, err)
	}
}

func TestReaderSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	snapshotYAML := `
tiers:
  - tier_name: T1
    aws:
      region: eu-west-1
deployables:
  - {deployable_name: svc-a, tier_name: T1, is_active: true}
  - {deployable_name: svc-b, tier_name: T1, is_active: false, reason_inactive: maintenance}
  - {deployable_name: svc-x, tier_name: T2, is_active: true}
routing:
  - {deployable_name: svc-a, tier_name: T1, requires_api_key: true}
api-keys:
  - {api_key_name: k-custom, key_type: custom, tier_name: T1}
  - {api_key_name: k-retired, key_type: custom, tier_name: T1, in_use: false}
nginx:
  - tier_name: T1
    healthcheck_port: 8901
    worker_connections: 100
    healthcheck_targets: false
`
	if err := os.WriteFile(path, []byte(snapshotYAML), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	memory, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	snapshot, err := NewReader(memory).Snapshot(context.Background(), "T1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snapshot.Tier.AWS == nil || snapshot.Tier.AWS.Region != "eu-west-1" {
		t.Fatalf("expected region eu-west-1, got %+v", snapshot.Tier.AWS)
	}
	wantDeployables := []model.Deployable{
		{Name: "svc-a", Tier: "T1", IsActive: true},
		{Name: "svc-b", Tier: "T1", IsActive: false, ReasonInactive: "maintenance"},
	}
	if diff := cmp.Diff(wantDeployables, snapshot.Deployables); diff != "" {
		t.Fatalf("deployables mismatch (-want +got):\n%s", diff)
	}
	if len(snapshot.APIKeys) != 2 || !snapshot.APIKeys[0].InUse || snapshot.APIKeys[1].InUse {
		t.Fatalf("unexpected api keys: %+v", snapshot.APIKeys)
	}
	if snapshot.Settings.Port() != 8901 || snapshot.Settings.Connections() != 100 {
		t.Fatalf("unexpected settings: %+v", snapshot.Settings)
	}
	if snapshot.Settings.HealthcheckEnabled() {
		t.Fatalf("expected health checks disabled")
	}
	if len(snapshot.Tenants) != 0 {
		t.Fatalf("expected no tenants, got %v", snapshot.Tenants)
	}
}

func TestReaderMissingTier(t *testing.T) {
	_, err := NewReader(NewMemory(nil)).Snapshot(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
