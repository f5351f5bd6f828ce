package model

import (
	"testing"
	"time"
)

func TestRoutePrefix(t *testing.T) {
	tests := []struct {
		route Route
		want  string
	}{
		{route: Route{DeployableName: "svc-a"}, want: "svc-a"},
		{route: Route{DeployableName: "svc-a", API: "/v1/"}, want: "v1"},
		{route: Route{DeployableName: "svc-a", API: " / "}, want: "svc-a"},
	}
	for _, test := range tests {
		if got := test.route.Prefix(); got != test.want {
			t.Fatalf("Prefix(%+v) = %q, want %q", test.route, got, test.want)
		}
	}
}

func TestGatewaySettingsDefaults(t *testing.T) {
	var settings GatewaySettings
	if !settings.HealthcheckEnabled() {
		t.Fatalf("expected health checks enabled by default")
	}
	if settings.Timeout() != time.Second || settings.Port() != 8080 {
		t.Fatalf("unexpected probe defaults: %v %d", settings.Timeout(), settings.Port())
	}
	if settings.Connections() != 1024 || settings.Listen() != 80 {
		t.Fatalf("unexpected server defaults: %d %d", settings.Connections(), settings.Listen())
	}

	disabled := false
	timeout := 2.5
	port := 9090
	settings = GatewaySettings{HealthcheckTargets: &disabled, HealthcheckTimeout: &timeout, HealthcheckPort: &port}
	if settings.HealthcheckEnabled() || settings.Timeout() != 2500*time.Millisecond || settings.Port() != 9090 {
		t.Fatalf("overrides not applied: %+v", settings)
	}
}

func TestTargetAddress(t *testing.T) {
	target := Target{Name: "svc-a-1", PrivateAddress: "fd00::1", Port: 8080, InstanceType: "t3.small", Zone: "eu-west-1a"}
	if got := target.Address(); got != "[fd00::1]:8080" {
		t.Fatalf("unexpected address %s", got)
	}
	if got := target.Comment(); got != "svc-a-1 [t3.small] [eu-west-1a]" {
		t.Fatalf("unexpected comment %s", got)
	}
}
