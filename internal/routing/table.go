package routing

import (
	"github.com/darkdragon/drift-api-router/internal/model"
	"github.com/darkdragon/drift-api-router/internal/store"
)

// Entry is the routing unit for one deployable.
type Entry struct {
	Route          model.Route
	Deployable     model.Deployable
	Targets        []model.Target
	HealthyTargets []model.Target
}

func (entry Entry) Name() string {
	return entry.Deployable.Name
}

func (entry Entry) RequiresAPIKey() bool {
	return entry.Route.RequiresAPIKey
}

// Table is the complete routing model of one tier for one build pass.
type Table struct {
	Tier    model.Tier
	Entries []Entry
	// ActiveTenants maps tenant name to product for active tenants on active products.
	ActiveTenants map[string]model.Product
	// Products lists every product with tenant names, active or not.
	Products    []model.Product
	CustomKeys  []string
	ProductKeys map[string]string
	// Rules holds the active API key rules of each product in evaluation order.
	Rules    map[string][]model.APIKeyRule
	Settings model.GatewaySettings
}

// Input is the immutable data one build consumes.
type Input struct {
	Config  store.Snapshot
	Targets map[string][]model.Target
	Healthy map[string][]model.Target
}
