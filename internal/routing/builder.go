package routing

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/darkdragon/drift-api-router/internal/model"
)

// Builder joins discovery output with the config relations.
type Builder struct {
	log *slog.Logger
}

func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{log: logger}
}

// Build produces the routing table. Stale routes are dropped and returned as warnings.
func (builder *Builder) Build(input Input) (Table, []error) {
	warnings := []error{}
	config := input.Config

	products, productsByName := productMap(config.Products, config.TenantNames)
	activeTenants := activeTenantMap(config.Tenants, config.TenantNames, productsByName)

	entries, routeWarnings := buildEntries(config.Deployables, config.Routes, input.Targets, input.Healthy)
	warnings = append(warnings, routeWarnings...)

	customKeys, productKeys := keySets(config.APIKeys)

	table := Table{
		Tier:          config.Tier,
		Entries:       entries,
		ActiveTenants: activeTenants,
		Products:      products,
		CustomKeys:    customKeys,
		ProductKeys:   productKeys,
		Rules:         GroupRules(config.APIKeyRules),
		Settings:      config.Settings,
	}

	builder.log.Debug("routing table built",
		"entries", len(entries),
		"active_tenants", len(activeTenants),
		"products", len(products),
		"custom_keys", len(customKeys),
	)
	return table, warnings
}

// productMap returns products that have tenant names, sorted, with their tenant lists.
func productMap(products []model.Product, tenantNames []model.TenantName) ([]model.Product, map[string]model.Product) {
	tenantsByProduct := map[string][]string{}
	for _, name := range tenantNames {
		tenantsByProduct[name.ProductName] = append(tenantsByProduct[name.ProductName], name.TenantName)
	}

	byName := make(map[string]model.Product, len(products))
	listed := []model.Product{}
	for _, product := range products {
		product.Deployables = append([]string(nil), product.Deployables...)
		sort.Strings(product.Deployables)
		byName[product.Name] = product

		tenants := tenantsByProduct[product.Name]
		if len(tenants) == 0 {
			continue
		}
		product.Tenants = append([]string(nil), tenants...)
		sort.Strings(product.Tenants)
		listed = append(listed, product)
	}
	sort.Slice(listed, func(i, j int) bool {
		return listed[i].Name < listed[j].Name
	})
	return listed, byName
}

// activeTenantMap keeps active tenants whose product is active as well.
func activeTenantMap(tenants []model.Tenant, tenantNames []model.TenantName, products map[string]model.Product) map[string]model.Product {
	productOf := make(map[string]string, len(tenantNames))
	for _, name := range tenantNames {
		productOf[name.TenantName] = name.ProductName
	}

	active := map[string]model.Product{}
	for _, tenant := range tenants {
		if tenant.State != model.StateActive {
			continue
		}
		product, ok := products[productOf[tenant.Name]]
		if !ok || product.State != model.StateActive {
			continue
		}
		active[tenant.Name] = product
	}
	return active
}

func buildEntries(deployables []model.Deployable, routes []model.Route, targets, healthy map[string][]model.Target) ([]Entry, []error) {
	warnings := []error{}
	byName := make(map[string]model.Deployable, len(deployables))
	for _, deployable := range deployables {
		byName[deployable.Name] = deployable
	}

	seen := map[string]struct{}{}
	entries := []Entry{}
	for _, route := range routes {
		deployable, ok := byName[route.DeployableName]
		if !ok {
			warnings = append(warnings, fmt.Errorf("route for %s dropped: deployable not defined for tier", route.DeployableName))
			continue
		}
		if _, dup := seen[route.DeployableName]; dup {
			warnings = append(warnings, fmt.Errorf("duplicate route for deployable %s; keeping first", route.DeployableName))
			continue
		}
		seen[route.DeployableName] = struct{}{}

		route.API = route.Prefix()
		entries = append(entries, Entry{
			Route:          route,
			Deployable:     deployable,
			Targets:        copyTargets(targets[deployable.Name]),
			HealthyTargets: copyTargets(healthy[deployable.Name]),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries, warnings
}

func copyTargets(targets []model.Target) []model.Target {
	copied := make([]model.Target, len(targets))
	copy(copied, targets)
	return copied
}

// keySets returns the in-use custom keys and the in-use product keys.
func keySets(keys []model.APIKey) ([]string, map[string]string) {
	customSet := map[string]struct{}{}
	productKeys := map[string]string{}
	for _, key := range keys {
		if !key.InUse {
			continue
		}
		switch key.KeyType {
		case model.KeyTypeCustom:
			customSet[key.Name] = struct{}{}
		case model.KeyTypeProduct:
			productKeys[key.Name] = key.ProductName
		}
	}

	custom := make([]string, 0, len(customSet))
	for name := range customSet {
		custom = append(custom, name)
	}
	sort.Strings(custom)
	return custom, productKeys
}
