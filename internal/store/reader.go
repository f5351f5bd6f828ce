package store

import (
	"context"
	"fmt"
	"maps"

	"github.com/darkdragon/drift-api-router/internal/model"
)

// Reader exposes typed, tier scoped lookups over a Store.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// Snapshot is every config relation one build pass consumes.
type Snapshot struct {
	Tier        model.Tier
	Deployables []model.Deployable
	Routes      []model.Route
	Tenants     []model.Tenant
	TenantNames []model.TenantName
	Products    []model.Product
	APIKeys     []model.APIKey
	APIKeyRules []model.APIKeyRule
	Settings    model.GatewaySettings
}

// Snapshot reads all relations for tierName. A missing tier record is an error.
func (reader *Reader) Snapshot(ctx context.Context, tierName string) (Snapshot, error) {
	tier, err := reader.Tier(ctx, tierName)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{Tier: tier}
	tierFilter := Filter{"tier_name": tierName}

	if err := findInto(ctx, reader.store, TableDeployables, tierFilter, &snapshot.Deployables); err != nil {
		return Snapshot{}, err
	}
	if err := findInto(ctx, reader.store, TableRouting, tierFilter, &snapshot.Routes); err != nil {
		return Snapshot{}, err
	}
	if err := findInto(ctx, reader.store, TableTenants, tierFilter, &snapshot.Tenants); err != nil {
		return Snapshot{}, err
	}
	if err := findInto(ctx, reader.store, TableTenantNames, nil, &snapshot.TenantNames); err != nil {
		return Snapshot{}, err
	}
	if err := findInto(ctx, reader.store, TableProducts, nil, &snapshot.Products); err != nil {
		return Snapshot{}, err
	}
	if snapshot.APIKeys, err = reader.APIKeys(ctx, tierName); err != nil {
		return Snapshot{}, err
	}
	if err := findInto(ctx, reader.store, TableAPIKeyRules, nil, &snapshot.APIKeyRules); err != nil {
		return Snapshot{}, err
	}
	if snapshot.Settings, err = reader.Settings(ctx, tierName); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}

// Tier returns the tier record or ErrNotFound.
func (reader *Reader) Tier(ctx context.Context, tierName string) (model.Tier, error) {
	table, err := reader.store.Table(TableTiers)
	if err != nil {
		return model.Tier{}, err
	}
	record, found, err := table.Get(ctx, Filter{"tier_name": tierName})
	if err != nil {
		return model.Tier{}, fmt.Errorf("read tier %s: %w", tierName, err)
	}
	if !found {
		return model.Tier{}, fmt.Errorf("tier %s: %w", tierName, ErrNotFound)
	}
	var tier model.Tier
	if err := record.Decode(&tier); err != nil {
		return model.Tier{}, err
	}
	return tier, nil
}

// APIKeys returns the keys of the tier. A key without an in_use field is in use.
func (reader *Reader) APIKeys(ctx context.Context, tierName string) ([]model.APIKey, error) {
	table, err := reader.store.Table(TableAPIKeys)
	if err != nil {
		return nil, err
	}
	records, err := table.Find(ctx, Filter{"tier_name": tierName})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", TableAPIKeys, err)
	}
	keys := make([]model.APIKey, 0, len(records))
	for _, record := range records {
		var key model.APIKey
		if err := record.Decode(&key); err != nil {
			return nil, fmt.Errorf("%s: %w", TableAPIKeys, err)
		}
		if _, set := record["in_use"]; !set {
			key.InUse = true
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Settings returns the nginx tuning record of the tier, or defaults when absent.
func (reader *Reader) Settings(ctx context.Context, tierName string) (model.GatewaySettings, error) {
	table, err := reader.store.Table(TableNginx)
	if err != nil {
		return model.GatewaySettings{}, err
	}
	record, found, err := table.Get(ctx, Filter{"tier_name": tierName})
	if err != nil {
		return model.GatewaySettings{}, fmt.Errorf("read %s: %w", TableNginx, err)
	}
	if !found {
		return model.GatewaySettings{Params: map[string]any{}}, nil
	}
	var settings model.GatewaySettings
	if err := record.Decode(&settings); err != nil {
		return model.GatewaySettings{}, fmt.Errorf("%s: %w", TableNginx, err)
	}
	settings.Params = maps.Clone(map[string]any(record))
	return settings, nil
}

func findInto[T any](ctx context.Context, store Store, name string, filter Filter, out *[]T) error {
	table, err := store.Table(name)
	if err != nil {
		return err
	}
	records, err := table.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	items := make([]T, 0, len(records))
	for _, record := range records {
		var item T
		if err := record.Decode(&item); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		items = append(items, item)
	}
	*out = items
	return nil
}
