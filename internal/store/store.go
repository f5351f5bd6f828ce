package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// Table names consumed by the router.
const (
	TableTiers       = "tiers"
	TableDeployables = "deployables"
	TableRouting     = "routing"
	TableTenants     = "tenants"
	TableTenantNames = "tenant-names"
	TableProducts    = "products"
	TableAPIKeys     = "api-keys"
	TableAPIKeyRules = "api-key-rules"
	TableNginx       = "nginx"
)

// ErrNotFound indicates a table or record was not located.
var ErrNotFound = errors.New("store: not found")

// Record is one row of a config table in its JSON form.
type Record map[string]any

// Filter selects records whose fields equal every given value.
type Filter map[string]any

// Store is the read-only view of the configuration store.
type Store interface {
	Table(name string) (Table, error)
}

// Table looks up records of one config table.
type Table interface {
	// Find returns matching records in store order.
	Find(ctx context.Context, filter Filter) ([]Record, error)
	// Get returns the first matching record.
	Get(ctx context.Context, filter Filter) (Record, bool, error)
}

// Matches reports whether record satisfies filter. Values are compared in
// their JSON form so that ints and float64s compare equal.
func (filter Filter) Matches(record Record) bool {
	for key, want := range filter {
		got, ok := record[key]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(normalize(got), normalize(want)) {
			return false
		}
	}
	return true
}

// Decode converts a record into a typed value.
func (record Record) Decode(out any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

func normalize(value any) any {
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return value
	}
	return out
}
