package store

import (
	"context"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Memory is an in-memory Store, typically loaded from a snapshot file.
type Memory struct {
	tables map[string][]Record
}

// NewMemory builds a store from table name to rows.
func NewMemory(tables map[string][]Record) *Memory {
	copied := make(map[string][]Record, len(tables))
	for name, rows := range tables {
		copied[name] = append([]Record(nil), rows...)
	}
	return &Memory{tables: copied}
}

// LoadFile reads a YAML or JSON snapshot mapping table names to row lists.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config snapshot: %w", err)
	}
	var tables map[string][]Record
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parse config snapshot %s: %w", path, err)
	}
	return NewMemory(tables), nil
}

func (memory *Memory) Table(name string) (Table, error) {
	// Absent tables read as empty.
	return memoryTable{name: name, rows: memory.tables[name]}, nil
}

type memoryTable struct {
	name string
	rows []Record
}

func (table memoryTable) Find(ctx context.Context, filter Filter) ([]Record, error) {
	results := []Record{}
	for _, row := range table.rows {
		if filter.Matches(row) {
			results = append(results, row)
		}
	}
	return results, nil
}

func (table memoryTable) Get(ctx context.Context, filter Filter) (Record, bool, error) {
	for _, row := range table.rows {
		if filter.Matches(row) {
			return row, true, nil
		}
	}
	return nil, false, nil
}
