package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/darkdragon/drift-api-router/internal/store"
)

// Store serves config tables from the config_rows jsonb table.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping config store: %w", err)
	}
	return pool, nil
}

func (s *Store) Table(name string) (store.Table, error) {
	return table{pool: s.pool, name: name}, nil
}

type table struct {
	pool *pgxpool.Pool
	name string
}

const findQuery = `SELECT data FROM config_rows
	WHERE table_name = $1 AND data @> $2::jsonb
	ORDER BY id`

func (t table) Find(ctx context.Context, filter store.Filter) ([]store.Record, error) {
	containment, err := filterJSON(filter)
	if err != nil {
		return nil, err
	}
	rows, err := t.pool.Query(ctx, findQuery, t.name, containment)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	records := []store.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.name, err)
	}
	return records, nil
}

func (t table) Get(ctx context.Context, filter store.Filter) (store.Record, bool, error) {
	containment, err := filterJSON(filter)
	if err != nil {
		return nil, false, err
	}
	row := t.pool.QueryRow(ctx, findQuery+" LIMIT 1", t.name, containment)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", t.name, err)
	}
	return record, true, nil
}

// filterJSON renders a filter as a jsonb containment document.
func filterJSON(filter store.Filter) (string, error) {
	if len(filter) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	return string(raw), nil
}

func scanRecord(row pgx.Row) (store.Record, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	record := store.Record{}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return record, nil
}
