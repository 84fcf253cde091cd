package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLStore adapts a database/sql.DB to the Store interface, the way the
// teacher's sqlite/dolt backends sit directly on *sql.DB. The concrete
// driver is registered by the caller (cmd/pulseoned wires in
// github.com/go-sql-driver/mysql); this
// package never imports a driver itself so the repository layer stays
// backend-agnostic, matching spec §1's treatment of "the persistent
// store (SQL)" as an external collaborator.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already-open *sql.DB.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) ExecuteQuery(ctx context.Context, query string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = raw[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ExecuteNonQuery(ctx context.Context, query string) (bool, error) {
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return false, fmt.Errorf("execute non-query: %w", err)
	}
	return true, nil
}
