package store

import (
	"context"
	"database/sql"
	"time"

	"skygent.dev/skygent/internal/errs"
)

// FilterEntry is one row of the named-filter library (C6).
type FilterEntry struct {
	Name      string
	DSLSource string
	Signature string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PutFilter creates or replaces the named filter, implementing Resolve's
// counterpart so @name references in new filter sources can see filters
// saved earlier in the same store.
func (s *Store) PutFilter(ctx context.Context, name, dslSource, signature string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO filter_library (name, dsl_source, signature, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET dsl_source = excluded.dsl_source,
		   signature = excluded.signature, updated_at = excluded.updated_at`,
		name, dslSource, signature, now, now,
	)
	if err != nil {
		return errs.NewFilterLibraryError("failed to save named filter", err)
	}
	return nil
}

// GetFilter returns the named filter, or a FilterNotFound error.
func (s *Store) GetFilter(ctx context.Context, name string) (*FilterEntry, error) {
	var (
		e                        FilterEntry
		createdAtStr, updatedStr string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, dsl_source, signature, created_at, updated_at FROM filter_library WHERE name = ?`, name,
	).Scan(&e.Name, &e.DSLSource, &e.Signature, &createdAtStr, &updatedStr)
	if err == sql.ErrNoRows {
		return nil, errs.NewFilterNotFoundError(name)
	}
	if err != nil {
		return nil, errs.NewFilterLibraryError("failed to load named filter", err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &e, nil
}

// Resolve implements filter.NamedFilterResolver against this store.
func (s *Store) Resolve(name string) (string, error) {
	e, err := s.GetFilter(context.Background(), name)
	if err != nil {
		return "", err
	}
	return e.DSLSource, nil
}

// ListFilters returns every saved filter name, sorted ascending.
func (s *Store) ListFilters(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM filter_library ORDER BY name ASC`)
	if err != nil {
		return nil, errs.NewFilterLibraryError("failed to list named filters", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.NewFilterLibraryError("failed to list named filters", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteFilter removes the named filter. Deleting a nonexistent filter is a
// no-op, not an error.
func (s *Store) DeleteFilter(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM filter_library WHERE name = ?`, name)
	if err != nil {
		return errs.NewFilterLibraryError("failed to delete named filter", err)
	}
	return nil
}
