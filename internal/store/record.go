package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/peersync/internal/room"
)

// Save replaces the session record with d.
func (s *Store) Save(ctx context.Context, d room.Descriptor) error {
	if !d.Role.Valid() {
		return fmt.Errorf("save session record: invalid role %q", d.Role)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_record (id, role, code, saved_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			code = excluded.code,
			saved_at = excluded.saved_at
	`, string(d.Role), d.Code, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save session record: %w", err)
	}
	return nil
}

// Load returns the session record. found is false when none is stored.
func (s *Store) Load(ctx context.Context) (d room.Descriptor, found bool, err error) {
	var role string
	err = s.db.QueryRowContext(ctx,
		"SELECT role, code FROM session_record WHERE id = 1",
	).Scan(&role, &d.Code)
	if errors.Is(err, sql.ErrNoRows) {
		return room.Descriptor{}, false, nil
	}
	if err != nil {
		return room.Descriptor{}, false, fmt.Errorf("load session record: %w", err)
	}
	d.Role = room.Role(role)
	return d, true, nil
}

// Clear deletes the session record. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_record"); err != nil {
		return fmt.Errorf("clear session record: %w", err)
	}
	return nil
}
