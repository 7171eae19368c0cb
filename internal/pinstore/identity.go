package pinstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identity returns the installation identity, generating and persisting a
// fresh instance id on first access so it stays stable across restarts.
func (s *SQLStore) Identity(ctx context.Context) (Identity, error) {
	var id Identity
	err := s.db.QueryRowContext(ctx,
		`SELECT instance_id, display_name FROM client_identity WHERE id = 1`,
	).Scan(&id.InstanceID, &id.DisplayName)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Identity{}, fmt.Errorf("pinstore: load identity: %w", err)
	}

	id = Identity{InstanceID: uuid.NewString()}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		// A concurrent first access may have raced us here; keep whatever
		// instance id won.
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO client_identity (id, instance_id)
            VALUES (1, ?)
            ON CONFLICT(id) DO NOTHING
        `, id.InstanceID); err != nil {
			return fmt.Errorf("pinstore: create identity: %w", err)
		}
		return tx.QueryRowContext(ctx,
			`SELECT instance_id, display_name FROM client_identity WHERE id = 1`,
		).Scan(&id.InstanceID, &id.DisplayName)
	})
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

// SetDisplayName updates the advertised display name, creating the identity
// row first when needed.
func (s *SQLStore) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if _, err := s.Identity(ctx); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
            UPDATE client_identity
            SET display_name = ?, updated_at = CURRENT_TIMESTAMP
            WHERE id = 1
        `, name); err != nil {
			return fmt.Errorf("pinstore: set display name: %w", err)
		}
		return nil
	})
}
