package pinstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LoadFingerprint returns the stored pin for stableID, or "" when none
// exists.
func (s *SQLStore) LoadFingerprint(ctx context.Context, stableID string) (string, error) {
	var fingerprint string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM tls_pins WHERE stable_id = ?`, stableID,
	).Scan(&fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pinstore: load pin %q: %w", stableID, err)
	}
	return fingerprint, nil
}

// SaveFingerprint upserts the pin for stableID. Blank fingerprints are
// rejected: an empty pin is indistinguishable from "no pin" and would
// silently disable enforcement.
func (s *SQLStore) SaveFingerprint(ctx context.Context, stableID, fingerprint string) error {
	stableID = strings.TrimSpace(stableID)
	fingerprint = strings.TrimSpace(fingerprint)
	if stableID == "" {
		return fmt.Errorf("pinstore: save pin: empty stable id")
	}
	if fingerprint == "" {
		return fmt.Errorf("pinstore: save pin %q: empty fingerprint", stableID)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO tls_pins (stable_id, fingerprint, updated_at)
            VALUES (?, ?, CURRENT_TIMESTAMP)
            ON CONFLICT(stable_id) DO UPDATE SET
                fingerprint = excluded.fingerprint,
                updated_at = CURRENT_TIMESTAMP
        `, stableID, fingerprint)
		if err != nil {
			return fmt.Errorf("pinstore: save pin %q: %w", stableID, err)
		}
		return nil
	})
}

// DeleteFingerprint removes the pin for stableID. Deleting a missing pin is
// a no-op.
func (s *SQLStore) DeleteFingerprint(ctx context.Context, stableID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tls_pins WHERE stable_id = ?`, stableID,
		); err != nil {
			return fmt.Errorf("pinstore: delete pin %q: %w", stableID, err)
		}
		return nil
	})
}

// ListPins returns every stored pin ordered by stable ID.
func (s *SQLStore) ListPins(ctx context.Context) ([]Pin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stable_id, fingerprint, created_at, updated_at FROM tls_pins ORDER BY stable_id`)
	if err != nil {
		return nil, fmt.Errorf("pinstore: list pins: %w", err)
	}
	defer rows.Close()

	var pins []Pin
	for rows.Next() {
		var pin Pin
		var createdAt, updatedAt string
		if err := rows.Scan(&pin.StableID, &pin.Fingerprint, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("pinstore: scan pin row: %w", err)
		}
		pin.CreatedAt = parseTimestamp(createdAt)
		pin.UpdatedAt = parseTimestamp(updatedAt)
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pinstore: iterate pin rows: %w", err)
	}
	return pins, nil
}

// parseTimestamp converts sqlite CURRENT_TIMESTAMP text into a time.Time,
// returning the zero time for unparseable input.
func parseTimestamp(value string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
