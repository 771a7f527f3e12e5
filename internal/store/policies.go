package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Policy represents a row in the policies table.
type Policy struct {
	ID         string
	IdentityID string
	Config     json.RawMessage // JSONB — serialized policy.Configuration
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GetPolicy returns the policy for an identity, or nil if not found.
func (s *Store) GetPolicy(ctx context.Context, identityID string) (*Policy, error) {
	var p Policy
	err := s.db.QueryRowContext(ctx, `
		SELECT id, identity_id, COALESCE(config, '{}'), created_at, updated_at
		FROM policies WHERE identity_id = $1`, identityID,
	).Scan(&p.ID, &p.IdentityID, &p.Config, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetPolicy: %w", err)
	}
	return &p, nil
}

// ListPolicies returns every identity's policy row (for startup reload).
func (s *Store) ListPolicies(ctx context.Context) ([]*Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_id, COALESCE(config, '{}'), created_at, updated_at
		FROM policies ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("ListPolicies: %w", err)
	}
	defer rows.Close()

	var out []*Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.IdentityID, &p.Config, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListPolicies scan: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ReplacePolicy fully replaces an identity's policy configuration.
// Whole-value replacement only: partial in-place mutation is not offered,
// so a concurrently running turn always observes one consistent value.
func (s *Store) ReplacePolicy(ctx context.Context, identityID string, config json.RawMessage) (*Policy, error) {
	if config == nil {
		config = json.RawMessage(`{}`)
	}

	var p Policy
	err := s.db.QueryRowContext(ctx, `
		UPDATE policies SET
			config     = $2,
			updated_at = now()
		WHERE identity_id = $1
		RETURNING id, identity_id, COALESCE(config, '{}'), created_at, updated_at`,
		identityID, config,
	).Scan(&p.ID, &p.IdentityID, &p.Config, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReplacePolicy: %w", err)
	}
	return &p, nil
}
