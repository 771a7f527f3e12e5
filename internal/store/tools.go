package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ToolRecord represents a row in the tool_definitions table.
type ToolRecord struct {
	ID          string
	IdentityID  string
	Name        string
	Description string
	Parameters  json.RawMessage // JSONB — ordered parameter list
	Code        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpsertToolDefinition inserts or replaces a tool definition for an
// identity. The whole row is replaced on conflict.
func (s *Store) UpsertToolDefinition(ctx context.Context, rec *ToolRecord) (*ToolRecord, error) {
	params := rec.Parameters
	if params == nil {
		params = json.RawMessage(`[]`)
	}

	var out ToolRecord
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tool_definitions (identity_id, name, description, parameters, code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_id, name) DO UPDATE SET
			description = EXCLUDED.description,
			parameters  = EXCLUDED.parameters,
			code        = EXCLUDED.code,
			updated_at  = now()
		RETURNING id, identity_id, name, description, parameters, code, created_at, updated_at`,
		rec.IdentityID, rec.Name, rec.Description, params, rec.Code,
	).Scan(&out.ID, &out.IdentityID, &out.Name, &out.Description,
		&out.Parameters, &out.Code, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("UpsertToolDefinition: %w", err)
	}
	return &out, nil
}

// DeleteToolDefinition removes a tool definition.
func (s *Store) DeleteToolDefinition(ctx context.Context, identityID, name string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tool_definitions WHERE identity_id = $1 AND name = $2`,
		identityID, name)
	if err != nil {
		return fmt.Errorf("DeleteToolDefinition: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListToolDefinitions returns every persisted definition, ordered by
// identity and creation time. Used at process start to reload the
// registry through full re-validation.
func (s *Store) ListToolDefinitions(ctx context.Context) ([]*ToolRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_id, name, description, parameters, code, created_at, updated_at
		FROM tool_definitions ORDER BY identity_id, created_at`)
	if err != nil {
		return nil, fmt.Errorf("ListToolDefinitions: %w", err)
	}
	defer rows.Close()

	var out []*ToolRecord
	for rows.Next() {
		var rec ToolRecord
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &rec.Name, &rec.Description,
			&rec.Parameters, &rec.Code, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListToolDefinitions: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
