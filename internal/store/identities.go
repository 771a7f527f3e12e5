package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Identity represents a row in the identities table: the key under which
// rate limits, policies, and custom tools are scoped.
type Identity struct {
	ID           string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdentityWithPolicy is an Identity joined with its policy configuration
// (for auth lookups).
type IdentityWithPolicy struct {
	Identity
	PolicyConfig json.RawMessage // from policies.config
}

// GenerateAPIKey creates a new wsk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := "wsk_" + hex.EncodeToString(raw)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	prefix := fullKey[:8]
	return fullKey, string(hashBytes), prefix, nil
}

// CreateIdentity inserts a new identity and its default policy in a
// single transaction. Returns the identity and plaintext API key (shown once).
func (s *Store) CreateIdentity(ctx context.Context, name string) (*Identity, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateIdentity: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("CreateIdentity: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id Identity
	err = tx.QueryRowContext(ctx, `
		INSERT INTO identities (name, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, name, api_key_hash, api_key_prefix, created_at, updated_at`,
		name, keyHash, keyPrefix,
	).Scan(&id.ID, &id.Name, &id.APIKeyHash, &id.APIKeyPrefix, &id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateIdentity: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO policies (identity_id) VALUES ($1)`, id.ID); err != nil {
		return nil, "", fmt.Errorf("CreateIdentity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("CreateIdentity: %w", err)
	}

	return &id, fullKey, nil
}

// ListIdentities returns all identities ordered by created_at DESC.
func (s *Store) ListIdentities(ctx context.Context) ([]*Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, created_at, updated_at
		FROM identities ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListIdentities: %w", err)
	}
	defer rows.Close()

	var identities []*Identity
	for rows.Next() {
		var id Identity
		if err := rows.Scan(&id.ID, &id.Name, &id.APIKeyHash, &id.APIKeyPrefix,
			&id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListIdentities: %w", err)
		}
		identities = append(identities, &id)
	}
	return identities, rows.Err()
}

// GetIdentity returns an identity by ID, or nil if not found.
func (s *Store) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	var out Identity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, created_at, updated_at
		FROM identities WHERE id = $1`, id,
	).Scan(&out.ID, &out.Name, &out.APIKeyHash, &out.APIKeyPrefix, &out.CreatedAt, &out.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetIdentity: %w", err)
	}
	return &out, nil
}

// DeleteIdentity deletes an identity by ID. Policy and tool definitions cascade.
func (s *Store) DeleteIdentity(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteIdentity: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RotateAPIKey generates a new API key for an identity.
// Returns the updated identity and the plaintext key (shown once).
func (s *Store) RotateAPIKey(ctx context.Context, id string) (*Identity, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	var out Identity
	err = s.db.QueryRowContext(ctx, `
		UPDATE identities SET
			api_key_hash   = $2,
			api_key_prefix = $3,
			updated_at     = now()
		WHERE id = $1
		RETURNING id, name, api_key_hash, api_key_prefix, created_at, updated_at`,
		id, keyHash, keyPrefix,
	).Scan(&out.ID, &out.Name, &out.APIKeyHash, &out.APIKeyPrefix, &out.CreatedAt, &out.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", sql.ErrNoRows)
	}
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	return &out, fullKey, nil
}

// LookupByPrefix finds an identity by API key prefix (first 8 chars).
// Used by auth to narrow candidates before bcrypt verify.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*IdentityWithPolicy, error) {
	var iw IdentityWithPolicy
	err := s.db.QueryRowContext(ctx, `
		SELECT i.id, i.name, i.api_key_hash, i.api_key_prefix, i.created_at, i.updated_at,
		       COALESCE(p.config, '{}')
		FROM identities i
		LEFT JOIN policies p ON p.identity_id = i.id
		WHERE i.api_key_prefix = $1`, prefix,
	).Scan(&iw.ID, &iw.Name, &iw.APIKeyHash, &iw.APIKeyPrefix, &iw.CreatedAt, &iw.UpdatedAt,
		&iw.PolicyConfig)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &iw, nil
}
