package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the warden_turn_events table for the
// diagnostics endpoints.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow is a single row from the warden_turn_events table.
type EventRow struct {
	RequestID     string    `json:"request_id"`
	Identity      string    `json:"identity"`
	Timestamp     time.Time `json:"timestamp"`
	Phase         string    `json:"phase"`
	InputPreview  string    `json:"input_preview"`
	OutputPreview string    `json:"output_preview"`
	Refused       uint8     `json:"refused"`
	Violations    []string  `json:"violations"`
	ToolsInvoked  []string  `json:"tools_invoked"`
	LatencyMs     float32   `json:"latency_ms"`
}

// ListEvents returns the most recent events, optionally filtered to one
// identity. limit is clamped to [1, 500].
func (r *Reader) ListEvents(ctx context.Context, identity string, limit int) ([]EventRow, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT request_id, identity, timestamp, phase,
		       input_preview, output_preview, refused,
		       violations, tools_invoked, latency_ms
		FROM warden_turn_events`
	args := []any{}
	if identity != "" {
		query += ` WHERE identity = ?`
		args = append(args, identity)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.RequestID, &e.Identity, &e.Timestamp, &e.Phase,
			&e.InputPreview, &e.OutputPreview, &e.Refused,
			&e.Violations, &e.ToolsInvoked, &e.LatencyMs,
		); err != nil {
			return nil, fmt.Errorf("ListEvents: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
