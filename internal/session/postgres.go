package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPersister keeps records in a key/value table, for consoles that
// share one session across hosts
type PostgresPersister struct {
	Pool *pgxpool.Pool
}

// NewPostgresPersister initializes a connection pool and the state table
func NewPostgresPersister(ctx context.Context, connString string) (*PostgresPersister, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	p := &PostgresPersister{Pool: pool}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// EnsureSchema creates the state table if missing
func (p *PostgresPersister) EnsureSchema(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS client_state (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create client_state table: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (p *PostgresPersister) Close() {
	p.Pool.Close()
}

func (p *PostgresPersister) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.Pool.QueryRow(ctx, "SELECT value FROM client_state WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return value, nil
}

func (p *PostgresPersister) Store(ctx context.Context, key string, data []byte) error {
	_, err := p.Pool.Exec(ctx,
		"INSERT INTO client_state (key, value, updated_at) VALUES ($1, $2, NOW()) "+
			"ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()",
		key, data)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (p *PostgresPersister) Delete(ctx context.Context, key string) error {
	if _, err := p.Pool.Exec(ctx, "DELETE FROM client_state WHERE key = $1", key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
