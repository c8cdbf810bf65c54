package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool used by PostgresBackend.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend stores slots in the client_storage table.
type PostgresBackend struct {
	db Querier
}

// NewPostgresBackend creates a backend on an open pool
func NewPostgresBackend(db Querier) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (p *PostgresBackend) Get(ctx context.Context, namespace string, slot Slot) (string, bool, error) {
	var value string
	err := p.db.QueryRow(ctx,
		`SELECT value FROM client_storage WHERE namespace = $1 AND slot = $2`,
		namespace, string(slot),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (p *PostgresBackend) Set(ctx context.Context, namespace string, slot Slot, value string) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO client_storage (namespace, slot, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, slot) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, namespace, string(slot), value)
	return err
}

func (p *PostgresBackend) Remove(ctx context.Context, namespace string, slots ...Slot) error {
	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = string(s)
	}
	_, err := p.db.Exec(ctx,
		`DELETE FROM client_storage WHERE namespace = $1 AND slot = ANY($2)`,
		namespace, names,
	)
	return err
}

func (p *PostgresBackend) Clear(ctx context.Context, namespace string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM client_storage WHERE namespace = $1`, namespace)
	return err
}
