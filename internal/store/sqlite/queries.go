package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries { return &queries{db: db} }

const getSecret = `SELECT value FROM secrets WHERE key = ?`

func (q *queries) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := q.db.QueryRowContext(ctx, getSecret, key).Scan(&value)
	return value, err
}

const upsertSecret = `
INSERT INTO secrets (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (q *queries) UpsertSecret(ctx context.Context, key string, value []byte, updatedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, upsertSecret, key, value, updatedAt.UTC())
	return err
}

const deleteSecret = `DELETE FROM secrets WHERE key = ?`

func (q *queries) DeleteSecret(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deleteSecret, key)
	return err
}

const deleteAllSecrets = `DELETE FROM secrets`

func (q *queries) DeleteAllSecrets(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllSecrets)
	return err
}

const countSecrets = `SELECT COUNT(*) FROM secrets`

func (q *queries) CountSecrets(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countSecrets).Scan(&n)
	return n, err
}
