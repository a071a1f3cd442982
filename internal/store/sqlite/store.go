// Package sqlite is a SecretStore backed by a SQLite file. Values are sealed
// with a master key before they are written, so the database file alone does
// not reveal the session tokens.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rahulunni73/authclient/pkg/authclient"
	"github.com/rahulunni73/authclient/pkg/cryptox"
	_ "modernc.org/sqlite"
)

var (
	_ authclient.SecretStore = (*Store)(nil)
	_ authclient.BatchSetter = (*Store)(nil)
)

type Store struct {
	db     *sql.DB
	q      *queries
	sealer *cryptox.Sealer
	now    func() time.Time
}

// NewStore opens the database at dsn. Migrations are not applied; call
// ApplyMigrations before use.
func NewStore(dsn string, sealer *cryptox.Sealer) (*Store, error) {
	if sealer == nil {
		return nil, errors.New("sqlite: sealer is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serialises writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return &Store{
		db:     db,
		q:      newQueries(db),
		sealer: sealer,
		now:    time.Now,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx executes fn within a transaction, committing when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(q *queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(newQueries(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, err := s.q.GetSecret(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &authclient.StoreError{Operation: "get", Key: key, Cause: err}
	}

	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return "", false, &authclient.StoreError{Operation: "get", Key: key, Cause: err}
	}
	return string(plain), true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value}, nil)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.q.DeleteSecret(ctx, key); err != nil {
		return &authclient.StoreError{Operation: "delete", Key: key, Cause: err}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.q.DeleteAllSecrets(ctx); err != nil {
		return &authclient.StoreError{Operation: "clear", Cause: err}
	}
	return nil
}

// SetMany writes and deletes in one transaction.
func (s *Store) SetMany(ctx context.Context, set map[string]string, del []string) error {
	// Seal outside the transaction; keys are sorted for stable write order.
	keys := slices.Sorted(maps.Keys(set))
	sealed := make([][]byte, len(keys))
	for i, key := range keys {
		v, err := s.sealer.Seal([]byte(set[key]))
		if err != nil {
			return &authclient.StoreError{Operation: "set", Key: key, Cause: err}
		}
		sealed[i] = v
	}

	now := s.now()
	err := s.withTx(ctx, func(q *queries) error {
		for _, key := range del {
			if err := q.DeleteSecret(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		for i, key := range keys {
			if err := q.UpsertSecret(ctx, key, sealed[i], now); err != nil {
				return fmt.Errorf("upsert %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return &authclient.StoreError{Operation: "set", Cause: err}
	}
	return nil
}

// Len returns the number of stored secrets.
func (s *Store) Len(ctx context.Context) (int, error) {
	n, err := s.q.CountSecrets(ctx)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
