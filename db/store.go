package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store extends Queries with the multi-statement operations that need a
// transaction.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Queries: New(pool),
		pool:    pool,
	}
}

// FinalizeSession writes the session row and its utterances in a single
// transaction, so a failed insert never leaves a partial session behind.
func (s *Store) FinalizeSession(
	ctx context.Context,
	session CreateSessionParams,
	utterances []InsertUtteranceParams,
) (Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback(ctx)

	q := s.Queries.WithTx(tx)

	created, err := q.CreateSession(ctx, session)
	if err != nil {
		return Session{}, err
	}
	for _, u := range utterances {
		if err := q.InsertUtterance(ctx, u); err != nil {
			return Session{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}
	return created, nil
}
