package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// Serialization failures (40001) and deadlocks (40P01) under the default
// Serializable level are retried this many times before surfacing. fn must
// be safe to re-run.
const txMaxAttempts = 3

// ReadCommitted relaxes the default isolation for hot paths whose
// serialization point is a conditional UPDATE or an explicit row lock;
// Serializable there would only convert the row-lock wait into retry churn.
var ReadCommitted = &pgx.TxOptions{
	IsoLevel:   pgx.ReadCommitted,
	AccessMode: pgx.ReadWrite,
}

func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = s.runTx(ctx, txOpts, fn)
		if err == nil || attempt >= txMaxAttempts || !IsRetryable(err) {
			return err
		}
	}
}

func (s *Store) runTx(
	ctx context.Context,
	txOpts pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Ledger() *LedgerRepo            { return &LedgerRepo{pool: s.pool} }
func (s *Store) Holds() *HoldRepo               { return &HoldRepo{pool: s.pool} }
func (s *Store) Entries() *EntryRepo            { return &EntryRepo{pool: s.pool} }
func (s *Store) Competitions() *CompetitionRepo { return &CompetitionRepo{pool: s.pool} }
func (s *Store) Draws() *DrawRepo               { return &DrawRepo{pool: s.pool} }
func (s *Store) Query() *QueryRepo              { return &QueryRepo{pool: s.pool} }
