package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/repository"
)

// LedgerRepo owns the per-competition counter row. Every mutation is a
// single conditional UPDATE, so concurrent operations on the same
// competition serialize on the row lock and the held+sold <= total
// invariant holds under any interleaving.
type LedgerRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *LedgerRepo) With(db DB) *LedgerRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *LedgerRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Init creates the counter row for a new competition.
func (r *LedgerRepo) Init(ctx context.Context, competitionID, total int64) error {
	const op = "postgres.LedgerRepo.Init"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO competition_ledger(competition_id, total, held, sold)
       	 VALUES ($1, $2, 0, 0)`,
		competitionID, total,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Reserve moves qty tickets into held. Fails fast with
// repository.ErrInsufficientCapacity when the remaining capacity is
// smaller than qty; it never blocks waiting for capacity.
func (r *LedgerRepo) Reserve(ctx context.Context, competitionID, qty int64) error {
	const op = "postgres.LedgerRepo.Reserve"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE competition_ledger
        	SET held = held + $2
      	 WHERE competition_id = $1
        	AND held + sold + $2 <= total`,
		competitionID, qty,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		if err := r.exists(ctx, competitionID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		return fmt.Errorf("%s:%w", op, repository.ErrInsufficientCapacity)
	}

	return nil
}

// Release returns qty held tickets to the pool. Releasing more than is
// currently held is a caller contract violation and surfaces as
// repository.ErrLedgerUnderflow without touching the row.
func (r *LedgerRepo) Release(ctx context.Context, competitionID, qty int64) error {
	const op = "postgres.LedgerRepo.Release"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE competition_ledger
        	SET held = held - $2
      	 WHERE competition_id = $1
        	AND held >= $2`,
		competitionID, qty,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		if err := r.exists(ctx, competitionID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		return fmt.Errorf("%s:%w", op, repository.ErrLedgerUnderflow)
	}

	return nil
}

// Promote converts qty held tickets into sold ones and returns the first
// ticket number of the newly assigned contiguous block. Ticket numbers are
// unique per competition by construction: sold only grows under the row
// lock, so two promotions can never return overlapping blocks.
func (r *LedgerRepo) Promote(ctx context.Context, competitionID, qty int64) (int64, error) {
	const op = "postgres.LedgerRepo.Promote"

	db := r.handle()

	var soldAfter int64
	err := db.QueryRow(ctx,
		`UPDATE competition_ledger
        	SET held = held - $2, sold = sold + $2
      	 WHERE competition_id = $1
        	AND held >= $2
     	 RETURNING sold`,
		competitionID, qty,
	).Scan(&soldAfter)
	if err != nil {
		if errors.Is(translateDBErr(err), repository.ErrNotFound) {
			if err := r.exists(ctx, competitionID); err != nil {
				return 0, fmt.Errorf("%s:%w", op, err)
			}
			return 0, fmt.Errorf("%s:%w", op, repository.ErrLedgerUnderflow)
		}
		return 0, wrapDBErr(op, err)
	}

	return soldAfter - qty + 1, nil
}

// Snapshot reads the current counters.
func (r *LedgerRepo) Snapshot(ctx context.Context, competitionID int64) (*domain.LedgerCounts, error) {
	const op = "postgres.LedgerRepo.Snapshot"

	db := r.handle()

	var lc domain.LedgerCounts
	err := db.QueryRow(ctx,
		`SELECT total, held, sold
       	 FROM competition_ledger
      	 WHERE competition_id = $1`,
		competitionID,
	).Scan(&lc.Total, &lc.Held, &lc.Sold)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	lc.Available = lc.Total - lc.Held - lc.Sold

	return &lc, nil
}

func (r *LedgerRepo) exists(ctx context.Context, competitionID int64) error {
	db := r.handle()

	var one int
	err := db.QueryRow(ctx,
		`SELECT 1 FROM competition_ledger WHERE competition_id = $1`,
		competitionID,
	).Scan(&one)

	return translateDBErr(err)
}
