package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/repository"
)

type DrawRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *DrawRepo) With(db DB) *DrawRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *DrawRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert records the draw. The competition_id primary key makes the draw
// single-shot: a second insert surfaces as repository.ErrAlreadyDrawn.
func (r *DrawRepo) Insert(ctx context.Context, d *domain.DrawRecord) error {
	const op = "postgres.DrawRepo.Insert"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO draws(competition_id, seed, algorithm, winning_numbers, drawn_at)
       	 VALUES ($1, $2, $3, $4, $5)`,
		d.CompetitionID, d.Seed, d.Algorithm, d.WinningNumbers, d.DrawnAt,
	); err != nil {
		if errors.Is(translateDBErr(err), repository.ErrConflict) {
			return fmt.Errorf("%s:%w", op, repository.ErrAlreadyDrawn)
		}
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *DrawRepo) Get(ctx context.Context, competitionID int64) (*domain.DrawRecord, error) {
	const op = "postgres.DrawRepo.Get"

	db := r.handle()

	var d domain.DrawRecord
	err := db.QueryRow(ctx,
		`SELECT competition_id, seed, algorithm, winning_numbers, drawn_at
       	 FROM draws
      	 WHERE competition_id = $1`,
		competitionID,
	).Scan(&d.CompetitionID, &d.Seed, &d.Algorithm, &d.WinningNumbers, &d.DrawnAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &d, nil
}

// Exists reports whether a competition has been drawn.
func (r *DrawRepo) Exists(ctx context.Context, competitionID int64) (bool, error) {
	const op = "postgres.DrawRepo.Exists"

	db := r.handle()

	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM draws WHERE competition_id = $1)`,
		competitionID,
	).Scan(&exists)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}
