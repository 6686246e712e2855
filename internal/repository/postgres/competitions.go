package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/repository"
)

type CompetitionRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CompetitionRepo) With(db DB) *CompetitionRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CompetitionRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const competitionColumns = `id, title, total_tickets, min_tickets, price_cents, prize_count, closes_at, status, winning_numbers, created_at`

func scanCompetition(row pgx.Row) (*domain.Competition, error) {
	var c domain.Competition
	var status string
	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.TotalTickets,
		&c.MinTickets,
		&c.PriceCents,
		&c.PrizeCount,
		&c.ClosesAt,
		&status,
		&c.WinningNumbers,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = domain.CompetitionStatus(status)

	return &c, nil
}

// Create inserts a competition in OPEN state and returns its ID. The
// ledger row is initialized by the caller in the same transaction.
func (r *CompetitionRepo) Create(
	ctx context.Context,
	title string,
	totalTickets int64,
	minTickets *int64,
	priceCents int64,
	prizeCount int,
	closesAt time.Time,
) (int64, error) {
	const op = "postgres.CompetitionRepo.Create"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO competitions(title, total_tickets, min_tickets, price_cents, prize_count, closes_at, status)
       	 VALUES ($1, $2, $3, $4, $5, $6, 'open')
     	 RETURNING id`,
		title, totalTickets, minTickets, priceCents, prizeCount, closesAt,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *CompetitionRepo) Get(ctx context.Context, id int64) (*domain.Competition, error) {
	const op = "postgres.CompetitionRepo.Get"

	db := r.handle()

	c, err := scanCompetition(db.QueryRow(ctx,
		`SELECT `+competitionColumns+` FROM competitions WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return c, nil
}

// GetForUpdate locks the competition row; close-time evaluation and the
// draw serialize on this lock.
func (r *CompetitionRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Competition, error) {
	const op = "postgres.CompetitionRepo.GetForUpdate"

	db := r.handle()

	c, err := scanCompetition(db.QueryRow(ctx,
		`SELECT `+competitionColumns+` FROM competitions WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return c, nil
}

func (r *CompetitionRepo) List(ctx context.Context, limit, offset int) ([]domain.Competition, error) {
	const op = "postgres.CompetitionRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+competitionColumns+`
       	 FROM competitions
      	 ORDER BY closes_at
      	 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ListOpenDue returns IDs of OPEN competitions whose close time has
// passed. The scheduler feeds these into close-time evaluation.
func (r *CompetitionRepo) ListOpenDue(ctx context.Context, now time.Time) ([]int64, error) {
	const op = "postgres.CompetitionRepo.ListOpenDue"

	return r.listIDs(ctx, op,
		`SELECT id FROM competitions WHERE status = 'open' AND closes_at <= $1 ORDER BY closes_at`,
		now,
	)
}

// ListSettledUndrawn returns IDs of settled competitions that still lack
// a draw record. Competitions that settled with zero sales are excluded:
// there is nothing to draw from and rescanning them would fail forever.
func (r *CompetitionRepo) ListSettledUndrawn(ctx context.Context) ([]int64, error) {
	const op = "postgres.CompetitionRepo.ListSettledUndrawn"

	return r.listIDs(ctx, op,
		`SELECT c.id
       	 FROM competitions c
      	 LEFT JOIN draws d ON d.competition_id = c.id
      	 WHERE c.status = 'closed_settled'
        	AND d.competition_id IS NULL
        	AND EXISTS (SELECT 1 FROM entries e WHERE e.competition_id = c.id)
      	 ORDER BY c.closes_at`,
	)
}

// SetClosedStatus transitions an OPEN competition to its terminal status.
// The transition is status-guarded so a duplicate trigger is a no-op at
// the SQL level.
func (r *CompetitionRepo) SetClosedStatus(ctx context.Context, id int64, status domain.CompetitionStatus) error {
	const op = "postgres.CompetitionRepo.SetClosedStatus"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE competitions SET status = $2 WHERE id = $1 AND status = 'open'`,
		id, string(status),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrCompetitionClosed)
	}

	return nil
}

// SetWinningNumbers records the draw result on the competition row.
func (r *CompetitionRepo) SetWinningNumbers(ctx context.Context, id int64, numbers []int64) error {
	const op = "postgres.CompetitionRepo.SetWinningNumbers"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE competitions
        	SET winning_numbers = $2
      	 WHERE id = $1 AND status = 'closed_settled'`,
		id, numbers,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotSettled)
	}

	return nil
}

func (r *CompetitionRepo) listIDs(ctx context.Context, op, sql string, args ...any) ([]int64, error) {
	db := r.handle()

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
