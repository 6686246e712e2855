package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/raffle-go/internal/domain"
)

// QueryRepo serves the read-only surfaces that cut across the write-side
// repositories.
type QueryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueryRepo) With(db DB) *QueryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// CompetitionWithCounts joins the competition with its ledger snapshot in
// one round trip for the summary endpoint.
func (r *QueryRepo) CompetitionWithCounts(ctx context.Context, id int64) (*domain.CompetitionWithCounts, error) {
	const op = "postgres.QueryRepo.CompetitionWithCounts"

	db := r.handle()

	var out domain.CompetitionWithCounts
	var status string
	err := db.QueryRow(ctx,
		`SELECT c.id, c.title, c.total_tickets, c.min_tickets, c.price_cents, c.prize_count,
            	c.closes_at, c.status, c.winning_numbers, c.created_at,
            	l.total, l.held, l.sold
       	 FROM competitions c
      	 JOIN competition_ledger l ON l.competition_id = c.id
      	 WHERE c.id = $1`,
		id,
	).Scan(
		&out.Competition.ID,
		&out.Competition.Title,
		&out.Competition.TotalTickets,
		&out.Competition.MinTickets,
		&out.Competition.PriceCents,
		&out.Competition.PrizeCount,
		&out.Competition.ClosesAt,
		&status,
		&out.Competition.WinningNumbers,
		&out.Competition.CreatedAt,
		&out.Counts.Total,
		&out.Counts.Held,
		&out.Counts.Sold,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out.Competition.Status = domain.CompetitionStatus(status)
	out.Counts.Available = out.Counts.Total - out.Counts.Held - out.Counts.Sold

	return &out, nil
}
