package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/raffle-go/internal/domain"
)

type EntryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *EntryRepo) With(db DB) *EntryRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EntryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert stores a finalized entry. Entries are immutable after this point
// except for the refund flag.
func (r *EntryRepo) Insert(ctx context.Context, e *domain.Entry) error {
	const op = "postgres.EntryRepo.Insert"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO entries(id, competition_id, user_id, first_ticket, quantity, payment_ref, refunded, created_at)
       	 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		e.ID, e.CompetitionID, e.UserID, e.FirstTicket, e.Quantity, e.PaymentRef, e.CreatedAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *EntryRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Entry, error) {
	const op = "postgres.EntryRepo.Get"

	db := r.handle()

	var e domain.Entry
	err := db.QueryRow(ctx,
		`SELECT id, competition_id, user_id, first_ticket, quantity, payment_ref, refunded, created_at
       	 FROM entries WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.CompetitionID, &e.UserID, &e.FirstTicket, &e.Quantity, &e.PaymentRef, &e.Refunded, &e.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

func (r *EntryRepo) ListByCompetition(ctx context.Context, competitionID int64) ([]domain.Entry, error) {
	const op = "postgres.EntryRepo.ListByCompetition"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, competition_id, user_id, first_ticket, quantity, payment_ref, refunded, created_at
       	 FROM entries
      	 WHERE competition_id = $1
      	 ORDER BY first_ticket`,
		competitionID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(
			&e.ID,
			&e.CompetitionID,
			&e.UserID,
			&e.FirstTicket,
			&e.Quantity,
			&e.PaymentRef,
			&e.Refunded,
			&e.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *EntryRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Entry, error) {
	const op = "postgres.EntryRepo.ListByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, competition_id, user_id, first_ticket, quantity, payment_ref, refunded, created_at
       	 FROM entries
      	 WHERE user_id = $1
      	 ORDER BY created_at DESC
      	 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(
			&e.ID,
			&e.CompetitionID,
			&e.UserID,
			&e.FirstTicket,
			&e.Quantity,
			&e.PaymentRef,
			&e.Refunded,
			&e.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// MarkAllRefunded flags every entry of a competition as refunded and
// returns them so the caller can emit exactly one refund instruction per
// entry. Already-refunded entries are not returned, which keeps refund
// emission idempotent across retries.
func (r *EntryRepo) MarkAllRefunded(ctx context.Context, competitionID int64) ([]domain.Entry, error) {
	const op = "postgres.EntryRepo.MarkAllRefunded"

	db := r.handle()

	rows, err := db.Query(ctx,
		`UPDATE entries
        	SET refunded = TRUE
      	 WHERE competition_id = $1 AND NOT refunded
     	 RETURNING id, competition_id, user_id, first_ticket, quantity, payment_ref, refunded, created_at`,
		competitionID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(
			&e.ID,
			&e.CompetitionID,
			&e.UserID,
			&e.FirstTicket,
			&e.Quantity,
			&e.PaymentRef,
			&e.Refunded,
			&e.CreatedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// SoldTicketNumbers reconstructs the full sold ticket set from the entry
// blocks, ordered ascending. This is the draw's input.
func (r *EntryRepo) SoldTicketNumbers(ctx context.Context, competitionID int64) ([]int64, error) {
	const op = "postgres.EntryRepo.SoldTicketNumbers"

	entries, err := r.ListByCompetition(ctx, competitionID)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	var tickets []int64
	for _, e := range entries {
		tickets = append(tickets, e.TicketNumbers()...)
	}

	return tickets, nil
}
