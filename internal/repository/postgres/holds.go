package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/repository"
)

// ReleasedHold is what a delete-returning operation hands back so the
// caller can decrement the ledger by exactly the released quantity.
type ReleasedHold struct {
	ID            uuid.UUID
	CompetitionID int64
	Quantity      int64
}

type HoldRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *HoldRepo) With(db DB) *HoldRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *HoldRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert stores a new hold row.
//
// Returns:
//   - error: repository.ErrConflict if the session already has an active
//     hold on the competition (partial unique index).
func (r *HoldRepo) Insert(ctx context.Context, h *domain.Hold) error {
	const op = "postgres.HoldRepo.Insert"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO holds(id, competition_id, session_id, user_id, quantity, consumed, created_at, expires_at)
       	 VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)`,
		h.ID, h.CompetitionID, h.SessionID, h.UserID, h.Quantity, h.CreatedAt, h.ExpiresAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// GetForUpdate locks the hold row for the rest of the transaction so a
// concurrent expiry sweep or release cannot race the caller.
//
// Returns:
//   - error: repository.ErrHoldNotFound if the hold does not exist.
func (r *HoldRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Hold, error) {
	const op = "postgres.HoldRepo.GetForUpdate"

	db := r.handle()

	var h domain.Hold
	err := db.QueryRow(ctx,
		`SELECT id, competition_id, session_id, user_id, quantity, consumed, created_at, expires_at
       	 FROM holds
      	 WHERE id = $1
        FOR UPDATE`,
		id,
	).Scan(&h.ID, &h.CompetitionID, &h.SessionID, &h.UserID, &h.Quantity, &h.Consumed, &h.CreatedAt, &h.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrHoldNotFound)
		}
		return nil, wrapDBErr(op, err)
	}

	return &h, nil
}

// ReleaseActiveBySession removes the session's active hold on a
// competition, if any, and reports what was released. Consumed holds are
// never touched.
func (r *HoldRepo) ReleaseActiveBySession(
	ctx context.Context,
	competitionID int64,
	sessionID string,
) (*ReleasedHold, error) {
	const op = "postgres.HoldRepo.ReleaseActiveBySession"

	db := r.handle()

	var rh ReleasedHold
	err := db.QueryRow(ctx,
		`DELETE FROM holds
      	 WHERE competition_id = $1
        	AND session_id = $2
        	AND NOT consumed
     	 RETURNING id, competition_id, quantity`,
		competitionID, sessionID,
	).Scan(&rh.ID, &rh.CompetitionID, &rh.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBErr(op, err)
	}

	return &rh, nil
}

// Renew extends the hold's expiry from now, not from creation time.
//
// Returns:
//   - error: repository.ErrHoldExpired if the hold lapsed (or was already
//     swept away or consumed).
//   - error: repository.ErrHoldNotFound if the hold never existed.
func (r *HoldRepo) Renew(ctx context.Context, id uuid.UUID, ttl time.Duration) (*domain.Hold, error) {
	const op = "postgres.HoldRepo.Renew"

	db := r.handle()

	expires := time.Now().Add(ttl)

	var h domain.Hold
	err := db.QueryRow(ctx,
		`UPDATE holds
        	SET expires_at = $2
      	 WHERE id = $1
        	AND NOT consumed
        	AND expires_at > now()
     	 RETURNING id, competition_id, session_id, user_id, quantity, consumed, created_at, expires_at`,
		id, expires,
	).Scan(&h.ID, &h.CompetitionID, &h.SessionID, &h.UserID, &h.Quantity, &h.Consumed, &h.CreatedAt, &h.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if scanErr := db.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM holds WHERE id = $1)`,
				id,
			).Scan(&exists); scanErr != nil {
				return nil, wrapDBErr(op, scanErr)
			}
			if exists {
				return nil, fmt.Errorf("%s:%w", op, repository.ErrHoldExpired)
			}
			return nil, fmt.Errorf("%s:%w", op, repository.ErrHoldNotFound)
		}
		return nil, wrapDBErr(op, err)
	}

	return &h, nil
}

// Release deletes an unconsumed hold exactly once. The DELETE … RETURNING
// is the serialization point against the sweep: whichever side wins the
// row deletes it, the loser sees zero rows.
func (r *HoldRepo) Release(ctx context.Context, id uuid.UUID) (*ReleasedHold, error) {
	const op = "postgres.HoldRepo.Release"

	db := r.handle()

	var rh ReleasedHold
	err := db.QueryRow(ctx,
		`DELETE FROM holds
      	 WHERE id = $1 AND NOT consumed
     	 RETURNING id, competition_id, quantity`,
		id,
	).Scan(&rh.ID, &rh.CompetitionID, &rh.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrHoldNotFound)
		}
		return nil, wrapDBErr(op, err)
	}

	return &rh, nil
}

// MarkConsumed flips the hold into its terminal single-use state. The row
// is kept so a later release or sweep can tell "consumed" from "unknown".
func (r *HoldRepo) MarkConsumed(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.HoldRepo.MarkConsumed"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE holds SET consumed = TRUE WHERE id = $1 AND NOT consumed`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrHoldConsumed)
	}

	return nil
}

// DeleteExpired removes every lapsed unconsumed hold and reports the
// released quantities grouped by competition so the caller can decrement
// the ledger inside the same transaction.
func (r *HoldRepo) DeleteExpired(ctx context.Context) ([]ReleasedHold, error) {
	const op = "postgres.HoldRepo.DeleteExpired"

	db := r.handle()

	rows, err := db.Query(ctx,
		`DELETE FROM holds
      	 WHERE expires_at <= now() AND NOT consumed
     	 RETURNING id, competition_id, quantity`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []ReleasedHold
	for rows.Next() {
		var rh ReleasedHold
		if err := rows.Scan(&rh.ID, &rh.CompetitionID, &rh.Quantity); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, rh)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// DeleteAllForCompetition force-releases every remaining unconsumed hold
// of a competition. Used at close time so in-flight holds never block
// closing or skew the threshold comparison.
func (r *HoldRepo) DeleteAllForCompetition(ctx context.Context, competitionID int64) ([]ReleasedHold, error) {
	const op = "postgres.HoldRepo.DeleteAllForCompetition"

	db := r.handle()

	rows, err := db.Query(ctx,
		`DELETE FROM holds
      	 WHERE competition_id = $1 AND NOT consumed
     	 RETURNING id, competition_id, quantity`,
		competitionID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []ReleasedHold
	for rows.Next() {
		var rh ReleasedHold
		if err := rows.Scan(&rh.ID, &rh.CompetitionID, &rh.Quantity); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, rh)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
