package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/payment"
	"github.com/kirinyoku/raffle-go/internal/repository"
	postgresrepo "github.com/kirinyoku/raffle-go/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/raffle-go/internal/repository/redis"
	"github.com/kirinyoku/raffle-go/internal/service/holds"
	"github.com/kirinyoku/raffle-go/internal/uow"
)

// Service converts a valid hold plus a successful payment confirmation
// into a permanent entry. It is the only writer of final sales.
type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.CompetitionsPubSub
	holds  *holds.Service
	logger *slog.Logger
	uow    *uow.UoW
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.CompetitionsPubSub,
	holdSvc *holds.Service,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		holds:  holdSvc,
		logger: logger,
		uow:    uow.NewUoW(store),
	}
}

// Complete settles a purchase. The confirmation was obtained from the
// payment provider before this call; no external I/O happens inside the
// commit. A failed confirmation releases the hold so the capacity
// returns to the pool and the user can retry.
//
// The success path is one transaction: lock the hold row, validate it,
// promote the ledger, insert the entry, mark the hold consumed. An expiry
// sweep racing this commit blocks on the hold row and then finds it
// consumed, never expired.
//
// Returns:
//   - error: purchase.ErrHoldNotFound, purchase.ErrHoldExpired,
//     purchase.ErrAlreadyConsumed, purchase.ErrCompetitionClosed,
//     purchase.ErrPaymentFailed.
func (s *Service) Complete(
	ctx context.Context,
	holdID uuid.UUID,
	conf payment.Confirmation,
) (*domain.Entry, error) {
	const op = "service.purchase.Complete"

	if conf.Reference == "" {
		return nil, fmt.Errorf("%s: missing payment reference", op)
	}

	if !conf.Succeeded {
		if _, err := s.holds.Release(ctx, holdID); err != nil &&
			!errors.Is(err, holds.ErrHoldNotFound) {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return nil, fmt.Errorf("%s:%w", op, ErrPaymentFailed)
	}

	var entry *domain.Entry

	err := s.uow.DoWithOpts(ctx, postgresrepo.ReadCommitted, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		h, err := s.store.Holds().With(tx).GetForUpdate(ctx, holdID)
		if err != nil {
			if errors.Is(err, repository.ErrHoldNotFound) {
				return fmt.Errorf("%s:%w", op, ErrHoldNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if h.Consumed {
			return fmt.Errorf("%s:%w", op, ErrAlreadyConsumed)
		}

		now := time.Now()
		if h.Expired(now) {
			return fmt.Errorf("%s:%w", op, ErrHoldExpired)
		}

		comp, err := s.store.Competitions().With(tx).Get(ctx, h.CompetitionID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if comp.Status != domain.CompetitionOpen {
			return fmt.Errorf("%s:%w", op, ErrCompetitionClosed)
		}

		firstTicket, err := s.store.Ledger().With(tx).Promote(ctx, h.CompetitionID, h.Quantity)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		entry = &domain.Entry{
			ID:            uuid.New(),
			CompetitionID: h.CompetitionID,
			UserID:        h.UserID,
			FirstTicket:   firstTicket,
			Quantity:      h.Quantity,
			PaymentRef:    conf.Reference,
			CreatedAt:     now,
		}

		if err := s.store.Entries().With(tx).Insert(ctx, entry); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := s.store.Holds().With(tx).MarkConsumed(ctx, holdID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateCompetition(ctx, entry.CompetitionID)
			_ = s.pubsub.PublishCompetitionChanged(ctx, entry.CompetitionID)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase settled",
		"competition_id", entry.CompetitionID,
		"entry_id", entry.ID,
		"first_ticket", entry.FirstTicket,
		"quantity", entry.Quantity,
	)

	return entry, nil
}
