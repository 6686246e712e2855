package closeout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/payment"
	"github.com/kirinyoku/raffle-go/internal/repository"
	postgresrepo "github.com/kirinyoku/raffle-go/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/raffle-go/internal/repository/redis"
	"github.com/kirinyoku/raffle-go/internal/uow"
)

// RefundQueue is the outbound channel for refund instructions. Satisfied
// by the Redis-backed queue in repository/redis.
type RefundQueue interface {
	Enqueue(ctx context.Context, instructions ...payment.RefundInstruction) error
}

// Service evaluates a competition at close time: it force-releases any
// remaining holds, compares the final sold count against the threshold,
// and either settles the competition or cancels it and emits one refund
// instruction per entry.
type Service struct {
	store   *postgresrepo.Store
	cache   *redisrepo.Cache
	pubsub  *redisrepo.CompetitionsPubSub
	refunds RefundQueue
	logger  *slog.Logger
	uow     *uow.UoW
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.CompetitionsPubSub,
	refunds RefundQueue,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		refunds: refunds,
		logger:  logger,
		uow:     uow.NewUoW(store),
	}
}

// Close runs the close-time evaluation. Idempotent: invoking it on an
// already-settled or refunded competition returns the recorded status
// without touching state, so a scheduler firing twice is harmless.
//
// Returns:
//   - domain.CompetitionStatus: the competition's status after evaluation.
//   - error: closeout.ErrCompetitionNotFound if the competition is unknown.
func (s *Service) Close(ctx context.Context, competitionID int64) (domain.CompetitionStatus, error) {
	const op = "service.closeout.Close"

	var status domain.CompetitionStatus

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		comp, err := s.store.Competitions().With(tx).GetForUpdate(ctx, competitionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrCompetitionNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if comp.Status != domain.CompetitionOpen {
			status = comp.Status
			return nil
		}

		// In-flight unpurchased holds must not skew the threshold
		// comparison or block closing.
		released, err := s.store.Holds().With(tx).DeleteAllForCompetition(ctx, competitionID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		for _, rh := range released {
			if err := s.store.Ledger().With(tx).Release(ctx, rh.CompetitionID, rh.Quantity); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		lc, err := s.store.Ledger().With(tx).Snapshot(ctx, competitionID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		status = Outcome(lc.Sold, comp.MinTickets)

		if err := s.store.Competitions().With(tx).SetClosedStatus(ctx, competitionID, status); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		var instructions []payment.RefundInstruction
		if status == domain.CompetitionClosedRefunded {
			entries, err := s.store.Entries().With(tx).MarkAllRefunded(ctx, competitionID)
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}

			for _, e := range entries {
				instructions = append(instructions, payment.RefundInstruction{
					EntryID:       e.ID,
					CompetitionID: e.CompetitionID,
					UserID:        e.UserID,
					PaymentRef:    e.PaymentRef,
					Amount:        payment.AmountForTickets(comp.PriceCents, e.Quantity),
				})
			}
		}

		sold := lc.Sold
		forced := int64(len(released))

		after(func(ctx context.Context) {
			if s.refunds != nil && len(instructions) > 0 {
				if err := s.refunds.Enqueue(ctx, instructions...); err != nil {
					s.logger.Error("failed to enqueue refund instructions",
						"competition_id", competitionID, "error", err)
				}
			}

			if s.cache != nil {
				_ = s.cache.InvalidateCompetition(ctx, competitionID)
			}
			if s.pubsub != nil {
				_ = s.pubsub.PublishCompetitionChanged(ctx, competitionID)
			}

			s.logger.Info("competition closed",
				"competition_id", competitionID,
				"status", string(status),
				"sold", sold,
				"holds_force_released", forced,
				"refund_instructions", len(instructions),
			)
		})

		return nil
	})
	if err != nil {
		return "", err
	}

	return status, nil
}

// CloseDue closes every open competition whose close time has passed.
// Scheduler entry point.
func (s *Service) CloseDue(ctx context.Context, now time.Time) error {
	const op = "service.closeout.CloseDue"

	ids, err := s.store.Competitions().ListOpenDue(ctx, now)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	for _, id := range ids {
		if _, err := s.Close(ctx, id); err != nil {
			s.logger.Error("close-time evaluation failed", "competition_id", id, "error", err)
		}
	}

	return nil
}
