package draw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/repository"
	postgresrepo "github.com/kirinyoku/raffle-go/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/raffle-go/internal/repository/redis"
	"github.com/kirinyoku/raffle-go/internal/uow"
)

const seedBytes = 32

// Service runs the verifiable draw for settled competitions. Seed
// acquisition is separated from selection: the seed is generated here,
// recorded in the draw row, and Pick derives the winners from it, so the
// result is reproducible by anyone holding the record.
type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.CompetitionsPubSub
	logger *slog.Logger
	uow    *uow.UoW
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.CompetitionsPubSub,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		logger: logger,
		uow:    uow.NewUoW(store),
	}
}

// Run draws the winners for a settled competition. Single-shot: the draw
// row's primary key guarantees a second invocation fails with
// draw.ErrAlreadyDrawn and mutates nothing.
//
// Returns:
//   - error: draw.ErrNotSettled unless the competition is CLOSED_SETTLED.
//   - error: draw.ErrAlreadyDrawn on repeat invocation.
//   - error: draw.ErrNoEntries if the competition settled with zero sales
//     (possible only when no threshold is configured).
func (s *Service) Run(ctx context.Context, competitionID int64) (*domain.DrawRecord, error) {
	const op = "service.draw.Run"

	seed := make([]byte, seedBytes)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var record *domain.DrawRecord

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

		if comp.Status != domain.CompetitionClosedSettled {
			return fmt.Errorf("%s:%w", op, ErrNotSettled)
		}

		tickets, err := s.store.Entries().With(tx).SoldTicketNumbers(ctx, competitionID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if len(tickets) == 0 {
			return fmt.Errorf("%s:%w", op, ErrNoEntries)
		}

		prizes := comp.PrizeCount
		if prizes <= 0 {
			prizes = 1
		}

		record = &domain.DrawRecord{
			CompetitionID:  competitionID,
			Seed:           hex.EncodeToString(seed),
			Algorithm:      Algorithm,
			WinningNumbers: Pick(seed, tickets, prizes),
			DrawnAt:        time.Now(),
		}

		if err := s.store.Draws().With(tx).Insert(ctx, record); err != nil {
			if errors.Is(err, repository.ErrAlreadyDrawn) {
				return fmt.Errorf("%s:%w", op, ErrAlreadyDrawn)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := s.store.Competitions().With(tx).SetWinningNumbers(ctx, competitionID, record.WinningNumbers); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateCompetition(ctx, competitionID)
			_ = s.pubsub.PublishCompetitionChanged(ctx, competitionID)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draw completed",
		"competition_id", competitionID,
		"winning_numbers", record.WinningNumbers,
		"seed", record.Seed,
		"algorithm", record.Algorithm,
	)

	return record, nil
}

// RunPending draws every settled competition that does not have a draw
// record yet. Scheduler entry point; safe under duplicate firing because
// Run is single-shot.
func (s *Service) RunPending(ctx context.Context) error {
	const op = "service.draw.RunPending"

	ids, err := s.store.Competitions().ListSettledUndrawn(ctx)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	for _, id := range ids {
		if _, err := s.Run(ctx, id); err != nil && !errors.Is(err, ErrAlreadyDrawn) {
			s.logger.Error("draw failed", "competition_id", id, "error", err)
		}
	}

	return nil
}
