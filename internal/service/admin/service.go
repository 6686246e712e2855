package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/raffle-go/internal/repository"
	postgresrepo "github.com/kirinyoku/raffle-go/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/raffle-go/internal/repository/redis"
	"github.com/kirinyoku/raffle-go/internal/uow"
)

type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub *redisrepo.CompetitionsPubSub
	uow    *uow.UoW
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, pubsub *redisrepo.CompetitionsPubSub) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
	}
}

// CreateCompetition creates a competition and its ledger row in one
// transaction. The total ticket count is fixed here and never changes.
//
// Parameters:
//   - minTickets: nil disables the threshold, the competition always
//     proceeds to a draw.
//   - prizeCount: number of distinct winning tickets, at least 1.
//
// Returns:
//   - int64: the created competition ID.
//   - error: admin.ErrInvalidCompetition on bad parameters.
func (s *Service) CreateCompetition(
	ctx context.Context,
	title string,
	totalTickets int64,
	minTickets *int64,
	priceCents int64,
	prizeCount int,
	closesAt time.Time,
) (int64, error) {
	const op = "service.admin.CreateCompetition"

	if title == "" || totalTickets <= 0 || priceCents <= 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidCompetition)
	}

	if minTickets != nil && (*minTickets < 0 || *minTickets > totalTickets) {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidCompetition)
	}

	if prizeCount <= 0 {
		prizeCount = 1
	}

	if !closesAt.After(time.Now()) {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidCompetition)
	}

	var id int64

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		var err error
		id, err = s.store.Competitions().
			With(tx).
			Create(ctx, title, totalTickets, minTickets, priceCents, prizeCount, closesAt)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s: %w", op, ErrCompetitionConflict)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.store.Ledger().With(tx).Init(ctx, id, totalTickets); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.pubsub.PublishCompetitionChanged(ctx, id)
		})

		return nil
	})

	return id, err
}
