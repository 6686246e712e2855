package holds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/repository"
	postgresrepo "github.com/kirinyoku/raffle-go/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/raffle-go/internal/repository/redis"
	"github.com/kirinyoku/raffle-go/internal/uow"
)

type Config struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
}

// Service is the hold manager: it creates, renews, releases and sweeps
// time-bounded ticket holds, always moving the ledger in the same
// transaction as the hold row.
type Service struct {
	store   *postgresrepo.Store
	cache   *redisrepo.Cache
	pubsub  *redisrepo.CompetitionsPubSub
	limiter *redisrepo.SlidingWindowLimiter
	logger  *slog.Logger
	uow     *uow.UoW
	cfg     Config
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisrepo.CompetitionsPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}

	if cfg.MinTTL <= 0 {
		cfg.MinTTL = 15 * time.Second
	}

	if cfg.MaxTTL <= 0 || cfg.MaxTTL < cfg.MinTTL {
		cfg.MaxTTL = 30 * time.Minute
	}

	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		logger:  logger,
		uow:     uow.NewUoW(store),
		cfg:     cfg,
	}
}

// Create reserves qty tickets for a session. A session keeps at most one
// active hold per competition: any prior hold is released first, and the
// release commits even when the new reservation fails for capacity, so a
// failed upgrade never resurrects the old hold. The session retries from
// scratch.
//
// Returns:
//   - error: holds.ErrInsufficientCapacity when qty exceeds remaining capacity.
//   - error: holds.ErrCompetitionClosed when the competition is past close.
//   - error: holds.ErrCompetitionNotFound when the competition is unknown.
func (s *Service) Create(
	ctx context.Context,
	competitionID int64,
	sessionID string,
	userID int64,
	qty int64,
	ttl time.Duration,
	rlKey string,
) (*domain.Hold, error) {
	const op = "service.holds.Create"

	if qty <= 0 {
		return nil, fmt.Errorf("%s: quantity must be positive", op)
	}

	if sessionID == "" {
		return nil, fmt.Errorf("%s: missing session id", op)
	}

	ttl = s.clampTTL(ttl)

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: rate limited, retry in %s", op, retry)
		}
	}

	now := time.Now()
	hold := &domain.Hold{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		SessionID:     sessionID,
		UserID:        userID,
		Quantity:      qty,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}

	var capacityErr error

	err := s.uow.DoWithOpts(ctx, postgresrepo.ReadCommitted, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		capacityErr = nil

		// The competition row lock orders creates against close-time
		// evaluation: a hold can never be inserted after close committed.
		comp, err := s.store.Competitions().With(tx).GetForUpdate(ctx, competitionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrCompetitionNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if comp.Status != domain.CompetitionOpen || !comp.ClosesAt.After(now) {
			return fmt.Errorf("%s:%w", op, ErrCompetitionClosed)
		}

		// Supersede the session's previous hold before evaluating the new
		// reservation.
		prev, err := s.store.Holds().With(tx).ReleaseActiveBySession(ctx, competitionID, sessionID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if prev != nil {
			if err := s.store.Ledger().With(tx).Release(ctx, competitionID, prev.Quantity); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		if err := s.store.Ledger().With(tx).Reserve(ctx, competitionID, qty); err != nil {
			if errors.Is(err, repository.ErrInsufficientCapacity) {
				// The capacity failure must not roll back the supersede:
				// commit with only the release applied and surface the
				// error after the transaction.
				capacityErr = fmt.Errorf("%s:%w", op, ErrInsufficientCapacity)
				if prev != nil {
					after(func(ctx context.Context) {
						s.notifyChanged(ctx, competitionID)
					})
				}
				return nil
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := s.store.Holds().With(tx).Insert(ctx, hold); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s:%w", op, ErrHoldConflict)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			s.notifyChanged(ctx, competitionID)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	if capacityErr != nil {
		return nil, capacityErr
	}

	return hold, nil
}

// Renew extends a hold's expiry from now.
//
// Returns:
//   - error: holds.ErrHoldExpired if the hold already lapsed (the sweep
//     may have released it).
//   - error: holds.ErrHoldNotFound if the hold is unknown.
func (s *Service) Renew(ctx context.Context, holdID uuid.UUID, ttl time.Duration) (*domain.Hold, error) {
	const op = "service.holds.Renew"

	ttl = s.clampTTL(ttl)

	h, err := s.store.Holds().Renew(ctx, holdID, ttl)
	if err != nil {
		if errors.Is(err, repository.ErrHoldExpired) {
			return nil, fmt.Errorf("%s:%w", op, ErrHoldExpired)
		}
		if errors.Is(err, repository.ErrHoldNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrHoldNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return h, nil
}

// Release gives the hold's capacity back to the pool.
//
// Returns:
//   - error: holds.ErrHoldNotFound if the hold is unknown, consumed or
//     already released.
func (s *Service) Release(ctx context.Context, holdID uuid.UUID) (int64, error) {
	const op = "service.holds.Release"

	var competitionID int64

	err := s.uow.DoWithOpts(ctx, postgresrepo.ReadCommitted, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		rh, err := s.store.Holds().With(tx).Release(ctx, holdID)
		if err != nil {
			if errors.Is(err, repository.ErrHoldNotFound) {
				return fmt.Errorf("%s:%w", op, ErrHoldNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		competitionID = rh.CompetitionID

		if err := s.store.Ledger().With(tx).Release(ctx, rh.CompetitionID, rh.Quantity); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			s.notifyChanged(ctx, competitionID)
		})

		return nil
	})

	return competitionID, err
}

// Expire sweeps lapsed holds and returns how many were released. The
// delete and the ledger decrements commit together, so a hold's quantity
// is released exactly once no matter how the sweep races a release call
// or an in-flight purchase.
func (s *Service) Expire(ctx context.Context) (int64, error) {
	const op = "service.holds.Expire"

	var released int64

	err := s.uow.DoWithOpts(ctx, postgresrepo.ReadCommitted, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		expired, err := s.store.Holds().With(tx).DeleteExpired(ctx)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		seen := make(map[int64]struct{})
		for _, rh := range expired {
			if err := s.store.Ledger().With(tx).Release(ctx, rh.CompetitionID, rh.Quantity); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			seen[rh.CompetitionID] = struct{}{}
		}

		released = int64(len(expired))

		if len(seen) > 0 {
			ids := make([]int64, 0, len(seen))
			for id := range seen {
				ids = append(ids, id)
			}
			after(func(ctx context.Context) {
				for _, id := range ids {
					s.notifyChanged(ctx, id)
				}
			})
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	if released > 0 {
		s.logger.Info("expired holds released", "count", released)
	}

	return released, nil
}

// Availability returns the competition's current ledger snapshot.
func (s *Service) Availability(ctx context.Context, competitionID int64) (*domain.LedgerCounts, error) {
	const op = "service.holds.Availability"

	lc, err := s.store.Ledger().Snapshot(ctx, competitionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrCompetitionNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return lc, nil
}

func (s *Service) notifyChanged(ctx context.Context, competitionID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateCompetition(ctx, competitionID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishCompetitionChanged(ctx, competitionID)
	}
}

func (s *Service) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.cfg.DefaultTTL
	}

	if ttl < s.cfg.MinTTL {
		return s.cfg.MinTTL
	}

	if ttl > s.cfg.MaxTTL {
		return s.cfg.MaxTTL
	}

	return ttl
}
