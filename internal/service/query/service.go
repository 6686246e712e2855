package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/repository"
	postgresrepo "github.com/kirinyoku/raffle-go/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/raffle-go/internal/repository/redis"
)

type Config struct {
	SummaryTTL      time.Duration
	AvailabilityTTL time.Duration
	DrawTTL         time.Duration
	DefaultPage     int
	MaxPage         int
}

type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = 60 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 5 * time.Second
	}

	if cfg.DrawTTL <= 0 {
		cfg.DrawTTL = 10 * time.Minute
	}

	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 100
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 500
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// GetCompetition returns the competition with its ledger counts, through
// the summary cache.
func (s *Service) GetCompetition(ctx context.Context, id int64) (*domain.CompetitionWithCounts, error) {
	const op = "service.query.GetCompetition"

	key := redisrepo.KeyCompetitionSummary(id)

	out, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.SummaryTTL,
		func(ctx context.Context) (domain.CompetitionWithCounts, error) {
			cc, err := s.store.Query().CompetitionWithCounts(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.CompetitionWithCounts{}, ErrCompetitionNotFound
				}

				return domain.CompetitionWithCounts{}, err
			}

			return *cc, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// Availability returns the ledger snapshot with a short cache window: it
// backs a polled endpoint and staleness beyond a few seconds only makes
// the UI lie, not the ledger.
func (s *Service) Availability(ctx context.Context, competitionID int64) (*domain.LedgerCounts, error) {
	const op = "service.query.Availability"

	key := redisrepo.KeyCompetitionAvailability(competitionID)

	lc, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.LedgerCounts, error) {
			snapshot, err := s.store.Ledger().Snapshot(ctx, competitionID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.LedgerCounts{}, ErrCompetitionNotFound
				}

				return domain.LedgerCounts{}, err
			}

			return *snapshot, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &lc, nil
}

func (s *Service) ListCompetitions(ctx context.Context, limit, offset int) ([]domain.Competition, error) {
	const op = "service.query.ListCompetitions"

	limit = s.clampPage(limit)

	out, err := s.store.Competitions().List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (*domain.Entry, error) {
	const op = "service.query.GetEntry"

	e, err := s.store.Entries().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrEntryNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return e, nil
}

func (s *Service) ListCompetitionEntries(ctx context.Context, competitionID int64) ([]domain.Entry, error) {
	const op = "service.query.ListCompetitionEntries"

	entries, err := s.store.Entries().ListByCompetition(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

func (s *Service) ListUserEntries(ctx context.Context, userID int64, limit, offset int) ([]domain.Entry, error) {
	const op = "service.query.ListUserEntries"

	limit = s.clampPage(limit)

	entries, err := s.store.Entries().ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

// GetDraw returns the draw record, cached: once written it never changes.
func (s *Service) GetDraw(ctx context.Context, competitionID int64) (*domain.DrawRecord, error) {
	const op = "service.query.GetDraw"

	key := redisrepo.KeyCompetitionDraw(competitionID)

	d, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.DrawTTL,
		func(ctx context.Context) (domain.DrawRecord, error) {
			rec, err := s.store.Draws().Get(ctx, competitionID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.DrawRecord{}, ErrDrawNotFound
				}

				return domain.DrawRecord{}, err
			}

			return *rec, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &d, nil
}

func (s *Service) clampPage(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultPage
	}

	if limit > s.cfg.MaxPage {
		return s.cfg.MaxPage
	}

	return limit
}
