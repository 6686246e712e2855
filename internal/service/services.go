package service

import (
	"log/slog"

	postgres "github.com/kirinyoku/raffle-go/internal/repository/postgres"
	redis "github.com/kirinyoku/raffle-go/internal/repository/redis"
	"github.com/kirinyoku/raffle-go/internal/service/admin"
	"github.com/kirinyoku/raffle-go/internal/service/closeout"
	"github.com/kirinyoku/raffle-go/internal/service/draw"
	"github.com/kirinyoku/raffle-go/internal/service/holds"
	"github.com/kirinyoku/raffle-go/internal/service/purchase"
	"github.com/kirinyoku/raffle-go/internal/service/query"
)

type Services struct {
	Holds    *holds.Service
	Purchase *purchase.Service
	Closeout *closeout.Service
	Draw     *draw.Service
	Query    *query.Service
	Admin    *admin.Service
}

type Config struct {
	Holds holds.Config
	Query query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.CompetitionsPubSub,
	limiter *redis.SlidingWindowLimiter,
	refunds *redis.RefundQueue,
	logger *slog.Logger,
	cfg Config,
) *Services {
	holdSvc := holds.New(store, cache, pubsub, limiter, logger, cfg.Holds)

	return &Services{
		Holds:    holdSvc,
		Purchase: purchase.New(store, cache, pubsub, holdSvc, logger),
		Closeout: closeout.New(store, cache, pubsub, refunds, logger),
		Draw:     draw.New(store, cache, pubsub, logger),
		Query:    query.New(store, cache, cfg.Query),
		Admin:    admin.New(store, cache, pubsub),
	}
}
