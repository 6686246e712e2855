package holds_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/kirinyoku/raffle-go/internal/repository/postgres"
	"github.com/kirinyoku/raffle-go/internal/service/holds"
)

func newTestService(t *testing.T) (*holds.Service, *postgres.Store, int64) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../../migrations/0001_init.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	store := postgres.NewStore(pool)

	const total = 5
	id, err := store.Competitions().Create(
		ctx, "test competition", total, nil, 500, 1, time.Now().Add(time.Hour),
	)
	if err != nil {
		t.Fatalf("create competition: %v", err)
	}
	if err := store.Ledger().Init(ctx, id, total); err != nil {
		t.Fatalf("init ledger: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := holds.New(store, nil, nil, nil, logger, holds.Config{})

	return svc, store, id
}

func TestCreateSupersedeSurvivesFailedUpgrade(t *testing.T) {
	svc, store, id := newTestService(t)
	ctx := context.Background()

	h1, err := svc.Create(ctx, id, "sess-upgrade", 1, 3, 0, "")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Upgrading to a quantity that cannot fit must fail with capacity,
	// and the superseded hold must stay released.
	_, err = svc.Create(ctx, id, "sess-upgrade", 1, 10, 0, "")
	if !errors.Is(err, holds.ErrInsufficientCapacity) {
		t.Fatalf("upgrade: want ErrInsufficientCapacity, got %v", err)
	}

	if _, err := svc.Release(ctx, h1.ID); !errors.Is(err, holds.ErrHoldNotFound) {
		t.Fatalf("superseded hold still releasable: got %v", err)
	}

	lc, err := store.Ledger().Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if lc.Held != 0 {
		t.Fatalf("held = %d after failed upgrade, want 0", lc.Held)
	}

	// The full capacity is back: a fresh hold for everything succeeds.
	if _, err := svc.Create(ctx, id, "sess-upgrade", 1, 5, 0, ""); err != nil {
		t.Fatalf("create after failed upgrade: %v", err)
	}
}

func TestCreateConcurrentSessionsNeverOversell(t *testing.T) {
	svc, store, id := newTestService(t)
	ctx := context.Background()

	const attempts = 12

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Create(ctx, id, fmt.Sprintf("sess-%d", n), int64(n), 1, 0, "")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, full int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, holds.ErrInsufficientCapacity):
			full++
		default:
			t.Fatalf("unexpected create error: %v", err)
		}
	}

	if ok != 5 {
		t.Fatalf("created %d holds of capacity 5", ok)
	}
	if full != attempts-5 {
		t.Fatalf("expected %d capacity failures, got %d", attempts-5, full)
	}

	lc, err := store.Ledger().Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if lc.Held != 5 || lc.Available != 0 {
		t.Fatalf("snapshot after concurrent creates: %+v", lc)
	}
}
