package postgres_test

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/repository"
	postgres "github.com/kirinyoku/raffle-go/internal/repository/postgres"
)

// newTestStore connects to the database named by TEST_DATABASE_DSN and
// applies the schema. Tests are skipped when the variable is unset, so
// the suite stays runnable without infrastructure.
func newTestStore(t *testing.T) *postgres.Store {
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

	return postgres.NewStore(pool)
}

func createCompetition(t *testing.T, store *postgres.Store, total int64) int64 {
	t.Helper()

	ctx := context.Background()

	id, err := store.Competitions().Create(
		ctx, "test competition", total, nil, 500, 1, time.Now().Add(time.Hour),
	)
	if err != nil {
		t.Fatalf("create competition: %v", err)
	}
	if err := store.Ledger().Init(ctx, id, total); err != nil {
		t.Fatalf("init ledger: %v", err)
	}

	return id
}

func TestLedgerReserveNeverOversells(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const total = 10
	const attempts = 40

	id := createCompetition(t, store, total)

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Ledger().Reserve(ctx, id, 1)
		}()
	}
	wg.Wait()
	close(results)

	var ok, full int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrInsufficientCapacity):
			full++
		default:
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}

	if ok != total {
		t.Fatalf("reserved %d units of %d", ok, total)
	}
	if full != attempts-total {
		t.Fatalf("expected %d capacity failures, got %d", attempts-total, full)
	}

	lc, err := store.Ledger().Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if lc.Held != total || lc.Available != 0 {
		t.Fatalf("snapshot after full reservation: %+v", lc)
	}
}

func TestLedgerReleaseUnderflow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := createCompetition(t, store, 5)

	if err := store.Ledger().Reserve(ctx, id, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	err := store.Ledger().Release(ctx, id, 3)
	if !errors.Is(err, repository.ErrLedgerUnderflow) {
		t.Fatalf("want ErrLedgerUnderflow, got %v", err)
	}

	lc, err := store.Ledger().Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if lc.Held != 2 {
		t.Fatalf("failed release touched counters: %+v", lc)
	}
}

func TestLedgerPromoteAssignsDisjointBlocks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	const qty = 3

	id := createCompetition(t, store, workers*qty)

	if err := store.Ledger().Reserve(ctx, id, workers*qty); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var wg sync.WaitGroup
	firsts := make(chan int64, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := store.Ledger().Promote(ctx, id, qty)
			if err != nil {
				t.Errorf("promote: %v", err)
				return
			}
			firsts <- first
		}()
	}
	wg.Wait()
	close(firsts)

	taken := make(map[int64]bool)
	for first := range firsts {
		for n := first; n < first+qty; n++ {
			if n < 1 || n > workers*qty {
				t.Fatalf("ticket %d outside [1,%d]", n, workers*qty)
			}
			if taken[n] {
				t.Fatalf("ticket %d assigned twice", n)
			}
			taken[n] = true
		}
	}
	if len(taken) != workers*qty {
		t.Fatalf("assigned %d tickets, want %d", len(taken), workers*qty)
	}
}

func TestHoldReleaseExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := createCompetition(t, store, 10)

	h := &domain.Hold{
		ID:            uuid.New(),
		CompetitionID: id,
		SessionID:     "sess-release-race",
		UserID:        1,
		Quantity:      2,
		CreatedAt:     time.Now(),
		ExpiresAt:     time.Now().Add(time.Minute),
	}
	if err := store.Ledger().Reserve(ctx, id, h.Quantity); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Holds().Insert(ctx, h); err != nil {
		t.Fatalf("insert hold: %v", err)
	}

	const racers = 4
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Holds().Release(ctx, h.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, repository.ErrHoldNotFound):
			lost++
		default:
			t.Fatalf("unexpected release error: %v", err)
		}
	}

	if won != 1 {
		t.Fatalf("hold released %d times", won)
	}
	if lost != racers-1 {
		t.Fatalf("expected %d losers, got %d", racers-1, lost)
	}
}

func TestHoldMarkConsumedIsTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := createCompetition(t, store, 10)

	h := &domain.Hold{
		ID:            uuid.New(),
		CompetitionID: id,
		SessionID:     "sess-consume",
		UserID:        1,
		Quantity:      1,
		CreatedAt:     time.Now(),
		ExpiresAt:     time.Now().Add(time.Minute),
	}
	if err := store.Ledger().Reserve(ctx, id, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Holds().Insert(ctx, h); err != nil {
		t.Fatalf("insert hold: %v", err)
	}

	if err := store.Holds().MarkConsumed(ctx, h.ID); err != nil {
		t.Fatalf("first consume: %v", err)
	}

	if err := store.Holds().MarkConsumed(ctx, h.ID); !errors.Is(err, repository.ErrHoldConsumed) {
		t.Fatalf("second consume: want ErrHoldConsumed, got %v", err)
	}

	// A consumed hold is no longer releasable and the sweep must skip it.
	if _, err := store.Holds().Release(ctx, h.ID); !errors.Is(err, repository.ErrHoldNotFound) {
		t.Fatalf("release of consumed hold: want ErrHoldNotFound, got %v", err)
	}
}

func TestListSettledUndrawnSkipsZeroSales(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Settled without a single sale: the pending-draw scan must never
	// pick it up, there is nothing to draw from.
	emptyID := createCompetition(t, store, 10)
	if err := store.Competitions().SetClosedStatus(ctx, emptyID, domain.CompetitionClosedSettled); err != nil {
		t.Fatalf("settle empty competition: %v", err)
	}

	soldID := createCompetition(t, store, 10)
	if err := store.Ledger().Reserve(ctx, soldID, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	first, err := store.Ledger().Promote(ctx, soldID, 2)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := store.Entries().Insert(ctx, &domain.Entry{
		ID:            uuid.New(),
		CompetitionID: soldID,
		UserID:        1,
		FirstTicket:   first,
		Quantity:      2,
		PaymentRef:    "pay-1",
		CreatedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("insert entry: %v", err)
	}
	if err := store.Competitions().SetClosedStatus(ctx, soldID, domain.CompetitionClosedSettled); err != nil {
		t.Fatalf("settle sold competition: %v", err)
	}

	ids, err := store.Competitions().ListSettledUndrawn(ctx)
	if err != nil {
		t.Fatalf("list settled undrawn: %v", err)
	}

	if !slices.Contains(ids, soldID) {
		t.Fatalf("settled competition with sales missing from scan: %v", ids)
	}
	if slices.Contains(ids, emptyID) {
		t.Fatalf("zero-sale competition %d selected for draw", emptyID)
	}
}

func TestDrawInsertIsSingleShot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := createCompetition(t, store, 10)

	rec := &domain.DrawRecord{
		CompetitionID:  id,
		Seed:           "00ff00ff",
		Algorithm:      "sha256-counter-v1",
		WinningNumbers: []int64{3},
		DrawnAt:        time.Now(),
	}

	if err := store.Draws().Insert(ctx, rec); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	if err := store.Draws().Insert(ctx, rec); !errors.Is(err, repository.ErrAlreadyDrawn) {
		t.Fatalf("second insert: want ErrAlreadyDrawn, got %v", err)
	}
}
