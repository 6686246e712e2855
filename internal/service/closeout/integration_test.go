package closeout_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/raffle-go/internal/domain"
	"github.com/kirinyoku/raffle-go/internal/payment"
	postgres "github.com/kirinyoku/raffle-go/internal/repository/postgres"
	"github.com/kirinyoku/raffle-go/internal/service/closeout"
)

type refundRecorder struct {
	mu           sync.Mutex
	instructions []payment.RefundInstruction
}

func (r *refundRecorder) Enqueue(ctx context.Context, ins ...payment.RefundInstruction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instructions = append(r.instructions, ins...)
	return nil
}

func (r *refundRecorder) all() []payment.RefundInstruction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]payment.RefundInstruction(nil), r.instructions...)
}

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

// sellTickets reserves, promotes and records an entry for qty tickets,
// the same ledger movements a settled purchase performs.
func sellTickets(t *testing.T, store *postgres.Store, competitionID, userID, qty int64, ref string) uuid.UUID {
	t.Helper()

	ctx := context.Background()

	if err := store.Ledger().Reserve(ctx, competitionID, qty); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	first, err := store.Ledger().Promote(ctx, competitionID, qty)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}

	e := &domain.Entry{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		UserID:        userID,
		FirstTicket:   first,
		Quantity:      qty,
		PaymentRef:    ref,
		CreatedAt:     time.Now(),
	}
	if err := store.Entries().Insert(ctx, e); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	return e.ID
}

func TestCloseBelowThresholdRefundsEveryEntryOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	threshold := int64(50)
	const priceCents = 500

	id, err := store.Competitions().Create(
		ctx, "underfunded competition", 100, &threshold, priceCents, 1, time.Now().Add(time.Hour),
	)
	if err != nil {
		t.Fatalf("create competition: %v", err)
	}
	if err := store.Ledger().Init(ctx, id, 100); err != nil {
		t.Fatalf("init ledger: %v", err)
	}

	wantEntries := map[uuid.UUID]int64{
		sellTickets(t, store, id, 1, 2, "pay-1"): 2,
		sellTickets(t, store, id, 2, 3, "pay-2"): 3,
		sellTickets(t, store, id, 3, 5, "pay-3"): 5,
	}

	rec := &refundRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := closeout.New(store, nil, nil, rec, logger)

	status, err := svc.Close(ctx, id)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if status != domain.CompetitionClosedRefunded {
		t.Fatalf("status = %q, want %q", status, domain.CompetitionClosedRefunded)
	}

	got := rec.all()
	if len(got) != len(wantEntries) {
		t.Fatalf("emitted %d refund instructions, want %d", len(got), len(wantEntries))
	}
	for _, in := range got {
		qty, ok := wantEntries[in.EntryID]
		if !ok {
			t.Fatalf("instruction for unknown entry %s", in.EntryID)
		}
		delete(wantEntries, in.EntryID)

		if in.CompetitionID != id {
			t.Fatalf("instruction competition = %d, want %d", in.CompetitionID, id)
		}
		want := payment.AmountForTickets(priceCents, qty)
		if !in.Amount.Equal(want) {
			t.Fatalf("entry %s amount = %s, want %s", in.EntryID, in.Amount, want)
		}
	}

	entries, err := store.Entries().ListByCompetition(ctx, id)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	for _, e := range entries {
		if !e.Refunded {
			t.Fatalf("entry %s not flagged refunded", e.ID)
		}
	}

	// Re-closing is a no-op: same status, no duplicate instructions.
	status, err = svc.Close(ctx, id)
	if err != nil {
		t.Fatalf("re-close: %v", err)
	}
	if status != domain.CompetitionClosedRefunded {
		t.Fatalf("re-close status = %q", status)
	}
	if n := len(rec.all()); n != 3 {
		t.Fatalf("re-close emitted duplicates: %d instructions total", n)
	}
}

func TestCloseAtThresholdSettlesWithoutRefunds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	threshold := int64(5)

	id, err := store.Competitions().Create(
		ctx, "funded competition", 100, &threshold, 500, 1, time.Now().Add(time.Hour),
	)
	if err != nil {
		t.Fatalf("create competition: %v", err)
	}
	if err := store.Ledger().Init(ctx, id, 100); err != nil {
		t.Fatalf("init ledger: %v", err)
	}

	sellTickets(t, store, id, 1, 5, "pay-1")

	rec := &refundRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := closeout.New(store, nil, nil, rec, logger)

	status, err := svc.Close(ctx, id)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if status != domain.CompetitionClosedSettled {
		t.Fatalf("status = %q, want %q", status, domain.CompetitionClosedSettled)
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("settled close emitted %d refund instructions", n)
	}
}
