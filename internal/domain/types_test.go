package domain

import (
	"slices"
	"testing"
	"time"
)

func TestEntryTicketNumbers(t *testing.T) {
	e := Entry{FirstTicket: 101, Quantity: 4}

	want := []int64{101, 102, 103, 104}
	if got := e.TicketNumbers(); !slices.Equal(got, want) {
		t.Fatalf("TicketNumbers() = %v, want %v", got, want)
	}

	single := Entry{FirstTicket: 1, Quantity: 1}
	if got := single.TicketNumbers(); !slices.Equal(got, []int64{1}) {
		t.Fatalf("single ticket block = %v", got)
	}
}

func TestEntryHasTicket(t *testing.T) {
	e := Entry{FirstTicket: 10, Quantity: 3}

	for _, n := range []int64{10, 11, 12} {
		if !e.HasTicket(n) {
			t.Fatalf("HasTicket(%d) = false, want true", n)
		}
	}
	for _, n := range []int64{9, 13, 0, -1} {
		if e.HasTicket(n) {
			t.Fatalf("HasTicket(%d) = true, want false", n)
		}
	}
}

func TestHoldExpired(t *testing.T) {
	now := time.Now()
	h := Hold{ExpiresAt: now.Add(time.Minute)}

	if h.Expired(now) {
		t.Fatal("future expiry reported expired")
	}
	if !h.Expired(now.Add(time.Minute)) {
		t.Fatal("expiry instant not reported expired")
	}
	if !h.Expired(now.Add(2 * time.Minute)) {
		t.Fatal("past expiry not reported expired")
	}
}
