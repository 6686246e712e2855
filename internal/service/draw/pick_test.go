package draw

import (
	"encoding/hex"
	"slices"
	"testing"
)

func TestPick(t *testing.T) {
	seed := []byte("fixed-seed-for-tests")
	tickets := []int64{7, 3, 12, 1, 9, 5, 42, 8}

	t.Run("deterministic", func(t *testing.T) {
		a := Pick(seed, tickets, 3)
		b := Pick(seed, tickets, 3)
		if !slices.Equal(a, b) {
			t.Fatalf("same seed produced different winners: %v vs %v", a, b)
		}
	})

	t.Run("input order does not matter", func(t *testing.T) {
		shuffled := []int64{42, 1, 9, 7, 5, 3, 8, 12}
		a := Pick(seed, tickets, 3)
		b := Pick(seed, shuffled, 3)
		if !slices.Equal(a, b) {
			t.Fatalf("ticket order changed winners: %v vs %v", a, b)
		}
	})

	t.Run("winners are distinct and from the pool", func(t *testing.T) {
		winners := Pick(seed, tickets, 5)
		if len(winners) != 5 {
			t.Fatalf("want 5 winners, got %d", len(winners))
		}
		seen := make(map[int64]bool)
		for _, w := range winners {
			if seen[w] {
				t.Fatalf("duplicate winner %d in %v", w, winners)
			}
			seen[w] = true
			if !slices.Contains(tickets, w) {
				t.Fatalf("winner %d is not a sold ticket", w)
			}
		}
	})

	t.Run("n at or above pool size wins everything", func(t *testing.T) {
		for _, n := range []int{len(tickets), len(tickets) + 1, 100} {
			winners := Pick(seed, tickets, n)
			if len(winners) != len(tickets) {
				t.Fatalf("n=%d: want %d winners, got %d", n, len(tickets), len(winners))
			}
			if !slices.IsSorted(winners) {
				t.Fatalf("n=%d: full-pool result not sorted: %v", n, winners)
			}
		}
	})

	t.Run("different seeds diverge", func(t *testing.T) {
		a := Pick([]byte("seed-a"), tickets, 4)
		b := Pick([]byte("seed-b"), tickets, 4)
		if slices.Equal(a, b) {
			t.Fatalf("distinct seeds produced identical winners %v", a)
		}
	})

	t.Run("degenerate inputs", func(t *testing.T) {
		if got := Pick(seed, nil, 3); got != nil {
			t.Fatalf("empty pool: want nil, got %v", got)
		}
		if got := Pick(seed, tickets, 0); got != nil {
			t.Fatalf("n=0: want nil, got %v", got)
		}
		if got := Pick(seed, tickets, -1); got != nil {
			t.Fatalf("n<0: want nil, got %v", got)
		}
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := []int64{5, 2, 9, 1}
		Pick(seed, in, 2)
		if !slices.Equal(in, []int64{5, 2, 9, 1}) {
			t.Fatalf("input slice mutated: %v", in)
		}
	})
}

func TestVerify(t *testing.T) {
	seed := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}
	seedHex := hex.EncodeToString(seed)
	tickets := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	winners := Pick(seed, tickets, 3)

	t.Run("recorded draw verifies", func(t *testing.T) {
		if !Verify(seedHex, tickets, winners) {
			t.Fatal("genuine draw failed verification")
		}
	})

	t.Run("tampered winners fail", func(t *testing.T) {
		tampered := slices.Clone(winners)
		tampered[0] = tampered[0]%10 + 1
		if tampered[0] == winners[0] {
			tampered[0]++
		}
		if Verify(seedHex, tickets, tampered) {
			t.Fatalf("tampered winners %v verified against %v", tampered, winners)
		}
	})

	t.Run("wrong seed fails", func(t *testing.T) {
		other := hex.EncodeToString([]byte("not-the-seed!!"))
		if Verify(other, tickets, winners) {
			t.Fatal("wrong seed verified")
		}
	})

	t.Run("malformed seed hex fails", func(t *testing.T) {
		if Verify("zz-not-hex", tickets, winners) {
			t.Fatal("malformed seed verified")
		}
	})
}

func TestDeriveIndexBounds(t *testing.T) {
	seed := []byte("bounds")
	for mod := uint64(1); mod <= 50; mod++ {
		for counter := uint64(0); counter < 20; counter++ {
			idx := deriveIndex(seed, counter, mod)
			if idx >= mod {
				t.Fatalf("deriveIndex(%d, %d) = %d, out of [0,%d)", counter, mod, idx, mod)
			}
		}
	}
}
