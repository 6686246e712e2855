package draw

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"slices"
)

// Algorithm identifies the selection procedure recorded with every draw.
// Given the same seed and sold ticket set, anyone can rerun Pick and
// obtain the identical winners.
const Algorithm = "sha256-counter-v1"

// Pick selects n distinct winning tickets from the sold set,
// deterministically from the seed and uniformly over the set. Selection
// is without replacement; when n >= len(tickets) every ticket wins.
//
// The procedure: sort a copy of the ticket set ascending, then for each
// winner i derive an index into the remaining pool from
// sha256(seed || uint64(i) || uint64(attempt)), take that ticket and
// remove it from the pool.
func Pick(seed []byte, tickets []int64, n int) []int64 {
	if n <= 0 || len(tickets) == 0 {
		return nil
	}

	pool := make([]int64, len(tickets))
	copy(pool, tickets)
	slices.Sort(pool)

	if n >= len(pool) {
		return pool
	}

	winners := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		idx := deriveIndex(seed, uint64(i), uint64(len(pool)))
		winners = append(winners, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	return winners
}

// Verify recomputes a draw from its recorded material and reports whether
// it reproduces the recorded winners. Third parties run the same check
// off-process.
func Verify(seedHex string, tickets []int64, winners []int64) bool {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return false
	}

	got := Pick(seed, tickets, len(winners))

	return slices.Equal(got, winners)
}

// deriveIndex maps (seed, counter) to a uniform index in [0, mod).
// Hash outputs at or above the largest multiple of mod are rejected and
// retried with the next attempt number, so the modulo carries no bias.
func deriveIndex(seed []byte, counter, mod uint64) uint64 {
	unbiasedMax := (^uint64(0) / mod) * mod

	for attempt := uint64(0); ; attempt++ {
		h := sha256.New()
		h.Write(seed)

		var buf [16]byte
		binary.BigEndian.PutUint64(buf[:8], counter)
		binary.BigEndian.PutUint64(buf[8:], attempt)
		h.Write(buf[:])

		v := binary.BigEndian.Uint64(h.Sum(nil)[:8])
		if v < unbiasedMax {
			return v % mod
		}
	}
}
