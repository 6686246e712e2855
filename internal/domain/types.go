package domain

import (
	"time"

	"github.com/google/uuid"
)

type CompetitionStatus string

const (
	CompetitionOpen           CompetitionStatus = "open"
	CompetitionClosedSettled  CompetitionStatus = "closed_settled"
	CompetitionClosedRefunded CompetitionStatus = "closed_refunded"
)

type Competition struct {
	ID             int64
	Title          string
	TotalTickets   int64
	MinTickets     *int64 // nil means the competition always proceeds
	PriceCents     int64
	PrizeCount     int
	ClosesAt       time.Time
	Status         CompetitionStatus
	WinningNumbers []int64
	CreatedAt      time.Time
}

// LedgerCounts is the authoritative availability state of a competition.
// held + sold never exceeds total.
type LedgerCounts struct {
	Total     int64
	Held      int64
	Sold      int64
	Available int64
}

type Hold struct {
	ID            uuid.UUID
	CompetitionID int64
	SessionID     string
	UserID        int64
	Quantity      int64
	Consumed      bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

func (h Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// Entry is a finalized, paid purchase owning the contiguous ticket block
// [FirstTicket, FirstTicket+Quantity-1]. Immutable except for the refund flag.
type Entry struct {
	ID            uuid.UUID
	CompetitionID int64
	UserID        int64
	FirstTicket   int64
	Quantity      int64
	PaymentRef    string
	Refunded      bool
	CreatedAt     time.Time
}

// TicketNumbers enumerates the entry's ticket block.
func (e Entry) TicketNumbers() []int64 {
	nums := make([]int64, e.Quantity)
	for i := range nums {
		nums[i] = e.FirstTicket + int64(i)
	}
	return nums
}

func (e Entry) HasTicket(n int64) bool {
	return n >= e.FirstTicket && n < e.FirstTicket+e.Quantity
}

// DrawRecord holds everything a third party needs to recompute the result:
// the disclosed seed, the algorithm label and the sold ticket set (which is
// reconstructible from the competition's entries).
type DrawRecord struct {
	CompetitionID  int64
	Seed           string
	Algorithm      string
	WinningNumbers []int64
	DrawnAt        time.Time
}

type CompetitionWithCounts struct {
	Competition Competition
	Counts      LedgerCounts
}
