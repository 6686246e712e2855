package closeout

import "github.com/kirinyoku/raffle-go/internal/domain"

// Outcome decides the terminal status of a competition from its final
// sold count. A nil threshold means the competition always proceeds to a
// draw.
func Outcome(sold int64, minTickets *int64) domain.CompetitionStatus {
	if minTickets != nil && sold < *minTickets {
		return domain.CompetitionClosedRefunded
	}
	return domain.CompetitionClosedSettled
}
