package closeout

import (
	"testing"

	"github.com/kirinyoku/raffle-go/internal/domain"
)

func TestOutcome(t *testing.T) {
	threshold := func(n int64) *int64 { return &n }

	tests := []struct {
		name       string
		sold       int64
		minTickets *int64
		want       domain.CompetitionStatus
	}{
		{"below threshold refunds", 40, threshold(50), domain.CompetitionClosedRefunded},
		{"at threshold settles", 50, threshold(50), domain.CompetitionClosedSettled},
		{"above threshold settles", 60, threshold(50), domain.CompetitionClosedSettled},
		{"one short refunds", 49, threshold(50), domain.CompetitionClosedRefunded},
		{"zero sold below threshold refunds", 0, threshold(1), domain.CompetitionClosedRefunded},
		{"no threshold always settles", 0, nil, domain.CompetitionClosedSettled},
		{"no threshold with sales settles", 17, nil, domain.CompetitionClosedSettled},
		{"zero threshold settles", 0, threshold(0), domain.CompetitionClosedSettled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Outcome(tt.sold, tt.minTickets); got != tt.want {
				t.Fatalf("Outcome(%d, %v) = %q, want %q", tt.sold, tt.minTickets, got, tt.want)
			}
		})
	}
}
