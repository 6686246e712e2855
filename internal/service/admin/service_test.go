package admin

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateCompetitionValidation(t *testing.T) {
	s := New(nil, nil, nil)
	future := time.Now().Add(time.Hour)
	negative := int64(-1)
	aboveTotal := int64(101)

	tests := []struct {
		name     string
		title    string
		total    int64
		min      *int64
		price    int64
		closesAt time.Time
	}{
		{"empty title", "", 100, nil, 500, future},
		{"zero total", "c", 0, nil, 500, future},
		{"zero price", "c", 100, nil, 0, future},
		{"negative price", "c", 100, nil, -5, future},
		{"negative threshold", "c", 100, &negative, 500, future},
		{"threshold above total", "c", 100, &aboveTotal, 500, future},
		{"close time in the past", "c", 100, nil, 500, time.Now().Add(-time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateCompetition(context.Background(), tt.title, tt.total, tt.min, tt.price, 1, tt.closesAt)
			if !errors.Is(err, ErrInvalidCompetition) {
				t.Fatalf("want ErrInvalidCompetition, got %v", err)
			}
		})
	}
}
