package httpgin

import (
	"time"
)

type CreateHoldRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required,gt=0"`
	TTLSec    int    `json:"ttl_sec"`
}

type RenewHoldRequest struct {
	TTLSec int `json:"ttl_sec"`
}

type CompletePurchaseRequest struct {
	HoldID           string `json:"hold_id" binding:"required,uuid"`
	PaymentRef       string `json:"payment_ref" binding:"required"`
	PaymentSucceeded *bool  `json:"payment_succeeded" binding:"required"`
	AmountCents      int64  `json:"amount_cents"`
}

type CreateCompetitionRequest struct {
	Title        string `json:"title" binding:"required"`
	TotalTickets int64  `json:"total_tickets" binding:"required,gt=0"`
	MinTickets   *int64 `json:"min_tickets"`
	PriceCents   int64  `json:"price_cents" binding:"required,gt=0"`
	PrizeCount   int    `json:"prize_count"`
	ClosesAt     string `json:"closes_at" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HoldResponse struct {
	HoldID        string    `json:"hold_id"`
	CompetitionID int64     `json:"competition_id"`
	Quantity      int64     `json:"quantity"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type PurchaseResponse struct {
	EntryID       string  `json:"entry_id"`
	CompetitionID int64   `json:"competition_id"`
	TicketNumbers []int64 `json:"ticket_numbers"`
}

type CreateCompetitionResponse struct {
	CompetitionID int64 `json:"competition_id"`
}

type CloseResponse struct {
	CompetitionID int64  `json:"competition_id"`
	Status        string `json:"status"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
