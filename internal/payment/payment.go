// Package payment defines the boundary with the external payment
// collaborator. The core never talks to a provider inline: charge
// confirmations arrive with the purchase request, and refund instructions
// leave through a queue consumed by the payment worker.
package payment

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Confirmation is the provider's verdict on a charge, supplied by the
// caller before the purchase commit. Raw payment details never enter
// the core's records, only the opaque reference.
type Confirmation struct {
	Reference   string
	Succeeded   bool
	AmountCents int64
}

func (c Confirmation) Amount() decimal.Decimal {
	return decimal.NewFromInt(c.AmountCents).Div(decimal.NewFromInt(100))
}

// RefundInstruction tells the payment worker to refund one entry.
// Exactly one instruction is emitted per entry of a refunded competition.
type RefundInstruction struct {
	EntryID       uuid.UUID       `json:"entry_id"`
	CompetitionID int64           `json:"competition_id"`
	UserID        int64           `json:"user_id"`
	PaymentRef    string          `json:"payment_ref"`
	Amount        decimal.Decimal `json:"amount"`
}

// AmountForTickets computes the charge or refund amount for a ticket block.
func AmountForTickets(priceCents int64, qty int64) decimal.Decimal {
	return decimal.NewFromInt(priceCents * qty).Div(decimal.NewFromInt(100))
}
