package purchase

import "errors"

var (
	ErrHoldNotFound      = errors.New("hold not found")
	ErrHoldExpired       = errors.New("hold is expired")
	ErrAlreadyConsumed   = errors.New("hold already consumed")
	ErrCompetitionClosed = errors.New("competition is closed")
	ErrPaymentFailed     = errors.New("payment failed, hold released")
)
