package repository

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrCompetitionClosed    = errors.New("competition closed")
	ErrHoldExpired          = errors.New("hold expired")
	ErrHoldNotFound         = errors.New("hold not found")
	ErrHoldConsumed         = errors.New("hold already consumed")
	ErrNotSettled           = errors.New("competition not settled")
	ErrAlreadyDrawn         = errors.New("competition already drawn")
	ErrLedgerUnderflow      = errors.New("ledger underflow")
)
