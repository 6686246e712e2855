package holds

import "errors"

var (
	ErrInsufficientCapacity = errors.New("not enough tickets available")
	ErrCompetitionClosed    = errors.New("competition is closed")
	ErrCompetitionNotFound  = errors.New("competition not found")
	ErrHoldNotFound         = errors.New("hold not found")
	ErrHoldExpired          = errors.New("hold is expired")
	ErrHoldConflict         = errors.New("conflict creating hold")
)
