package draw

import "errors"

var (
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrNotSettled          = errors.New("competition is not settled")
	ErrAlreadyDrawn        = errors.New("competition already drawn")
	ErrNoEntries           = errors.New("no sold tickets to draw from")
)
