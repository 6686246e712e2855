package query

import (
	"errors"
)

var (
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrEntryNotFound       = errors.New("entry not found")
	ErrDrawNotFound        = errors.New("draw not found")
)
