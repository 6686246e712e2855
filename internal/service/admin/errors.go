package admin

import (
	"errors"
)

var (
	ErrCompetitionConflict = errors.New("competition already exists")
	ErrInvalidCompetition  = errors.New("invalid competition parameters")
)
