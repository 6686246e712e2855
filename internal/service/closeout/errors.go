package closeout

import "errors"

var ErrCompetitionNotFound = errors.New("competition not found")
