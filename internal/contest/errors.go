package contest

import "errors"

// Sentinel errors mapped to HTTP responses by the API layer.
var (
	ErrContestNotFound      = errors.New("contest not found")
	ErrContestClosed        = errors.New("contest is closed")
	ErrContestNotRunning    = errors.New("contest is not running")
	ErrAuthFailed           = errors.New("not authorized for this contest")
	ErrAlreadyFinishedEarly = errors.New("participant already finished")
	ErrDisqualified         = errors.New("participant is disqualified")
	ErrLanguageNotAllowed   = errors.New("language not allowed in this contest")
	ErrTooManyPending       = errors.New("too many pending submissions")
	ErrTimeOver             = errors.New("contest time is over")
	ErrTaskNotInContest     = errors.New("task is not part of this contest")
	ErrTaskCountInvalid     = errors.New("contest needs between 1 and 10 tasks")
	ErrNotScheduled         = errors.New("contest is not scheduled")
	ErrNotFrozen            = errors.New("scoreboard is not frozen")
)
