// Package models holds the domain types shared across the judge: tasks and
// tests, contest configuration, participant progress, scoreboards and the
// judging history. Types here carry no behavior beyond small pure helpers;
// all mutation happens under the contest manager's lock.
package models

import "time"

// Language identifies a submission language. The set is fixed by the sandbox
// image registry.
type Language string

const (
	LanguagePython Language = "Python"
	LanguageCPP    Language = "C++"
	LanguageCSharp Language = "C#"
)

// AllLanguages is the default allowed set for a new contest.
func AllLanguages() []Language {
	return []Language{LanguagePython, LanguageCPP, LanguageCSharp}
}

// ScoringMode selects how verdicts turn into scores.
type ScoringMode string

const (
	ScoringICPC         ScoringMode = "icpc"
	ScoringAllOrNothing ScoringMode = "all_or_nothing"
	ScoringPoints       ScoringMode = "points"
)

// ContestMode selects the admission policy.
type ContestMode string

const (
	ModeFree   ContestMode = "free"
	ModeClosed ContestMode = "closed"
)

// ContestStatus is the lifecycle state of a contest.
type ContestStatus string

const (
	StatusScheduled ContestStatus = "scheduled"
	StatusWaiting   ContestStatus = "waiting"
	StatusRunning   ContestStatus = "running"
	StatusFinished  ContestStatus = "finished"
)

// Verdict strings as they appear in history rows and client payloads.
const (
	VerdictAccepted         = "Accepted"
	VerdictWrongAnswer      = "Wrong Answer"
	VerdictTimeLimit        = "Time Limit Exceeded"
	VerdictRuntimeError     = "Runtime Error"
	VerdictCompilationError = "Compilation Error"
	VerdictJudgeError       = "Judge Error"
	VerdictInternalError    = "Internal Error"
	VerdictSystemError      = "System Error"
)

// Task is one problem statement with an optional attachment and an optional
// custom checker.
type Task struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Difficulty  string `json:"difficulty"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
	Attachment  []byte `json:"-"`
	FileFormat  string `json:"file_format,omitempty"`
	CheckerCode string `json:"-"`
}

// Test is one input/output pair with a per-test time limit in seconds.
type Test struct {
	ID             int     `json:"id"`
	TaskID         int     `json:"task_id"`
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expected_output"`
	TimeLimit      float64 `json:"time_limit"`
}

// TaskScore is one participant's standing on one task.
//
// Score and Passed only grow; Attempts counts failed non-fatal submissions;
// Penalty is set once, when the task is first solved under icpc scoring.
type TaskScore struct {
	Score    int  `json:"score"`
	Attempts int  `json:"attempts"`
	Passed   bool `json:"passed"`
	Penalty  int  `json:"penalty"`
}

// Participant is one contestant's in-memory state.
type Participant struct {
	ID                 string             `json:"id"`
	Nickname           string             `json:"nickname"`
	Organization       string             `json:"organization,omitempty"`
	Scores             map[int]*TaskScore `json:"scores"`
	LastSubmissions    map[int]string     `json:"-"`
	PendingSubmissions int                `json:"pending_submissions"`
	FinishedEarly      bool               `json:"finished_early"`
	Disqualified       bool               `json:"disqualified"`
}

// NewParticipant builds a participant with a zero score cell per task.
func NewParticipant(id, nickname, organization string, taskIDs []int) *Participant {
	p := &Participant{
		ID:              id,
		Nickname:        nickname,
		Organization:    organization,
		Scores:          make(map[int]*TaskScore, len(taskIDs)),
		LastSubmissions: make(map[int]string),
	}
	for _, tid := range taskIDs {
		p.Scores[tid] = &TaskScore{}
	}
	return p
}

// ContestConfig is the immutable-after-start configuration of a contest.
type ContestConfig struct {
	DurationMinutes  int         `json:"duration_minutes"`
	Scoring          ScoringMode `json:"scoring_type"`
	Mode             ContestMode `json:"mode"`
	AllowedLanguages []Language  `json:"allowed_languages"`
	FreezeMinutes    int         `json:"freeze_minutes"`
}

// AllowsLanguage reports whether lang may be submitted. An empty list allows
// every registered language.
func (c ContestConfig) AllowsLanguage(lang Language) bool {
	if len(c.AllowedLanguages) == 0 {
		return true
	}
	for _, l := range c.AllowedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// Duration returns the contest length.
func (c ContestConfig) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// Contest is one live contest. All fields are guarded by the manager's lock.
type Contest struct {
	ID           string
	Name         string
	TaskIDs      []int
	Config       ContestConfig
	Status       ContestStatus
	StartTime    time.Time
	Participants map[string]*Participant
	FirstSolves  map[int]string

	// Dirty marks the cached board stale. Remaining time and status are
	// never cached; they are overlaid on every read.
	Dirty       bool
	CachedBoard *ScoreboardView

	// FrozenSnapshot is the public board captured at the freeze boundary.
	// Revealed flips when an admin replays the hidden verdicts.
	FrozenSnapshot *ScoreboardView
	Revealed       bool
}

// NewContest builds an empty contest in the waiting state.
func NewContest(id, name string, taskIDs []int, cfg ContestConfig) *Contest {
	return &Contest{
		ID:           id,
		Name:         name,
		TaskIDs:      taskIDs,
		Config:       cfg,
		Status:       StatusWaiting,
		Participants: make(map[string]*Participant),
		FirstSolves:  make(map[int]string),
		Dirty:        true,
	}
}

// Remaining returns the whole seconds left at now, clamped at zero. A contest
// that has not started reports its full duration; a finished one reports
// zero.
func (c *Contest) Remaining(now time.Time) int {
	if c.Status == StatusFinished {
		return 0
	}
	if c.StartTime.IsZero() || c.Status != StatusRunning {
		return c.Config.DurationMinutes * 60
	}
	left := c.Config.Duration() - now.Sub(c.StartTime)
	if left < 0 {
		return 0
	}
	return int(left / time.Second)
}

// FreezeAt returns the moment the public board freezes, or the zero time when
// freezing is disabled or the contest has not started.
func (c *Contest) FreezeAt() time.Time {
	if c.Config.FreezeMinutes <= 0 || c.StartTime.IsZero() {
		return time.Time{}
	}
	return c.StartTime.Add(c.Config.Duration() - time.Duration(c.Config.FreezeMinutes)*time.Minute)
}

// Frozen reports whether the public board is frozen at now.
func (c *Contest) Frozen(now time.Time) bool {
	at := c.FreezeAt()
	return !at.IsZero() && c.Status == StatusRunning && !now.Before(at)
}

// HistoryRecord is one judging outcome as stored in the history log.
type HistoryRecord struct {
	ID            int64     `json:"id"`
	ContestID     string    `json:"contest_id"`
	ParticipantID string    `json:"participant_id"`
	TaskID        int       `json:"task_id"`
	Language      Language  `json:"language"`
	Verdict       string    `json:"verdict"`
	TestsPassed   int       `json:"tests_passed"`
	TotalTests    int       `json:"total_tests"`
	Timestamp     time.Time `json:"timestamp"`
}

// WhitelistEntry is one pre-registered closed-mode contestant.
type WhitelistEntry struct {
	ID           int64  `json:"id"`
	ContestID    string `json:"contest_id"`
	Nickname     string `json:"nickname"`
	Organization string `json:"organization,omitempty"`
	Password     string `json:"-"`
}

// ScoreboardCell is a participant's standing on one task as shown on the
// board. Pending marks verdicts hidden behind a freeze.
type ScoreboardCell struct {
	Score    int  `json:"score"`
	Attempts int  `json:"attempts"`
	Passed   bool `json:"passed"`
	Penalty  int  `json:"penalty"`
	Pending  bool `json:"pending,omitempty"`
}

// ScoreboardRow is one ranked participant.
type ScoreboardRow struct {
	ParticipantID string                 `json:"participant_id"`
	Nickname      string                 `json:"nickname"`
	Organization  string                 `json:"organization,omitempty"`
	Scores        map[int]ScoreboardCell `json:"scores"`
	TotalScore    int                    `json:"total_score"`
	TotalPenalty  int                    `json:"total_penalty"`
	SolvedCount   int                    `json:"solved_count"`
	FinishedEarly bool                   `json:"finished_early"`
	Disqualified  bool                   `json:"disqualified"`
}

// ScoreboardView is the full board payload sent to clients. RemainingSeconds
// and Status are computed at send time and never cached.
type ScoreboardView struct {
	ContestID        string         `json:"contest_id"`
	Name             string         `json:"name"`
	Status           ContestStatus  `json:"status"`
	DurationMinutes  int            `json:"duration_minutes"`
	Scoring          ScoringMode    `json:"scoring_type"`
	Mode             ContestMode    `json:"mode"`
	TaskIDs          []int          `json:"task_ids"`
	Rows             []ScoreboardRow `json:"rows"`
	FirstSolves      map[int]string `json:"first_solves"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Frozen           bool           `json:"frozen,omitempty"`
}

// Clone deep-copies the view so the cached copy is never shared with a
// caller that overlays live fields.
func (v *ScoreboardView) Clone() *ScoreboardView {
	if v == nil {
		return nil
	}
	out := *v
	out.TaskIDs = append([]int(nil), v.TaskIDs...)
	out.Rows = make([]ScoreboardRow, len(v.Rows))
	for i, row := range v.Rows {
		r := row
		r.Scores = make(map[int]ScoreboardCell, len(row.Scores))
		for tid, cell := range row.Scores {
			r.Scores[tid] = cell
		}
		out.Rows[i] = r
	}
	out.FirstSolves = make(map[int]string, len(v.FirstSolves))
	for tid, pid := range v.FirstSolves {
		out.FirstSolves[tid] = pid
	}
	return &out
}

// FrozenBoard pairs the board shown during a freeze with the true final
// board revealed afterwards.
type FrozenBoard struct {
	ContestID  string          `json:"contest_id"`
	Frozen     *ScoreboardView `json:"frozen"`
	Final      *ScoreboardView `json:"final"`
	FreezeTime time.Time       `json:"freeze_time"`
	Revealed   bool            `json:"revealed"`
}
