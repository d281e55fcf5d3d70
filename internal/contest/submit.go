package contest

import (
	"time"

	"github.com/sirupsen/logrus"

	"dev.synaq.judge/internal/models"
)

// Admit validates a submission against the contest rules, records the code,
// and reserves a pending slot. Callers enqueue the judging run only after a
// nil return; on any error no state changes.
func (m *Manager) Admit(contestID, pid string, taskID int, lang models.Language, code string, now time.Time) error {
	m.mu.Lock()

	c, ok := m.contests[contestID]
	if !ok {
		m.mu.Unlock()
		return ErrContestNotFound
	}
	p, ok := c.Participants[pid]
	if !ok {
		m.mu.Unlock()
		return ErrAuthFailed
	}

	switch {
	case c.Status != models.StatusRunning:
		m.mu.Unlock()
		return ErrContestNotRunning
	case c.Remaining(now) <= 0:
		m.mu.Unlock()
		return ErrTimeOver
	case p.Disqualified:
		m.mu.Unlock()
		return ErrDisqualified
	case p.FinishedEarly:
		m.mu.Unlock()
		return ErrAlreadyFinishedEarly
	case !c.Config.AllowsLanguage(lang):
		m.mu.Unlock()
		return ErrLanguageNotAllowed
	case p.PendingSubmissions >= maxPending:
		m.mu.Unlock()
		return ErrTooManyPending
	}

	inContest := false
	for _, tid := range c.TaskIDs {
		if tid == taskID {
			inContest = true
			break
		}
	}
	if !inContest {
		m.mu.Unlock()
		return ErrTaskNotInContest
	}

	p.PendingSubmissions++
	p.LastSubmissions[taskID] = code
	nickname := p.Nickname
	c.Dirty = true
	m.mu.Unlock()

	// Code is durable from the moment of admission, before judging runs.
	if err := m.store.SaveSubmissionCode(contestID, pid, nickname, taskID, code); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"contest": contestID,
			"task":    taskID,
		}).Error("persist submission code failed")
	}
	return nil
}

// ResultDelta is what one judging outcome changed, for client notification.
type ResultDelta struct {
	ContestID     string           `json:"contest_id"`
	ParticipantID string           `json:"participant_id"`
	TaskID        int              `json:"task_id"`
	Verdict       string           `json:"verdict"`
	TestsPassed   int              `json:"tests_passed"`
	TotalTests    int              `json:"total_tests"`
	Cell          models.TaskScore `json:"cell"`
	FirstSolve    bool             `json:"first_solve"`
	Detail        string           `json:"detail,omitempty"`
}

// ApplyResult folds one judging outcome into the participant's score.
//
// The pending slot is always released, even for fatal verdicts. Attempts
// count only failed non-fatal submissions, so a compilation error costs
// neither an attempt nor a score change. Once a task is passed its cell is
// frozen: later submissions change neither attempts nor score. A result for
// a disqualified participant releases the slot and is otherwise discarded;
// both return values are then nil.
func (m *Manager) ApplyResult(contestID, pid string, taskID int, lang models.Language, verdict string, testsPassed, totalTests int, fatal bool, detail string, now time.Time) (*ResultDelta, error) {
	m.mu.Lock()

	c, ok := m.contests[contestID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrContestNotFound
	}
	p, ok := c.Participants[pid]
	if !ok {
		m.mu.Unlock()
		return nil, ErrAuthFailed
	}

	if p.PendingSubmissions > 0 {
		p.PendingSubmissions--
	}
	if p.Disqualified {
		// Verdicts landing after a disqualification change nothing.
		m.mu.Unlock()
		return nil, nil
	}

	cell, ok := p.Scores[taskID]
	if !ok {
		cell = &models.TaskScore{}
		p.Scores[taskID] = cell
	}

	passed := verdict == models.VerdictAccepted
	if !cell.Passed && !passed && !fatal {
		cell.Attempts++
	}

	firstSolve := false
	if !fatal {
		switch c.Config.Scoring {
		case models.ScoringICPC:
			if passed && !cell.Passed {
				cell.Passed = true
				cell.Score = 1
				elapsed := int(now.Sub(c.StartTime).Minutes())
				if elapsed < 0 {
					elapsed = 0
				}
				cell.Penalty = elapsed + 20*cell.Attempts
			}
		case models.ScoringAllOrNothing:
			if passed && !cell.Passed {
				cell.Passed = true
				cell.Score = 100
			}
		case models.ScoringPoints:
			if !cell.Passed && totalTests > 0 {
				if sc := 100 * testsPassed / totalTests; sc > cell.Score {
					cell.Score = sc
				}
			}
			if passed && !cell.Passed {
				cell.Passed = true
			}
		}

		if passed {
			if _, taken := c.FirstSolves[taskID]; !taken {
				c.FirstSolves[taskID] = pid
				firstSolve = true
			}
		}
	}

	c.Dirty = true
	delta := &ResultDelta{
		ContestID:     contestID,
		ParticipantID: pid,
		TaskID:        taskID,
		Verdict:       verdict,
		TestsPassed:   testsPassed,
		TotalTests:    totalTests,
		Cell:          *cell,
		FirstSolve:    firstSolve,
		Detail:        detail,
	}
	scoring := c.Config.Scoring
	m.mu.Unlock()

	if _, err := m.store.AppendHistory(&models.HistoryRecord{
		ContestID:     contestID,
		ParticipantID: pid,
		TaskID:        taskID,
		Language:      lang,
		Verdict:       verdict,
		TestsPassed:   testsPassed,
		TotalTests:    totalTests,
		Timestamp:     now,
	}); err != nil {
		m.logger.WithError(err).WithField("contest", contestID).Error("append history failed")
	}
	if err := m.Persist(contestID); err != nil {
		m.logger.WithError(err).WithField("contest", contestID).Error("persist after result failed")
	}

	m.logger.WithFields(logrus.Fields{
		"contest": contestID,
		"task":    taskID,
		"verdict": verdict,
		"scoring": scoring,
	}).Debug("result applied")
	return delta, nil
}

// PendingCount reports a participant's queued submissions.
func (m *Manager) PendingCount(contestID, pid string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contests[contestID]; ok {
		if p, ok := c.Participants[pid]; ok {
			return p.PendingSubmissions
		}
	}
	return 0
}
