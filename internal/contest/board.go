package contest

import (
	"sort"
	"time"

	"dev.synaq.judge/internal/models"
)

func sortRows(rows []models.ScoreboardRow, less func(a, b models.ScoreboardRow) bool) {
	sort.Slice(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}

// buildBoard renders the full scoreboard from live state. Callers hold m.mu.
func buildBoard(c *models.Contest, now time.Time) *models.ScoreboardView {
	rows := make([]models.ScoreboardRow, 0, len(c.Participants))
	for pid, p := range c.Participants {
		row := models.ScoreboardRow{
			ParticipantID: pid,
			Nickname:      p.Nickname,
			Organization:  p.Organization,
			Scores:        make(map[int]models.ScoreboardCell, len(c.TaskIDs)),
			FinishedEarly: p.FinishedEarly,
			Disqualified:  p.Disqualified,
		}
		for _, tid := range c.TaskIDs {
			cell := p.Scores[tid]
			if cell == nil {
				row.Scores[tid] = models.ScoreboardCell{}
				continue
			}
			row.Scores[tid] = models.ScoreboardCell{
				Score:    cell.Score,
				Attempts: cell.Attempts,
				Passed:   cell.Passed,
				Penalty:  cell.Penalty,
			}
			row.TotalScore += cell.Score
			if cell.Passed {
				row.TotalPenalty += cell.Penalty
				row.SolvedCount++
			}
		}
		rows = append(rows, row)
	}

	if c.Config.Scoring == models.ScoringICPC {
		sortRows(rows, func(a, b models.ScoreboardRow) bool {
			if a.SolvedCount != b.SolvedCount {
				return a.SolvedCount > b.SolvedCount
			}
			if a.TotalPenalty != b.TotalPenalty {
				return a.TotalPenalty < b.TotalPenalty
			}
			return a.Nickname < b.Nickname
		})
	} else {
		sortRows(rows, func(a, b models.ScoreboardRow) bool {
			if a.TotalScore != b.TotalScore {
				return a.TotalScore > b.TotalScore
			}
			return a.Nickname < b.Nickname
		})
	}

	solves := make(map[int]string, len(c.FirstSolves))
	for tid, pid := range c.FirstSolves {
		solves[tid] = pid
	}
	return &models.ScoreboardView{
		ContestID:        c.ID,
		Name:             c.Name,
		Status:           c.Status,
		DurationMinutes:  c.Config.DurationMinutes,
		Scoring:          c.Config.Scoring,
		Mode:             c.Config.Mode,
		TaskIDs:          append([]int(nil), c.TaskIDs...),
		Rows:             rows,
		FirstSolves:      solves,
		RemainingSeconds: c.Remaining(now),
	}
}

// Snapshot returns the scoreboard for one contest.
//
// The rendered rows are cached and rebuilt only when state changed since the
// last call; remaining time, status and the frozen flag are computed fresh
// on every call. During a freeze non-admin callers get the board captured at
// the freeze boundary, with cells that changed since marked pending.
func (m *Manager) Snapshot(contestID string, now time.Time, admin bool) (*models.ScoreboardView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contests[contestID]
	if !ok {
		return nil, ErrContestNotFound
	}

	if c.Dirty || c.CachedBoard == nil {
		c.CachedBoard = buildBoard(c, now)
		c.Dirty = false
	}

	frozen := c.Frozen(now) && !c.Revealed
	if frozen && !admin && c.FrozenSnapshot != nil {
		view := c.FrozenSnapshot.Clone()
		markPending(view, c)
		view.Status = c.Status
		view.RemainingSeconds = c.Remaining(now)
		view.Frozen = true
		return view, nil
	}

	view := c.CachedBoard.Clone()
	view.Status = c.Status
	view.RemainingSeconds = c.Remaining(now)
	view.Frozen = frozen
	return view, nil
}

// markPending flags cells whose live state drifted from the frozen copy.
func markPending(frozenView *models.ScoreboardView, c *models.Contest) {
	for i := range frozenView.Rows {
		row := &frozenView.Rows[i]
		p, ok := c.Participants[row.ParticipantID]
		if !ok {
			continue
		}
		for tid, shown := range row.Scores {
			live := p.Scores[tid]
			if live == nil {
				continue
			}
			if live.Score != shown.Score || live.Attempts != shown.Attempts || live.Passed != shown.Passed {
				cell := shown
				cell.Pending = true
				row.Scores[tid] = cell
			}
		}
	}
}

// CaptureFreeze snapshots the public board at the freeze boundary. Idempotent;
// the first capture wins.
func (m *Manager) CaptureFreeze(contestID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contests[contestID]
	if !ok {
		return ErrContestNotFound
	}
	if c.FrozenSnapshot != nil {
		return nil
	}

	c.FrozenSnapshot = buildBoard(c, now)
	return m.store.SaveFrozenBoard(&models.FrozenBoard{
		ContestID:  c.ID,
		Frozen:     c.FrozenSnapshot,
		FreezeTime: c.FreezeAt(),
	})
}

// RevealStep is one hidden verdict replayed in submission order.
type RevealStep struct {
	ParticipantID string    `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	TaskID        int       `json:"task_id"`
	Verdict       string    `json:"verdict"`
	TestsPassed   int       `json:"tests_passed"`
	TotalTests    int       `json:"total_tests"`
	Timestamp     time.Time `json:"timestamp"`
}

// Reveal unfreezes the board: it returns every verdict recorded during the
// freeze in (timestamp, id) order together with the final board, and marks
// the contest revealed so later snapshots show live state.
func (m *Manager) Reveal(contestID string, now time.Time) ([]RevealStep, *models.ScoreboardView, error) {
	m.mu.Lock()

	c, ok := m.contests[contestID]
	if !ok {
		m.mu.Unlock()
		return nil, nil, ErrContestNotFound
	}
	if c.FrozenSnapshot == nil {
		m.mu.Unlock()
		return nil, nil, ErrNotFrozen
	}
	freezeAt := c.FreezeAt()
	nicknames := make(map[string]string, len(c.Participants))
	for pid, p := range c.Participants {
		nicknames[pid] = p.Nickname
	}
	m.mu.Unlock()

	records, err := m.store.HistorySince(contestID, freezeAt)
	if err != nil {
		return nil, nil, err
	}
	steps := make([]RevealStep, 0, len(records))
	for _, rec := range records {
		steps = append(steps, RevealStep{
			ParticipantID: rec.ParticipantID,
			Nickname:      nicknames[rec.ParticipantID],
			TaskID:        rec.TaskID,
			Verdict:       rec.Verdict,
			TestsPassed:   rec.TestsPassed,
			TotalTests:    rec.TotalTests,
			Timestamp:     rec.Timestamp,
		})
	}

	m.mu.Lock()
	c.Revealed = true
	c.Dirty = true
	final := buildBoard(c, now)
	c.CachedBoard = final
	c.Dirty = false
	final = final.Clone()
	final.RemainingSeconds = c.Remaining(now)
	fb := &models.FrozenBoard{
		ContestID:  c.ID,
		Frozen:     c.FrozenSnapshot,
		Final:      final,
		FreezeTime: freezeAt,
		Revealed:   true,
	}
	m.mu.Unlock()

	if err := m.store.SaveFrozenBoard(fb); err != nil {
		return nil, nil, err
	}
	return steps, final, nil
}
