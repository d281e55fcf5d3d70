// Package contest owns all live contest state: admission, scoring, the
// scoreboard cache and the freeze/reveal flow. One coarse mutex guards the
// whole contest map; every operation is a short critical section and the
// sandbox never runs under the lock.
package contest

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dev.synaq.judge/internal/models"
	"dev.synaq.judge/internal/store"
)

// maxPending bounds a participant's simultaneously queued submissions.
const maxPending = 3

// maxContestTasks bounds the task list of one contest.
const maxContestTasks = 10

// Manager is the single authority over in-memory contest state.
type Manager struct {
	mu       sync.Mutex
	store    *store.Store
	contests map[string]*models.Contest
	logger   *logrus.Entry
}

// New builds a Manager over the given store.
func New(st *store.Store, logger *logrus.Logger) *Manager {
	return &Manager{
		store:    st,
		contests: make(map[string]*models.Contest),
		logger:   logger.WithField("component", "contest"),
	}
}

// Install registers an already-hydrated contest, used by restart recovery.
func (m *Manager) Install(c *models.Contest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contests[c.ID] = c
}

// Create registers a new contest. A zero start leaves it waiting for an
// explicit Start; a future start schedules it.
func (m *Manager) Create(name string, taskIDs []int, cfg models.ContestConfig, start time.Time) (*models.Contest, error) {
	if len(taskIDs) < 1 || len(taskIDs) > maxContestTasks {
		return nil, ErrTaskCountInvalid
	}
	if cfg.DurationMinutes <= 0 {
		cfg.DurationMinutes = 300
	}
	if cfg.Scoring == "" {
		cfg.Scoring = models.ScoringICPC
	}
	if cfg.Mode == "" {
		cfg.Mode = models.ModeFree
	}
	if len(cfg.AllowedLanguages) == 0 {
		cfg.AllowedLanguages = models.AllLanguages()
	}

	c := models.NewContest(uuid.NewString(), name, taskIDs, cfg)
	if !start.IsZero() {
		c.Status = models.StatusScheduled
		c.StartTime = start
		if err := m.store.AddScheduled(c); err != nil {
			return nil, err
		}
	}
	if err := m.store.SaveContestConfig(c); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.contests[c.ID] = c
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"contest": c.ID,
		"name":    name,
		"status":  c.Status,
	}).Info("contest created")
	return c, nil
}

// Start flips a waiting or scheduled contest to running at now.
func (m *Manager) Start(contestID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contests[contestID]
	if !ok {
		return ErrContestNotFound
	}
	switch c.Status {
	case models.StatusRunning:
		return nil
	case models.StatusFinished:
		return ErrContestClosed
	}

	wasScheduled := c.Status == models.StatusScheduled
	c.Status = models.StatusRunning
	c.StartTime = now
	c.Dirty = true

	if err := m.store.SetContestStart(c.ID, now); err != nil {
		return err
	}
	if wasScheduled {
		if err := m.store.RemoveScheduled(c.ID); err != nil {
			m.logger.WithError(err).WithField("contest", c.ID).Warn("remove scheduled row failed")
		}
	}
	m.logger.WithField("contest", c.ID).Info("contest started")
	return nil
}

// EditStartTime moves a scheduled contest's start. Only scheduled contests
// may be moved.
func (m *Manager) EditStartTime(contestID string, start time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contests[contestID]
	if !ok {
		return ErrContestNotFound
	}
	if c.Status != models.StatusScheduled {
		return ErrNotScheduled
	}
	c.StartTime = start
	return m.store.UpdateScheduledTime(c.ID, start)
}

// Join admits a participant, creating or restoring their state.
//
// Free mode keys identity by nickname: a returning nickname gets its old
// participant id and saved progress back. Closed mode requires whitelist
// credentials first, then applies the same restore.
func (m *Manager) Join(contestID, nickname, organization, password string) (string, error) {
	m.mu.Lock()
	c, ok := m.contests[contestID]
	if !ok {
		m.mu.Unlock()
		return "", ErrContestNotFound
	}
	if c.Status == models.StatusFinished {
		m.mu.Unlock()
		return "", ErrContestClosed
	}
	mode := c.Config.Mode
	m.mu.Unlock()

	// Closed mode keys the seat by the whitelist row id, so the roster and
	// the board agree on identity.
	var rosterPID string
	if mode == models.ModeClosed {
		e, err := m.store.ValidateWhitelist(contestID, nickname, password)
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrAuthFailed
		}
		if err != nil {
			return "", err
		}
		rosterPID = strconv.FormatInt(e.ID, 10)
		if organization == "" {
			organization = e.Organization
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Same nickname, same seat: sessions restore by nickname.
	for pid, p := range c.Participants {
		if p.Nickname == nickname {
			if p.FinishedEarly {
				return "", ErrAlreadyFinishedEarly
			}
			return pid, nil
		}
	}

	pid := rosterPID
	if pid == "" {
		var err error
		pid, err = m.store.ParticipantIDByNickname(contestID, nickname)
		if err != nil {
			return "", err
		}
	}
	if pid == "" {
		pid = uuid.NewString()
	}

	p := models.NewParticipant(pid, nickname, organization, c.TaskIDs)
	if progress, err := m.store.GetParticipantProgress(contestID, pid); err == nil {
		for tid, cell := range progress.Scores {
			p.Scores[tid] = cell
		}
		for tid, code := range progress.LastSubmissions {
			p.LastSubmissions[tid] = code
		}
		if p.Organization == "" {
			p.Organization = progress.Organization
		}
		p.Disqualified = progress.Disqualified
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	c.Participants[pid] = p
	c.Dirty = true
	m.logger.WithFields(logrus.Fields{
		"contest":  contestID,
		"nickname": nickname,
	}).Info("participant joined")
	return pid, nil
}

// Contest returns a shallow descriptor of one contest for the API layer.
func (m *Manager) Contest(contestID string) (*models.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[contestID]
	if !ok {
		return nil, ErrContestNotFound
	}
	return c, nil
}

// Describe returns stable contest metadata without exposing live state.
type Description struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Status          models.ContestStatus `json:"status"`
	Mode            models.ContestMode   `json:"mode"`
	Scoring         models.ScoringMode   `json:"scoring_type"`
	TaskIDs         []int                `json:"task_ids"`
	DurationMinutes int                  `json:"duration_minutes"`
	Languages       []models.Language    `json:"allowed_languages"`
	StartTime       time.Time            `json:"start_time,omitzero"`
	Remaining       int                  `json:"remaining_seconds"`
}

// Describe snapshots contest metadata at now.
func (m *Manager) Describe(contestID string, now time.Time) (Description, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[contestID]
	if !ok {
		return Description{}, ErrContestNotFound
	}
	return Description{
		ID:              c.ID,
		Name:            c.Name,
		Status:          c.Status,
		Mode:            c.Config.Mode,
		Scoring:         c.Config.Scoring,
		TaskIDs:         append([]int(nil), c.TaskIDs...),
		DurationMinutes: c.Config.DurationMinutes,
		Languages:       append([]models.Language(nil), c.Config.AllowedLanguages...),
		StartTime:       c.StartTime,
		Remaining:       c.Remaining(now),
	}, nil
}

// List returns descriptions of every live contest.
func (m *Manager) List(now time.Time) []Description {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Description, 0, len(m.contests))
	for _, c := range m.contests {
		out = append(out, Description{
			ID:              c.ID,
			Name:            c.Name,
			Status:          c.Status,
			Mode:            c.Config.Mode,
			Scoring:         c.Config.Scoring,
			TaskIDs:         append([]int(nil), c.TaskIDs...),
			DurationMinutes: c.Config.DurationMinutes,
			Languages:       append([]models.Language(nil), c.Config.AllowedLanguages...),
			StartTime:       c.StartTime,
			Remaining:       c.Remaining(now),
		})
	}
	return out
}

// Participant reports whether pid is registered in the contest, and their
// nickname.
func (m *Manager) Participant(contestID, pid string) (nickname string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[contestID]
	if !ok {
		return "", ErrContestNotFound
	}
	p, ok := c.Participants[pid]
	if !ok {
		return "", ErrAuthFailed
	}
	return p.Nickname, nil
}
