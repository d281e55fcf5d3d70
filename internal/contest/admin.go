package contest

import (
	"time"

	"github.com/sirupsen/logrus"

	"dev.synaq.judge/internal/models"
)

// finishSlack keeps a contest accepting already-queued work briefly past the
// nominal end before the lifecycle tick finalizes it.
const finishSlack = 5 * time.Second

// FinishEarly marks a participant as voluntarily done. The flag is terminal;
// their submissions stop but their scores stand.
func (m *Manager) FinishEarly(contestID, pid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contests[contestID]
	if !ok {
		return ErrContestNotFound
	}
	p, ok := c.Participants[pid]
	if !ok {
		return ErrAuthFailed
	}
	if p.FinishedEarly {
		return ErrAlreadyFinishedEarly
	}
	p.FinishedEarly = true
	c.Dirty = true
	m.logger.WithFields(logrus.Fields{
		"contest":  contestID,
		"nickname": p.Nickname,
	}).Info("participant finished early")
	return nil
}

// Disqualify zeroes a participant's scores and bars further submissions.
// The row stays on the board; any first solves they held are released.
func (m *Manager) Disqualify(contestID, pid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contests[contestID]
	if !ok {
		return ErrContestNotFound
	}
	p, ok := c.Participants[pid]
	if !ok {
		return ErrAuthFailed
	}

	p.Disqualified = true
	p.FinishedEarly = true
	for tid := range p.Scores {
		p.Scores[tid] = &models.TaskScore{}
	}
	for tid, solver := range c.FirstSolves {
		if solver == pid {
			delete(c.FirstSolves, tid)
		}
	}
	c.Dirty = true

	if err := m.store.PersistContestSnapshot(c); err != nil {
		m.logger.WithError(err).WithField("contest", contestID).Error("persist after disqualification failed")
	}
	m.logger.WithFields(logrus.Fields{
		"contest":  contestID,
		"nickname": p.Nickname,
	}).Warn("participant disqualified")
	return nil
}

// Persist writes the contest's current participant state through to disk.
func (m *Manager) Persist(contestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contests[contestID]
	if !ok {
		return ErrContestNotFound
	}
	return m.store.PersistContestSnapshot(c)
}

// PersistAll snapshots every live contest, used on shutdown.
func (m *Manager) PersistAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contests {
		if err := m.store.PersistContestSnapshot(c); err != nil {
			m.logger.WithError(err).WithField("contest", c.ID).Error("shutdown persist failed")
		}
	}
}

// Finish moves a running contest to finished and persists final state. The
// contest stays in memory so its final board remains served until Close.
func (m *Manager) Finish(contestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finishLocked(contestID)
}

func (m *Manager) finishLocked(contestID string) error {
	c, ok := m.contests[contestID]
	if !ok {
		return ErrContestNotFound
	}
	if c.Status == models.StatusFinished {
		return nil
	}
	c.Status = models.StatusFinished
	c.Dirty = true

	if err := m.store.PersistContestSnapshot(c); err != nil {
		return err
	}
	if err := m.store.MarkFinished(c.ID); err != nil {
		return err
	}
	m.logger.WithField("contest", c.ID).Info("contest finished")
	return nil
}

// Close finishes a contest if needed and evicts it from memory. Results
// remain in the archive.
func (m *Manager) Close(contestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.finishLocked(contestID); err != nil {
		return err
	}
	delete(m.contests, contestID)
	return nil
}

// TickEvents reports the lifecycle transitions one tick produced.
type TickEvents struct {
	Started  []string
	Frozen   []string
	Finished []string
}

// Tick advances contest lifecycles to now: scheduled contests whose start
// time arrived begin, running contests crossing the freeze boundary capture
// their frozen board, and contests past their duration (plus slack) finish.
func (m *Manager) Tick(now time.Time) TickEvents {
	m.mu.Lock()

	var ev TickEvents
	var toFreeze []string
	for id, c := range m.contests {
		switch c.Status {
		case models.StatusScheduled:
			if !c.StartTime.IsZero() && !now.Before(c.StartTime) {
				c.Status = models.StatusRunning
				c.StartTime = now
				c.Dirty = true
				if err := m.store.SetContestStart(id, now); err != nil {
					m.logger.WithError(err).WithField("contest", id).Error("persist start failed")
				}
				if err := m.store.RemoveScheduled(id); err != nil {
					m.logger.WithError(err).WithField("contest", id).Warn("remove scheduled row failed")
				}
				ev.Started = append(ev.Started, id)
			}
		case models.StatusRunning:
			if c.Frozen(now) && c.FrozenSnapshot == nil {
				toFreeze = append(toFreeze, id)
			}
			end := c.StartTime.Add(c.Config.Duration())
			if now.After(end.Add(finishSlack)) {
				ev.Finished = append(ev.Finished, id)
			}
		}
	}
	m.mu.Unlock()

	for _, id := range toFreeze {
		if err := m.CaptureFreeze(id, now); err != nil {
			m.logger.WithError(err).WithField("contest", id).Error("freeze capture failed")
		} else {
			ev.Frozen = append(ev.Frozen, id)
		}
	}
	for _, id := range ev.Finished {
		if err := m.Finish(id); err != nil {
			m.logger.WithError(err).WithField("contest", id).Error("finish failed")
		}
	}
	return ev
}
