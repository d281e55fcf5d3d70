// Package lifecycle drives time-based contest transitions and restores
// state after a restart. A single ticker advances scheduled starts, freeze
// boundaries and contest ends, announcing each transition to connected
// clients.
package lifecycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"dev.synaq.judge/internal/broadcast"
	"dev.synaq.judge/internal/contest"
	"dev.synaq.judge/internal/models"
	"dev.synaq.judge/internal/store"
)

// tickInterval is how often lifecycle transitions are evaluated.
const tickInterval = 10 * time.Second

// staleGrace is how long a finished-while-down contest is still restored
// into memory before being archived directly.
const staleGrace = time.Hour

// Controller owns the lifecycle ticker and restart recovery.
type Controller struct {
	mgr    *contest.Manager
	store  *store.Store
	hub    *broadcast.Hub
	logger *logrus.Entry
}

// New builds a controller.
func New(mgr *contest.Manager, st *store.Store, hub *broadcast.Hub, logger *logrus.Logger) *Controller {
	return &Controller{
		mgr:    mgr,
		store:  st,
		hub:    hub,
		logger: logger.WithField("component", "lifecycle"),
	}
}

// Run ticks until the context ends.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

func (c *Controller) tick(now time.Time) {
	ev := c.mgr.Tick(now)
	for _, id := range ev.Started {
		c.logger.WithField("contest", id).Info("scheduled contest started")
		c.hub.ContestStarted(id)
	}
	for _, id := range ev.Frozen {
		c.logger.WithField("contest", id).Info("scoreboard frozen")
		c.hub.BroadcastBoard(id)
	}
	for _, id := range ev.Finished {
		c.hub.ContestFinished(id)
	}
}

// Restore rebuilds in-memory contest state from the database after a
// restart. Contests with no recorded start time infer one from their
// earliest judging record; contests that ended more than an hour before now
// are finalized without being brought back.
func (c *Controller) Restore(now time.Time) error {
	contests, err := c.store.LoadAllActiveContests()
	if err != nil {
		return err
	}

	for _, ct := range contests {
		log := c.logger.WithField("contest", ct.ID)

		if ct.Status == models.StatusRunning && ct.StartTime.IsZero() {
			first, err := c.store.MinHistoryTimestamp(ct.ID)
			if err != nil {
				return err
			}
			if first.IsZero() {
				// Running with no start and no history: restart the clock.
				ct.StartTime = now
			} else {
				ct.StartTime = first
			}
			if err := c.store.SetContestStart(ct.ID, ct.StartTime); err != nil {
				log.WithError(err).Warn("persist inferred start failed")
			}
		}

		if ct.Status == models.StatusRunning {
			end := ct.StartTime.Add(ct.Config.Duration())
			if now.After(end.Add(staleGrace)) {
				log.Info("contest ended while down, archiving")
				if err := c.store.MarkFinished(ct.ID); err != nil {
					log.WithError(err).Error("mark stale contest finished failed")
				}
				continue
			}
			if now.After(end) {
				ct.Status = models.StatusFinished
				if err := c.store.MarkFinished(ct.ID); err != nil {
					log.WithError(err).Error("mark finished failed")
				}
			}
		}

		if fb, err := c.store.LoadFrozenBoard(ct.ID); err == nil {
			ct.FrozenSnapshot = fb.Frozen
			ct.Revealed = fb.Revealed
		}

		c.mgr.Install(ct)
		log.WithFields(logrus.Fields{
			"status":       ct.Status,
			"participants": len(ct.Participants),
		}).Info("contest restored")
	}

	// Scheduled rows normally come back through the config table; anything
	// left only in the schedule table is reinstated too.
	scheduled, err := c.store.LoadScheduled()
	if err != nil {
		return err
	}
	for _, ct := range scheduled {
		if _, err := c.mgr.Contest(ct.ID); err == nil {
			continue
		}
		c.mgr.Install(ct)
		c.logger.WithField("contest", ct.ID).Info("scheduled contest restored")
	}
	return nil
}
