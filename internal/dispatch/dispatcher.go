// Package dispatch owns the judging pipeline: an unbounded FIFO of admitted
// submissions drained by a fixed worker pool. Workers fetch tests, run the
// sandbox and fold the outcome back into contest state. A judging failure is
// a verdict, never a crash; the pending slot is released on every path.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dev.synaq.judge/internal/contest"
	"dev.synaq.judge/internal/models"
	"dev.synaq.judge/internal/sandbox"
	"dev.synaq.judge/internal/store"
)

// Job is one admitted submission awaiting judgment.
type Job struct {
	ContestID     string
	ParticipantID string
	TaskID        int
	Language      models.Language
	Code          string
}

// Sink receives applied results for client notification.
type Sink interface {
	ResultApplied(delta *contest.ResultDelta)
}

// Dispatcher drains the submission queue with a fixed pool of workers. A
// semaphore additionally bounds concurrent sandbox containers.
type Dispatcher struct {
	queue   *fifo
	workers int
	sem     chan struct{}
	runner  sandbox.Runner
	mgr     *contest.Manager
	store   *store.Store
	sink    Sink
	logger  *logrus.Entry

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a dispatcher with `workers` workers and as many sandbox slots.
func New(workers int, runner sandbox.Runner, mgr *contest.Manager, st *store.Store, sink Sink, logger *logrus.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		queue:   newFIFO(),
		workers: workers,
		sem:     make(chan struct{}, workers),
		runner:  runner,
		mgr:     mgr,
		store:   st,
		sink:    sink,
		logger:  logger.WithField("component", "dispatch"),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				job, ok := d.queue.Pop()
				if !ok {
					return
				}
				metricQueueDepth.Set(float64(d.queue.Len()))
				d.process(ctx, job)
			}
		}()
	}
	d.logger.WithField("workers", d.workers).Info("dispatcher started")
}

// Stop closes the queue, lets queued work drain and cancels in-flight runs
// once the context teardown reaches them.
func (d *Dispatcher) Stop() {
	d.queue.Close()
	d.wg.Wait()
	if d.cancel != nil {
		d.cancel()
	}
}

// Enqueue adds a job and returns the queue depth after the append.
func (d *Dispatcher) Enqueue(job Job) int {
	depth := d.queue.Push(job)
	metricQueueDepth.Set(float64(depth))
	return depth
}

// QueueSize returns the current depth.
func (d *Dispatcher) QueueSize() int {
	return d.queue.Len()
}

func (d *Dispatcher) process(ctx context.Context, job Job) {
	log := d.logger.WithFields(logrus.Fields{
		"contest": job.ContestID,
		"task":    job.TaskID,
		"lang":    job.Language,
	})

	verdict, testsPassed, totalTests, fatal, detail := d.judge(ctx, job, log)

	delta, err := d.mgr.ApplyResult(job.ContestID, job.ParticipantID, job.TaskID,
		job.Language, verdict, testsPassed, totalTests, fatal, detail, time.Now())
	if err != nil {
		log.WithError(err).Error("apply result failed")
		return
	}
	metricVerdicts.WithLabelValues(verdict).Inc()
	// A nil delta means the result was discarded (participant disqualified).
	if delta != nil && d.sink != nil {
		d.sink.ResultApplied(delta)
	}
}

// judge runs one submission and reduces the sandbox report to a verdict.
func (d *Dispatcher) judge(ctx context.Context, job Job, log *logrus.Entry) (verdict string, testsPassed, totalTests int, fatal bool, detail string) {
	task, err := d.store.TaskByID(job.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.VerdictSystemError, 0, 0, true, "task no longer exists"
		}
		log.WithError(err).Error("load task failed")
		return models.VerdictInternalError, 0, 0, true, "task lookup failed"
	}
	tests, err := d.store.TestsForTask(job.TaskID)
	if err != nil {
		log.WithError(err).Error("load tests failed")
		return models.VerdictInternalError, 0, 0, true, "test lookup failed"
	}
	if len(tests) == 0 {
		return models.VerdictSystemError, 0, 0, true, "task has no tests"
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return models.VerdictInternalError, 0, len(tests), true, "shutdown before judging"
	}
	started := time.Now()
	report, err := d.runner.Run(ctx, sandbox.Request{
		Language:    job.Language,
		Code:        job.Code,
		Tests:       tests,
		CheckerCode: task.CheckerCode,
	})
	<-d.sem
	metricRunSeconds.Observe(time.Since(started).Seconds())

	if err != nil {
		log.WithError(err).Error("sandbox run failed")
		return models.VerdictInternalError, 0, len(tests), true, "sandbox failure"
	}
	if report.Fatal {
		return report.Verdict, 0, len(tests), true, report.Detail
	}

	totalTests = len(report.Results)
	verdict = models.VerdictAccepted
	for _, res := range report.Results {
		if res.Verdict == models.VerdictAccepted {
			testsPassed++
		} else if verdict == models.VerdictAccepted {
			verdict = res.Verdict
			detail = fmt.Sprintf("failed on test %d", res.TestNum)
		}
	}
	return verdict, testsPassed, totalTests, false, detail
}
