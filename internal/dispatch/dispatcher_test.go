package dispatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"dev.synaq.judge/internal/contest"
	"dev.synaq.judge/internal/models"
	"dev.synaq.judge/internal/sandbox"
	"dev.synaq.judge/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	run func(ctx context.Context, req sandbox.Request) (*sandbox.Report, error)
}

func (f *fakeRunner) Run(ctx context.Context, req sandbox.Request) (*sandbox.Report, error) {
	return f.run(ctx, req)
}

type captureSink struct {
	deltas chan *contest.ResultDelta
}

func (s *captureSink) ResultApplied(delta *contest.ResultDelta) {
	s.deltas <- delta
}

type fixture struct {
	disp   *Dispatcher
	mgr    *contest.Manager
	sink   *captureSink
	taskID int
	cID    string
	pid    string
}

func newFixture(t *testing.T, runner sandbox.Runner) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	st, err := store.Open(filepath.Join(t.TempDir(), "judge.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	taskID, err := st.AddTask(&models.Task{Title: "Sum"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := st.AddTest(&models.Test{TaskID: taskID, Input: "1 2", ExpectedOutput: "3", TimeLimit: 1})
		require.NoError(t, err)
	}

	mgr := contest.New(st, logger)
	c, err := mgr.Create("Round", []int{taskID}, models.ContestConfig{DurationMinutes: 60}, time.Time{})
	require.NoError(t, err)
	require.NoError(t, mgr.Start(c.ID, time.Now()))
	pid, err := mgr.Join(c.ID, "alice", "", "")
	require.NoError(t, err)

	sink := &captureSink{deltas: make(chan *contest.ResultDelta, 8)}
	disp := New(2, runner, mgr, st, sink, logger)
	disp.Start(context.Background())
	t.Cleanup(disp.Stop)

	return &fixture{disp: disp, mgr: mgr, sink: sink, taskID: taskID, cID: c.ID, pid: pid}
}

func waitDelta(t *testing.T, sink *captureSink) *contest.ResultDelta {
	t.Helper()
	select {
	case d := <-sink.deltas:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("no result delivered")
		return nil
	}
}

func TestAcceptedSubmissionFlow(t *testing.T) {
	runner := &fakeRunner{run: func(_ context.Context, req sandbox.Request) (*sandbox.Report, error) {
		results := make([]sandbox.TestResult, len(req.Tests))
		for i := range req.Tests {
			results[i] = sandbox.TestResult{TestNum: i + 1, Verdict: models.VerdictAccepted}
		}
		return &sandbox.Report{Results: results}, nil
	}}
	f := newFixture(t, runner)

	require.NoError(t, f.mgr.Admit(f.cID, f.pid, f.taskID, models.LanguagePython, "code", time.Now()))
	f.disp.Enqueue(Job{ContestID: f.cID, ParticipantID: f.pid, TaskID: f.taskID, Language: models.LanguagePython, Code: "code"})

	delta := waitDelta(t, f.sink)
	assert.Equal(t, models.VerdictAccepted, delta.Verdict)
	assert.Equal(t, 3, delta.TestsPassed)
	assert.True(t, delta.Cell.Passed)
	assert.Zero(t, f.mgr.PendingCount(f.cID, f.pid))
}

func TestPartialFailureReportsFirstFailingTest(t *testing.T) {
	runner := &fakeRunner{run: func(context.Context, sandbox.Request) (*sandbox.Report, error) {
		return &sandbox.Report{Results: []sandbox.TestResult{
			{TestNum: 1, Verdict: models.VerdictAccepted},
			{TestNum: 2, Verdict: models.VerdictWrongAnswer},
			{TestNum: 3, Verdict: models.VerdictTimeLimit},
		}}, nil
	}}
	f := newFixture(t, runner)

	f.disp.Enqueue(Job{ContestID: f.cID, ParticipantID: f.pid, TaskID: f.taskID, Language: models.LanguagePython, Code: "code"})

	delta := waitDelta(t, f.sink)
	assert.Equal(t, models.VerdictWrongAnswer, delta.Verdict)
	assert.Equal(t, 1, delta.TestsPassed)
	assert.Equal(t, "failed on test 2", delta.Detail)
	assert.Equal(t, 1, delta.Cell.Attempts)
}

func TestFatalReportSkipsScoring(t *testing.T) {
	runner := &fakeRunner{run: func(context.Context, sandbox.Request) (*sandbox.Report, error) {
		return &sandbox.Report{Fatal: true, Verdict: models.VerdictCompilationError, Detail: "expected ';'"}, nil
	}}
	f := newFixture(t, runner)

	f.disp.Enqueue(Job{ContestID: f.cID, ParticipantID: f.pid, TaskID: f.taskID, Language: models.LanguageCPP, Code: "int main("})

	delta := waitDelta(t, f.sink)
	assert.Equal(t, models.VerdictCompilationError, delta.Verdict)
	assert.Zero(t, delta.Cell.Attempts)
	assert.Zero(t, delta.Cell.Score)
}

func TestMissingTaskYieldsSystemVerdict(t *testing.T) {
	runner := &fakeRunner{run: func(context.Context, sandbox.Request) (*sandbox.Report, error) {
		t.Fatal("runner must not be called for a missing task")
		return nil, nil
	}}
	f := newFixture(t, runner)

	f.disp.Enqueue(Job{ContestID: f.cID, ParticipantID: f.pid, TaskID: 9999, Language: models.LanguagePython, Code: "code"})

	delta := waitDelta(t, f.sink)
	assert.Equal(t, models.VerdictSystemError, delta.Verdict)
}

func TestRunnerErrorBecomesInternalVerdict(t *testing.T) {
	runner := &fakeRunner{run: func(context.Context, sandbox.Request) (*sandbox.Report, error) {
		return nil, context.DeadlineExceeded
	}}
	f := newFixture(t, runner)

	f.disp.Enqueue(Job{ContestID: f.cID, ParticipantID: f.pid, TaskID: f.taskID, Language: models.LanguagePython, Code: "code"})

	delta := waitDelta(t, f.sink)
	assert.Equal(t, models.VerdictInternalError, delta.Verdict)
}

func TestQueueDrainsInOrder(t *testing.T) {
	q := newFIFO()
	for i := 0; i < 5; i++ {
		q.Push(Job{TaskID: i})
	}
	assert.Equal(t, 5, q.Len())
	for i := 0; i < 5; i++ {
		j, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, j.TaskID)
	}
	q.Close()
	_, ok := q.Pop()
	assert.False(t, ok)
}
