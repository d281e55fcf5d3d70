package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.synaq.judge/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	s, err := Open(filepath.Join(t.TempDir(), "judge.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTaskCRUD(t *testing.T) {
	s := newTestStore(t)

	task := &models.Task{
		Title:       "A+B",
		Difficulty:  "easy",
		Topic:       "math",
		Description: "Add two numbers.",
	}
	id, err := s.AddTask(task)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := s.TaskByID(id)
	require.NoError(t, err)
	assert.Equal(t, "A+B", got.Title)
	assert.Empty(t, got.CheckerCode)

	got.CheckerCode = "def check(i, o, e):\n    return True\n"
	require.NoError(t, s.UpdateTask(got))
	got, err = s.TaskByID(id)
	require.NoError(t, err)
	assert.Contains(t, got.CheckerCode, "def check")

	tasks, err := s.Tasks()
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, s.DeleteTask(id))
	_, err = s.TaskByID(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTaskKeepsAttachment(t *testing.T) {
	s := newTestStore(t)

	task := &models.Task{Title: "Geometry", Attachment: []byte("pdf-bytes"), FileFormat: "pdf"}
	id, err := s.AddTask(task)
	require.NoError(t, err)

	// Update without a new attachment keeps the stored one.
	require.NoError(t, s.UpdateTask(&models.Task{ID: id, Title: "Geometry v2"}))
	got, err := s.TaskByID(id)
	require.NoError(t, err)
	assert.Equal(t, "Geometry v2", got.Title)
	assert.Equal(t, []byte("pdf-bytes"), got.Attachment)
	assert.Equal(t, "pdf", got.FileFormat)
}

func TestTestsNormalizeNewlines(t *testing.T) {
	s := newTestStore(t)

	taskID, err := s.AddTask(&models.Task{Title: "Echo"})
	require.NoError(t, err)

	_, err = s.AddTest(&models.Test{TaskID: taskID, Input: "1 2\r\n3 4\r\n", ExpectedOutput: "3\r\n7\r\n", TimeLimit: 1.5})
	require.NoError(t, err)

	tests, err := s.TestsForTask(taskID)
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "1 2\n3 4\n", tests[0].Input)
	assert.Equal(t, "3\n7\n", tests[0].ExpectedOutput)
	assert.Equal(t, 1.5, tests[0].TimeLimit)
}

func TestDecodeScoresUpgradesLegacyCells(t *testing.T) {
	// Bare integers are the legacy cell format; string keys always were the
	// wire format for task ids.
	scores, large, err := decodeScores(`{"1": 100, "2": {"score": 1, "attempts": 2, "passed": true, "penalty": 55}, "junk": 5}`)
	require.NoError(t, err)
	assert.True(t, large)
	require.Len(t, scores, 2)
	assert.Equal(t, 100, scores[1].Score)
	assert.False(t, scores[1].Passed)
	assert.Equal(t, 55, scores[2].Penalty)
	assert.True(t, scores[2].Passed)
}

func TestDecodeScoresEmpty(t *testing.T) {
	scores, large, err := decodeScores("")
	require.NoError(t, err)
	assert.False(t, large)
	assert.Empty(t, scores)
}

func contestFixture(id string, scoring models.ScoringMode) *models.Contest {
	c := models.NewContest(id, "Test Round", []int{1, 2}, models.ContestConfig{
		DurationMinutes:  120,
		Scoring:          scoring,
		Mode:             models.ModeFree,
		AllowedLanguages: models.AllLanguages(),
	})
	return c
}

func TestContestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)

	c := contestFixture("round-1", models.ScoringPoints)
	require.NoError(t, s.SaveContestConfig(c))

	p := models.NewParticipant("p1", "alice", "ACME", c.TaskIDs)
	p.Scores[1] = &models.TaskScore{Score: 60, Attempts: 2}
	p.LastSubmissions[1] = "print(1)"
	c.Participants["p1"] = p
	require.NoError(t, s.PersistContestSnapshot(c))

	loaded, err := s.LoadAllActiveContests()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	lc := loaded[0]
	assert.Equal(t, "round-1", lc.ID)
	assert.Equal(t, models.ScoringPoints, lc.Config.Scoring)
	require.Contains(t, lc.Participants, "p1")
	got := lc.Participants["p1"]
	assert.Equal(t, 60, got.Scores[1].Score)
	assert.Equal(t, 2, got.Scores[1].Attempts)
	assert.Equal(t, "print(1)", got.LastSubmissions[1])
	assert.Equal(t, "ACME", got.Organization)
	assert.True(t, lc.Dirty)
}

func TestScoringAutoDetectOnLoad(t *testing.T) {
	s := newTestStore(t)

	// Stored as icpc but the rows carry point-scale scores.
	c := contestFixture("round-2", models.ScoringICPC)
	require.NoError(t, s.SaveContestConfig(c))
	p := models.NewParticipant("p1", "bob", "", c.TaskIDs)
	p.Scores[1] = &models.TaskScore{Score: 80}
	c.Participants["p1"] = p
	require.NoError(t, s.PersistContestSnapshot(c))

	loaded, err := s.LoadAllActiveContests()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, models.ScoringPoints, loaded[0].Config.Scoring)
}

func TestFinishedContestsNotLoaded(t *testing.T) {
	s := newTestStore(t)

	c := contestFixture("round-3", models.ScoringICPC)
	require.NoError(t, s.SaveContestConfig(c))
	require.NoError(t, s.MarkFinished(c.ID))

	loaded, err := s.LoadAllActiveContests()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSaveSubmissionCodeCreatesAndMerges(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetParticipantProgress("c1", "p1")
	require.ErrorIs(t, err, ErrNotFound) // no results row yet

	c := contestFixture("c1", models.ScoringICPC)
	c.Participants["p1"] = models.NewParticipant("p1", "alice", "", c.TaskIDs)
	require.NoError(t, s.SaveContestConfig(c))
	require.NoError(t, s.PersistContestSnapshot(c))

	require.NoError(t, s.SaveSubmissionCode("c1", "p1", "alice", 1, "v1"))
	require.NoError(t, s.SaveSubmissionCode("c1", "p1", "alice", 2, "v2"))
	require.NoError(t, s.SaveSubmissionCode("c1", "p1", "alice", 1, "v3"))

	progress, err := s.GetParticipantProgress("c1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "v3", progress.LastSubmissions[1])
	assert.Equal(t, "v2", progress.LastSubmissions[2])
}

func TestParticipantIDByNickname(t *testing.T) {
	s := newTestStore(t)

	c := contestFixture("c2", models.ScoringICPC)
	c.Participants["pid-9"] = models.NewParticipant("pid-9", "carol", "", c.TaskIDs)
	require.NoError(t, s.SaveContestConfig(c))
	require.NoError(t, s.PersistContestSnapshot(c))

	id, err := s.ParticipantIDByNickname("c2", "carol")
	require.NoError(t, err)
	assert.Equal(t, "pid-9", id)

	id, err = s.ParticipantIDByNickname("c2", "nobody")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestHistoryOrderingAndFirstSolvers(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	records := []models.HistoryRecord{
		{ContestID: "c3", ParticipantID: "p1", TaskID: 1, Verdict: models.VerdictWrongAnswer, Timestamp: base},
		{ContestID: "c3", ParticipantID: "p2", TaskID: 1, Verdict: models.VerdictAccepted, Timestamp: base.Add(time.Minute)},
		{ContestID: "c3", ParticipantID: "p1", TaskID: 1, Verdict: models.VerdictAccepted, Timestamp: base.Add(2 * time.Minute)},
		{ContestID: "c3", ParticipantID: "p1", TaskID: 2, Verdict: models.VerdictAccepted, Timestamp: base.Add(3 * time.Minute)},
	}
	for i := range records {
		_, err := s.AppendHistory(&records[i])
		require.NoError(t, err)
	}

	solvers, err := s.GetFirstSolvers("c3")
	require.NoError(t, err)
	assert.Equal(t, "p2", solvers[1])
	assert.Equal(t, "p1", solvers[2])

	since, err := s.HistorySince("c3", base.Add(90*time.Second))
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, 1, since[0].TaskID)
	assert.Equal(t, 2, since[1].TaskID)

	personal, err := s.ParticipantHistory("c3", "p1")
	require.NoError(t, err)
	require.Len(t, personal, 3)
	// Newest first.
	assert.Equal(t, 2, personal[0].TaskID)

	min, err := s.MinHistoryTimestamp("c3")
	require.NoError(t, err)
	assert.WithinDuration(t, base, min, time.Second)

	min, err = s.MinHistoryTimestamp("no-such-contest")
	require.NoError(t, err)
	assert.True(t, min.IsZero())
}

func TestHistorySameSecondOrderedByID(t *testing.T) {
	s := newTestStore(t)

	ts := time.Now().Truncate(time.Second)
	for _, task := range []int{5, 6, 7} {
		_, err := s.AppendHistory(&models.HistoryRecord{
			ContestID: "c4", ParticipantID: "p1", TaskID: task,
			Verdict: models.VerdictAccepted, Timestamp: ts,
		})
		require.NoError(t, err)
	}

	records, err := s.HistorySince("c4", ts.Add(-time.Second))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []int{5, 6, 7}, []int{records[0].TaskID, records[1].TaskID, records[2].TaskID})
}

func TestWhitelist(t *testing.T) {
	s := newTestStore(t)

	entry := &models.WhitelistEntry{ContestID: "c5", Nickname: "dora", Organization: "Org", Password: "pw"}
	require.NoError(t, s.AddWhitelistEntry(entry))
	require.NotZero(t, entry.ID)

	err := s.AddWhitelistEntry(&models.WhitelistEntry{ContestID: "c5", Nickname: "dora", Password: "other"})
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	got, err := s.ValidateWhitelist("c5", "dora", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Org", got.Organization)

	_, err = s.ValidateWhitelist("c5", "dora", "wrong")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := s.WhitelistForContest("c5")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.RemoveWhitelistEntry(entry.ID))
	assert.ErrorIs(t, s.RemoveWhitelistEntry(entry.ID), ErrNotFound)
}

func TestScheduledContests(t *testing.T) {
	s := newTestStore(t)

	start := time.Now().Add(time.Hour).Truncate(time.Second)
	c := contestFixture("c6", models.ScoringAllOrNothing)
	c.Status = models.StatusScheduled
	c.StartTime = start
	require.NoError(t, s.AddScheduled(c))

	loaded, err := s.LoadScheduled()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, models.StatusScheduled, loaded[0].Status)
	assert.WithinDuration(t, start, loaded[0].StartTime, time.Second)
	assert.Equal(t, models.ScoringAllOrNothing, loaded[0].Config.Scoring)

	moved := start.Add(30 * time.Minute)
	require.NoError(t, s.UpdateScheduledTime("c6", moved))
	loaded, err = s.LoadScheduled()
	require.NoError(t, err)
	assert.WithinDuration(t, moved, loaded[0].StartTime, time.Second)

	require.NoError(t, s.RemoveScheduled("c6"))
	loaded, err = s.LoadScheduled()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFrozenBoardRoundTrip(t *testing.T) {
	s := newTestStore(t)

	fb := &models.FrozenBoard{
		ContestID: "c7",
		Frozen: &models.ScoreboardView{
			ContestID: "c7",
			Rows: []models.ScoreboardRow{{
				ParticipantID: "p1",
				Nickname:      "eve",
				Scores:        map[int]models.ScoreboardCell{1: {Score: 1, Passed: true}},
			}},
		},
		FreezeTime: time.Now().Truncate(time.Second),
	}
	require.NoError(t, s.SaveFrozenBoard(fb))

	got, err := s.LoadFrozenBoard("c7")
	require.NoError(t, err)
	assert.False(t, got.Revealed)
	require.NotNil(t, got.Frozen)
	assert.Equal(t, "eve", got.Frozen.Rows[0].Nickname)
	assert.Nil(t, got.Final)

	_, err = s.LoadFrozenBoard("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveAndDelete(t *testing.T) {
	s := newTestStore(t)

	c := contestFixture("c8", models.ScoringICPC)
	p1 := models.NewParticipant("p1", "zoe", "", c.TaskIDs)
	p1.Scores[1] = &models.TaskScore{Score: 1, Passed: true, Penalty: 40, Attempts: 1}
	p2 := models.NewParticipant("p2", "adam", "", c.TaskIDs)
	p2.Scores[1] = &models.TaskScore{Score: 1, Passed: true, Penalty: 20}
	c.Participants["p1"] = p1
	c.Participants["p2"] = p2
	require.NoError(t, s.SaveContestConfig(c))
	require.NoError(t, s.PersistContestSnapshot(c))

	entries, err := s.ArchiveList()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].ParticipantCount)

	ct, results, err := s.ContestResults("c8")
	require.NoError(t, err)
	assert.Equal(t, "c8", ct.ID)
	require.Len(t, results, 2)
	// ICPC order: same solved count, lower penalty first.
	assert.Equal(t, "p2", results[0].ParticipantID)

	require.NoError(t, s.DeleteContest("c8"))
	entries, err = s.ArchiveList()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
