package store

import (
	"fmt"
	"time"

	"dev.synaq.judge/internal/models"
)

// AppendHistory inserts one judging outcome row and returns its id.
func (s *Store) AppendHistory(rec *models.HistoryRecord) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO contest_history
			(contest_id, participant_id, task_id, language, verdict, tests_passed, total_tests, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ContestID, rec.ParticipantID, rec.TaskID, string(rec.Language),
		rec.Verdict, rec.TestsPassed, rec.TotalTests, epoch(rec.Timestamp))
	if err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append history id: %w", err)
	}
	rec.ID = id
	return id, nil
}

func (s *Store) scanHistory(query string, args ...any) ([]models.HistoryRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	var records []models.HistoryRecord
	for rows.Next() {
		var (
			rec models.HistoryRecord
			ts  float64
		)
		if err := rows.Scan(&rec.ID, &rec.ContestID, &rec.ParticipantID, &rec.TaskID,
			&rec.Language, &rec.Verdict, &rec.TestsPassed, &rec.TotalTests, &ts); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		sec := int64(ts)
		rec.Timestamp = time.Unix(sec, int64((ts-float64(sec))*float64(time.Second)))
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ParticipantHistory lists a participant's attempts, newest first.
func (s *Store) ParticipantHistory(contestID, participantID string) ([]models.HistoryRecord, error) {
	return s.scanHistory(
		`SELECT id, contest_id, participant_id, task_id, language, verdict, tests_passed, total_tests, timestamp
		 FROM contest_history WHERE contest_id=? AND participant_id=? ORDER BY id DESC`,
		contestID, participantID)
}

// HistorySince lists a contest's records at or after since, ordered by
// (timestamp, id) so reveal replay is deterministic within a second.
func (s *Store) HistorySince(contestID string, since time.Time) ([]models.HistoryRecord, error) {
	return s.scanHistory(
		`SELECT id, contest_id, participant_id, task_id, language, verdict, tests_passed, total_tests, timestamp
		 FROM contest_history WHERE contest_id=? AND timestamp >= ? ORDER BY timestamp, id`,
		contestID, epoch(since))
}

// GetFirstSolvers returns, per task, the participant with the earliest
// Accepted verdict.
func (s *Store) GetFirstSolvers(contestID string) (map[int]string, error) {
	// sqlite resolves bare columns next to MIN() from the minimal row, so
	// participant_id here is the earliest accepted submitter per task.
	rows, err := s.db.Query(
		`SELECT task_id, participant_id, MIN(timestamp) FROM contest_history
		 WHERE contest_id=? AND verdict=?
		 GROUP BY task_id`,
		contestID, models.VerdictAccepted)
	if err != nil {
		return nil, fmt.Errorf("first solvers: %w", err)
	}
	defer rows.Close()

	solvers := make(map[int]string)
	for rows.Next() {
		var taskID int
		var pid string
		var ts float64
		if err := rows.Scan(&taskID, &pid, &ts); err != nil {
			return nil, fmt.Errorf("scan first solver: %w", err)
		}
		solvers[taskID] = pid
	}
	return solvers, rows.Err()
}

// MinHistoryTimestamp returns the earliest history timestamp for a contest,
// or the zero time when the contest has no history. Restart recovery uses it
// to infer a missing start time.
func (s *Store) MinHistoryTimestamp(contestID string) (time.Time, error) {
	var ts *float64
	err := s.db.QueryRow(
		`SELECT MIN(timestamp) FROM contest_history WHERE contest_id=?`, contestID).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("min history timestamp: %w", err)
	}
	if ts == nil || *ts == 0 {
		return time.Time{}, nil
	}
	sec := int64(*ts)
	return time.Unix(sec, int64((*ts-float64(sec))*float64(time.Second))), nil
}
