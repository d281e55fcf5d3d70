package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dev.synaq.judge/internal/models"
)

// decodeScores parses a task_scores JSON object into the in-memory form.
// Keys may be decimal strings from any era; values may be full TaskScore
// records or bare integers from the legacy format, which are upgraded in
// place. The second return reports whether any score exceeds 1, which feeds
// the scoring auto-detect.
func decodeScores(raw string) (map[int]*models.TaskScore, bool, error) {
	scores := make(map[int]*models.TaskScore)
	if raw == "" {
		return scores, false, nil
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, false, fmt.Errorf("decode task scores: %w", err)
	}

	sawLargeScore := false
	for key, val := range generic {
		tid, err := strconv.Atoi(key)
		if err != nil {
			// Keys that are not task ids carry no score.
			continue
		}

		var cell models.TaskScore
		if err := json.Unmarshal(val, &cell); err != nil {
			var bare int
			if err2 := json.Unmarshal(val, &bare); err2 != nil {
				return nil, false, fmt.Errorf("decode score cell for task %d: %w", tid, err)
			}
			cell = models.TaskScore{Score: bare}
		}
		if cell.Score > 1 {
			sawLargeScore = true
		}
		c := cell
		scores[tid] = &c
	}
	return scores, sawLargeScore, nil
}

func encodeScores(scores map[int]*models.TaskScore) (string, error) {
	b, err := json.Marshal(scores)
	if err != nil {
		return "", fmt.Errorf("encode task scores: %w", err)
	}
	return string(b), nil
}

// decodeSubmissions tolerates string task-id keys the same way decodeScores
// does.
func decodeSubmissions(raw string) (map[int]string, error) {
	subs := make(map[int]string)
	if raw == "" {
		return subs, nil
	}
	var generic map[string]string
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, fmt.Errorf("decode submissions: %w", err)
	}
	for key, code := range generic {
		tid, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		subs[tid] = code
	}
	return subs, nil
}

// SaveContestConfig upserts the contest configuration row.
func (s *Store) SaveContestConfig(c *models.Contest) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	taskIDs, err := json.Marshal(c.TaskIDs)
	if err != nil {
		return fmt.Errorf("encode task ids: %w", err)
	}
	languages, err := json.Marshal(c.Config.AllowedLanguages)
	if err != nil {
		return fmt.Errorf("encode languages: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO contest_configs
			(contest_id, name, task_ids_json, status, duration_minutes, scoring_type, mode, allowed_languages, freeze_minutes, start_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(contest_id) DO UPDATE SET
			name=excluded.name, task_ids_json=excluded.task_ids_json, status=excluded.status,
			duration_minutes=excluded.duration_minutes, scoring_type=excluded.scoring_type,
			mode=excluded.mode, allowed_languages=excluded.allowed_languages,
			freeze_minutes=excluded.freeze_minutes, start_time=excluded.start_time`,
		c.ID, c.Name, string(taskIDs), string(c.Status), c.Config.DurationMinutes,
		string(c.Config.Scoring), string(c.Config.Mode), string(languages),
		c.Config.FreezeMinutes, nullEpoch(c.StartTime))
	if err != nil {
		return fmt.Errorf("save contest config %s: %w", c.ID, err)
	}
	return nil
}

// SetContestStart records the start time and flips the stored status to
// running.
func (s *Store) SetContestStart(contestID string, start time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.Exec(
		`UPDATE contest_configs SET start_time=?, status='running' WHERE contest_id=?`,
		epoch(start), contestID)
	if err != nil {
		return fmt.Errorf("set start for %s: %w", contestID, err)
	}
	return nil
}

// MarkFinished sets the stored status to finished.
func (s *Store) MarkFinished(contestID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.Exec(
		`UPDATE contest_configs SET status='finished' WHERE contest_id=?`, contestID)
	if err != nil {
		return fmt.Errorf("mark finished %s: %w", contestID, err)
	}
	return nil
}

// PersistContestSnapshot upserts every participant's scores and last
// submitted code in one write transaction.
func (s *Store) PersistContestSnapshot(c *models.Contest) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("snapshot %s: begin: %w", c.ID, err)
	}
	defer tx.Rollback()

	for pid, p := range c.Participants {
		scoresJSON, err := encodeScores(p.Scores)
		if err != nil {
			return err
		}
		total := 0
		for _, cell := range p.Scores {
			total += cell.Score
		}
		if _, err := tx.Exec(
			`INSERT INTO contest_results (contest_id, participant_id, nickname, organization, total_score, task_scores, disqualified)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(contest_id, participant_id) DO UPDATE SET
				nickname=excluded.nickname, organization=excluded.organization,
				total_score=excluded.total_score, task_scores=excluded.task_scores,
				disqualified=excluded.disqualified`,
			c.ID, pid, p.Nickname, p.Organization, total, scoresJSON, p.Disqualified); err != nil {
			return fmt.Errorf("snapshot %s: results: %w", c.ID, err)
		}

		subsJSON, err := json.Marshal(p.LastSubmissions)
		if err != nil {
			return fmt.Errorf("snapshot %s: encode submissions: %w", c.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO contest_submissions (contest_id, participant_id, nickname, task_submissions)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(contest_id, participant_id) DO UPDATE SET
				task_submissions=excluded.task_submissions, nickname=excluded.nickname`,
			c.ID, pid, p.Nickname, string(subsJSON)); err != nil {
			return fmt.Errorf("snapshot %s: submissions: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot %s: commit: %w", c.ID, err)
	}
	return nil
}

// SaveSubmissionCode records a participant's latest code for one task
// immediately on admission, before judging completes.
func (s *Store) SaveSubmissionCode(contestID, participantID, nickname string, taskID int, code string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var raw sql.NullString
	err := s.db.QueryRow(
		`SELECT task_submissions FROM contest_submissions WHERE contest_id=? AND participant_id=?`,
		contestID, participantID).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load submissions row: %w", err)
	}

	subs, err := decodeSubmissions(raw.String)
	if err != nil {
		// A corrupt row is replaced rather than wedging every submit.
		subs = make(map[int]string)
	}
	subs[taskID] = code

	encoded, err := json.Marshal(subs)
	if err != nil {
		return fmt.Errorf("encode submissions: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO contest_submissions (contest_id, participant_id, nickname, task_submissions)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(contest_id, participant_id) DO UPDATE SET
			task_submissions=excluded.task_submissions, nickname=excluded.nickname`,
		contestID, participantID, nickname, string(encoded))
	if err != nil {
		return fmt.Errorf("save submission code: %w", err)
	}
	return nil
}

// ParticipantProgress is the restartable per-participant state.
type ParticipantProgress struct {
	Scores          map[int]*models.TaskScore
	LastSubmissions map[int]string
	Organization    string
	Disqualified    bool
}

// GetParticipantProgress loads one participant's saved scores and code.
// Returns ErrNotFound when the participant has no saved row.
func (s *Store) GetParticipantProgress(contestID, participantID string) (*ParticipantProgress, error) {
	var (
		scoresRaw    sql.NullString
		organization sql.NullString
		disqualified bool
	)
	err := s.db.QueryRow(
		`SELECT task_scores, organization, disqualified FROM contest_results
		 WHERE contest_id=? AND participant_id=?`,
		contestID, participantID).Scan(&scoresRaw, &organization, &disqualified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("participant progress: %w", err)
	}

	scores, _, err := decodeScores(scoresRaw.String)
	if err != nil {
		return nil, err
	}

	var subsRaw sql.NullString
	err = s.db.QueryRow(
		`SELECT task_submissions FROM contest_submissions WHERE contest_id=? AND participant_id=?`,
		contestID, participantID).Scan(&subsRaw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("participant submissions: %w", err)
	}
	subs, err := decodeSubmissions(subsRaw.String)
	if err != nil {
		subs = make(map[int]string)
	}

	return &ParticipantProgress{
		Scores:          scores,
		LastSubmissions: subs,
		Organization:    organization.String,
		Disqualified:    disqualified,
	}, nil
}

// ParticipantIDByNickname finds a saved participant id for free-mode session
// restore. Returns "" when no row exists.
func (s *Store) ParticipantIDByNickname(contestID, nickname string) (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT participant_id FROM contest_results WHERE contest_id=? AND nickname=?`,
		contestID, nickname).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("participant by nickname: %w", err)
	}
	return id, nil
}

func (s *Store) loadContestRow(row *sql.Rows) (*models.Contest, error) {
	var (
		c            models.Contest
		name         sql.NullString
		taskIDsJSON  sql.NullString
		status       sql.NullString
		scoring      sql.NullString
		mode         sql.NullString
		languages    sql.NullString
		startTime    sql.NullFloat64
		freezeMins   sql.NullInt64
		durationMins sql.NullInt64
	)
	if err := row.Scan(&c.ID, &name, &taskIDsJSON, &status, &durationMins, &scoring, &mode, &languages, &freezeMins, &startTime); err != nil {
		return nil, fmt.Errorf("scan contest config: %w", err)
	}

	c.Name = name.String
	c.Status = models.ContestStatus(status.String)
	if c.Status == "" {
		c.Status = models.StatusWaiting
	}
	c.StartTime = fromEpoch(startTime)
	c.Config = models.ContestConfig{
		DurationMinutes: int(durationMins.Int64),
		Scoring:         models.ScoringMode(scoring.String),
		Mode:            models.ContestMode(mode.String),
		FreezeMinutes:   int(freezeMins.Int64),
	}
	if c.Config.DurationMinutes == 0 {
		c.Config.DurationMinutes = 300
	}
	if c.Config.Scoring == "" {
		c.Config.Scoring = models.ScoringICPC
	}
	if c.Config.Mode == "" {
		c.Config.Mode = models.ModeFree
	}
	if taskIDsJSON.Valid {
		if err := json.Unmarshal([]byte(taskIDsJSON.String), &c.TaskIDs); err != nil {
			return nil, fmt.Errorf("decode task ids for %s: %w", c.ID, err)
		}
	}
	if languages.Valid && languages.String != "" {
		if err := json.Unmarshal([]byte(languages.String), &c.Config.AllowedLanguages); err != nil {
			return nil, fmt.Errorf("decode languages for %s: %w", c.ID, err)
		}
	}
	if len(c.Config.AllowedLanguages) == 0 {
		c.Config.AllowedLanguages = []models.Language{models.LanguagePython, models.LanguageCPP, models.LanguageCSharp}
	}
	c.Participants = make(map[string]*models.Participant)
	c.FirstSolves = make(map[int]string)
	c.Dirty = true
	return &c, nil
}

// LoadAllActiveContests hydrates every non-finished contest with its
// participants, code, and first solves for restart recovery.
//
// Auto-detect on load: a contest stored as icpc whose rows carry any
// score > 1 was mis-tagged and is promoted to points; the observed values
// define truth.
func (s *Store) LoadAllActiveContests() ([]*models.Contest, error) {
	rows, err := s.db.Query(
		`SELECT contest_id, name, task_ids_json, status, duration_minutes, scoring_type, mode, allowed_languages, freeze_minutes, start_time
		 FROM contest_configs WHERE status != 'finished'`)
	if err != nil {
		return nil, fmt.Errorf("load active contests: %w", err)
	}
	defer rows.Close()

	var contests []*models.Contest
	for rows.Next() {
		c, err := s.loadContestRow(rows)
		if err != nil {
			return nil, err
		}
		contests = append(contests, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range contests {
		if err := s.hydrateParticipants(c); err != nil {
			return nil, err
		}
		solves, err := s.GetFirstSolvers(c.ID)
		if err != nil {
			return nil, err
		}
		c.FirstSolves = solves
	}
	return contests, nil
}

func (s *Store) hydrateParticipants(c *models.Contest) error {
	rows, err := s.db.Query(
		`SELECT participant_id, nickname, organization, task_scores, disqualified
		 FROM contest_results WHERE contest_id=?`, c.ID)
	if err != nil {
		return fmt.Errorf("hydrate %s: %w", c.ID, err)
	}
	defer rows.Close()

	sawLargeScore := false
	for rows.Next() {
		var (
			pid          string
			nickname     string
			organization sql.NullString
			scoresRaw    sql.NullString
			disqualified bool
		)
		if err := rows.Scan(&pid, &nickname, &organization, &scoresRaw, &disqualified); err != nil {
			return fmt.Errorf("hydrate %s: scan: %w", c.ID, err)
		}
		scores, large, err := decodeScores(scoresRaw.String)
		if err != nil {
			return err
		}
		sawLargeScore = sawLargeScore || large

		p := models.NewParticipant(pid, nickname, organization.String, c.TaskIDs)
		for tid, cell := range scores {
			p.Scores[tid] = cell
		}
		p.Disqualified = disqualified
		c.Participants[pid] = p
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if c.Config.Scoring == models.ScoringICPC && sawLargeScore {
		c.Config.Scoring = models.ScoringPoints
	}

	subRows, err := s.db.Query(
		`SELECT participant_id, task_submissions FROM contest_submissions WHERE contest_id=?`, c.ID)
	if err != nil {
		return fmt.Errorf("hydrate %s submissions: %w", c.ID, err)
	}
	defer subRows.Close()
	for subRows.Next() {
		var pid string
		var raw sql.NullString
		if err := subRows.Scan(&pid, &raw); err != nil {
			return fmt.Errorf("hydrate %s submissions: scan: %w", c.ID, err)
		}
		p, ok := c.Participants[pid]
		if !ok {
			continue
		}
		subs, err := decodeSubmissions(raw.String)
		if err != nil {
			continue
		}
		for tid, code := range subs {
			p.LastSubmissions[tid] = code
		}
	}
	return subRows.Err()
}

// AddScheduled records a contest awaiting its start time.
func (s *Store) AddScheduled(c *models.Contest) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	configJSON, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	taskIDs, err := json.Marshal(c.TaskIDs)
	if err != nil {
		return fmt.Errorf("encode task ids: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO scheduled_contests (contest_id, name, start_time, config_json, task_ids_json)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(contest_id) DO UPDATE SET
			name=excluded.name, start_time=excluded.start_time,
			config_json=excluded.config_json, task_ids_json=excluded.task_ids_json`,
		c.ID, c.Name, nullEpoch(c.StartTime), string(configJSON), string(taskIDs))
	if err != nil {
		return fmt.Errorf("add scheduled %s: %w", c.ID, err)
	}
	return nil
}

// LoadScheduled returns all scheduled contest rows.
func (s *Store) LoadScheduled() ([]*models.Contest, error) {
	rows, err := s.db.Query(
		`SELECT contest_id, name, start_time, config_json, task_ids_json FROM scheduled_contests`)
	if err != nil {
		return nil, fmt.Errorf("load scheduled: %w", err)
	}
	defer rows.Close()

	var contests []*models.Contest
	for rows.Next() {
		var (
			c          models.Contest
			name       sql.NullString
			start      sql.NullFloat64
			configJSON sql.NullString
			taskIDs    sql.NullString
		)
		if err := rows.Scan(&c.ID, &name, &start, &configJSON, &taskIDs); err != nil {
			return nil, fmt.Errorf("scan scheduled: %w", err)
		}
		c.Name = name.String
		c.Status = models.StatusScheduled
		c.StartTime = fromEpoch(start)
		if configJSON.Valid {
			if err := json.Unmarshal([]byte(configJSON.String), &c.Config); err != nil {
				return nil, fmt.Errorf("decode scheduled config %s: %w", c.ID, err)
			}
		}
		if taskIDs.Valid {
			if err := json.Unmarshal([]byte(taskIDs.String), &c.TaskIDs); err != nil {
				return nil, fmt.Errorf("decode scheduled tasks %s: %w", c.ID, err)
			}
		}
		c.Participants = make(map[string]*models.Participant)
		c.FirstSolves = make(map[int]string)
		c.Dirty = true
		contests = append(contests, &c)
	}
	return contests, rows.Err()
}

// UpdateScheduledTime moves a scheduled contest's start.
func (s *Store) UpdateScheduledTime(contestID string, start time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.Exec(
		`UPDATE scheduled_contests SET start_time=? WHERE contest_id=?`, epoch(start), contestID)
	if err != nil {
		return fmt.Errorf("update scheduled time %s: %w", contestID, err)
	}
	return nil
}

// RemoveScheduled drops the scheduled row once a contest starts.
func (s *Store) RemoveScheduled(contestID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM scheduled_contests WHERE contest_id=?`, contestID); err != nil {
		return fmt.Errorf("remove scheduled %s: %w", contestID, err)
	}
	return nil
}

// SaveFrozenBoard upserts the frozen/final board pair for a contest.
func (s *Store) SaveFrozenBoard(fb *models.FrozenBoard) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	frozenJSON, err := json.Marshal(fb.Frozen)
	if err != nil {
		return fmt.Errorf("encode frozen board: %w", err)
	}
	finalJSON, err := json.Marshal(fb.Final)
	if err != nil {
		return fmt.Errorf("encode final board: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO frozen_boards (contest_id, frozen_json, final_json, freeze_time, is_revealed)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(contest_id) DO UPDATE SET
			frozen_json=excluded.frozen_json, final_json=excluded.final_json,
			freeze_time=excluded.freeze_time, is_revealed=excluded.is_revealed`,
		fb.ContestID, string(frozenJSON), string(finalJSON), nullEpoch(fb.FreezeTime), fb.Revealed)
	if err != nil {
		return fmt.Errorf("save frozen board %s: %w", fb.ContestID, err)
	}
	return nil
}

// LoadFrozenBoard returns the stored frozen board or ErrNotFound.
func (s *Store) LoadFrozenBoard(contestID string) (*models.FrozenBoard, error) {
	var (
		fb         models.FrozenBoard
		frozenJSON sql.NullString
		finalJSON  sql.NullString
		freezeTime sql.NullFloat64
	)
	err := s.db.QueryRow(
		`SELECT contest_id, frozen_json, final_json, freeze_time, is_revealed
		 FROM frozen_boards WHERE contest_id=?`, contestID,
	).Scan(&fb.ContestID, &frozenJSON, &finalJSON, &freezeTime, &fb.Revealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load frozen board %s: %w", contestID, err)
	}
	fb.FreezeTime = fromEpoch(freezeTime)
	if frozenJSON.Valid && frozenJSON.String != "null" {
		if err := json.Unmarshal([]byte(frozenJSON.String), &fb.Frozen); err != nil {
			return nil, fmt.Errorf("decode frozen board: %w", err)
		}
	}
	if finalJSON.Valid && finalJSON.String != "null" {
		if err := json.Unmarshal([]byte(finalJSON.String), &fb.Final); err != nil {
			return nil, fmt.Errorf("decode final board: %w", err)
		}
	}
	return &fb, nil
}

// ArchiveEntry is one row of the contest archive listing.
type ArchiveEntry struct {
	ContestID        string `json:"contest_id"`
	Name             string `json:"name"`
	Status           string `json:"status"`
	ParticipantCount int    `json:"participant_count"`
}

// ArchiveList returns every contest that has recorded results, newest first.
func (s *Store) ArchiveList() ([]ArchiveEntry, error) {
	rows, err := s.db.Query(
		`SELECT r.contest_id, COUNT(r.id), COALESCE(c.name, ''), COALESCE(c.status, 'finished')
		 FROM contest_results r
		 LEFT JOIN contest_configs c ON r.contest_id = c.contest_id
		 GROUP BY r.contest_id ORDER BY MAX(r.id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("archive list: %w", err)
	}
	defer rows.Close()

	var entries []ArchiveEntry
	for rows.Next() {
		var e ArchiveEntry
		if err := rows.Scan(&e.ContestID, &e.ParticipantCount, &e.Name, &e.Status); err != nil {
			return nil, fmt.Errorf("scan archive entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteContest removes every row a contest left behind.
func (s *Store) DeleteContest(contestID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, table := range []string{
		"contest_results", "contest_submissions", "contest_configs",
		"contest_history", "whitelist", "scheduled_contests", "frozen_boards",
	} {
		if _, err := s.db.Exec(`DELETE FROM `+table+` WHERE contest_id=?`, contestID); err != nil {
			return fmt.Errorf("delete contest %s from %s: %w", contestID, table, err)
		}
	}
	return nil
}

// ArchivedResult is one participant row from a finished contest, used by the
// archive viewer and the results export.
type ArchivedResult struct {
	ParticipantID string
	Nickname      string
	Organization  string
	Scores        map[int]*models.TaskScore
	Submissions   map[int]string
	TotalScore    int
	TotalPenalty  int
	SolvedCount   int
	Disqualified  bool
}

// ContestResults loads the stored results of a contest, applying the score
// upgrade and scoring auto-detect. The slice is ordered by the effective
// scoring model's ranking.
func (s *Store) ContestResults(contestID string) (*models.Contest, []ArchivedResult, error) {
	rows, err := s.db.Query(
		`SELECT contest_id, name, task_ids_json, status, duration_minutes, scoring_type, mode, allowed_languages, freeze_minutes, start_time
		 FROM contest_configs WHERE contest_id=?`, contestID)
	if err != nil {
		return nil, nil, fmt.Errorf("contest results %s: %w", contestID, err)
	}
	defer rows.Close()

	var c *models.Contest
	if rows.Next() {
		c, err = s.loadContestRow(rows)
		if err != nil {
			return nil, nil, err
		}
	}
	rows.Close()
	if c == nil {
		return nil, nil, ErrNotFound
	}

	if err := s.hydrateParticipants(c); err != nil {
		return nil, nil, err
	}
	if len(c.Participants) == 0 {
		return nil, nil, ErrNotFound
	}

	var results []ArchivedResult
	for pid, p := range c.Participants {
		r := ArchivedResult{
			ParticipantID: pid,
			Nickname:      p.Nickname,
			Organization:  p.Organization,
			Scores:        p.Scores,
			Submissions:   p.LastSubmissions,
			Disqualified:  p.Disqualified,
		}
		for _, cell := range p.Scores {
			r.TotalScore += cell.Score
			if cell.Passed {
				r.TotalPenalty += cell.Penalty
				r.SolvedCount++
			}
		}
		results = append(results, r)
	}

	if c.Config.Scoring == models.ScoringICPC {
		sortResultsICPC(results)
	} else {
		sortResultsByScore(results)
	}
	return c, results, nil
}

func sortResultsICPC(results []ArchivedResult) {
	sortSlice(results, func(a, b ArchivedResult) bool {
		if a.SolvedCount != b.SolvedCount {
			return a.SolvedCount > b.SolvedCount
		}
		if a.TotalPenalty != b.TotalPenalty {
			return a.TotalPenalty < b.TotalPenalty
		}
		return a.ParticipantID < b.ParticipantID
	})
}

func sortResultsByScore(results []ArchivedResult) {
	sortSlice(results, func(a, b ArchivedResult) bool {
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		return a.ParticipantID < b.ParticipantID
	})
}
