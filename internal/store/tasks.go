package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dev.synaq.judge/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// AddTask inserts a task and returns its id.
func (s *Store) AddTask(t *models.Task) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO tasks (title, difficulty, topic, description, attachment, file_format, checker_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Difficulty, t.Topic, t.Description, t.Attachment, t.FileFormat, t.CheckerCode,
	)
	if err != nil {
		return 0, fmt.Errorf("add task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add task id: %w", err)
	}
	t.ID = int(id)
	return t.ID, nil
}

// Tasks lists all tasks, newest first, without attachments.
func (s *Store) Tasks() ([]models.Task, error) {
	rows, err := s.db.Query(
		`SELECT id, title, difficulty, topic, description FROM tasks ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Difficulty, &t.Topic, &t.Description); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TaskByID returns the full task row including attachment and checker.
func (s *Store) TaskByID(id int) (*models.Task, error) {
	var (
		t          models.Task
		attachment []byte
		format     sql.NullString
		checker    sql.NullString
	)
	err := s.db.QueryRow(
		`SELECT id, title, difficulty, topic, description, attachment, file_format, checker_code
		 FROM tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &t.Difficulty, &t.Topic, &t.Description, &attachment, &format, &checker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", id, err)
	}
	t.Attachment = attachment
	t.FileFormat = format.String
	t.CheckerCode = checker.String
	return &t, nil
}

// UpdateTask updates the task row; the attachment is replaced only when a
// new one is provided.
func (s *Store) UpdateTask(t *models.Task) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	if len(t.Attachment) > 0 && t.FileFormat != "" {
		_, err = s.db.Exec(
			`UPDATE tasks SET title=?, difficulty=?, topic=?, description=?, attachment=?, file_format=?, checker_code=?
			 WHERE id=?`,
			t.Title, t.Difficulty, t.Topic, t.Description, t.Attachment, t.FileFormat, t.CheckerCode, t.ID)
	} else {
		_, err = s.db.Exec(
			`UPDATE tasks SET title=?, difficulty=?, topic=?, description=?, checker_code=? WHERE id=?`,
			t.Title, t.Difficulty, t.Topic, t.Description, t.CheckerCode, t.ID)
	}
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return nil
}

// DeleteTask removes a task and its tests.
func (s *Store) DeleteTask(id int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM tests WHERE task_id=?`, id); err != nil {
		return fmt.Errorf("delete tests of task %d: %w", id, err)
	}
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// normalizeNewlines strips CRLF down to LF, the canonical stored form.
func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// AddTest inserts a test for a task. Input and output are LF-normalized.
func (s *Store) AddTest(t *models.Test) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO tests (task_id, test_input, expected_output, time_limit) VALUES (?, ?, ?, ?)`,
		t.TaskID, normalizeNewlines(t.Input), normalizeNewlines(t.ExpectedOutput), t.TimeLimit)
	if err != nil {
		return 0, fmt.Errorf("add test: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add test id: %w", err)
	}
	t.ID = int(id)
	return t.ID, nil
}

// TestsForTask returns a task's tests in insertion order.
func (s *Store) TestsForTask(taskID int) ([]models.Test, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, test_input, expected_output, time_limit
		 FROM tests WHERE task_id=? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("tests for task %d: %w", taskID, err)
	}
	defer rows.Close()

	var tests []models.Test
	for rows.Next() {
		var t models.Test
		if err := rows.Scan(&t.ID, &t.TaskID, &t.Input, &t.ExpectedOutput, &t.TimeLimit); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// TestByID returns a single test.
func (s *Store) TestByID(id int) (*models.Test, error) {
	var t models.Test
	err := s.db.QueryRow(
		`SELECT id, task_id, test_input, expected_output, time_limit FROM tests WHERE id=?`, id,
	).Scan(&t.ID, &t.TaskID, &t.Input, &t.ExpectedOutput, &t.TimeLimit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("test %d: %w", id, err)
	}
	return &t, nil
}

// UpdateTest rewrites a test row.
func (s *Store) UpdateTest(t *models.Test) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.Exec(
		`UPDATE tests SET test_input=?, expected_output=?, time_limit=? WHERE id=?`,
		normalizeNewlines(t.Input), normalizeNewlines(t.ExpectedOutput), t.TimeLimit, t.ID)
	if err != nil {
		return fmt.Errorf("update test %d: %w", t.ID, err)
	}
	return nil
}

// DeleteTest removes a test.
func (s *Store) DeleteTest(id int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM tests WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete test %d: %w", id, err)
	}
	return nil
}
