package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"dev.synaq.judge/internal/models"
)

// ErrDuplicateEntry is returned when a whitelist nickname already exists for
// the contest.
var ErrDuplicateEntry = errors.New("store: duplicate whitelist entry")

// AddWhitelistEntry registers one closed-mode participant.
func (s *Store) AddWhitelistEntry(e *models.WhitelistEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO whitelist (contest_id, nickname, organization, password)
		 VALUES (?, ?, ?, ?)`,
		e.ContestID, e.Nickname, e.Organization, e.Password)
	if err != nil {
		return fmt.Errorf("add whitelist entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add whitelist entry: %w", err)
	}
	if affected == 0 {
		return ErrDuplicateEntry
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("add whitelist entry id: %w", err)
	}
	e.ID = id
	return nil
}

// RemoveWhitelistEntry deletes a roster row by its id. Returns ErrNotFound
// when no row was deleted.
func (s *Store) RemoveWhitelistEntry(id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.Exec(`DELETE FROM whitelist WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("remove whitelist entry %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove whitelist entry %d: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// WhitelistForContest lists the roster ordered by nickname.
func (s *Store) WhitelistForContest(contestID string) ([]models.WhitelistEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, contest_id, nickname, organization, password
		 FROM whitelist WHERE contest_id=? ORDER BY nickname`, contestID)
	if err != nil {
		return nil, fmt.Errorf("whitelist for %s: %w", contestID, err)
	}
	defer rows.Close()

	var entries []models.WhitelistEntry
	for rows.Next() {
		var e models.WhitelistEntry
		var organization sql.NullString
		if err := rows.Scan(&e.ID, &e.ContestID, &e.Nickname, &organization, &e.Password); err != nil {
			return nil, fmt.Errorf("scan whitelist entry: %w", err)
		}
		e.Organization = organization.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ValidateWhitelist checks closed-mode credentials and returns the matching
// entry, or ErrNotFound when the pair is wrong.
func (s *Store) ValidateWhitelist(contestID, nickname, password string) (*models.WhitelistEntry, error) {
	var e models.WhitelistEntry
	var organization sql.NullString
	err := s.db.QueryRow(
		`SELECT id, contest_id, nickname, organization, password
		 FROM whitelist WHERE contest_id=? AND nickname=? AND password=?`,
		contestID, nickname, password,
	).Scan(&e.ID, &e.ContestID, &e.Nickname, &organization, &e.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("validate whitelist: %w", err)
	}
	e.Organization = organization.String
	return &e, nil
}

func sortSlice[T any](s []T, less func(a, b T) bool) {
	sort.Slice(s, func(i, j int) bool { return less(s[i], s[j]) })
}
