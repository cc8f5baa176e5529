package sqlite

import (
	"database/sql"
	"time"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
)

// Record stores a finished transfer attempt
func (s *Store) Record(entry *domain.HistoryEntry) error {
	query := `
		INSERT INTO transfer_history (
			attempt_id, file_name, url, status, bytes, total_bytes, resumed, error, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.FinishedAt.IsZero() {
		entry.FinishedAt = time.Now()
	}

	var errMsg sql.NullString
	if entry.Error != "" {
		errMsg = sql.NullString{String: entry.Error, Valid: true}
	}

	result, err := s.db.Exec(query,
		entry.AttemptID, entry.FileName, entry.URL, string(entry.Status),
		entry.Bytes, entry.TotalBytes, entry.Resumed, errMsg,
		entry.FinishedAt.UnixMilli())
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

// Recent returns the most recent entries, newest first
func (s *Store) Recent(limit int) ([]*domain.HistoryEntry, error) {
	query := `
		SELECT id, attempt_id, file_name, url, status, bytes, total_bytes, resumed, error, finished_at
		FROM transfer_history
		ORDER BY finished_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByFileName returns entries for one download target, newest first
func (s *Store) ByFileName(fileName string, limit int) ([]*domain.HistoryEntry, error) {
	query := `
		SELECT id, attempt_id, file_name, url, status, bytes, total_bytes, resumed, error, finished_at
		FROM transfer_history
		WHERE file_name = ?
		ORDER BY finished_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, fileName, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries finished before now-age
func (s *Store) DeleteOlderThan(age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).UnixMilli()

	result, err := s.db.Exec("DELETE FROM transfer_history WHERE finished_at < ?", cutoff)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

func scanEntries(rows *sql.Rows) ([]*domain.HistoryEntry, error) {
	var entries []*domain.HistoryEntry
	for rows.Next() {
		entry := &domain.HistoryEntry{}
		var status string
		var errMsg sql.NullString
		var finishedAt int64

		if err := rows.Scan(
			&entry.ID, &entry.AttemptID, &entry.FileName, &entry.URL, &status,
			&entry.Bytes, &entry.TotalBytes, &entry.Resumed, &errMsg, &finishedAt,
		); err != nil {
			return nil, err
		}

		entry.Status = domain.Status(status)
		if errMsg.Valid {
			entry.Error = errMsg.String
		}
		entry.FinishedAt = time.UnixMilli(finishedAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
