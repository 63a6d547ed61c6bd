package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type Training struct {
	ID            int64
	Query         string
	Response      string
	Category      string
	NextStepID    int64
	DataPointName string
	UsageCount    int
	CreatedAt     time.Time
}

// Chains reports whether the reply expects a follow-up answer from the user.
func (t Training) Chains() bool {
	return t.NextStepID != 0 || t.DataPointName != ""
}

const trainingColumns = `id, query, response, category, COALESCE(next_step_id, 0), COALESCE(data_point_name, ''), usage_count, created_at`

func (s *Store) AddTraining(ctx context.Context, entry Training) (int64, error) {
	category := strings.TrimSpace(entry.Category)
	if category == "" {
		category = "general"
	}
	var next any
	if entry.NextStepID != 0 {
		next = entry.NextStepID
	}
	var dataPoint any
	if entry.DataPointName != "" {
		dataPoint = entry.DataPointName
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO training (query, response, category, next_step_id, data_point_name, usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, strings.TrimSpace(entry.Query), entry.Response, category, next, dataPoint, entry.UsageCount, created.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetTraining(ctx context.Context, id int64) (Training, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trainingColumns+` FROM training WHERE id = ?`, id)
	entry, err := scanTraining(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Training{}, false, nil
		}
		return Training{}, false, err
	}
	return entry, true, nil
}

func (s *Store) DeleteTraining(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM training WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListTraining returns the corpus ordered by usage (desc) then id.
func (s *Store) ListTraining(ctx context.Context) ([]Training, error) {
	return s.queryTraining(ctx, `SELECT `+trainingColumns+` FROM training ORDER BY usage_count DESC, id ASC`)
}

func (s *Store) ListTrainingByCategory(ctx context.Context, category string) ([]Training, error) {
	return s.queryTraining(ctx, `SELECT `+trainingColumns+` FROM training WHERE category = ? ORDER BY usage_count DESC, id ASC`, category)
}

func (s *Store) TopTraining(ctx context.Context, limit int) ([]Training, error) {
	return s.queryTraining(ctx, `SELECT `+trainingColumns+` FROM training ORDER BY usage_count DESC, id ASC LIMIT ?`, limit)
}

func (s *Store) IncrementUsage(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE training SET usage_count = usage_count + 1 WHERE id = ?`, id)
	return err
}

func (s *Store) queryTraining(ctx context.Context, query string, args ...any) ([]Training, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Training
	for rows.Next() {
		entry, err := scanTraining(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTraining(row scanner) (Training, error) {
	var entry Training
	var created int64
	err := row.Scan(&entry.ID, &entry.Query, &entry.Response, &entry.Category, &entry.NextStepID, &entry.DataPointName, &entry.UsageCount, &created)
	if err != nil {
		return Training{}, err
	}
	entry.CreatedAt = time.Unix(created, 0)
	return entry, nil
}
