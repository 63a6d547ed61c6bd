package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	SettingAIEnabled          = "ai_enabled"
	SettingExternalBotID      = "external_bot_id"
	// SettingExternalCategoryID is the category an external ticket bot opens channels in.
	SettingExternalCategoryID = "external_category_id"
)

func (s *Store) GetSetting(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return fallback, err
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type FlowEvent struct {
	ID        int64
	Flow      string
	Identity  string
	RunID     string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

func (s *Store) AddFlowEvent(ctx context.Context, ev FlowEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_events (flow, identity, run_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.Flow, ev.Identity, ev.RunID, ev.Level, ev.Event, ev.Details, ev.CreatedAt.Unix())
	return err
}

func (s *Store) ListFlowEvents(ctx context.Context, since time.Time) ([]FlowEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, flow, identity, run_id, level, event, details, created_at
		FROM flow_events
		WHERE created_at >= ?
		ORDER BY created_at DESC, id DESC
	`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []FlowEvent
	for rows.Next() {
		var ev FlowEvent
		var created int64
		if err := rows.Scan(&ev.ID, &ev.Flow, &ev.Identity, &ev.RunID, &ev.Level, &ev.Event, &ev.Details, &created); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.Unix(created, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) CleanupFlowEvents(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	_, err := s.db.ExecContext(ctx, `DELETE FROM flow_events WHERE created_at < ?`, cutoff.Unix())
	return err
}
