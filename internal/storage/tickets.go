package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	TicketOpen    = "open"
	TicketClosing = "closing"
	TicketClosed  = "closed"
)

type Ticket struct {
	ID            string
	UserID        string
	ChannelID     string
	Category      string
	Status        string
	CurrentStepID int
	CollectedData string
	AIResolved    bool
	CreatedAt     time.Time
}

// EnsureTicket inserts the ticket row if it does not exist yet.
func (s *Store) EnsureTicket(ctx context.Context, ticket Ticket) error {
	category := ticket.Category
	if category == "" {
		category = "general"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, user_id, channel_id, category, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = CASE WHEN tickets.user_id = '' THEN excluded.user_id ELSE tickets.user_id END,
			channel_id = CASE WHEN tickets.channel_id = '' THEN excluded.channel_id ELSE tickets.channel_id END
	`, ticket.ID, ticket.UserID, ticket.ChannelID, category, TicketOpen, time.Now().Unix())
	return err
}

func (s *Store) GetTicket(ctx context.Context, id string) (Ticket, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, channel_id, category, status, current_step_id, collected_data, ai_resolved, created_at
		FROM tickets WHERE id = ?`, id)

	var ticket Ticket
	var resolved int
	var created int64
	err := row.Scan(&ticket.ID, &ticket.UserID, &ticket.ChannelID, &ticket.Category, &ticket.Status,
		&ticket.CurrentStepID, &ticket.CollectedData, &resolved, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, false, nil
		}
		return Ticket{}, false, err
	}
	ticket.AIResolved = resolved == 1
	ticket.CreatedAt = time.Unix(created, 0)
	return ticket, true, nil
}

func (s *Store) SaveTicketState(ctx context.Context, id string, currentStepID int, collected string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, current_step_id, collected_data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_step_id = excluded.current_step_id,
			collected_data = excluded.collected_data
	`, id, currentStepID, collected, time.Now().Unix())
	return err
}

func (s *Store) SetTicketResolved(ctx context.Context, id string, resolved bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, ai_resolved, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET ai_resolved = excluded.ai_resolved
	`, id, boolToInt(resolved), time.Now().Unix())
	return err
}

// SetTicketStatus moves a ticket between statuses and reports whether a row changed.
func (s *Store) SetTicketStatus(ctx context.Context, id, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tickets SET status = ? WHERE id = ? AND status <> ?`, status, id, status)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
