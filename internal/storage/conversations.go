package storage

import (
	"context"
	"time"
)

type Conversation struct {
	ID        int64
	TicketID  string
	UserID    string
	Message   string
	IsAI      bool
	CreatedAt time.Time
}

func (s *Store) AddConversation(ctx context.Context, entry Conversation) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (ticket_id, user_id, message, is_ai, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.TicketID, entry.UserID, entry.Message, boolToInt(entry.IsAI), created.Unix())
	return err
}

// History returns the last limit messages of a ticket, oldest first.
func (s *Store) History(ctx context.Context, ticketID string, limit int) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, user_id, message, is_ai, created_at
		FROM conversations
		WHERE ticket_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, ticketID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Conversation
	for rows.Next() {
		var entry Conversation
		var isAI int
		var created int64
		if err := rows.Scan(&entry.ID, &entry.TicketID, &entry.UserID, &entry.Message, &isAI, &created); err != nil {
			return nil, err
		}
		entry.IsAI = isAI == 1
		entry.CreatedAt = time.Unix(created, 0)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
