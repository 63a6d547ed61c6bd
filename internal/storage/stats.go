package storage

import "context"

type Stats struct {
	Trainings     int
	TotalUsage    int
	OpenTickets   int
	AIResolved    int
	Conversations int
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM training),
			(SELECT COALESCE(SUM(usage_count), 0) FROM training),
			(SELECT COUNT(*) FROM tickets WHERE status = 'open'),
			(SELECT COUNT(*) FROM tickets WHERE ai_resolved = 1),
			(SELECT COUNT(*) FROM conversations)
	`).Scan(&stats.Trainings, &stats.TotalUsage, &stats.OpenTickets, &stats.AIResolved, &stats.Conversations)
	return stats, err
}
