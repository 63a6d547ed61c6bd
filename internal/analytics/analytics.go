package analytics

import (
	"context"
	"time"

	"supreme-bot/internal/storage"
)

type Service struct {
	store *storage.Store
}

func New(store *storage.Store) *Service {
	return &Service{store: store}
}

type Report struct {
	Since   time.Time
	Events  int
	ByFlow  map[string]map[string]int
	ByLevel map[string]int
	Totals  storage.Stats
}

// Started and Completed count lifecycle events of one flow in the window.
func (r Report) Started(flowName string) int   { return r.ByFlow[flowName]["started"] }
func (r Report) Completed(flowName string) int { return r.ByFlow[flowName]["completed"] }

func (s *Service) Report(ctx context.Context, since time.Time) (Report, error) {
	events, err := s.store.ListFlowEvents(ctx, since)
	if err != nil {
		return Report{}, err
	}
	totals, err := s.store.Stats(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Since:   since,
		ByFlow:  make(map[string]map[string]int),
		ByLevel: make(map[string]int),
		Totals:  totals,
	}
	for _, ev := range events {
		report.Events++
		report.ByLevel[ev.Level]++
		if report.ByFlow[ev.Flow] == nil {
			report.ByFlow[ev.Flow] = make(map[string]int)
		}
		report.ByFlow[ev.Flow][ev.Event]++
	}
	return report, nil
}
