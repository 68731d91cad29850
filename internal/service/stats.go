package service

import (
	"context"
	"time"

	"github.com/youthclub/notification-queue/internal/model"
)

type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
}

// Stats is a read-only view of queue depth by status.
type Stats struct {
	store StatusCounter
	now   func() time.Time
}

func NewStats(store StatusCounter) *Stats {
	return &Stats{store: store, now: time.Now}
}

func (s *Stats) WithClock(now func() time.Time) *Stats {
	s.now = now
	return s
}

func (s *Stats) Snapshot(ctx context.Context) (model.Snapshot, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{
		Pending: counts[model.Pending],
		Sent:    counts[model.Sent],
		Failed:  counts[model.Failed],
		AsOf:    s.now().UTC(),
	}, nil
}
