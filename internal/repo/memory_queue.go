package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/youthclub/notification-queue/internal/model"
)

// MemoryQueue is a process-local QueueStore. Claims are taken under the mutex
// and released after fn returns, so fn never runs with the mutex held.
type MemoryQueue struct {
	mu      sync.Mutex
	items   []*model.QueueItem
	claimed map[uuid.UUID]struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{claimed: make(map[uuid.UUID]struct{})}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, item *model.QueueItem) error {
	if err := validateNew(item); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.items {
		if existing.ID == item.ID {
			return errors.Wrapf(ErrInvalidItem, "duplicate id %s", item.ID)
		}
	}

	c := clone(item)
	// Stable insert keeps FIFO among equal timestamps.
	idx := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].CreatedAt.After(c.CreatedAt)
	})
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = c
	return nil
}

func (q *MemoryQueue) ProcessNext(ctx context.Context, fn ClaimFunc) (*model.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	var target *model.QueueItem
	for _, it := range q.items {
		if it.Status != model.Pending {
			continue
		}
		if _, taken := q.claimed[it.ID]; taken {
			continue
		}
		target = it
		break
	}
	if target == nil {
		q.mu.Unlock()
		return nil, nil
	}
	q.claimed[target.ID] = struct{}{}
	work := clone(target)
	q.mu.Unlock()

	fnErr := fn(ctx, work)

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, target.ID)

	if fnErr != nil {
		return nil, errors.Wrap(fnErr, "process claimed item")
	}
	if target.Status != model.Pending {
		return nil, errors.Newf("claimed item %s was no longer pending", target.ID)
	}

	target.Status = work.Status
	target.Attempts = work.Attempts
	target.ProviderMessageID = work.ProviderMessageID
	target.LastError = work.LastError
	target.SentAt = work.SentAt
	return clone(target), nil
}

func (q *MemoryQueue) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := map[model.Status]int{
		model.Pending: 0,
		model.Sent:    0,
		model.Failed:  0,
	}
	for _, it := range q.items {
		out[it.Status]++
	}
	return out, nil
}

func (q *MemoryQueue) List(ctx context.Context, status model.Status, limit, offset int) ([]model.QueueItem, error) {
	limit, offset = normalizeListArgs(limit, offset)

	q.mu.Lock()
	defer q.mu.Unlock()

	var out []model.QueueItem
	skipped := 0
	for i := len(q.items) - 1; i >= 0 && len(out) < limit; i-- {
		it := q.items[i]
		if status != "" && it.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, *clone(it))
	}
	return out, nil
}

func (q *MemoryQueue) Get(ctx context.Context, id uuid.UUID) (*model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if it.ID == id {
			return clone(it), nil
		}
	}
	return nil, ErrNotFound
}

func clone(it *model.QueueItem) *model.QueueItem {
	c := *it
	if it.RecipientRef != nil {
		v := *it.RecipientRef
		c.RecipientRef = &v
	}
	if it.SentAt != nil {
		t := *it.SentAt
		c.SentAt = &t
	}
	return &c
}
