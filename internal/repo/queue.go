package repo

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/youthclub/notification-queue/internal/model"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidItem = errors.New("invalid queue item")
)

// ClaimFunc mutates a claimed item in place. It runs while the claim is held;
// returning an error releases the claim and leaves the item pending.
type ClaimFunc func(ctx context.Context, item *model.QueueItem) error

type QueueStore interface {
	Enqueue(ctx context.Context, item *model.QueueItem) error
	// ProcessNext claims the oldest pending item nobody else holds, runs fn
	// and persists the result. It returns nil, nil when nothing is claimable.
	ProcessNext(ctx context.Context, fn ClaimFunc) (*model.QueueItem, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
	List(ctx context.Context, status model.Status, limit, offset int) ([]model.QueueItem, error)
	Get(ctx context.Context, id uuid.UUID) (*model.QueueItem, error)
}

func validateNew(item *model.QueueItem) error {
	if item == nil {
		return errors.Wrap(ErrInvalidItem, "nil item")
	}
	if item.PhoneNumber == "" {
		return errors.Wrap(ErrInvalidItem, "empty phone number")
	}
	if item.MessageText == "" {
		return errors.Wrap(ErrInvalidItem, "empty message text")
	}
	if item.Status != model.Pending {
		return errors.Wrapf(ErrInvalidItem, "new item must be pending, got %q", item.Status)
	}
	return nil
}

func normalizeListArgs(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
