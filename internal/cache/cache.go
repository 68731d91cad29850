package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var ErrMiss = errors.New("receipt not cached")

// Receipt is the provider acknowledgement recorded for a sent item.
type Receipt struct {
	ProviderMessageID string    `json:"providerMessageId"`
	SentAt            time.Time `json:"sentAt"`
}

type ReceiptCache interface {
	StoreSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error
	GetSent(ctx context.Context, id uuid.UUID) (Receipt, error)
}
