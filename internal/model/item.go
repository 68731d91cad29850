package model

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	Pending Status = "pending"
	Sent    Status = "sent"
	Failed  Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == Sent || s == Failed
}

func (s Status) Valid() bool {
	switch s {
	case Pending, Sent, Failed:
		return true
	}
	return false
}

// QueueItem is one outbound message attempt. MessageText is rendered once at
// enqueue time and never re-rendered.
type QueueItem struct {
	ID                uuid.UUID  `json:"id"`
	RecipientRef      *int64     `json:"recipient_user_id,omitempty"`
	PhoneNumber       string     `json:"phone_number"`
	Category          Category   `json:"category"`
	MessageText       string     `json:"message_text"`
	Status            Status     `json:"status"`
	Attempts          int        `json:"attempts"`
	ProviderMessageID string     `json:"provider_message_id"`
	LastError         string     `json:"last_error"`
	CreatedAt         time.Time  `json:"created_at"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
}

// Snapshot is an aggregate view of queue item counts by status.
type Snapshot struct {
	Pending int       `json:"pending"`
	Sent    int       `json:"sent"`
	Failed  int       `json:"failed"`
	AsOf    time.Time `json:"as_of"`
}
