package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/youthclub/notification-queue/internal/model"
	"github.com/youthclub/notification-queue/internal/phone"
	"github.com/youthclub/notification-queue/internal/templates"
)

var (
	ErrEmptyPhone      = errors.New("empty phone number")
	ErrEmptyMessage    = errors.New("empty message text")
	ErrUnknownCategory = errors.New("unknown category")
)

// Skip reasons reported to the Recorder.
const (
	SkipOptedOut = "opted_out"
	SkipNoPhone  = "no_phone"
)

type Queue interface {
	Enqueue(ctx context.Context, item *model.QueueItem) error
}

type Preferences interface {
	// Resolve returns the user's preference, creating the default on first access.
	Resolve(ctx context.Context, userID int64) (model.Preference, error)
	ListSubscribed(ctx context.Context, c model.Category) ([]model.Preference, error)
}

type ProfilePhones interface {
	Phones(ctx context.Context, userID int64) ([]string, error)
}

type Renderer interface {
	Render(ctx context.Context, c model.Category, payload templates.Payload) string
}

type Recorder interface {
	RecordEnqueued(c model.Category)
	RecordSkipped(reason string)
}

// Service is the producer side of the queue.
type Service struct {
	queue    Queue
	prefs    Preferences
	profiles ProfilePhones
	renderer Renderer
	logger   *slog.Logger
	now      func() time.Time
	recorder Recorder
}

func NewService(queue Queue, prefs Preferences, profiles ProfilePhones, renderer Renderer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		queue:    queue,
		prefs:    prefs,
		profiles: profiles,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// EnqueueRaw persists a pending item unconditionally. phoneNumber must
// already be normalized.
func (s *Service) EnqueueRaw(ctx context.Context, recipientRef *int64, phoneNumber string, c model.Category, messageText string) (*model.QueueItem, error) {
	if !c.Valid() {
		return nil, errors.Wrapf(ErrUnknownCategory, "%q", c)
	}
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return nil, ErrEmptyPhone
	}
	messageText = strings.TrimSpace(messageText)
	if messageText == "" {
		return nil, ErrEmptyMessage
	}

	item := &model.QueueItem{
		ID:           uuid.New(),
		RecipientRef: recipientRef,
		PhoneNumber:  phoneNumber,
		Category:     c,
		MessageText:  messageText,
		Status:       model.Pending,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return nil, errors.Wrap(err, "enqueue")
	}

	if s.recorder != nil {
		s.recorder.RecordEnqueued(c)
	}
	s.logger.Debug("item enqueued",
		slog.String("item_id", item.ID.String()),
		slog.String("category", string(c)),
	)
	return item, nil
}

// EnqueueIfSubscribed returns nil, nil when the user opted out of c or has no
// usable phone number.
func (s *Service) EnqueueIfSubscribed(ctx context.Context, userID int64, c model.Category, payload templates.Payload) (*model.QueueItem, error) {
	if !c.Valid() {
		return nil, errors.Wrapf(ErrUnknownCategory, "%q", c)
	}

	pref, err := s.prefs.Resolve(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve preference")
	}
	if !pref.Enabled(c) {
		s.skip(SkipOptedOut, userID, c)
		return nil, nil
	}

	phoneNumber, err := s.resolvePhone(ctx, pref)
	if err != nil {
		return nil, err
	}
	if phoneNumber == "" {
		s.skip(SkipNoPhone, userID, c)
		return nil, nil
	}

	return s.EnqueueRaw(ctx, &userID, phoneNumber, c, s.renderer.Render(ctx, c, payload))
}

// EnqueueTest sends the test message to rawPhone, bypassing preferences.
func (s *Service) EnqueueTest(ctx context.Context, recipientRef *int64, rawPhone string) (*model.QueueItem, error) {
	normalized := phone.Normalize(rawPhone)
	if normalized == "" {
		return nil, ErrEmptyPhone
	}
	return s.EnqueueRaw(ctx, recipientRef, normalized, model.Test, s.renderer.Render(ctx, model.Test, nil))
}

// Broadcast enqueues c for every user subscribed to it and returns the
// number of items persisted. Users without a usable phone are skipped.
func (s *Service) Broadcast(ctx context.Context, c model.Category, payload templates.Payload) (int, error) {
	if !c.Valid() {
		return 0, errors.Wrapf(ErrUnknownCategory, "%q", c)
	}

	prefs, err := s.prefs.ListSubscribed(ctx, c)
	if err != nil {
		return 0, errors.Wrap(err, "list subscribers")
	}

	// Rendered once: every recipient gets the same text.
	text := s.renderer.Render(ctx, c, payload)

	enqueued := 0
	for _, pref := range prefs {
		phoneNumber, err := s.resolvePhone(ctx, pref)
		if err != nil {
			return enqueued, err
		}
		if phoneNumber == "" {
			s.skip(SkipNoPhone, pref.UserID, c)
			continue
		}

		userID := pref.UserID
		if _, err := s.EnqueueRaw(ctx, &userID, phoneNumber, c, text); err != nil {
			return enqueued, err
		}
		enqueued++
	}

	s.logger.Info("broadcast enqueued",
		slog.String("category", string(c)),
		slog.Int("subscribers", len(prefs)),
		slog.Int("enqueued", enqueued),
	)
	return enqueued, nil
}

// resolvePhone picks the preference override, else the first profile phone,
// and normalizes it. Empty means the user cannot be notified.
func (s *Service) resolvePhone(ctx context.Context, pref model.Preference) (string, error) {
	raw := strings.TrimSpace(pref.PhoneNumber)
	if raw == "" {
		phones, err := s.profiles.Phones(ctx, pref.UserID)
		if err != nil {
			return "", errors.Wrap(err, "resolve profile phones")
		}
		if len(phones) > 0 {
			raw = phones[0]
		}
	}
	return phone.Normalize(raw), nil
}

func (s *Service) skip(reason string, userID int64, c model.Category) {
	if s.recorder != nil {
		s.recorder.RecordSkipped(reason)
	}
	s.logger.Debug("enqueue skipped",
		slog.String("reason", reason),
		slog.Int64("user_id", userID),
		slog.String("category", string(c)),
	)
}
