package service

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/youthclub/notification-queue/internal/client"
	"github.com/youthclub/notification-queue/internal/model"
	"github.com/youthclub/notification-queue/internal/repo"
)

// MaxErrorLen bounds QueueItem.LastError, in runes.
const MaxErrorLen = 500

const (
	// DefaultSendTimeout bounds one provider call.
	DefaultSendTimeout = 30 * time.Second
	// writeBackMargin is the time left for the status write and commit once
	// the provider call has returned.
	writeBackMargin = 15 * time.Second
)

type SendClient interface {
	SendText(ctx context.Context, phoneNumber, message string) client.SendResult
}

type ReceiptWriter interface {
	StoreSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error
}

type Recorder interface {
	RecordProcessed(status model.Status, d time.Duration)
}

// Worker claims one pending item at a time and takes it to a terminal status.
type Worker struct {
	store  repo.QueueStore
	client SendClient
	logger *slog.Logger
	now    func() time.Time

	sendTimeout time.Duration

	receipts ReceiptWriter
	recorder Recorder
}

func NewWorker(store repo.QueueStore, c SendClient, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:  store,
		client: c,
		logger: logger,
		now:    time.Now,

		sendTimeout: DefaultSendTimeout,
	}
}

// WithSendTimeout bounds the provider call. Non-positive values keep the
// default.
func (w *Worker) WithSendTimeout(d time.Duration) *Worker {
	if d > 0 {
		w.sendTimeout = d
	}
	return w
}

// WithReceipts records provider receipts for sent items after commit.
func (w *Worker) WithReceipts(r ReceiptWriter) *Worker {
	w.receipts = r
	return w
}

func (w *Worker) WithRecorder(r Recorder) *Worker {
	w.recorder = r
	return w
}

func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// ProcessNext returns nil, nil when no pending item is claimable. A provider
// failure is not an error: it is recorded on the returned item. The error is
// non-nil only when storage fails, in which case the item stays pending.
//
// Cancelling ctx does not abort a claim in progress. The claim runs on a
// detached context bounded by the send timeout plus a write-back margin.
func (w *Worker) ProcessNext(ctx context.Context) (*model.QueueItem, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.sendTimeout+writeBackMargin)
	defer cancel()

	var elapsed time.Duration

	item, err := w.store.ProcessNext(ctx, func(ctx context.Context, it *model.QueueItem) error {
		sendCtx, cancelSend := context.WithTimeout(ctx, w.sendTimeout)
		defer cancelSend()

		start := time.Now()
		res := w.client.SendText(sendCtx, it.PhoneNumber, it.MessageText)
		elapsed = time.Since(start)

		apply(it, res, w.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	w.afterCommit(ctx, item, elapsed)
	return item, nil
}

func apply(it *model.QueueItem, res client.SendResult, now time.Time) {
	it.Attempts++
	if res.Success {
		sentAt := now.UTC()
		it.Status = model.Sent
		it.ProviderMessageID = res.MessageID
		it.SentAt = &sentAt
		it.LastError = ""
		return
	}
	it.Status = model.Failed
	it.ProviderMessageID = ""
	it.SentAt = nil
	it.LastError = truncate(res.Error, MaxErrorLen)
}

func (w *Worker) afterCommit(ctx context.Context, item *model.QueueItem, elapsed time.Duration) {
	log := w.logger.With(
		slog.String("item_id", item.ID.String()),
		slog.String("phone", item.PhoneNumber),
		slog.String("category", string(item.Category)),
		slog.String("status", string(item.Status)),
		slog.Int("attempts", item.Attempts),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)

	if w.recorder != nil {
		w.recorder.RecordProcessed(item.Status, elapsed)
	}

	if item.Status == model.Failed {
		log.Warn("send failed", slog.String("error", item.LastError))
		return
	}
	log.Info("message sent", slog.String("provider_message_id", item.ProviderMessageID))

	if w.receipts != nil && item.SentAt != nil {
		if err := w.receipts.StoreSent(ctx, item.ID, item.ProviderMessageID, *item.SentAt); err != nil {
			log.Warn("receipt cache write failed", slog.Any("error", err))
		}
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
