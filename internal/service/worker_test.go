package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/youthclub/notification-queue/internal/client"
	"github.com/youthclub/notification-queue/internal/model"
	"github.com/youthclub/notification-queue/internal/repo"
	"github.com/youthclub/notification-queue/internal/service"
)

type stubClient struct {
	mu     sync.Mutex
	result client.SendResult
	calls  []string
}

func (s *stubClient) SendText(ctx context.Context, phoneNumber, message string) client.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, phoneNumber+"|"+message)
	return s.result
}

type fakeReceipts struct {
	mu   sync.Mutex
	ids  map[uuid.UUID]string
	fail bool
}

func (f *fakeReceipts) StoreSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("redis down")
	}
	if f.ids == nil {
		f.ids = make(map[uuid.UUID]string)
	}
	f.ids[id] = providerMessageID
	return nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	statuses []model.Status
}

func (f *fakeRecorder) RecordProcessed(status model.Status, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
}

func enqueueTestItem(t *testing.T, q repo.QueueStore) *model.QueueItem {
	t.Helper()
	it := &model.QueueItem{
		ID:          uuid.New(),
		PhoneNumber: "5511987654321",
		Category:    model.Test,
		MessageText: "hello",
		Status:      model.Pending,
		CreatedAt:   time.Now(),
	}
	if err := q.Enqueue(context.Background(), it); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return it
}

func TestWorker_ProcessNext_Sent(t *testing.T) {
	t.Parallel()

	q := repo.NewMemoryQueue()
	enqueued := enqueueTestItem(t, q)

	stub := &stubClient{result: client.SendResult{Success: true, MessageID: "abc123"}}
	receipts := &fakeReceipts{}
	recorder := &fakeRecorder{}
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	w := service.NewWorker(q, stub, nil).
		WithReceipts(receipts).
		WithRecorder(recorder).
		WithClock(func() time.Time { return fixed })

	got, err := w.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext err=%v", err)
	}
	if got == nil {
		t.Fatalf("expected an item")
	}
	if got.Status != model.Sent || got.Attempts != 1 || got.ProviderMessageID != "abc123" || got.LastError != "" {
		t.Fatalf("unexpected final state %+v", got)
	}
	if got.SentAt == nil || !got.SentAt.Equal(fixed) {
		t.Fatalf("expected sentAt %v, got %v", fixed, got.SentAt)
	}

	stored, _ := q.Get(context.Background(), enqueued.ID)
	if stored.Status != model.Sent || stored.Attempts != 1 {
		t.Fatalf("expected persisted sent item, got %+v", stored)
	}
	if len(stub.calls) != 1 || stub.calls[0] != "5511987654321|hello" {
		t.Fatalf("unexpected provider calls %v", stub.calls)
	}
	if receipts.ids[enqueued.ID] != "abc123" {
		t.Fatalf("expected receipt to be cached, got %v", receipts.ids)
	}
	if len(recorder.statuses) != 1 || recorder.statuses[0] != model.Sent {
		t.Fatalf("expected one sent observation, got %v", recorder.statuses)
	}
}

type sendFunc func(ctx context.Context, phoneNumber, message string) client.SendResult

func (f sendFunc) SendText(ctx context.Context, phoneNumber, message string) client.SendResult {
	return f(ctx, phoneNumber, message)
}

func TestWorker_CallerCancelDuringSendStillCommits(t *testing.T) {
	t.Parallel()

	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	id := uuid.New()
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "recipient_user_id", "phone_number", "category", "message_text", "status",
		"attempts", "provider_message_id", "last_error", "created_at", "sent_at",
	}).AddRow(id.String(), nil, "5511987654321", "test", "hello", "pending", 0, "", "", created, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notification_queue`)).
		WithArgs(sqlmock.AnyArg(), "sent", 1, "wamid-1", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		sends       int
		hadDeadline bool
	)
	c := sendFunc(func(sendCtx context.Context, phoneNumber, message string) client.SendResult {
		sends++
		_, hadDeadline = sendCtx.Deadline()
		// The caller goes away after the provider accepted the message.
		cancel()
		return client.SendResult{Success: true, MessageID: "wamid-1"}
	})

	w := service.NewWorker(repo.NewPostgresQueue(db), c, nil).WithSendTimeout(5 * time.Second)

	got, err := w.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("ProcessNext err=%v", err)
	}
	if got == nil || got.Status != model.Sent || got.ProviderMessageID != "wamid-1" {
		t.Fatalf("expected committed sent item, got %+v", got)
	}
	if sends != 1 {
		t.Fatalf("expected exactly one send, got %d", sends)
	}
	if !hadDeadline {
		t.Fatalf("expected the provider call to be bounded by a deadline")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWorker_ProcessNext_Failed(t *testing.T) {
	t.Parallel()

	q := repo.NewMemoryQueue()
	enqueueTestItem(t, q)

	stub := &stubClient{result: client.SendResult{Error: "HTTP 500: boom"}}
	receipts := &fakeReceipts{}

	got, err := service.NewWorker(q, stub, nil).WithReceipts(receipts).ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext err=%v", err)
	}
	if got.Status != model.Failed || got.Attempts != 1 {
		t.Fatalf("unexpected final state %+v", got)
	}
	if !strings.Contains(got.LastError, "HTTP 500") {
		t.Fatalf("expected lastError to contain HTTP 500, got %q", got.LastError)
	}
	if got.ProviderMessageID != "" || got.SentAt != nil {
		t.Fatalf("expected no provider id or sentAt on failure, got %+v", got)
	}
	if len(receipts.ids) != 0 {
		t.Fatalf("expected no receipt for failed item")
	}
}

func TestWorker_ProcessNext_Empty(t *testing.T) {
	t.Parallel()

	stub := &stubClient{}
	got, err := service.NewWorker(repo.NewMemoryQueue(), stub, nil).ProcessNext(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
	if len(stub.calls) != 0 {
		t.Fatalf("expected no provider call")
	}
}

func TestWorker_TruncatesLastError(t *testing.T) {
	t.Parallel()

	q := repo.NewMemoryQueue()
	enqueueTestItem(t, q)

	long := strings.Repeat("é", service.MaxErrorLen+50)
	got, err := service.NewWorker(q, &stubClient{result: client.SendResult{Error: long}}, nil).ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext err=%v", err)
	}
	if n := utf8.RuneCountInString(got.LastError); n != service.MaxErrorLen {
		t.Fatalf("expected %d runes, got %d", service.MaxErrorLen, n)
	}
}

func TestWorker_ReceiptFailureIsNotPropagated(t *testing.T) {
	t.Parallel()

	q := repo.NewMemoryQueue()
	enqueueTestItem(t, q)

	w := service.NewWorker(q, &stubClient{result: client.SendResult{Success: true, MessageID: "x"}}, nil).
		WithReceipts(&fakeReceipts{fail: true})

	got, err := w.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("expected receipt failure to be swallowed, got %v", err)
	}
	if got.Status != model.Sent {
		t.Fatalf("expected sent, got %s", got.Status)
	}
}

func TestWorker_StatusNeverRegresses(t *testing.T) {
	t.Parallel()

	q := repo.NewMemoryQueue()
	it := enqueueTestItem(t, q)
	stub := &stubClient{result: client.SendResult{Success: true, MessageID: "1"}}
	w := service.NewWorker(q, stub, nil)

	observed := []model.Status{model.Pending}
	for i := 0; i < 3; i++ {
		if _, err := w.ProcessNext(context.Background()); err != nil {
			t.Fatalf("ProcessNext err=%v", err)
		}
		// A later failure must not touch the already-sent item.
		stub.result = client.SendResult{Error: "HTTP 500: boom"}
		cur, _ := q.Get(context.Background(), it.ID)
		if cur.Status != observed[len(observed)-1] {
			observed = append(observed, cur.Status)
		}
	}

	if len(observed) != 2 || observed[1] != model.Sent {
		t.Fatalf("unexpected status history %v", observed)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(stub.calls))
	}
}

type failingStore struct {
	repo.QueueStore
}

func (failingStore) ProcessNext(ctx context.Context, fn repo.ClaimFunc) (*model.QueueItem, error) {
	return nil, errors.New("begin claim tx: connection refused")
}

func TestWorker_StorageErrorPropagates(t *testing.T) {
	t.Parallel()

	_, err := service.NewWorker(failingStore{}, &stubClient{}, nil).ProcessNext(context.Background())
	if err == nil {
		t.Fatalf("expected storage error")
	}
}

func TestWorker_SendsThroughProvider(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["phone"] != "5511987654321" || body["message"] != "hello" {
			t.Errorf("unexpected body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"id": "3EB0C767D26A"},
		})
	}))
	t.Cleanup(srv.Close)

	q := repo.NewMemoryQueue()
	enqueueTestItem(t, q)

	c := client.NewWAPIClient(client.Config{URL: srv.URL + "/send?instanceId=inst-1", Token: "tok"})
	got, err := service.NewWorker(q, c, nil).ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext err=%v", err)
	}
	if got.Status != model.Sent || got.ProviderMessageID != "3EB0C767D26A" {
		t.Fatalf("unexpected final state %+v", got)
	}
}

type errCounter struct{}

func (errCounter) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	return nil, errors.New("db down")
}

func TestStats_Snapshot(t *testing.T) {
	t.Parallel()

	q := repo.NewMemoryQueue()
	enqueueTestItem(t, q)
	enqueueTestItem(t, q)
	_, _ = service.NewWorker(q, &stubClient{result: client.SendResult{Success: true}}, nil).ProcessNext(context.Background())

	asOf := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	snap, err := service.NewStats(q).WithClock(func() time.Time { return asOf }).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot err=%v", err)
	}
	if snap.Pending != 1 || snap.Sent != 1 || snap.Failed != 0 || !snap.AsOf.Equal(asOf) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if _, err := service.NewStats(errCounter{}).Snapshot(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
