package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/youthclub/notification-queue/internal/cache"
	"github.com/youthclub/notification-queue/internal/logging"
	"github.com/youthclub/notification-queue/internal/model"
	"github.com/youthclub/notification-queue/internal/notify"
	"github.com/youthclub/notification-queue/internal/repo"
	"github.com/youthclub/notification-queue/internal/scheduler"
	"github.com/youthclub/notification-queue/internal/templates"
)

type QueueReader interface {
	List(ctx context.Context, status model.Status, limit, offset int) ([]model.QueueItem, error)
	Get(ctx context.Context, id uuid.UUID) (*model.QueueItem, error)
}

type Snapshotter interface {
	Snapshot(ctx context.Context) (model.Snapshot, error)
}

type Processor interface {
	ProcessNext(ctx context.Context) (*model.QueueItem, error)
}

type Notifier interface {
	EnqueueTest(ctx context.Context, recipientRef *int64, rawPhone string) (*model.QueueItem, error)
	EnqueueIfSubscribed(ctx context.Context, userID int64, c model.Category, payload templates.Payload) (*model.QueueItem, error)
	Broadcast(ctx context.Context, c model.Category, payload templates.Payload) (int, error)
}

type ReceiptReader interface {
	GetSent(ctx context.Context, id uuid.UUID) (cache.Receipt, error)
}

type TemplateStore interface {
	Template(ctx context.Context, c model.Category) (string, error)
	Save(ctx context.Context, c model.Category, body string) error
}

type Scheduler interface {
	Start() bool
	Stop() bool
	Status() scheduler.Status
}

// Deps lists what the handlers read from. Templates, Receipts and Metrics are
// optional.
type Deps struct {
	Queue     QueueReader
	Stats     Snapshotter
	Worker    Processor
	Notifier  Notifier
	Scheduler Scheduler
	Templates TemplateStore
	Receipts  ReceiptReader
	Metrics   http.Handler
	Logger    *slog.Logger
}

type Handler struct {
	d Deps
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{d: d}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.d.Stats.Snapshot(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := model.Status(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(status)))
		return
	}
	limit := parseInt(q.Get("limit"), 50)
	offset := parseInt(q.Get("offset"), 0)

	items, err := h.d.Queue.List(r.Context(), status, limit, offset)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []model.QueueItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	item, err := h.d.Queue.Get(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	if h.d.Receipts == nil {
		writeError(w, http.StatusServiceUnavailable, "receipt cache disabled")
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, err := h.d.Receipts.GetSent(r.Context(), id)
	if errors.Is(err, cache.ErrMiss) {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type testRequest struct {
	Phone  string `json:"phone"`
	UserID *int64 `json:"user_id,omitempty"`
}

func (h *Handler) EnqueueTest(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := h.d.Notifier.EnqueueTest(r.Context(), req.UserID, req.Phone)
	if err != nil {
		h.enqueueFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type notificationRequest struct {
	UserID   int64             `json:"user_id"`
	Category model.Category    `json:"category"`
	Payload  templates.Payload `json:"payload"`
}

// EnqueueNotification answers 201 with the item, or 204 when the user opted
// out or has no usable phone number.
func (h *Handler) EnqueueNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := templates.Validate(req.Category, req.Payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.d.Notifier.EnqueueIfSubscribed(r.Context(), req.UserID, req.Category, req.Payload)
	if err != nil {
		h.enqueueFailed(w, r, err)
		return
	}
	if item == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type broadcastRequest struct {
	Category model.Category    `json:"category"`
	Payload  templates.Payload `json:"payload"`
}

func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !decode(w, r, &req) {
		return
	}
	if err := templates.Validate(req.Category, req.Payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.d.Notifier.Broadcast(r.Context(), req.Category, req.Payload)
	if err != nil {
		h.enqueueFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": n})
}

// ProcessNext runs a single claim-and-send.
func (h *Handler) ProcessNext(w http.ResponseWriter, r *http.Request) {
	item, err := h.d.Worker.ProcessNext(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if item == nil {
		writeJSON(w, http.StatusOK, map[string]any{"processed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"processed": true, "item": item})
}

type templateBody struct {
	Category model.Category `json:"category"`
	Body     string         `json:"body"`
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.templateCategory(w, r)
	if !ok {
		return
	}
	body, err := h.d.Templates.Template(r.Context(), c)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, templateBody{Category: c, Body: body})
}

// PutTemplate stores a new text for a category. The text must render with the
// category's documented keys.
func (h *Handler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.templateCategory(w, r)
	if !ok {
		return
	}
	var req templateBody
	if !decode(w, r, &req) {
		return
	}
	if err := templates.Check(c, req.Body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.d.Templates.Save(r.Context(), c, req.Body); err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, templateBody{Category: c, Body: req.Body})
}

func (h *Handler) templateCategory(w http.ResponseWriter, r *http.Request) (model.Category, bool) {
	if h.d.Templates == nil {
		writeError(w, http.StatusServiceUnavailable, "template store disabled")
		return "", false
	}
	c := model.Category(chi.URLParam(r, "category"))
	if !c.Valid() {
		writeError(w, http.StatusBadRequest, "unknown category "+strconv.Quote(string(c)))
		return "", false
	}
	return c, true
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Scheduler.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.d.Scheduler.Start()
	writeJSON(w, http.StatusOK, h.d.Scheduler.Status())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.d.Scheduler.Stop()
	writeJSON(w, http.StatusOK, h.d.Scheduler.Status())
}

func (h *Handler) enqueueFailed(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, notify.ErrEmptyPhone),
		errors.Is(err, notify.ErrEmptyMessage),
		errors.Is(err, notify.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.fail(w, r, http.StatusInternalServerError, err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	logging.WithRequestID(r.Context(), h.d.Logger).Error("request failed",
		"path", r.URL.Path, "status", status, "error", err)
	writeError(w, status, err.Error())
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
