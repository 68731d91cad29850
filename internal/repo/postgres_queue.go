package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/youthclub/notification-queue/internal/model"
)

type PostgresQueue struct {
	db *sql.DB
}

func NewPostgresQueue(db *sql.DB) *PostgresQueue {
	return &PostgresQueue{db: db}
}

const queueColumns = `id, recipient_user_id, phone_number, category, message_text, status,
	attempts, provider_message_id, last_error, created_at, sent_at`

func (r *PostgresQueue) Enqueue(ctx context.Context, item *model.QueueItem) error {
	if err := validateNew(item); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_queue (
			id, recipient_user_id, phone_number, category, message_text,
			status, attempts, provider_message_id, last_error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		item.ID,
		nullInt64(item.RecipientRef),
		item.PhoneNumber,
		string(item.Category),
		item.MessageText,
		string(item.Status),
		item.Attempts,
		item.ProviderMessageID,
		item.LastError,
		item.CreatedAt,
	)
	return errors.Wrap(err, "insert queue item")
}

// ProcessNext holds the row lock for the whole of fn, so the provider call
// runs inside the claiming transaction.
func (r *PostgresQueue) ProcessNext(ctx context.Context, fn ClaimFunc) (*model.QueueItem, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, errors.Wrap(err, "begin claim tx")
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+queueColumns+`
		FROM notification_queue
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.Commit(); err != nil {
			return nil, errors.Wrap(err, "commit empty claim")
		}
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "claim pending item")
	}

	if err := fn(ctx, item); err != nil {
		return nil, errors.Wrap(err, "process claimed item")
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE notification_queue
		SET status = $2,
		    attempts = $3,
		    provider_message_id = $4,
		    last_error = $5,
		    sent_at = $6
		WHERE id = $1 AND status = 'pending'
	`,
		item.ID,
		string(item.Status),
		item.Attempts,
		item.ProviderMessageID,
		item.LastError,
		nullTime(item.SentAt),
	)
	if err != nil {
		return nil, errors.Wrap(err, "update claimed item")
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return nil, errors.Newf("claimed item %s was no longer pending", item.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit claim tx")
	}
	return item, nil
}

func (r *PostgresQueue) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM notification_queue
		GROUP BY status
	`)
	if err != nil {
		return nil, errors.Wrap(err, "count by status")
	}
	defer rows.Close()

	out := map[model.Status]int{
		model.Pending: 0,
		model.Sent:    0,
		model.Failed:  0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan status count")
		}
		out[model.Status(status)] = n
	}
	return out, errors.Wrap(rows.Err(), "iterate status counts")
}

func (r *PostgresQueue) List(ctx context.Context, status model.Status, limit, offset int) ([]model.QueueItem, error) {
	limit, offset = normalizeListArgs(limit, offset)

	var (
		q    strings.Builder
		args []any
	)
	q.WriteString(`SELECT ` + queueColumns + ` FROM notification_queue`)
	if status != "" {
		args = append(args, string(status))
		q.WriteString(` WHERE status = $1`)
	}
	args = append(args, limit, offset)
	if status != "" {
		q.WriteString(` ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`)
	} else {
		q.WriteString(` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`)
	}

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list queue items")
	}
	defer rows.Close()

	var out []model.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan queue item")
		}
		out = append(out, *item)
	}
	return out, errors.Wrap(rows.Err(), "iterate queue items")
}

func (r *PostgresQueue) Get(ctx context.Context, id uuid.UUID) (*model.QueueItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM notification_queue WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get queue item")
	}
	return item, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*model.QueueItem, error) {
	var (
		item      model.QueueItem
		recipient sql.NullInt64
		category  string
		status    string
		sentAt    sql.NullTime
	)
	if err := s.Scan(
		&item.ID,
		&recipient,
		&item.PhoneNumber,
		&category,
		&item.MessageText,
		&status,
		&item.Attempts,
		&item.ProviderMessageID,
		&item.LastError,
		&item.CreatedAt,
		&sentAt,
	); err != nil {
		return nil, err
	}

	item.Category = model.Category(category)
	item.Status = model.Status(status)
	if recipient.Valid {
		v := recipient.Int64
		item.RecipientRef = &v
	}
	if sentAt.Valid {
		t := sentAt.Time
		item.SentAt = &t
	}
	return &item, nil
}
