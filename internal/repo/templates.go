package repo

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/youthclub/notification-queue/internal/model"
	"github.com/youthclub/notification-queue/internal/templates"
)

type TemplateRepo struct {
	db *sql.DB
}

func NewTemplateRepo(db *sql.DB) *TemplateRepo {
	return &TemplateRepo{db: db}
}

// Template returns the stored text for c, seeding it with the built-in text
// when no row exists yet.
func (r *TemplateRepo) Template(ctx context.Context, c model.Category) (string, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_templates (category, body)
		VALUES ($1, $2)
		ON CONFLICT (category) DO NOTHING
	`, string(c), templates.Default(c)); err != nil {
		return "", errors.Wrap(err, "seed template")
	}

	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM notification_templates WHERE category = $1`, string(c)).Scan(&body)
	if err != nil {
		return "", errors.Wrap(err, "get template")
	}
	return body, nil
}

// Save replaces the stored text for c.
func (r *TemplateRepo) Save(ctx context.Context, c model.Category, body string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_templates (category, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (category) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`, string(c), body)
	return errors.Wrap(err, "save template")
}
