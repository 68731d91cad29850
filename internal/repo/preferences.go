package repo

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/youthclub/notification-queue/internal/model"
)

type PreferenceRepo struct {
	db *sql.DB
}

func NewPreferenceRepo(db *sql.DB) *PreferenceRepo {
	return &PreferenceRepo{db: db}
}

const preferenceColumns = `user_id, phone_number, notify_registration, notify_leadership_registration,
	notify_signup_confirmation, notify_finance, notify_general`

var categoryColumn = map[model.Category]string{
	model.Registration:           "notify_registration",
	model.LeadershipRegistration: "notify_leadership_registration",
	model.SignupConfirmation:     "notify_signup_confirmation",
	model.Finance:                "notify_finance",
	model.General:                "notify_general",
}

// Resolve returns the user's preference, creating the default record on first
// access.
func (r *PreferenceRepo) Resolve(ctx context.Context, userID int64) (model.Preference, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return model.Preference{}, errors.Wrap(err, "create default preference")
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+preferenceColumns+` FROM notification_preferences WHERE user_id = $1`, userID)
	p, err := scanPreference(row)
	if err != nil {
		return model.Preference{}, errors.Wrap(err, "get preference")
	}
	return p, nil
}

// ListSubscribed returns every preference opted in to c. The test category
// has no flag and matches every record.
func (r *PreferenceRepo) ListSubscribed(ctx context.Context, c model.Category) ([]model.Preference, error) {
	q := `SELECT ` + preferenceColumns + ` FROM notification_preferences`
	if c != model.Test {
		col, ok := categoryColumn[c]
		if !ok {
			return nil, errors.Newf("unknown category %q", c)
		}
		q += ` WHERE ` + col + ` = TRUE`
	}
	q += ` ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "list subscribed preferences")
	}
	defer rows.Close()

	var out []model.Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan preference")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "iterate preferences")
}

func scanPreference(s scanner) (model.Preference, error) {
	var p model.Preference
	err := s.Scan(
		&p.UserID,
		&p.PhoneNumber,
		&p.NotifyRegistration,
		&p.NotifyLeadershipRegistration,
		&p.NotifySignupConfirmation,
		&p.NotifyFinance,
		&p.NotifyGeneral,
	)
	return p, err
}
