package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
)

type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Phones returns the candidate phone strings recorded on the user's profiles:
// the leadership WhatsApp number first, then the guardian record's mobiles
// and landlines. Blank values are dropped.
func (r *ProfileRepo) Phones(ctx context.Context, userID int64) ([]string, error) {
	var out []string

	var whatsapp string
	err := r.db.QueryRowContext(ctx, `
		SELECT whatsapp FROM leadership_profiles WHERE user_id = $1
	`, userID).Scan(&whatsapp)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.Wrap(err, "get leadership profile phone")
	default:
		out = appendNonBlank(out, whatsapp)
	}

	var g [6]string
	err = r.db.QueryRowContext(ctx, `
		SELECT guardian_mobile, mother_mobile, father_mobile,
		       guardian_phone, mother_phone, father_phone
		FROM guardian_profiles
		WHERE user_id = $1
	`, userID).Scan(&g[0], &g[1], &g[2], &g[3], &g[4], &g[5])
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, errors.Wrap(err, "get guardian profile phones")
	default:
		out = appendNonBlank(out, g[:]...)
	}

	return out, nil
}

func appendNonBlank(dst []string, values ...string) []string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}
