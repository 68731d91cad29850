package repo_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"github.com/youthclub/notification-queue/internal/model"
	"github.com/youthclub/notification-queue/internal/repo"
)

var preferenceCols = []string{
	"user_id", "phone_number", "notify_registration", "notify_leadership_registration",
	"notify_signup_confirmation", "notify_finance", "notify_general",
}

func TestPreferenceRepo_Resolve_CreatesDefault(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (user_id) DO NOTHING`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM notification_preferences WHERE user_id`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(preferenceCols).
			AddRow(int64(7), "", true, true, false, true, true))

	r := repo.NewPreferenceRepo(db)
	got, err := r.Resolve(context.Background(), 7)
	if err != nil {
		t.Fatalf("Resolve err=%v", err)
	}
	if diff := cmp.Diff(model.DefaultPreference(7), got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPreferenceRepo_ListSubscribed(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE notify_finance = TRUE ORDER BY user_id`)).
		WillReturnRows(sqlmock.NewRows(preferenceCols).
			AddRow(int64(1), "", true, true, false, true, true).
			AddRow(int64(2), "11 98765-4321", false, false, false, true, false))

	r := repo.NewPreferenceRepo(db)
	got, err := r.ListSubscribed(context.Background(), model.Finance)
	if err != nil {
		t.Fatalf("ListSubscribed err=%v", err)
	}
	if len(got) != 2 || got[1].PhoneNumber != "11 98765-4321" {
		t.Fatalf("unexpected result %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPreferenceRepo_ListSubscribed_TestMatchesAll(t *testing.T) {
	db, mock, _ := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT user_id, phone_number, notify_registration, notify_leadership_registration,
	notify_signup_confirmation, notify_finance, notify_general FROM notification_preferences ORDER BY user_id`).
		WillReturnRows(sqlmock.NewRows(preferenceCols))

	r := repo.NewPreferenceRepo(db)
	if _, err := r.ListSubscribed(context.Background(), model.Test); err != nil {
		t.Fatalf("ListSubscribed err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPreferenceRepo_ListSubscribed_UnknownCategory(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	r := repo.NewPreferenceRepo(db)
	if _, err := r.ListSubscribed(context.Background(), model.Category("marketing")); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}
