package model

type Category string

const (
	Registration           Category = "registration"
	LeadershipRegistration Category = "leadership_registration"
	SignupConfirmation     Category = "signup_confirmation"
	Finance                Category = "finance"
	General                Category = "general"
	Test                   Category = "test"
)

// Categories lists every category in display order.
var Categories = []Category{
	Registration,
	LeadershipRegistration,
	SignupConfirmation,
	Finance,
	General,
	Test,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Preference is a user's notification opt-in record. It is owned by the
// portal; the queue only reads it.
type Preference struct {
	UserID                       int64
	PhoneNumber                  string
	NotifyRegistration           bool
	NotifyLeadershipRegistration bool
	NotifySignupConfirmation     bool
	NotifyFinance                bool
	NotifyGeneral                bool
}

// DefaultPreference mirrors the column defaults of a freshly created record.
func DefaultPreference(userID int64) Preference {
	return Preference{
		UserID:                       userID,
		NotifyRegistration:           true,
		NotifyLeadershipRegistration: true,
		NotifySignupConfirmation:     false,
		NotifyFinance:                true,
		NotifyGeneral:                true,
	}
}

// Enabled reports whether the user opted in to c. The test category has no
// opt-out.
func (p Preference) Enabled(c Category) bool {
	switch c {
	case Registration:
		return p.NotifyRegistration
	case LeadershipRegistration:
		return p.NotifyLeadershipRegistration
	case SignupConfirmation:
		return p.NotifySignupConfirmation
	case Finance:
		return p.NotifyFinance
	case General:
		return p.NotifyGeneral
	case Test:
		return true
	}
	return false
}
