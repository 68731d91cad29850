package templates

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/youthclub/notification-queue/internal/model"
)

// Payload maps placeholder names to their substitution values.
type Payload map[string]string

var ErrIncompletePayload = errors.New("incomplete payload")

// Validate checks that every documented key for c has a non-blank value.
// Call it where the payload is built; Render itself never rejects a payload.
func Validate(c model.Category, p Payload) error {
	var missing []string
	for _, k := range keys[c] {
		if strings.TrimSpace(p[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrIncompletePayload, "%s: missing %s", c, strings.Join(missing, ", "))
	}
	return nil
}

func RegistrationPayload(guardianName, childName string) Payload {
	return Payload{"guardian_name": guardianName, "child_name": childName}
}

func LeadershipRegistrationPayload(name string) Payload {
	return Payload{"name": name}
}

func SignupConfirmationPayload(guardianName, childName, event string) Payload {
	return Payload{"guardian_name": guardianName, "child_name": childName, "event": event}
}

func FinancePayload(guardianName, childName, amount, reference string) Payload {
	return Payload{
		"guardian_name": guardianName,
		"child_name":    childName,
		"amount":        amount,
		"reference":     reference,
	}
}

func GeneralPayload(name, message string) Payload {
	return Payload{"name": name, "message": message}
}
