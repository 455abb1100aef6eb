package authz

import (
	"strings"

	"github.com/google/uuid"
)

// Mode controls how authorization decisions are applied.
type Mode string

const (
	// ModeDisabled skips enforcement entirely.
	ModeDisabled Mode = "disabled"
	// ModeShadow evaluates and logs denials without blocking the request.
	ModeShadow Mode = "shadow"
	// ModeEnforce blocks denied requests.
	ModeEnforce Mode = "enforce"
)

// AdminRole is the casbin role granting administrator capability.
const AdminRole = "role:admin"

// Request is a single authorization question: may subject perform action on
// object.
type Request struct {
	Subject string
	Object  string
	Action  string
}

func NewRequest(subject, object, action string) Request {
	return Request{
		Subject: subject,
		Object:  object,
		Action:  NormalizeAction(action),
	}
}

// SubjectForActor maps a principal id onto the casbin subject namespace.
func SubjectForActor(actorID uuid.UUID) string {
	return "user:" + actorID.String()
}

func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}
