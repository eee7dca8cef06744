package organization

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition matches every InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")

	ErrInvalidArgument = errors.New("invalid argument")
)

// Guard names reported by InvalidTransitionError.
const (
	GuardPending          = "pending"
	GuardNotRequest       = "not_request"
	GuardIsRequest        = "is_request"
	GuardAlreadyMember    = "already_member"
	GuardAlreadyPending   = "already_pending"
	GuardQuotaExceeded    = "quota_exceeded"
	GuardLastAdmin        = "last_admin"
	GuardIndividualOwner  = "individual_owner"
	GuardIndividualInvite = "individual_invite"
	GuardEmailRequired    = "email_required"
)

// InvalidTransitionError is returned when a state machine guard rejects a
// transition. Guard names the violated rule.
type InvalidTransitionError struct {
	Guard  string
	Detail string
}

func (e *InvalidTransitionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid transition: %s: %s", e.Guard, e.Detail)
	}
	return "invalid transition: " + e.Guard
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Guard builds an InvalidTransitionError for the named guard.
func Guard(name, detail string) error {
	return &InvalidTransitionError{Guard: name, Detail: detail}
}
