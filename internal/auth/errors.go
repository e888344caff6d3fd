// AngelaMos | 2026
// errors.go

package auth

import (
	"errors"

	"github.com/carterperez-dev/judge/session-backend/internal/core"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is the only error a refresh caller ever needs to match.
	ErrUnauthorized = core.ErrUnauthorized

	ErrSignatureInvalid = core.ErrTokenInvalid
)

// RejectReason is the internal cause of a refresh rejection. It is logged
// and traced but never shown to the client.
type RejectReason string

const (
	ReasonNotFound       RejectReason = "not_found"
	ReasonUnbound        RejectReason = "unbound"
	ReasonExpired        RejectReason = "expired"
	ReasonReplayed       RejectReason = "replayed"
	ReasonSubjectMissing RejectReason = "subject_missing"
)

type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string {
	return "refresh rejected: " + string(e.Reason)
}

func (e *RejectError) Unwrap() error {
	return ErrUnauthorized
}

func reject(reason RejectReason) error {
	return &RejectError{Reason: reason}
}

// ReasonOf extracts the rejection reason from err, if it carries one.
func ReasonOf(err error) (RejectReason, bool) {
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
