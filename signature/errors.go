package signature

import (
	"errors"
	"fmt"

	"esign-backend/models"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrRequestNotFound  = errors.New("signature request not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrExpired          = fmt.Errorf("%w: request expired", ErrInvalidState)
	ErrOtpLimitExceeded = errors.New("otp limit exceeded")
	ErrRateLimited      = errors.New("rate limited")
	ErrValidation       = errors.New("validation error")
	ErrInvalidCode      = errors.New("invalid code")
	ErrEmailDelivery    = errors.New("email delivery failed")
	ErrInternal         = errors.New("internal error")
)

// StateError reports an action attempted from a status that does not allow it.
type StateError struct {
	Status models.SignatureStatus
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a request in status %s", e.Action, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

var kinds = []error{
	ErrInvalidToken, ErrRequestNotFound, ErrInvalidState, ErrOtpLimitExceeded,
	ErrRateLimited, ErrValidation, ErrInvalidCode, ErrEmailDelivery, ErrInternal,
}

func isKind(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
