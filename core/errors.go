package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoUser is returned when an operation needs a signed in user but there is none.
var ErrNoUser = errors.New("no user logged in")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// AuthError wraps any failure coming from the authentication backend
// (bad credentials, unconfirmed email, duplicate account, transport failure...).
type AuthError struct {
	Op  string
	Err error
}

func NewAuthError(op string, err error) error {
	return &AuthError{Op: op, Err: err}
}

func (err *AuthError) Error() string {
	if err.Err == nil {
		return err.Op + ": authentication failed"
	}
	return err.Err.Error()
}

func (err *AuthError) Unwrap() error { return err.Err }

// Cause lets errors.Cause reach the backend error.
func (err *AuthError) Cause() error { return err.Err }

// IsAuthError reports whether any error in err's chain is an *AuthError.
func IsAuthError(err error) bool {
	var aErr *AuthError
	return errors.As(err, &aErr)
}

// ProfileFetchError is raised when the profile of an authenticated user could not be loaded.
// It is recovered locally: the profile is treated as absent.
type ProfileFetchError struct {
	UserID string
	Err    error
}

func (err *ProfileFetchError) Error() string {
	return fmt.Sprintf("fetching profile of user %q: %v", err.UserID, err.Err)
}

func (err *ProfileFetchError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
