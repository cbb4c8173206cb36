package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// The message is shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrUsernameRequired         = errors.New("username required")
	ErrEmailAlreadyExists       = errors.New("email already registered")

	ErrRefreshTokenRequired = errors.New("refresh token required")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")

	ErrBookNotFound   = errors.New("book not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrReviewNotFound = errors.New("review not found")
	ErrCoverNotFound  = errors.New("cover not found")

	ErrAlreadyReviewed = errors.New("book already reviewed by this user")
	ErrNotOwner        = errors.New("not the owner of this resource")
)

// ValidationError reports a malformed client payload and names the offending
// field so handlers can surface it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
