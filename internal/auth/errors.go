package auth

import "errors"

// Client-caused failures. Anything else returned by Service is a server failure.
var (
	ErrMissingFields           = errors.New("missing required fields")
	ErrEmailTaken              = errors.New("email already exists")
	ErrInvalidVerificationCode = errors.New("invalid or expired verification code")
	ErrEmailNotFound           = errors.New("email not found")
	ErrIncorrectPassword       = errors.New("incorrect password")
	ErrInvalidResetToken       = errors.New("invalid or expired reset token")
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrUserNotFound            = errors.New("user not found")
	ErrPasswordTooLong         = errors.New("password too long")
)

var clientErrors = []error{
	ErrMissingFields, ErrEmailTaken, ErrInvalidVerificationCode, ErrEmailNotFound,
	ErrIncorrectPassword, ErrInvalidResetToken, ErrInvalidUserID, ErrUserNotFound,
	ErrPasswordTooLong,
}

// IsClientError reports whether err is one of the sentinel errors above.
func IsClientError(err error) bool {
	for _, e := range clientErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
