package errors

import (
	"errors"
	"fmt"
)

// Common error types for the admin frontend auth core
var (
	// Identity provider errors
	ErrDiscoveryFailed   = errors.New("oidc discovery failed")
	ErrTokenVerification = errors.New("token verification failed")
	ErrRefreshFailed     = errors.New("token refresh failed")

	// The message is surfaced verbatim to callers that compare it.
	ErrSessionExpiredNoRefresh = errors.New("Session expired and no refresh token available")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidCookie   = errors.New("invalid session cookie")

	// Login flow errors
	ErrInvalidState     = errors.New("invalid or already used state")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join combines a sentinel with the underlying cause so both match errors.Is.
func Join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
