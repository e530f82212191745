package domain

import "errors"

// Sentinel errors mapped to HTTP statuses at the handler layer.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller does not own the record.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken is returned when registering with an existing email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidRefresh is returned when a refresh token fails verification.
	// It is terminal for the session: both cookies are cleared.
	ErrInvalidRefresh = errors.New("invalid refresh token")

	// ErrStaleToken is returned when a token verifies but the account behind
	// it no longer exists.
	ErrStaleToken = errors.New("stale token")
)
