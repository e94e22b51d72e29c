// Package auth implements the authentication session state machine:
// registration, credential verification, token issuance, refresh-token
// rotation and revocation.
package auth

import "errors"

var (
	// ErrUserNotFound is returned on login with an unknown email.  Note
	// this deliberately mirrors the upstream behavior of distinguishing
	// unknown accounts from wrong passwords at the login endpoint.
	ErrUserNotFound = errors.New("auth: account does not exist")

	// ErrInvalidCredentials is returned when the password does not match
	// or the stored hash is unusable.
	ErrInvalidCredentials = errors.New("auth: password incorrect")

	// ErrAccountDisabled is returned when a non-ACTIVE account attempts to
	// log in or obtain tokens.
	ErrAccountDisabled = errors.New("auth: account is disabled")

	// ErrUnauthorized covers every refresh/logout failure: bad signature,
	// expiry, rotated or revoked rows, forged id/string mismatches.  The
	// causes are collapsed so a caller cannot probe which one occurred.
	ErrUnauthorized = errors.New("auth: unauthorized")
)
