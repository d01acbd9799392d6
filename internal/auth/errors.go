// ABOUTME: Error taxonomy for credential and session failures
// ABOUTME: Callers match these with errors.Is; wrapped variants carry the underlying reason

package auth

import "errors"

var (
	// ErrUnknownPrincipal is returned when no principal matches the identifier.
	ErrUnknownPrincipal = errors.New("unknown principal")

	// ErrInvalidCredential covers bad secrets, bad signatures, malformed tokens and
	// refresh secrets that no longer match the stored hash.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrExpiredCredential is returned when an access token or refresh secret is past expiry.
	ErrExpiredCredential = errors.New("credential expired")

	// ErrNoSession is returned when no local session exists.
	ErrNoSession = errors.New("no active session")
)
