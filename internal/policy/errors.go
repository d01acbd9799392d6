// ABOUTME: Permission denial error carrying the human-readable permission
// ABOUTME: Matches ErrPermissionDenied with errors.Is and unwraps to the token failure, if any

package policy

import "errors"

// ErrPermissionDenied is matched by every *DeniedError.
var ErrPermissionDenied = errors.New("permission denied")

// DeniedError reports the permission a caller lacked.
type DeniedError struct {
	Permission Permission
	// Cause is set when the token itself failed verification.
	Cause error
}

func (e *DeniedError) Error() string {
	msg := "permission denied: " + e.Permission.Humanize()
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrPermissionDenied) true.
func (e *DeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

func (e *DeniedError) Unwrap() error {
	return e.Cause
}
