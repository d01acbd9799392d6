// ABOUTME: Guards that wrap protected operations with login and permission checks
// ABOUTME: The token is an explicit parameter; verified claims reach the operation via context

package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/epicevents/crm/internal/auth"
)

// ErrLoginRequired is returned by LoginRequired when the token does not verify.
var ErrLoginRequired = errors.New("login required")

// Operation is a protected unit of work.
type Operation[T any] func(ctx context.Context, tok Token) (T, error)

// RequirePermission runs op only if tok's role holds perm. On denial op is not called.
func RequirePermission[T any](e *Engine, perm string, op Operation[T]) Operation[T] {
	return func(ctx context.Context, tok Token) (T, error) {
		claims, err := e.Require(ctx, tok, perm)
		if err != nil {
			var zero T
			return zero, err
		}
		return op(auth.WithClaims(ctx, claims), tok)
	}
}

// LoginRequired runs op only if tok verifies.
func LoginRequired[T any](e *Engine, op Operation[T]) Operation[T] {
	return func(ctx context.Context, tok Token) (T, error) {
		var zero T
		if tok == "" {
			return zero, fmt.Errorf("%w: %w", ErrLoginRequired, auth.ErrNoSession)
		}
		claims, err := e.verifier.Verify(string(tok), e.now())
		if err != nil {
			return zero, fmt.Errorf("%w: %w", ErrLoginRequired, err)
		}
		return op(auth.WithClaims(ctx, claims), tok)
	}
}
