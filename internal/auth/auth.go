// Package auth resolves the current user for the sync engine. The engine
// never sees tokens; the HTTP middleware validates the bearer and stores
// the subject in the request context.
package auth

import (
	"context"
	"errors"
)

// ErrNoSession is returned when no authenticated user is resolvable.
var ErrNoSession = errors.New("no authenticated session")

// Sessions resolves the user that owns the current call.
type Sessions interface {
	CurrentUser(ctx context.Context) (string, error)
}

type userKey struct{}

// WithUser returns a context carrying the authenticated user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// FromContext extracts the authenticated user id, if any.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}

// ContextSessions resolves users from the request context (set by the
// auth middleware).
type ContextSessions struct{}

func (ContextSessions) CurrentUser(ctx context.Context) (string, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return "", ErrNoSession
	}
	return id, nil
}

// StaticSessions always resolves the same user. Used by tests and
// single-user tooling.
type StaticSessions struct {
	UserID string
}

func (s StaticSessions) CurrentUser(ctx context.Context) (string, error) {
	if s.UserID == "" {
		return "", ErrNoSession
	}
	return s.UserID, nil
}
