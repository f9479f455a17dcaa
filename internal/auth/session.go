package auth

import "context"

// Session is the resolved identity of a caller.
type Session struct {
	UserID  string
	Email   string
	IsAdmin bool
}

// SessionResolver turns an opaque bearer token into a Session. Exactly one
// implementation is selected at startup; business logic never branches on the
// identity provider behind it.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*Session, error)
}
