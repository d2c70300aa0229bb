package domain

import "errors"

// ErrMissingUser is returned when an operation is invoked without a user.
var ErrMissingUser = errors.New("request context has no user id")

// RequestContext identifies who is calling. Every service operation takes it
// explicitly; nothing reads the caller from ambient state.
type RequestContext struct {
	UserID    string
	RequestID string
}

// Validate checks the context carries a user.
func (rc RequestContext) Validate() error {
	if rc.UserID == "" {
		return ErrMissingUser
	}
	return nil
}
