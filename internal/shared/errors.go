package shared

import "errors"

var (
	// ErrMissingActor indicates a request without an identifiable actor.
	ErrMissingActor = errors.New("actor identity required")
	// ErrInvalidToken indicates a bearer token that failed verification.
	ErrInvalidToken = errors.New("invalid bearer token")
)
