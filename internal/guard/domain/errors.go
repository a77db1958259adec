package domain

import "errors"

// Sentinel errors for the guard error taxonomy. All of them are local to a
// single request evaluation or control message; none are fatal to the engine.
var (
	// ErrInvalidURL indicates a descriptor field could not be parsed as a URL.
	// Callers must treat this as "cannot evaluate, allow and log" (fail-open).
	ErrInvalidURL = errors.New("invalid URL")
	// ErrResolver indicates a CNAME lookup failure. Fail-open on the tracker
	// check only; it never affects the private-network check.
	ErrResolver = errors.New("resolver error")
	// ErrListenerStateMismatch indicates the persisted enabled flag disagrees
	// with the live attachment state. The live state wins.
	ErrListenerStateMismatch = errors.New("listener state mismatch")
	// ErrUnauthorizedOrigin indicates a control message arrived from an origin
	// other than the packaged UI origin.
	ErrUnauthorizedOrigin = errors.New("unauthorized control origin")
)
