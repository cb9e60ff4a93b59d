package models

import "errors"

// Error taxonomy shared by the upstream clients, the repository and the
// aggregation services. Callers classify with errors.Is; wrapped context is
// added at each layer with fmt.Errorf("...: %w", err).
var (
	// ErrNotFound: the external id does not exist upstream, or a lookup
	// produced an empty result.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized: the upstream provider rejected our credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUpstream: generic upstream failure (5xx, timeout, malformed payload).
	ErrUpstream = errors.New("upstream error")

	// ErrConflict: a unique-constraint violation. Expected when two importers
	// race on the same external id; absorbed, never surfaced to clients.
	ErrConflict = errors.New("conflict")

	// ErrPersistence: unexpected storage failure. Fatal for the operation,
	// surfaced to clients as an internal error.
	ErrPersistence = errors.New("persistence error")
)
