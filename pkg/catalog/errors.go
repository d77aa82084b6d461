package catalog

import "errors"

// Error kinds surfaced by the catalog. Callers wrap them with context and
// test with errors.Is; the HTTP layer maps each kind to a status code.
var (
	ErrInvalidQuery     = errors.New("catalog: invalid query")
	ErrInvalidEntry     = errors.New("catalog: invalid entry")
	ErrIndexUnavailable = errors.New("catalog: index unavailable")
	ErrEntryNotFound    = errors.New("catalog: entry not found")
	ErrForbidden        = errors.New("catalog: forbidden")
	ErrUnauthorized     = errors.New("catalog: unauthorized")
)
