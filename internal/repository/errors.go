// Package repository defines error types that are reused across
// multiple repositories. These sentinel values allow higher layers
// such as handlers to distinguish between different failure
// scenarios without string matching.
package repository

import "errors"

// ErrSessionNotFound is returned when a session (función) lookup
// matches no row. Handlers should translate this into an HTTP 404
// response.
var ErrSessionNotFound = errors.New("session not found")

// ErrSeatNotFound is returned when a seat lookup matches no row for
// the given session. Handlers should translate this into an HTTP
// 404 response.
var ErrSeatNotFound = errors.New("seat not found")

// ErrUsageCapReached is returned when a discount redemption would
// push the code over its usage cap. The race window between
// validation and redemption makes this reachable even after a
// successful validate.
var ErrUsageCapReached = errors.New("discount usage cap reached")
