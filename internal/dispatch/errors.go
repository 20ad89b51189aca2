package dispatch

import "errors"

var (
	ErrNotFound = errors.New("dispatch: not found")
	// ErrStateConflict means the record no longer holds the status the
	// operation requires. Nothing was written.
	ErrStateConflict = errors.New("dispatch: state conflict")
	ErrForbidden     = errors.New("dispatch: forbidden")
	ErrBadRequest    = errors.New("dispatch: bad request")
)
