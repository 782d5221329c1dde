package crawler

import (
	"errors"
	"fmt"
)

// ErrBoundsExceeded marks a run that left the page window without reaching its boundary.
var ErrBoundsExceeded = errors.New("page outside of limits")

// ErrInvalidResumePage is returned for resume pages below 1.
var ErrInvalidResumePage = errors.New("resume page must be >= 1")

// BoundsError carries the page that fell outside the window.
type BoundsError struct {
	Page   int
	Window PageWindow
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("page %d outside of limits (%d, %d)", e.Page, e.Window.Lower, e.Window.Upper)
}

func (e *BoundsError) Unwrap() error {
	return ErrBoundsExceeded
}

// PageError ties a fatal failure to the page (and row timestamp, when known)
// being processed, so an operator can resume from there.
type PageError struct {
	Page      int
	Timestamp string
	Err       error
}

func (e *PageError) Error() string {
	if e.Timestamp != "" {
		return fmt.Sprintf("page %d, timestamp %q: %v", e.Page, e.Timestamp, e.Err)
	}
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// AlreadyInitializedError is returned by PlanInit when a state file exists.
type AlreadyInitializedError struct {
	Path string
}

func (e *AlreadyInitializedError) Error() string {
	return fmt.Sprintf("database file %s already exists", e.Path)
}
