// Package store defines the remote event store the commit sequencer talks
// to, and an HTTP client for it. The store is a black box: it detects time
// overlaps and searches for free slots server-side; this package only shapes
// the calls and classifies the failures.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Event is an occurrence ready for submission. Instants are UTC.
type Event struct {
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	Location    string
}

// Duration returns the length of the event.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Committed is an event the store has accepted, with its server-assigned
// identity. SeriesID and OriginalStart are present when the store links the
// occurrence to a recurring series.
type Committed struct {
	ID int64
	Event
	SeriesID      *int64
	OriginalStart *time.Time
}

// Window is a start/end pair, used for suggestion requests and responses.
type Window struct {
	Start time.Time
	End   time.Time
}

// ConflictError reports a server-detected overlap with an already-stored
// event. It is recoverable: the sequencer pauses rather than fails.
type ConflictError struct {
	Title string
	Start time.Time
	End   time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: conflicts with %q (%s – %s)",
		e.Title,
		e.Start.UTC().Format(time.RFC3339),
		e.End.UTC().Format(time.RFC3339))
}

// TransportError is any non-conflict commit failure: network error, server
// error, rejected payload. Fatal to the save that hit it.
type TransportError struct {
	Status int // HTTP status, 0 when the request never completed
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("store: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("store: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrNoSlotFound is returned by SuggestNext when the store has no free slot
// to offer. The conflict stays reported with no alternative attached.
var ErrNoSlotFound = errors.New("store: no free slot found")

// Store is the remote event store.
type Store interface {
	// Commit submits one event. It returns *ConflictError when the store
	// detects an overlap and *TransportError for any other failure.
	Commit(ctx context.Context, ev Event) (*Committed, error)

	// SuggestNext asks for the next free window of the same duration at or
	// after the given window. It returns ErrNoSlotFound when nothing fits.
	SuggestNext(ctx context.Context, w Window) (Window, error)
}
