// Package event provides the event draft model and partial-field merging.
package event

import (
	"errors"
	"fmt"

	"github.com/calweave/calweave/internal/localtime"
)

// Draft is an event being composed. It is mutable while the user edits it and
// becomes immutable input the moment it is handed to the commit sequencer.
type Draft struct {
	// Title is the event title.
	Title string

	// StartLocal is the wall-clock start time.
	StartLocal localtime.DateTime

	// EndLocal is the wall-clock end time.
	EndLocal localtime.DateTime

	// Description is the optional event body.
	Description string

	// Location is the optional event location.
	Location string
}

// Validate checks that the draft can be submitted.
func (d Draft) Validate(codec *localtime.Codec) error {
	if d.Title == "" {
		return errors.New("event: title is required")
	}
	start := codec.ToInstant(d.StartLocal)
	end := codec.ToInstant(d.EndLocal)
	if !end.After(start) {
		return fmt.Errorf("event: end %s is not after start %s", d.EndLocal, d.StartLocal)
	}
	return nil
}

// OnDate returns a copy of the draft moved to a new start date, keeping the
// time-of-day of both endpoints. endDelta is the number of calendar days the
// end date trails the start date (taken from the anchor, so overnight spans
// keep their one-day offset on every occurrence).
func (d Draft) OnDate(start localtime.Date, endDelta int) Draft {
	out := d
	out.StartLocal = start.At(d.StartLocal.Hour, d.StartLocal.Minute)
	end := start.AddDays(endDelta)
	out.EndLocal = end.At(d.EndLocal.Hour, d.EndLocal.Minute)
	return out
}
