// Package ics writes committed batches and series definitions to ICS files.
package ics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ics "github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/calweave/calweave/internal/event"
	"github.com/calweave/calweave/internal/localtime"
	"github.com/calweave/calweave/internal/recur"
	"github.com/calweave/calweave/internal/store"
)

const productID = "-//calweave//calweave//EN"

// Write writes committed occurrences to an ICS file atomically: temp file
// first, then rename. Each occurrence becomes its own VEVENT because the
// store materializes occurrences individually (a suggestion-moved occurrence
// no longer fits any RRULE).
func Write(path string, committed []store.Committed) error {
	cal := ics.NewCalendar()
	cal.Props.SetText(ics.PropVersion, "2.0")
	cal.Props.SetText(ics.PropProductID, productID)

	for _, c := range committed {
		comp := ics.NewComponent(ics.CompEvent)

		comp.Props.SetText(ics.PropUID, occurrenceUID(c))
		comp.Props.SetText(ics.PropSummary, c.Title)
		comp.Props.SetDateTime(ics.PropDateTimeStamp, time.Now())
		comp.Props.SetDateTime(ics.PropDateTimeStart, c.Start)
		comp.Props.SetDateTime(ics.PropDateTimeEnd, c.End)

		if c.Description != "" {
			comp.Props.SetText(ics.PropDescription, c.Description)
		}
		if c.Location != "" {
			comp.Props.SetText(ics.PropLocation, c.Location)
		}
		if c.SeriesID != nil {
			comp.Props.SetText("X-CALWEAVE-SERIES", fmt.Sprintf("%d", *c.SeriesID))
		}
		if c.OriginalStart != nil {
			comp.Props.SetDateTime("X-CALWEAVE-ORIGINAL-START", *c.OriginalStart)
		}

		cal.Children = append(cal.Children, comp)
	}

	return writeAtomic(path, cal)
}

// WriteSeries writes a series definition as a single anchor VEVENT carrying
// the recurrence as an RRULE, for sharing the rule rather than its expansion.
func WriteSeries(path string, anchor event.Draft, rule recur.Rule, codec *localtime.Codec) error {
	if !rule.Active() {
		return fmt.Errorf("write series: rule is inert")
	}

	start := codec.ToInstant(anchor.StartLocal)
	end := codec.ToInstant(anchor.EndLocal)

	rr, err := recur.ToRRule(rule, start.In(codec.Location()))
	if err != nil {
		return fmt.Errorf("render rrule: %w", err)
	}

	cal := ics.NewCalendar()
	cal.Props.SetText(ics.PropVersion, "2.0")
	cal.Props.SetText(ics.PropProductID, productID)

	comp := ics.NewComponent(ics.CompEvent)
	comp.Props.SetText(ics.PropUID, uuid.NewString()+"@calweave")
	comp.Props.SetText(ics.PropSummary, anchor.Title)
	comp.Props.SetDateTime(ics.PropDateTimeStamp, time.Now())
	comp.Props.SetDateTime(ics.PropDateTimeStart, start)
	comp.Props.SetDateTime(ics.PropDateTimeEnd, end)

	if anchor.Description != "" {
		comp.Props.SetText(ics.PropDescription, anchor.Description)
	}
	if anchor.Location != "" {
		comp.Props.SetText(ics.PropLocation, anchor.Location)
	}

	// RRULE is not a TEXT property; set the raw value so BYDAY commas
	// survive unescaped.
	prop := ics.NewProp(ics.PropRecurrenceRule)
	prop.Value = rr.String()
	comp.Props.Set(prop)

	cal.Children = append(cal.Children, comp)

	return writeAtomic(path, cal)
}

// occurrenceUID derives a stable UID for a committed occurrence, preferring
// the server-assigned id.
func occurrenceUID(c store.Committed) string {
	if c.ID != 0 {
		return fmt.Sprintf("calweave-%d@calweave", c.ID)
	}
	return uuid.NewString() + "@calweave"
}

// writeAtomic encodes the calendar and writes it via temp file + rename.
func writeAtomic(path string, cal *ics.Calendar) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	var buf bytes.Buffer
	enc := ics.NewEncoder(&buf)
	if err := enc.Encode(cal); err != nil {
		return fmt.Errorf("encode ICS: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
