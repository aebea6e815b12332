package agenda

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	ics "github.com/emersion/go-ical"
)

// ICSSource reads events from an ICS/iCal feed URL.
type ICSSource struct {
	name     string
	url      string
	username string
	password string
	client   *http.Client
}

// NewICSSource creates a new ICS feed source.
func NewICSSource(name, url, username, password string) *ICSSource {
	return &ICSSource{
		name:     name,
		url:      url,
		username: username,
		password: password,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the display name of this source.
func (s *ICSSource) Name() string {
	return s.name
}

// Fetch retrieves events overlapping the [from, to] window.
func (s *ICSSource) Fetch(ctx context.Context, from, to time.Time) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ICS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ICS: status %d", resp.StatusCode)
	}

	return s.decode(resp.Body, from, to)
}

// decode parses the feed and keeps events intersecting the window.
// Recurring VEVENTs are expanded via their recurrence set.
func (s *ICSSource) decode(r io.Reader, from, to time.Time) ([]Event, error) {
	dec := ics.NewDecoder(r)

	var events []Event
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode ICS: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ics.CompEvent {
				continue
			}

			expanded, err := s.expandComponent(comp, from, to)
			if err != nil {
				// A malformed component should not hide the rest of the feed.
				continue
			}

			for _, e := range expanded {
				if e.Overlaps(from, to) {
					events = append(events, e)
				}
			}
		}
	}

	return events, nil
}

// expandComponent converts one VEVENT into concrete events within the window.
func (s *ICSSource) expandComponent(comp *ics.Component, from, to time.Time) ([]Event, error) {
	base := Event{Source: s.name}

	if prop := comp.Props.Get(ics.PropSummary); prop != nil {
		base.Title = prop.Value
	}
	if prop := comp.Props.Get(ics.PropLocation); prop != nil {
		base.Location = prop.Value
	}

	var start time.Time
	if prop := comp.Props.Get(ics.PropDateTimeStart); prop != nil {
		t, err := prop.DateTime(time.Local)
		if err != nil {
			// Floating or date-only values fall back to local interpretation.
			t, err = parseFallbackTime(prop.Value)
			if err != nil {
				return nil, fmt.Errorf("parse start time: %w", err)
			}
		}
		start = t
	}

	duration := time.Hour
	if prop := comp.Props.Get(ics.PropDateTimeEnd); prop != nil {
		t, err := prop.DateTime(time.Local)
		if err != nil {
			t, err = parseFallbackTime(prop.Value)
			if err != nil {
				return nil, fmt.Errorf("parse end time: %w", err)
			}
		}
		duration = t.Sub(start)
	}

	rset, err := comp.RecurrenceSet(time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse recurrence: %w", err)
	}

	if rset == nil {
		base.Start = start
		base.End = start.Add(duration)
		return []Event{base}, nil
	}

	// Look back by the duration so an occurrence that began before the
	// window but has not ended is still caught.
	occurrences := rset.Between(from.Add(-duration), to, true)

	events := make([]Event, 0, len(occurrences))
	for _, occ := range occurrences {
		e := base
		e.Start = occ
		e.End = occ.Add(duration)
		events = append(events, e)
	}
	return events, nil
}

// parseFallbackTime parses floating (no TZID) and date-only ICS values.
func parseFallbackTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("20060102T150405", s, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation("20060102", s, time.Local)
}

// Ensure ICSSource implements Source.
var _ Source = (*ICSSource)(nil)
