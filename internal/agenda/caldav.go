package agenda

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	ics "github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
)

// CalDAVSource reads events from a CalDAV server.
type CalDAVSource struct {
	name      string
	url       string
	username  string
	password  string
	calendars []string // Optional: restrict to specific calendars
}

// NewCalDAVSource creates a new CalDAV source.
func NewCalDAVSource(name, url, username, password string, calendars []string) *CalDAVSource {
	return &CalDAVSource{
		name:      name,
		url:       url,
		username:  username,
		password:  password,
		calendars: calendars,
	}
}

// Name returns the display name of this source.
func (s *CalDAVSource) Name() string {
	return s.name
}

// Fetch retrieves events overlapping the [from, to] window from every
// selected calendar on the server.
func (s *CalDAVSource) Fetch(ctx context.Context, from, to time.Time) ([]Event, error) {
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &basicAuthTransport{
			username: s.username,
			password: s.password,
			base:     http.DefaultTransport,
		},
	}

	client, err := caldav.NewClient(httpClient, s.url)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find calendar home: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	var all []Event
	for _, cal := range cals {
		if len(s.calendars) > 0 && !s.wantCalendar(cal.Name) {
			continue
		}

		events, err := s.queryCalendar(ctx, client, cal, from, to)
		if err != nil {
			// One broken calendar should not hide the others.
			continue
		}
		all = append(all, events...)
	}

	return all, nil
}

// wantCalendar checks the calendar against the configured restriction list.
func (s *CalDAVSource) wantCalendar(name string) bool {
	for _, c := range s.calendars {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// queryCalendar fetches window-bounded events from a single calendar.
func (s *CalDAVSource) queryCalendar(ctx context.Context, client *caldav.Client, cal caldav.Calendar, from, to time.Time) ([]Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{{
				Name: "VEVENT",
				Props: []string{
					"SUMMARY",
					"DTSTART",
					"DTEND",
					"LOCATION",
				},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: from,
				End:   to,
			}},
		},
	}

	objects, err := client.QueryCalendar(ctx, cal.Path, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar %s: %w", cal.Name, err)
	}

	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}

		for _, comp := range obj.Data.Children {
			if comp.Name != ics.CompEvent {
				continue
			}

			event, err := s.convertComponent(comp, cal.Name)
			if err != nil {
				continue
			}
			events = append(events, event)
		}
	}

	return events, nil
}

// convertComponent converts an ICS VEVENT to an agenda event.
func (s *CalDAVSource) convertComponent(comp *ics.Component, calName string) (Event, error) {
	event := Event{
		Source: fmt.Sprintf("%s/%s", s.name, calName),
	}

	if prop := comp.Props.Get(ics.PropSummary); prop != nil {
		event.Title = prop.Value
	}
	if prop := comp.Props.Get(ics.PropLocation); prop != nil {
		event.Location = prop.Value
	}

	if prop := comp.Props.Get(ics.PropDateTimeStart); prop != nil {
		t, err := prop.DateTime(time.Local)
		if err != nil {
			t, err = parseFallbackTime(prop.Value)
			if err != nil {
				return event, fmt.Errorf("parse start time: %w", err)
			}
		}
		event.Start = t
	}

	if prop := comp.Props.Get(ics.PropDateTimeEnd); prop != nil {
		t, err := prop.DateTime(time.Local)
		if err != nil {
			t, err = parseFallbackTime(prop.Value)
			if err != nil {
				return event, fmt.Errorf("parse end time: %w", err)
			}
		}
		event.End = t
	} else {
		event.End = event.Start.Add(time.Hour)
	}

	return event, nil
}

// basicAuthTransport adds basic auth to HTTP requests.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

// Ensure CalDAVSource implements Source.
var _ Source = (*CalDAVSource)(nil)
