// Package agenda fetches existing events from read-only calendar sources so
// the user can see what already occupies the calendar around the occurrences
// about to be committed. The remote store's conflict check is authoritative;
// this is a courtesy preview only.
package agenda

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	gosync "sync"
	"time"

	"github.com/calweave/calweave/internal/config"
)

// Event is an existing calendar entry seen by a source.
type Event struct {
	Title    string
	Location string
	Start    time.Time
	End      time.Time
	Source   string
}

// Overlaps reports whether the event intersects the given window.
func (e Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}

// Source is a read-only calendar source.
type Source interface {
	// Name returns the display name of this source.
	Name() string

	// Fetch retrieves events overlapping the [from, to] window.
	Fetch(ctx context.Context, from, to time.Time) ([]Event, error)
}

// Preview fetches all sources and answers busy-context queries.
type Preview struct {
	sources []Source
}

// NewPreview creates a preview over the configured sources.
func NewPreview(cfgs []config.SourceConfig) (*Preview, error) {
	var sources []Source

	for _, cfg := range cfgs {
		switch cfg.Type {
		case "ics":
			password, err := cfg.GetPassword()
			if err != nil {
				return nil, err
			}
			sources = append(sources, NewICSSource(cfg.Name, cfg.URL, cfg.Username, password))

		case "caldav":
			password, err := cfg.GetPassword()
			if err != nil {
				return nil, err
			}
			sources = append(sources, NewCalDAVSource(cfg.Name, cfg.URL, cfg.Username, password, cfg.Calendars))

		default:
			return nil, fmt.Errorf("unknown source type %q for source %q", cfg.Type, cfg.Name)
		}
	}

	return &Preview{sources: sources}, nil
}

// SourceCount returns the number of configured sources.
func (p *Preview) SourceCount() int {
	return len(p.sources)
}

// Fetch retrieves the [from, to] window from every source in parallel and
// returns the merged events sorted by start time. A failing source is logged
// and skipped; the preview degrades rather than blocking a save. Only when
// every source fails and nothing was fetched is the first error returned.
func (p *Preview) Fetch(ctx context.Context, from, to time.Time) ([]Event, error) {
	type result struct {
		events []Event
		name   string
		err    error
	}

	results := make(chan result, len(p.sources))
	var wg gosync.WaitGroup

	for _, src := range p.sources {
		wg.Go(func() {
			name := src.Name()
			slog.Debug("fetching source", "name", name)

			events, err := src.Fetch(ctx, from, to)
			results <- result{events: events, name: name, err: err}
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []Event
	var firstErr error
	for r := range results {
		if r.err != nil {
			slog.Warn("failed to fetch source", "name", r.name, "error", r.err)
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		slog.Debug("fetched source", "name", r.name, "events", len(r.events))
		all = append(all, r.events...)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Start.Before(all[j].Start)
	})

	if len(all) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return all, nil
}

// Near filters events to those intersecting the window widened by radius on
// both sides, capped at limit (0 means no cap). Input must be sorted by
// start, as Fetch returns it.
func Near(events []Event, start, end time.Time, radius time.Duration, limit int) []Event {
	from := start.Add(-radius)
	to := end.Add(radius)

	var out []Event
	for _, e := range events {
		if !e.Overlaps(from, to) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
