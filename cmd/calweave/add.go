package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/calweave/calweave/internal/agenda"
	"github.com/calweave/calweave/internal/auth"
	"github.com/calweave/calweave/internal/batch"
	"github.com/calweave/calweave/internal/config"
	"github.com/calweave/calweave/internal/event"
	icsx "github.com/calweave/calweave/internal/ics"
	"github.com/calweave/calweave/internal/localtime"
	"github.com/calweave/calweave/internal/notify"
	"github.com/calweave/calweave/internal/parse"
	"github.com/calweave/calweave/internal/recur"
	"github.com/calweave/calweave/internal/store"
)

// runAdd composes a draft from extraction output and flags, expands the
// recurrence rule, previews the agenda, and drives the commit sequence.
func runAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "path to config file (default: ~/.config/calweave/config.yaml)")
		verbose    = fs.Bool("v", false, "verbose logging")

		prompt    = fs.String("prompt", "", "natural-language prompt to extract fields from")
		imagePath = fs.String("image", "", "image file to extract fields from")

		title    = fs.String("title", "", "event title")
		startStr = fs.String("start", "", `local start time ("2006-01-02 15:04")`)
		endStr   = fs.String("end", "", `local end time ("2006-01-02 15:04")`)
		desc     = fs.String("desc", "", "event description")
		location = fs.String("location", "", "event location")

		daysStr  = fs.String("days", "", `recurrence weekdays, e.g. "mon,wed"`)
		every    = fs.Int("every", 0, "recur every N weeks (default 1 when recurring)")
		untilStr = fs.String("until", "", `last recurrence date ("2006-01-02", inclusive)`)

		autoAccept = fs.Bool("yes", false, "accept offered suggestions without prompting")
		noInput    = fs.Bool("no-input", false, "never prompt; abandon on conflict")

		exportPath = fs.String("export", "", "write committed occurrences to this ICS file")
		seriesPath = fs.String("export-series", "", "write the series definition (anchor + RRULE) to this ICS file")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*verbose)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Store.URL == "" {
		return errors.New("no store url configured")
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	codec := localtime.NewCodec(loc)

	draft, rule, err := composeDraft(ctx, cfg, *prompt, *imagePath, flagFields{
		title: *title, start: *startStr, end: *endStr,
		desc: *desc, location: *location,
		days: *daysStr, every: *every, until: *untilStr,
	})
	if err != nil {
		return err
	}
	if err := draft.Validate(codec); err != nil {
		return err
	}

	occurrences, err := recur.Enumerate(draft, rule)
	if err != nil {
		return err
	}

	pending := make([]store.Event, len(occurrences))
	for i, occ := range occurrences {
		pending[i] = store.Event{
			Title:       occ.Title,
			Start:       codec.ToInstant(occ.StartLocal),
			End:         codec.ToInstant(occ.EndLocal),
			Description: occ.Description,
			Location:    occ.Location,
		}
	}

	fmt.Printf("Saving %q: %d occurrence(s), recurrence %s\n", draft.Title, len(pending), rule)

	if err := previewAgenda(ctx, cfg, pending, loc); err != nil {
		// The store's conflict check is authoritative; a broken preview
		// should not block the save.
		slog.Warn("agenda preview unavailable", "error", err)
	}

	st, err := newStoreClient(cfg)
	if err != nil {
		return err
	}

	seq := batch.New(st, pending)
	if err := driveSequence(ctx, cfg, seq, loc, *autoAccept, *noInput); err != nil {
		return err
	}

	result := seq.Result()
	committed := result.Committed
	fmt.Printf("Committed %d of %d occurrence(s)\n", len(committed), len(pending))

	if path := firstNonEmpty(*exportPath, cfg.Export.Path); path != "" && len(committed) > 0 {
		if err := icsx.Write(path, committed); err != nil {
			return fmt.Errorf("export ICS: %w", err)
		}
		fmt.Printf("Wrote %s\n", path)
	}
	if *seriesPath != "" && rule.Active() {
		if err := icsx.WriteSeries(*seriesPath, draft, rule, codec); err != nil {
			return fmt.Errorf("export series: %w", err)
		}
		fmt.Printf("Wrote %s\n", *seriesPath)
	}

	return nil
}

// flagFields carries the direct-edit flag values into draft composition.
type flagFields struct {
	title, start, end, desc, location string
	days, until                       string
	every                             int
}

// composeDraft merges extraction output (image, then text, text wins) and
// applies flags last: whatever the user typed overrides what was extracted.
func composeDraft(ctx context.Context, cfg *config.Config, prompt, imagePath string, ff flagFields) (event.Draft, recur.Rule, error) {
	var fromImage, fromText *event.Partial

	if prompt != "" || imagePath != "" {
		if cfg.Parser.URL == "" {
			return event.Draft{}, recur.Rule{}, errors.New("no parser url configured")
		}
		parser := parse.NewClient(cfg.Parser.URL)

		if imagePath != "" {
			data, err := os.ReadFile(imagePath)
			if err != nil {
				return event.Draft{}, recur.Rule{}, fmt.Errorf("read image: %w", err)
			}
			p, err := parser.ParseImage(ctx, data)
			if err != nil {
				return event.Draft{}, recur.Rule{}, fmt.Errorf("extract from image: %w", err)
			}
			fromImage = &p
		}
		if prompt != "" {
			p, err := parser.ParsePrompt(ctx, prompt)
			if err != nil {
				return event.Draft{}, recur.Rule{}, fmt.Errorf("extract from prompt: %w", err)
			}
			fromText = &p
		}
	}

	merged := event.Merge(fromImage, fromText)

	var draft event.Draft
	merged.Apply(&draft)

	if ff.title != "" {
		draft.Title = ff.title
	}
	if ff.desc != "" {
		draft.Description = ff.desc
	}
	if ff.location != "" {
		draft.Location = ff.location
	}
	if ff.start != "" {
		dt, err := localtime.ParseDateTime(ff.start)
		if err != nil {
			return event.Draft{}, recur.Rule{}, err
		}
		draft.StartLocal = dt
	}
	if ff.end != "" {
		dt, err := localtime.ParseDateTime(ff.end)
		if err != nil {
			return event.Draft{}, recur.Rule{}, err
		}
		draft.EndLocal = dt
	}

	rule := recur.Rule{Weekdays: merged.Weekdays, Until: merged.Until}
	if merged.StrideWeeks != nil {
		rule.StrideWeeks = *merged.StrideWeeks
	}
	if ff.days != "" {
		days, err := parseWeekdays(ff.days)
		if err != nil {
			return event.Draft{}, recur.Rule{}, err
		}
		rule.Weekdays = days
	}
	if ff.until != "" {
		until, err := localtime.ParseDate(ff.until)
		if err != nil {
			return event.Draft{}, recur.Rule{}, err
		}
		rule.Until = &until
	}
	if ff.every > 0 {
		rule.StrideWeeks = ff.every
	}
	// A recurring save with no explicit cadence means every matching week.
	// An inert rule never consults the stride at all.
	if rule.Active() && rule.StrideWeeks == 0 {
		rule.StrideWeeks = 1
	}

	return draft, rule, nil
}

// newStoreClient builds the store client, with device-code auth when enabled.
func newStoreClient(cfg *config.Config) (store.Store, error) {
	var tokens store.TokenSource
	if cfg.Store.Auth.Enabled {
		dc, err := auth.NewDeviceCode(cfg.Store.Auth.ClientID, cfg.Store.Auth.Authority, cfg.Store.Auth.Scopes)
		if err != nil {
			return nil, err
		}
		tokens = dc
	}
	return store.NewClient(cfg.Store.URL, tokens), nil
}

// previewAgenda prints existing events near each pending occurrence.
func previewAgenda(ctx context.Context, cfg *config.Config, pending []store.Event, loc *time.Location) error {
	if len(cfg.Sources) == 0 || len(pending) == 0 {
		return nil
	}

	preview, err := agenda.NewPreview(cfg.Sources)
	if err != nil {
		return err
	}

	radius := cfg.Agenda.Radius
	from := pending[0].Start.Add(-radius)
	to := pending[len(pending)-1].End.Add(radius)

	existing, err := preview.Fetch(ctx, from, to)
	if err != nil {
		return err
	}

	for _, occ := range pending {
		near := agenda.Near(existing, occ.Start, occ.End, radius, cfg.Agenda.MaxEvents)
		if len(near) == 0 {
			continue
		}
		fmt.Printf("Around %s:\n", formatInstant(occ.Start, loc))
		for _, e := range near {
			marker := " "
			if e.Overlaps(occ.Start, occ.End) {
				marker = "!"
			}
			fmt.Printf("  %s %s – %s  %s (%s)\n",
				marker,
				formatInstant(e.Start, loc),
				e.End.In(loc).Format("15:04"),
				e.Title, e.Source)
		}
	}

	return nil
}

// driveSequence runs the sequencer, resolving conflicts interactively until
// the batch finishes or is abandoned.
func driveSequence(ctx context.Context, cfg *config.Config, seq *batch.Sequencer, loc *time.Location, autoAccept, noInput bool) error {
	var notifier *notify.Notifier
	if cfg.Notifications.Enabled {
		n, err := notify.New("calweave")
		if err != nil {
			slog.Warn("notifications unavailable", "error", err)
		} else {
			notifier = n
			defer notifier.Close()
		}
	}

	reader := bufio.NewReader(os.Stdin)

	done, err := seq.Run(ctx)
	for {
		if err != nil {
			// Fatal: transport or validation failure. Already-committed
			// occurrences stay committed; say so rather than hide it.
			fmt.Printf("Save failed after %d committed occurrence(s)\n", len(seq.Committed()))
			return err
		}
		if done {
			if notifier != nil {
				notifier.Send("Events saved", fmt.Sprintf("%d occurrence(s) committed", len(seq.Committed())), notify.UrgencyLow, 5*time.Second)
			}
			return nil
		}

		// Suspended: a conflict wants a decision.
		printConflict(seq, loc)
		if notifier != nil {
			notifier.Send("Scheduling conflict", conflictSummary(seq, loc), notify.UrgencyCritical, 0)
		}

		if noInput {
			seq.Abandon()
			return nil
		}
		if autoAccept && seq.Suggestion() != nil {
			fmt.Println("Accepting suggestion")
			done, err = seq.AcceptSuggestion(ctx)
			continue
		}

		done, err = decide(ctx, seq, reader, loc)
		if errors.Is(err, errAbandoned) {
			return nil
		}
	}
}

// errAbandoned signals that the user ended the sequence; not a failure.
var errAbandoned = errors.New("abandoned")

// decide prompts for one conflict decision and applies it.
func decide(ctx context.Context, seq *batch.Sequencer, reader *bufio.Reader, loc *time.Location) (bool, error) {
	for {
		if seq.Suggestion() != nil {
			fmt.Print("[a]ccept suggestion, [t]ime of your own, a[b]andon? ")
		} else {
			fmt.Print("[t]ime of your own, a[b]andon? ")
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			seq.Abandon()
			return false, errAbandoned
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "a":
			if seq.Suggestion() == nil {
				fmt.Println("No suggestion available")
				continue
			}
			return seq.AcceptSuggestion(ctx)

		case "t":
			rejected := seq.Rejected()
			fmt.Print("New local start (2006-01-02 15:04): ")
			line, err := reader.ReadString('\n')
			if err != nil {
				seq.Abandon()
				return false, errAbandoned
			}
			dt, perr := localtime.ParseDateTime(strings.TrimSpace(line))
			if perr != nil {
				fmt.Println(perr)
				continue
			}
			start := localtime.NewCodec(loc).ToInstant(dt)
			return seq.Reschedule(ctx, store.Window{
				Start: start,
				End:   start.Add(rejected.Duration()),
			})

		case "b", "q":
			seq.Abandon()
			return false, errAbandoned

		default:
			continue
		}
	}
}

// printConflict describes the reported conflict and any suggestion.
func printConflict(seq *batch.Sequencer, loc *time.Location) {
	conflict := seq.Conflict()
	rejected := seq.Rejected()

	fmt.Printf("\nConflict: %s – %s collides with %q (%s – %s)\n",
		formatInstant(rejected.Start, loc),
		rejected.End.In(loc).Format("15:04"),
		conflict.Title,
		formatInstant(conflict.Start, loc),
		conflict.End.In(loc).Format("15:04"))
	fmt.Printf("Committed so far: %d, remaining: %d\n", len(seq.Committed()), seq.Remaining())

	if s := seq.Suggestion(); s != nil {
		fmt.Printf("Suggested free slot: %s – %s\n",
			formatInstant(s.Start, loc),
			s.End.In(loc).Format("15:04"))
	} else {
		fmt.Println("No free slot suggestion available")
	}
}

// conflictSummary is the one-line notification body for a conflict.
func conflictSummary(seq *batch.Sequencer, loc *time.Location) string {
	conflict := seq.Conflict()
	rejected := seq.Rejected()
	return fmt.Sprintf("%s collides with %q", formatInstant(rejected.Start, loc), conflict.Title)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
