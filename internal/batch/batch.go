// Package batch commits a sequence of occurrences to the remote store one at
// a time and turns a server-reported conflict into a suspended, resumable
// session instead of a failure.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/calweave/calweave/internal/store"
)

// Phase is the state of a commit session.
type Phase int

const (
	// Clean: no conflict outstanding, the sequencer may advance.
	Clean Phase = iota

	// Reported: a conflict is stored and the sequence is suspended awaiting
	// an accept-suggestion or abandon decision.
	Reported

	// Done: the sequence finished, failed fatally, or was abandoned.
	Done
)

func (p Phase) String() string {
	switch p {
	case Clean:
		return "clean"
	case Reported:
		return "reported"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	// ErrSuspended is returned by Run while a conflict decision is pending.
	ErrSuspended = errors.New("batch: conflict decision pending")

	// ErrFinished is returned when the session has already terminated.
	ErrFinished = errors.New("batch: sequence already finished")

	// ErrNoSuggestion is returned by AcceptSuggestion when the store offered
	// no alternative window for the rejected occurrence.
	ErrNoSuggestion = errors.New("batch: no suggestion available")
)

// Result is the final outcome of a session. Committed occurrences stay
// committed even when the batch did not finish: there is no compensating
// rollback, partial success is an accepted, documented outcome.
type Result struct {
	Committed []store.Committed
	Remaining int
	Abandoned bool
}

// Sequencer owns one batch commit. It is not safe for concurrent use and is
// meant to be driven by exactly one caller: commits are strictly serialized
// so that the store's conflict check always runs against a store that has
// absorbed every prior occurrence in the batch.
type Sequencer struct {
	st store.Store

	phase      Phase
	pending    []store.Event
	next       int
	committed  []store.Committed
	conflict   *store.ConflictError
	suggestion *store.Window
}

// New creates a sequencer for the given occurrences. A single-occurrence
// save uses the same path with a one-element sequence.
func New(st store.Store, occurrences []store.Event) *Sequencer {
	pending := append([]store.Event(nil), occurrences...)
	return &Sequencer{
		st:      st,
		pending: pending,
	}
}

// Phase returns the session phase.
func (s *Sequencer) Phase() Phase { return s.phase }

// Conflict returns the reported conflict, nil in Clean phase.
func (s *Sequencer) Conflict() *store.ConflictError { return s.conflict }

// Suggestion returns the offered alternative window, nil when the suggestion
// service had nothing (the conflict is still reported without it).
func (s *Sequencer) Suggestion() *store.Window { return s.suggestion }

// Committed returns the occurrences accepted so far, in commit order.
func (s *Sequencer) Committed() []store.Committed {
	return append([]store.Committed(nil), s.committed...)
}

// Remaining returns how many occurrences have not been committed, including
// a rejected one awaiting a decision.
func (s *Sequencer) Remaining() int { return len(s.pending) - s.next }

// Rejected returns the occurrence whose commit was refused, nil unless the
// session is in Reported phase.
func (s *Sequencer) Rejected() *store.Event {
	if s.phase != Reported {
		return nil
	}
	ev := s.pending[s.next]
	return &ev
}

// Run advances the sequence until it finishes or a conflict suspends it.
// It returns true when every occurrence is committed. A false return with a
// nil error means the session is suspended in Reported phase; the caller
// decides via AcceptSuggestion or Abandon. Any non-conflict commit failure
// terminates the sequence and is returned as the error.
func (s *Sequencer) Run(ctx context.Context) (bool, error) {
	switch s.phase {
	case Reported:
		return false, ErrSuspended
	case Done:
		return false, ErrFinished
	}

	for s.next < len(s.pending) {
		occ := s.pending[s.next]

		committed, err := s.st.Commit(ctx, occ)

		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			s.report(ctx, occ, conflict)
			return false, nil
		}
		if err != nil {
			// Transport and validation failures are fatal to the save; the
			// raw error surfaces and no suggestion is attempted.
			s.phase = Done
			return false, fmt.Errorf("commit %q at %s: %w", occ.Title, occ.Start.Format("2006-01-02 15:04"), err)
		}

		s.committed = append(s.committed, *committed)
		s.next++
		slog.Debug("occurrence committed", "id", committed.ID, "start", committed.Start, "remaining", s.Remaining())
	}

	s.phase = Done
	slog.Info("batch committed", "count", len(s.committed))
	return true, nil
}

// report stores the conflict, asks the store for an alternative window of
// the same duration, and suspends the session.
func (s *Sequencer) report(ctx context.Context, occ store.Event, conflict *store.ConflictError) {
	s.phase = Reported
	s.conflict = conflict
	s.suggestion = nil

	slog.Info("commit rejected",
		"title", occ.Title,
		"start", occ.Start,
		"conflicting", conflict.Title)

	// Best effort: the conflict is surfaced either way.
	win, err := s.st.SuggestNext(ctx, store.Window{Start: occ.Start, End: occ.End})
	if err != nil {
		slog.Warn("no suggestion available", "error", err)
		return
	}
	s.suggestion = &win
}

// AcceptSuggestion rewrites only the rejected occurrence's start and end to
// the suggested window and resumes the sequence with that occurrence. The
// return values are those of Run.
func (s *Sequencer) AcceptSuggestion(ctx context.Context) (bool, error) {
	if s.phase == Done {
		return false, ErrFinished
	}
	if s.phase != Reported {
		return false, errors.New("batch: no conflict to resolve")
	}
	if s.suggestion == nil {
		return false, ErrNoSuggestion
	}

	occ := &s.pending[s.next]
	occ.Start = s.suggestion.Start
	occ.End = s.suggestion.End

	s.conflict = nil
	s.suggestion = nil
	s.phase = Clean

	return s.Run(ctx)
}

// Reschedule rewrites the rejected occurrence to a caller-chosen window and
// resumes, for when the store offered no suggestion (or the user prefers a
// different time). The return values are those of Run.
func (s *Sequencer) Reschedule(ctx context.Context, w store.Window) (bool, error) {
	if s.phase == Done {
		return false, ErrFinished
	}
	if s.phase != Reported {
		return false, errors.New("batch: no conflict to resolve")
	}

	occ := &s.pending[s.next]
	occ.Start = w.Start
	occ.End = w.End

	s.conflict = nil
	s.suggestion = nil
	s.phase = Clean

	return s.Run(ctx)
}

// Abandon ends the session, leaving already-committed occurrences as the
// final, permanent result. Nothing is retracted from the store.
func (s *Sequencer) Abandon() Result {
	remaining := s.Remaining()
	s.phase = Done
	s.conflict = nil
	s.suggestion = nil

	slog.Info("batch abandoned", "committed", len(s.committed), "remaining", remaining)
	return Result{
		Committed: s.Committed(),
		Remaining: remaining,
		Abandoned: true,
	}
}

// Result returns the session outcome so far.
func (s *Sequencer) Result() Result {
	return Result{
		Committed: s.Committed(),
		Remaining: s.Remaining(),
		Abandoned: false,
	}
}
