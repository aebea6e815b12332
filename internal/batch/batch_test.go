package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calweave/calweave/internal/store"
)

// fakeStore scripts commit responses per call and records suggestion
// requests.
type fakeStore struct {
	// conflictAt maps a commit attempt index (0-based, counting every call)
	// to the conflict it returns.
	conflictAt map[int]*store.ConflictError

	// failAt maps a commit attempt index to a fatal error.
	failAt map[int]error

	// suggestErr, when set, makes every SuggestNext call fail.
	suggestErr error

	commits     int
	suggestions []store.Window
	committed   []store.Event
}

func (f *fakeStore) Commit(ctx context.Context, ev store.Event) (*store.Committed, error) {
	idx := f.commits
	f.commits++

	if err, ok := f.failAt[idx]; ok {
		return nil, err
	}
	if conflict, ok := f.conflictAt[idx]; ok {
		return nil, conflict
	}

	f.committed = append(f.committed, ev)
	return &store.Committed{
		ID:    int64(len(f.committed)),
		Event: ev,
	}, nil
}

func (f *fakeStore) SuggestNext(ctx context.Context, w store.Window) (store.Window, error) {
	f.suggestions = append(f.suggestions, w)
	if f.suggestErr != nil {
		return store.Window{}, f.suggestErr
	}
	// Offer the same duration one hour later.
	d := w.End.Sub(w.Start)
	return store.Window{Start: w.Start.Add(time.Hour), End: w.Start.Add(time.Hour).Add(d)}, nil
}

func occurrences(n int) []store.Event {
	base := time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC)
	out := make([]store.Event, n)
	for i := range out {
		start := base.AddDate(0, 0, i)
		out[i] = store.Event{
			Title: "Standup",
			Start: start,
			End:   start.Add(30 * time.Minute),
		}
	}
	return out
}

func conflict() *store.ConflictError {
	return &store.ConflictError{
		Title: "Budget review",
		Start: time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.January, 10, 10, 0, 0, 0, time.UTC),
	}
}

func TestRunAllClean(t *testing.T) {
	st := &fakeStore{}
	seq := New(st, occurrences(3))

	done, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !done {
		t.Fatal("Run = false, want true")
	}
	if seq.Phase() != Done {
		t.Errorf("Phase = %v, want Done", seq.Phase())
	}
	if got := len(seq.Committed()); got != 3 {
		t.Errorf("Committed = %d, want 3", got)
	}
	if len(st.suggestions) != 0 {
		t.Errorf("SuggestNext called %d times on a clean run", len(st.suggestions))
	}
}

func TestRunSingleOccurrence(t *testing.T) {
	// A non-recurring save is the same code path with a one-element batch.
	st := &fakeStore{}
	seq := New(st, occurrences(1))

	done, err := seq.Run(context.Background())
	if err != nil || !done {
		t.Fatalf("Run = %v, %v", done, err)
	}
	if got := len(seq.Committed()); got != 1 {
		t.Errorf("Committed = %d, want 1", got)
	}
}

func TestRunPausesOnConflict(t *testing.T) {
	st := &fakeStore{conflictAt: map[int]*store.ConflictError{2: conflict()}}
	seq := New(st, occurrences(5))

	done, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if done {
		t.Fatal("Run = true, want suspended")
	}

	if seq.Phase() != Reported {
		t.Errorf("Phase = %v, want Reported", seq.Phase())
	}
	if got := len(seq.Committed()); got != 2 {
		t.Errorf("Committed = %d, want 2 before the pause", got)
	}
	if seq.Remaining() != 3 {
		t.Errorf("Remaining = %d, want 3 (rejected occurrence included)", seq.Remaining())
	}
	if seq.Conflict() == nil || seq.Conflict().Title != "Budget review" {
		t.Errorf("Conflict = %+v", seq.Conflict())
	}
	if seq.Suggestion() == nil {
		t.Error("Suggestion = nil, want the offered window")
	}
	if rejected := seq.Rejected(); rejected == nil || !rejected.Start.Equal(occurrences(5)[2].Start) {
		t.Errorf("Rejected = %+v", rejected)
	}
}

func TestAcceptSuggestionResumes(t *testing.T) {
	st := &fakeStore{conflictAt: map[int]*store.ConflictError{2: conflict()}}
	seq := New(st, occurrences(5))

	if done, err := seq.Run(context.Background()); done || err != nil {
		t.Fatalf("Run = %v, %v", done, err)
	}

	suggested := *seq.Suggestion()
	done, err := seq.AcceptSuggestion(context.Background())
	if err != nil {
		t.Fatalf("AcceptSuggestion: %v", err)
	}
	if !done {
		t.Fatal("AcceptSuggestion = false, want finished")
	}

	committed := seq.Committed()
	if len(committed) != 5 {
		t.Fatalf("Committed = %d, want 5", len(committed))
	}

	// Only the rejected occurrence moved; its window is the suggestion's.
	moved := committed[2]
	if !moved.Start.Equal(suggested.Start) || !moved.End.Equal(suggested.End) {
		t.Errorf("rejected occurrence = %v – %v, want %v – %v", moved.Start, moved.End, suggested.Start, suggested.End)
	}

	// The neighbours kept their original windows.
	original := occurrences(5)
	if !committed[1].Start.Equal(original[1].Start) || !committed[3].Start.Equal(original[3].Start) {
		t.Error("non-rejected occurrences must not move")
	}
}

func TestAbandonKeepsPartialResult(t *testing.T) {
	st := &fakeStore{conflictAt: map[int]*store.ConflictError{2: conflict()}}
	seq := New(st, occurrences(5))

	if done, err := seq.Run(context.Background()); done || err != nil {
		t.Fatalf("Run = %v, %v", done, err)
	}

	result := seq.Abandon()
	if !result.Abandoned {
		t.Error("Abandoned = false")
	}
	if len(result.Committed) != 2 {
		t.Errorf("Committed = %d, want the 2 pre-conflict occurrences", len(result.Committed))
	}
	if result.Remaining != 3 {
		t.Errorf("Remaining = %d, want 3", result.Remaining)
	}
	if seq.Phase() != Done {
		t.Errorf("Phase = %v, want Done", seq.Phase())
	}

	// Nothing was retracted and nothing more was sent.
	if st.commits != 3 {
		t.Errorf("store saw %d commits, want 3", st.commits)
	}
}

func TestSuggestionFailureStillReports(t *testing.T) {
	st := &fakeStore{
		conflictAt: map[int]*store.ConflictError{0: conflict()},
		suggestErr: store.ErrNoSlotFound,
	}
	seq := New(st, occurrences(1))

	done, err := seq.Run(context.Background())
	if err != nil || done {
		t.Fatalf("Run = %v, %v", done, err)
	}

	if seq.Phase() != Reported {
		t.Errorf("Phase = %v, want Reported", seq.Phase())
	}
	if seq.Conflict() == nil {
		t.Error("Conflict = nil, conflict must surface without a suggestion")
	}
	if seq.Suggestion() != nil {
		t.Errorf("Suggestion = %+v, want nil", seq.Suggestion())
	}

	if _, err := seq.AcceptSuggestion(context.Background()); !errors.Is(err, ErrNoSuggestion) {
		t.Errorf("AcceptSuggestion err = %v, want ErrNoSuggestion", err)
	}
}

func TestRescheduleResumes(t *testing.T) {
	st := &fakeStore{
		conflictAt: map[int]*store.ConflictError{1: conflict()},
		suggestErr: store.ErrNoSlotFound,
	}
	seq := New(st, occurrences(3))

	if done, err := seq.Run(context.Background()); done || err != nil {
		t.Fatalf("Run = %v, %v", done, err)
	}

	window := store.Window{
		Start: time.Date(2024, time.January, 9, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.January, 9, 14, 30, 0, 0, time.UTC),
	}
	done, err := seq.Reschedule(context.Background(), window)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !done {
		t.Fatal("Reschedule = false, want finished")
	}

	committed := seq.Committed()
	if len(committed) != 3 {
		t.Fatalf("Committed = %d, want 3", len(committed))
	}
	if !committed[1].Start.Equal(window.Start) {
		t.Errorf("rescheduled occurrence start = %v, want %v", committed[1].Start, window.Start)
	}
}

func TestTransportErrorIsFatal(t *testing.T) {
	transport := &store.TransportError{Status: 500, Err: errors.New("boom")}
	st := &fakeStore{failAt: map[int]error{1: transport}}
	seq := New(st, occurrences(3))

	done, err := seq.Run(context.Background())
	if done {
		t.Fatal("Run = true, want failure")
	}
	if err == nil {
		t.Fatal("Run err = nil, want transport error")
	}

	var te *store.TransportError
	if !errors.As(err, &te) {
		t.Errorf("err = %v, want wrapped *TransportError", err)
	}

	if seq.Phase() != Done {
		t.Errorf("Phase = %v, want Done (fatal, not resumable)", seq.Phase())
	}
	if got := len(seq.Committed()); got != 1 {
		t.Errorf("Committed = %d, partial success must survive", got)
	}
	if len(st.suggestions) != 0 {
		t.Error("SuggestNext must not be attempted on transport failure")
	}
	if _, err := seq.Run(context.Background()); !errors.Is(err, ErrFinished) {
		t.Errorf("Run after fatal err = %v, want ErrFinished", err)
	}
}

func TestRunWhileSuspendedRejected(t *testing.T) {
	st := &fakeStore{conflictAt: map[int]*store.ConflictError{0: conflict()}}
	seq := New(st, occurrences(2))

	if done, err := seq.Run(context.Background()); done || err != nil {
		t.Fatalf("Run = %v, %v", done, err)
	}

	// A second drive attempt while a decision is pending must be rejected,
	// never interleaved.
	if _, err := seq.Run(context.Background()); !errors.Is(err, ErrSuspended) {
		t.Errorf("Run while Reported err = %v, want ErrSuspended", err)
	}
	if st.commits != 1 {
		t.Errorf("store saw %d commits, want 1", st.commits)
	}
}

func TestCommitsAreStrictlySequential(t *testing.T) {
	st := &fakeStore{}
	seq := New(st, occurrences(4))

	if _, err := seq.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i := 1; i < len(st.committed); i++ {
		if !st.committed[i].Start.After(st.committed[i-1].Start) {
			t.Errorf("commit %d out of order: %v after %v", i, st.committed[i].Start, st.committed[i-1].Start)
		}
	}
}
