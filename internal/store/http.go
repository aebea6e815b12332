package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies a bearer token for store requests. Optional; a nil
// source means unauthenticated requests.
type TokenSource interface {
	Bearer(ctx context.Context) (string, error)
}

// Client talks to the store's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

// NewClient creates a store client for the given base URL. tokens may be nil.
func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens: tokens,
	}
}

// eventPayload is the wire shape of an event. Instants cross the boundary as
// RFC 3339 timestamps with an explicit UTC designator.
type eventPayload struct {
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

type eventResponse struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Description   string `json:"description,omitempty"`
	Location      string `json:"location,omitempty"`
	SeriesID      *int64 `json:"seriesId,omitempty"`
	OriginalStart string `json:"originalStart,omitempty"`
}

type conflictResponse struct {
	Title string `json:"conflictingTitle"`
	Start string `json:"conflictingStart"`
	End   string `json:"conflictingEnd"`
}

type windowPayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Commit submits one event via POST /events.
func (c *Client) Commit(ctx context.Context, ev Event) (*Committed, error) {
	payload := eventPayload{
		Title:       ev.Title,
		Start:       ev.Start.UTC().Format(time.RFC3339),
		End:         ev.End.UTC().Format(time.RFC3339),
		Description: ev.Description,
		Location:    ev.Location,
	}

	resp, err := c.post(ctx, "/events", payload)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var er eventResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return nil, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
		return convertCommitted(er)

	case http.StatusConflict:
		var cr conflictResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return nil, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("decode conflict: %w", err)}
		}
		conflict := &ConflictError{Title: cr.Title}
		if conflict.Start, err = parseInstant(cr.Start); err != nil {
			return nil, &TransportError{Status: resp.StatusCode, Err: err}
		}
		if conflict.End, err = parseInstant(cr.End); err != nil {
			return nil, &TransportError{Status: resp.StatusCode, Err: err}
		}
		return nil, conflict

	default:
		return nil, statusError(resp)
	}
}

// SuggestNext asks the store for the next free window via POST /events/suggest.
func (c *Client) SuggestNext(ctx context.Context, w Window) (Window, error) {
	payload := windowPayload{
		Start: w.Start.UTC().Format(time.RFC3339),
		End:   w.End.UTC().Format(time.RFC3339),
	}

	resp, err := c.post(ctx, "/events/suggest", payload)
	if err != nil {
		return Window{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var wp windowPayload
		if err := json.NewDecoder(resp.Body).Decode(&wp); err != nil {
			return Window{}, &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
		var out Window
		if out.Start, err = parseInstant(wp.Start); err != nil {
			return Window{}, &TransportError{Status: resp.StatusCode, Err: err}
		}
		if out.End, err = parseInstant(wp.End); err != nil {
			return Window{}, &TransportError{Status: resp.StatusCode, Err: err}
		}
		return out, nil

	case http.StatusNotFound:
		return Window{}, ErrNoSlotFound

	default:
		return Window{}, statusError(resp)
	}
}

// post sends a JSON request with auth attached.
func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Bearer(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	slog.Debug("store request", "path", path)
	return c.client.Do(req)
}

func statusError(resp *http.Response) *TransportError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &TransportError{
		Status: resp.StatusCode,
		Err:    fmt.Errorf("%s", strings.TrimSpace(string(body))),
	}
}

func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse instant %q: %w", s, err)
	}
	return t.UTC(), nil
}

func convertCommitted(er eventResponse) (*Committed, error) {
	out := &Committed{
		ID: er.ID,
		Event: Event{
			Title:       er.Title,
			Description: er.Description,
			Location:    er.Location,
		},
		SeriesID: er.SeriesID,
	}

	var err error
	if out.Start, err = parseInstant(er.Start); err != nil {
		return nil, &TransportError{Err: err}
	}
	if out.End, err = parseInstant(er.End); err != nil {
		return nil, &TransportError{Err: err}
	}
	if er.OriginalStart != "" {
		t, err := parseInstant(er.OriginalStart)
		if err != nil {
			return nil, &TransportError{Err: err}
		}
		out.OriginalStart = &t
	}

	return out, nil
}

// Ensure Client implements Store.
var _ Store = (*Client)(nil)
