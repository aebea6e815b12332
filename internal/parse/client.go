// Package parse is a client for the extraction service that turns free-text
// prompts and images into partial event fields. Extraction itself is opaque;
// this package only shapes the calls and decodes the hints.
package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calweave/calweave/internal/event"
	"github.com/calweave/calweave/internal/localtime"
	"github.com/calweave/calweave/internal/recur"
)

// Client talks to the extraction service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an extraction client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// fieldsResponse is the wire shape of extracted fields. Wall-clock values use
// the six-field encoding with no offset; until is a plain date.
type fieldsResponse struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Start       *localPayload  `json:"start,omitempty"`
	End         *localPayload  `json:"end,omitempty"`
	Weekdays    []int          `json:"repeatDays,omitempty"`
	Until       string         `json:"repeatUntil,omitempty"`
	StrideWeeks *int           `json:"repeatEveryWeeks,omitempty"`
	Rule        string         `json:"repeatRule,omitempty"`
	Thumbnail   string         `json:"thumbnail,omitempty"`
}

type localPayload struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParsePrompt extracts fields from a free-text prompt.
func (c *Client) ParsePrompt(ctx context.Context, prompt string) (event.Partial, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return event.Partial{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse", bytes.NewReader(body))
	if err != nil {
		return event.Partial{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// ParseImage extracts fields from an image.
func (c *Client) ParseImage(ctx context.Context, data []byte) (event.Partial, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse/image", bytes.NewReader(data))
	if err != nil {
		return event.Partial{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (event.Partial, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return event.Partial{}, fmt.Errorf("extract: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return event.Partial{}, fmt.Errorf("extract: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var fr fieldsResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return event.Partial{}, fmt.Errorf("decode fields: %w", err)
	}

	return convertFields(fr)
}

func convertFields(fr fieldsResponse) (event.Partial, error) {
	var p event.Partial

	if fr.Title != "" {
		p.Title = &fr.Title
	}
	if fr.Description != "" {
		p.Description = &fr.Description
	}
	if fr.Location != "" {
		p.Location = &fr.Location
	}
	if fr.Start != nil {
		p.Start = convertLocal(*fr.Start)
	}
	if fr.End != nil {
		p.End = convertLocal(*fr.End)
	}
	for _, d := range fr.Weekdays {
		if d < 0 || d > 6 {
			return event.Partial{}, fmt.Errorf("weekday out of range: %d", d)
		}
		p.Weekdays = append(p.Weekdays, time.Weekday(d))
	}
	if fr.Until != "" {
		until, err := localtime.ParseDate(fr.Until)
		if err != nil {
			return event.Partial{}, err
		}
		p.Until = &until
	}
	p.StrideWeeks = fr.StrideWeeks
	p.Thumbnail = fr.Thumbnail

	// Some extractors answer with a ready-made RRULE instead of the discrete
	// hint fields. Discrete fields win when both are present.
	if fr.Rule != "" {
		rule, err := recur.FromRRule(fr.Rule)
		if err != nil {
			return event.Partial{}, err
		}
		if len(p.Weekdays) == 0 {
			p.Weekdays = rule.Weekdays
		}
		if p.Until == nil {
			p.Until = rule.Until
		}
		if p.StrideWeeks == nil && rule.StrideWeeks > 0 {
			stride := rule.StrideWeeks
			p.StrideWeeks = &stride
		}
	}

	return p, nil
}

func convertLocal(lp localPayload) *localtime.DateTime {
	return &localtime.DateTime{
		Year:   lp.Year,
		Month:  time.Month(lp.Month),
		Day:    lp.Day,
		Hour:   lp.Hour,
		Minute: lp.Minute,
	}
}
