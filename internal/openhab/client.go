// Package openhab is a thin client for the OpenHAB REST item API. It covers
// the two read operations the sync engine needs, listing all items and
// fetching the current state of a single item, and maps failures onto a
// small set of typed errors ([*TransportError], [*RemoteError],
// [*ParseError]) so callers can distinguish "could not reach the middleware"
// from "the middleware answered badly".
package openhab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// requestTimeout bounds every REST call so a single unreachable item cannot
// stall a whole sync run.
const requestTimeout = 10 * time.Second

// Item is an OpenHAB item as returned by /rest/items. State is free text;
// numeric sensor items conventionally report "<number>" or
// "<number> <unit>", and "NULL"/"UNDEF" mean "no current value".
type Item struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Label    string `json:"label,omitempty"`
	State    string `json:"state,omitempty"`
	Category string `json:"category,omitempty"`
}

// Client performs authenticated GETs against one OpenHAB endpoint.
// Create one with [NewClient]; the zero value is not usable.
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewClient creates a Client for the given base URL. token may be empty for
// unauthenticated OpenHAB installations; when set it is sent as a bearer
// token on every request.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: requestTimeout},
	}
}

// ListItems fetches all items known to the middleware.
func (c *Client) ListItems(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := c.get(ctx, "/rest/items", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetItem fetches a single item, including its current state, by its
// external name.
func (c *Client) GetItem(ctx context.Context, name string) (Item, error) {
	var item Item
	if err := c.get(ctx, "/rest/items/"+url.PathEscape(name), &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// get issues one GET and decodes the JSON body into out. Failures are
// returned as exactly one of the three typed client errors.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return &RemoteError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Err: err}
	}
	return nil
}
