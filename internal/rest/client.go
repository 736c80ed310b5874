// Package rest wraps the barbershop booking REST API for the operations the
// sync engine and CLI need: full and pending snapshot fetches, status
// changes, creation, deletion, and the admin statistics endpoint. Reads are
// retried with the 3-attempt exponential-backoff [Retry] helper.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/barber001/barbersync/internal/model"
)

// TokenFunc supplies the current bearer token. It is called per request so a
// refreshed token takes effect without rebuilding the client.
type TokenFunc func() string

// Client talks to the booking backend.
type Client struct {
	baseURL string
	token   TokenFunc
	hc      *http.Client
	log     *slog.Logger
}

// New creates a Client for the given base URL (e.g. "https://api.example.com/api").
// timeout bounds each individual request.
func New(baseURL string, token TokenFunc, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: timeout},
		log:     logger,
	}
}

// StatusError is returned for non-2xx responses, carrying the backend's
// message when it sent one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Code)
}

// FetchAll returns the full booking collection.
func (c *Client) FetchAll(ctx context.Context) ([]*model.Booking, error) {
	return c.fetchList(ctx, "/bookings")
}

// FetchPending returns the bookings awaiting review.
func (c *Client) FetchPending(ctx context.Context) ([]*model.Booking, error) {
	return c.fetchList(ctx, "/bookings/pending")
}

func (c *Client) fetchList(ctx context.Context, path string) ([]*model.Booking, error) {
	var body []byte
	err := Retry(ctx, defaultMaxAttempts, func() error {
		var callErr error
		body, callErr = c.do(ctx, http.MethodGet, path, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	return parseBookingList(body)
}

// SetStatus changes one booking's status.
func (c *Client) SetStatus(ctx context.Context, id, status string) error {
	payload, _ := json.Marshal(map[string]string{"status": status})
	if _, err := c.do(ctx, http.MethodPatch, "/bookings/"+id+"/status", payload); err != nil {
		return fmt.Errorf("setting booking %s status to %q: %w", id, status, err)
	}
	return nil
}

// Delete removes one booking.
func (c *Client) Delete(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/bookings/"+id, nil); err != nil {
		return fmt.Errorf("deleting booking %s: %w", id, err)
	}
	return nil
}

// Draft holds the fields for creating a booking.
type Draft struct {
	ClientName string
	Phone      string
	BarberID   string
	ServiceIDs []string
	Date       string
	Time       string
}

// MarshalJSON emits the backend's creation payload. Numeric-looking ids are
// sent as numbers, matching what the backend expects.
func (d Draft) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"client_name":  d.ClientName,
		"phone_number": d.Phone,
		"barber_id":    numericOrString(d.BarberID),
		"service_ids":  numericOrStringSlice(d.ServiceIDs),
		"date":         d.Date,
		"time":         d.Time,
	})
}

func numericOrString(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func numericOrStringSlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = numericOrString(id)
	}
	return out
}

// Create submits a new booking and returns the created record when the
// backend echoes one back.
func (c *Client) Create(ctx context.Context, draft Draft) (*model.Booking, error) {
	payload, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("encoding booking draft: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/bookings", payload)
	if err != nil {
		return nil, fmt.Errorf("creating booking: %w", err)
	}

	var created struct {
		Booking *model.Booking `json:"booking"`
		Data    *model.Booking `json:"data"`
	}
	if err := json.Unmarshal(body, &created); err == nil {
		if created.Booking != nil && created.Booking.Valid() {
			return created.Booking, nil
		}
		if created.Data != nil && created.Data.Valid() {
			return created.Data, nil
		}
	}
	var b model.Booking
	if err := json.Unmarshal(body, &b); err == nil && b.Valid() {
		return &b, nil
	}
	// Backend acknowledged without echoing the record.
	return nil, nil
}

// Statistics returns the admin counters for the inclusive date range.
func (c *Client) Statistics(ctx context.Context, from, to string) (map[string]any, error) {
	payload, _ := json.Marshal(map[string]string{"startDate": from, "endDate": to})
	body, err := c.do(ctx, http.MethodPost, "/bookings/admin/statistics", payload)
	if err != nil {
		return nil, fmt.Errorf("fetching statistics: %w", err)
	}
	var stats map[string]any
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("parsing statistics: %w", err)
	}
	return stats, nil
}

// do issues one request and returns the response body, mapping non-2xx
// responses to [StatusError].
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(data, &msg)
		if msg.Message == "" {
			msg.Message = msg.Error
		}
		return nil, &StatusError{Code: resp.StatusCode, Message: msg.Message}
	}
	return data, nil
}

// parseBookingList decodes the list envelopes the backend emits: a bare
// array, {"data": […]}, or {"bookings": […]}.
func parseBookingList(body []byte) ([]*model.Booking, error) {
	var list []*model.Booking
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Data     []*model.Booking `json:"data"`
		Bookings []*model.Booking `json:"bookings"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("parsing booking list: %w", err)
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return wrapped.Bookings, nil
}
