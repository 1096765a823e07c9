package reorder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const Path = "/api/itinerary/reorder-activities"

const csrfHeader = "X-CSRFToken"

var ErrRejected = errors.New("reorder rejected")

type Request struct {
	DayID         string   `json:"day_id"`
	ActivityOrder []string `json:"activity_order"`
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is what the user is told about a reorder.
type Notification struct {
	Message string `json:"message"`
	Level   Level  `json:"level"`
}

var (
	notifySuccess = Notification{Message: "Itinerary updated successfully", Level: LevelSuccess}
	notifyFailure = Notification{Message: "Failed to update activity order", Level: LevelError}
)

// Client posts new activity orders to the itinerary application.
type Client struct {
	baseURL   string
	http      *http.Client
	CSRFToken string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Submit sends the order. Any non-2xx status is ErrRejected; there is no
// retry.
func (c *Client) Submit(ctx context.Context, req Request) (json.RawMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+Path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.CSRFToken != "" {
		httpReq.Header.Set(csrfHeader, c.CSRFToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: response is not JSON", ErrRejected)
	}
	return json.RawMessage(body), nil
}

// Commit drops the dragged item, submits the new order and ends the session.
// The returned notification is always set; the error carries the cause of a
// failure notification.
func (c *Client) Commit(ctx context.Context, s *Session, pos Position) (Notification, error) {
	defer s.End()
	if _, err := s.Drop(pos); err != nil {
		return notifyFailure, err
	}
	if _, err := c.Submit(ctx, s.Request()); err != nil {
		return notifyFailure, err
	}
	return notifySuccess, nil
}
