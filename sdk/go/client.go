package qawbsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal QA Workbench HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client for the API mounted at baseURL, e.g. http://host/v0.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     30 * time.Second,
	}
}

// Checklist is the summary the list endpoint returns.
type Checklist struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DatasetType  string `json:"dataset_type"`
	ArtifactType string `json:"validation_artifact_type"`
	Checks       int    `json:"checks"`
}

// Layer describes a map layer under validation.
type Layer struct {
	Name   string `json:"name"`
	Path   string `json:"path,omitempty"`
	SRID   int    `json:"srid"`
	Extent Extent `json:"extent"`
	Style  string `json:"style,omitempty"`
}

type Extent struct {
	MinX float64 `json:"xmin"`
	MinY float64 `json:"ymin"`
	MaxX float64 `json:"xmax"`
	MaxY float64 `json:"ymax"`
}

// Row is one check of a session.
type Row struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Automation string `json:"automation_state"`
}

// Session is a live validation session.
type Session struct {
	ID        string `json:"id"`
	Checklist string `json:"checklist"`
	Dataset   string `json:"dataset"`
	Validator string `json:"validator"`
	Valid     bool   `json:"dataset_is_valid"`
	Rows      []Row  `json:"rows"`
}

// Outcome is the result of one automated check.
type Outcome struct {
	Check     int    `json:"check"`
	State     string `json:"state"`
	Validated bool   `json:"validated"`
	Notes     string `json:"notes"`
	Error     string `json:"error,omitempty"`
}

type AutomateAllResult struct {
	Outcomes []Outcome `json:"outcomes"`
	Errors   []string  `json:"errors"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Checklists lists installed checklists.
func (c *Client) Checklists(ctx context.Context) ([]Checklist, error) {
	var resp []Checklist
	err := c.do(ctx, http.MethodGet, "checklists", nil, &resp)
	return resp, err
}

// ImportChecklist installs a checklist document.
func (c *Client) ImportChecklist(ctx context.Context, document any) (Checklist, error) {
	var resp struct {
		Checklist
		Checks []json.RawMessage `json:"checks"`
	}
	if err := c.do(ctx, http.MethodPost, "checklists", document, &resp); err != nil {
		return Checklist{}, err
	}
	cl := resp.Checklist
	cl.Checks = len(resp.Checks)
	return cl, nil
}

// CreateSession starts validating dataset or layer against a checklist.
func (c *Client) CreateSession(ctx context.Context, checklistID, dataset string, layer *Layer) (Session, error) {
	body := map[string]any{"checklist_id": checklistID}
	if dataset != "" {
		body["dataset"] = dataset
	}
	if layer != nil {
		body["layer"] = layer
	}
	var resp Session
	err := c.do(ctx, http.MethodPost, "sessions", body, &resp)
	return resp, err
}

// SetCheckState records the state of one check: unchecked,
// partially_checked or checked.
func (c *Client) SetCheckState(ctx context.Context, sessionID string, row int, state string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPut, c.checkPath(sessionID, row, "state"), map[string]any{"state": state}, &resp)
	return resp, err
}

// SetNotes records validation notes for one check.
func (c *Client) SetNotes(ctx context.Context, sessionID string, row int, notes string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPut, c.checkPath(sessionID, row, "notes"), map[string]any{"notes": notes}, &resp)
	return resp, err
}

// AutomateAll runs every automated check of a session.
func (c *Client) AutomateAll(ctx context.Context, sessionID string) (AutomateAllResult, error) {
	var resp AutomateAllResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("sessions/%s/automation", url.PathEscape(sessionID)), nil, &resp)
	return resp, err
}

// Report renders the session report: text, markdown, html or json.
func (c *Client) Report(ctx context.Context, sessionID, format string) ([]byte, error) {
	endpoint := fmt.Sprintf("sessions/%s/report?format=%s", url.PathEscape(sessionID), url.QueryEscape(format))
	var raw bytes.Buffer
	err := c.do(ctx, http.MethodGet, endpoint, nil, &raw)
	return raw.Bytes(), err
}

// CloseSession discards a session.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("sessions/%s", url.PathEscape(sessionID)), nil, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	switch o := out.(type) {
	case nil:
		return nil
	case io.Writer:
		_, err := io.Copy(o, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) checkPath(sessionID string, row int, leaf string) string {
	return fmt.Sprintf("sessions/%s/checks/%d/%s", url.PathEscape(sessionID), row, leaf)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
