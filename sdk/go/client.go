package servicehubsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a minimal servicehub HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credentials are set; servers
	// accept it only with allow_legacy_actor_header.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Address locates a client.
type Address struct {
	CEP        string `json:"cep"`
	Number     int    `json:"number"`
	Complement string `json:"complement,omitempty"`
}

// Profile holds the registration fields shared by clients and providers.
type Profile struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Document string `json:"document"`
	Email    string `json:"email"`
	Contact  string `json:"contact"`
	DOB      string `json:"dob"`
}

type Participant struct {
	Profile
	Rating      *float64 `json:"rating,omitempty"`
	RatingCount int      `json:"rating_count"`
}

type ServiceClient struct {
	Participant
	Address Address `json:"address"`
}

type PricedJob struct {
	ID                       string          `json:"id,omitempty"`
	JobID                    string          `json:"job_id"`
	JobName                  string          `json:"job_name,omitempty"`
	Cost                     decimal.Decimal `json:"cost"`
	EstimatedDurationSeconds int64           `json:"estimated_duration_seconds"`
}

type ProviderWork struct {
	ID                       string          `json:"id,omitempty"`
	WorkID                   string          `json:"work_id"`
	WorkName                 string          `json:"work_name,omitempty"`
	MinCost                  decimal.Decimal `json:"min_cost"`
	TotalCost                decimal.Decimal `json:"total_cost,omitempty"`
	EstimatedDurationSeconds int64           `json:"estimated_duration_seconds,omitempty"`
	Jobs                     []PricedJob     `json:"jobs"`
}

// PricedJobInput prices one catalog job when offering a work.
type PricedJobInput struct {
	ID                       string          `json:"id,omitempty"`
	JobID                    string          `json:"job_id"`
	Cost                     decimal.Decimal `json:"cost"`
	EstimatedDurationSeconds int64           `json:"estimated_duration_seconds"`
}

// ProviderWorkInput is the payload for offering a catalog work. Totals and
// names are derived by the server and never sent.
type ProviderWorkInput struct {
	ID      string           `json:"id,omitempty"`
	WorkID  string           `json:"work_id"`
	MinCost decimal.Decimal  `json:"min_cost"`
	Jobs    []PricedJobInput `json:"jobs"`
}

func (w ProviderWorkInput) normalized() ProviderWorkInput {
	if w.Jobs == nil {
		w.Jobs = []PricedJobInput{}
	}
	return w
}

type Provider struct {
	Participant
	Works []ProviderWork `json:"works"`
}

type WorkJob struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type Work struct {
	ID   string    `json:"id,omitempty"`
	Name string    `json:"name"`
	Jobs []WorkJob `json:"jobs"`
}

// Log is one step of a request's log trail.
type Log struct {
	Status string `json:"status"`
	ByID   string `json:"by_id"`
	At     string `json:"at"`
	Reason string `json:"reason,omitempty"`
}

// Request is a service request as seen by the caller, with the actions the
// caller may take next.
type Request struct {
	ID             string          `json:"id"`
	ClientID       string          `json:"client_id"`
	ProviderID     string          `json:"provider_id"`
	ProviderWorkID string          `json:"provider_work_id,omitempty"`
	ScheduledAt    string          `json:"scheduled_at"`
	Status         string          `json:"status"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Closed         bool            `json:"closed"`
	Logs           []Log           `json:"logs"`
	Available      []string        `json:"available"`
}

type RequestSummary struct {
	ID             string `json:"id"`
	ClientID       string `json:"client_id"`
	ProviderID     string `json:"provider_id"`
	ProviderWorkID string `json:"provider_work_id,omitempty"`
	ScheduledAt    string `json:"scheduled_at"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type Me struct {
	ActorID     string   `json:"actor_id"`
	Role        string   `json:"role,omitempty"`
	Source      string   `json:"source"`
	Permissions []string `json:"permissions"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type PaginatedRequests struct {
	Items      []RequestSummary `json:"items"`
	NextCursor string           `json:"next_cursor"`
}

// RequestFilter narrows ListRequests.
type RequestFilter struct {
	ClientID   string
	ProviderID string
	Status     string
	Limit      int
	Cursor     string
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == code
}

func (c *Client) CreateClient(ctx context.Context, p Profile, addr Address) (ServiceClient, error) {
	body := struct {
		Profile
		Address Address `json:"address"`
	}{p, addr}
	var resp ServiceClient
	err := c.do(ctx, http.MethodPost, "clients", body, &resp)
	return resp, err
}

func (c *Client) GetClient(ctx context.Context, id string) (ServiceClient, error) {
	var resp ServiceClient
	err := c.do(ctx, http.MethodGet, "clients/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) ListClients(ctx context.Context) ([]ServiceClient, error) {
	var resp struct {
		Items []ServiceClient `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "clients", nil, &resp)
	return resp.Items, err
}

func (c *Client) DeleteClient(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "clients/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateProvider(ctx context.Context, p Profile, works ...ProviderWorkInput) (Provider, error) {
	body := struct {
		Profile
		Works []ProviderWorkInput `json:"works"`
	}{p, make([]ProviderWorkInput, 0, len(works))}
	for _, w := range works {
		body.Works = append(body.Works, w.normalized())
	}
	var resp Provider
	err := c.do(ctx, http.MethodPost, "providers", body, &resp)
	return resp, err
}

func (c *Client) GetProvider(ctx context.Context, id string) (Provider, error) {
	var resp Provider
	err := c.do(ctx, http.MethodGet, "providers/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) ListProviders(ctx context.Context) ([]Provider, error) {
	var resp struct {
		Items []Provider `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "providers", nil, &resp)
	return resp.Items, err
}

// AddProviderWork prices another catalog work for a provider.
func (c *Client) AddProviderWork(ctx context.Context, providerID string, work ProviderWorkInput) (Provider, error) {
	var resp Provider
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("providers/%s/works", url.PathEscape(providerID)), work.normalized(), &resp)
	return resp, err
}

func (c *Client) SetProviderWorkMinCost(ctx context.Context, providerID, providerWorkID string, minCost decimal.Decimal) (Provider, error) {
	var resp Provider
	endpoint := fmt.Sprintf("providers/%s/works/%s", url.PathEscape(providerID), url.PathEscape(providerWorkID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"min_cost": minCost}, &resp)
	return resp, err
}

func (c *Client) RemoveProviderWork(ctx context.Context, providerID, providerWorkID string) (Provider, error) {
	var resp Provider
	endpoint := fmt.Sprintf("providers/%s/works/%s", url.PathEscape(providerID), url.PathEscape(providerWorkID))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) CreateWork(ctx context.Context, work Work) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPost, "works", work, &resp)
	return resp, err
}

func (c *Client) ListWorks(ctx context.Context) ([]Work, error) {
	var resp struct {
		Items []Work `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "works", nil, &resp)
	return resp.Items, err
}

func (c *Client) AddWorkJob(ctx context.Context, workID string, job WorkJob) (Work, error) {
	var resp Work
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("works/%s/jobs", url.PathEscape(workID)), job, &resp)
	return resp, err
}

// CreateRequest books providerWorkID with a provider for the caller.
func (c *Client) CreateRequest(ctx context.Context, id, providerID, providerWorkID string, at time.Time) (Request, error) {
	body := map[string]any{
		"id":               id,
		"provider_id":      providerID,
		"provider_work_id": providerWorkID,
		"scheduled_at":     at.UTC().Format(time.RFC3339Nano),
	}
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests", body, &resp)
	return resp, err
}

func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, "requests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) ListRequests(ctx context.Context, f RequestFilter) (PaginatedRequests, error) {
	q := url.Values{}
	setQuery(q, "client_id", f.ClientID)
	setQuery(q, "provider_id", f.ProviderID)
	setQuery(q, "status", f.Status)
	setQuery(q, "cursor", f.Cursor)
	if f.Limit > 0 {
		q.Set("limit", fmt.Sprint(f.Limit))
	}
	var resp PaginatedRequests
	err := c.do(ctx, http.MethodGet, withQuery("requests", q), nil, &resp)
	return resp, err
}

func (c *Client) Logs(ctx context.Context, requestID string) ([]Log, error) {
	var resp struct {
		Items []Log `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("requests/%s/logs", url.PathEscape(requestID)), nil, &resp)
	return resp.Items, err
}

func (c *Client) Schedule(ctx context.Context, requestID string) (Request, error) {
	return c.transition(ctx, requestID, "schedule", nil)
}

func (c *Client) Reschedule(ctx context.Context, requestID string, at time.Time) (Request, error) {
	return c.transition(ctx, requestID, "reschedule", map[string]any{"scheduled_at": at.UTC().Format(time.RFC3339Nano)})
}

func (c *Client) Cancel(ctx context.Context, requestID, reason string) (Request, error) {
	return c.transition(ctx, requestID, "cancel", map[string]any{"reason": reason})
}

func (c *Client) Confirm(ctx context.Context, requestID string) (Request, error) {
	return c.transition(ctx, requestID, "confirm", nil)
}

func (c *Client) Refuse(ctx context.Context, requestID string) (Request, error) {
	return c.transition(ctx, requestID, "refuse", nil)
}

func (c *Client) Start(ctx context.Context, requestID string) (Request, error) {
	return c.transition(ctx, requestID, "start", nil)
}

func (c *Client) Finish(ctx context.Context, requestID string) (Request, error) {
	return c.transition(ctx, requestID, "finish", nil)
}

func (c *Client) Rate(ctx context.Context, requestID string, rating float64) (Request, error) {
	return c.transition(ctx, requestID, "rate", map[string]any{"rating": rating})
}

func (c *Client) transition(ctx context.Context, requestID, action string, body any) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("requests/%s/%s", url.PathEscape(requestID), action), body, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, entityKind, entityID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	setQuery(q, "entity_kind", entityKind)
	setQuery(q, "entity_id", entityID)
	setQuery(q, "cursor", cursor)
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// DevLogin mints a development token and stores it as the bearer token.
func (c *Client) DevLogin(ctx context.Context, actorID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]any{"actor_id": actorID}, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
