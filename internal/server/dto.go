package server

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"servicehub/internal/domain"
	"servicehub/internal/engine"
)

// Request payloads

type UserRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Document string `json:"document"`
	Email    string `json:"email"`
	Contact  string `json:"contact"`
	DOB      string `json:"dob" format:"date"`
}

type AddressRequest struct {
	CEP        string `json:"cep"`
	Number     int    `json:"number"`
	Complement string `json:"complement,omitempty"`
}

type CreateClientRequest struct {
	UserRequest
	Address AddressRequest `json:"address"`
}

type ProfileUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Contact *string `json:"contact,omitempty"`
}

type UpdateClientRequest struct {
	ProfileUpdateRequest
	Address *AddressRequest `json:"address,omitempty"`
}

type ProviderWorkJobRequest struct {
	ID                       string          `json:"id,omitempty"`
	JobID                    string          `json:"job_id"`
	Cost                     decimal.Decimal `json:"cost"`
	EstimatedDurationSeconds int64           `json:"estimated_duration_seconds"`
}

type ProviderWorkRequest struct {
	ID      string                   `json:"id,omitempty"`
	WorkID  string                   `json:"work_id"`
	MinCost decimal.Decimal          `json:"min_cost"`
	Jobs    []ProviderWorkJobRequest `json:"jobs"`
}

type CreateProviderRequest struct {
	UserRequest
	Works []ProviderWorkRequest `json:"works"`
}

type UpdateProviderWorkRequest struct {
	MinCost decimal.Decimal `json:"min_cost"`
}

type UpdateProviderWorkJobRequest struct {
	Cost                     decimal.Decimal `json:"cost"`
	EstimatedDurationSeconds int64           `json:"estimated_duration_seconds"`
}

type WorkJobRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type CreateWorkRequest struct {
	ID   string           `json:"id,omitempty"`
	Name string           `json:"name"`
	Jobs []WorkJobRequest `json:"jobs"`
}

type CreateServiceRequest struct {
	ID             string    `json:"id,omitempty"`
	ClientID       string    `json:"client_id,omitempty"`
	ProviderID     string    `json:"provider_id"`
	ProviderWorkID string    `json:"provider_work_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
}

type RescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RateRequest struct {
	Rating float64 `json:"rating" doc:"1 to 5"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type RequestResponse struct {
	domain.RequestView
	Available []domain.Action `json:"available"`
}

type paginatedRequests struct {
	Items      []domain.RequestSummary `json:"items"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Role        string   `json:"role,omitempty"`
	Source      string   `json:"source"`
	Permissions []string `json:"permissions"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

// Conversions

func (u UserRequest) input() (engine.UserInput, error) {
	in := engine.UserInput{
		ID:       u.ID,
		Name:     u.Name,
		Document: u.Document,
		Email:    u.Email,
		Contact:  u.Contact,
	}
	dob, err := time.Parse(time.DateOnly, u.DOB)
	if err != nil {
		return in, domain.ValidationError{Field: "dob", Reason: "must be a YYYY-MM-DD date"}
	}
	in.DOB = dob
	return in, nil
}

func (a AddressRequest) input() engine.AddressInput {
	return engine.AddressInput{CEP: a.CEP, Number: a.Number, Complement: a.Complement}
}

func (p ProfileUpdateRequest) input() engine.ProfileUpdate {
	return engine.ProfileUpdate{Name: p.Name, Email: p.Email, Contact: p.Contact}
}

func (j ProviderWorkJobRequest) input() engine.ProviderWorkJobInput {
	return engine.ProviderWorkJobInput{
		ID:                j.ID,
		JobID:             j.JobID,
		Cost:              j.Cost,
		EstimatedDuration: time.Duration(j.EstimatedDurationSeconds) * time.Second,
	}
}

func (w ProviderWorkRequest) input() engine.ProviderWorkInput {
	in := engine.ProviderWorkInput{ID: w.ID, WorkID: w.WorkID, MinCost: w.MinCost}
	for _, j := range w.Jobs {
		in.Jobs = append(in.Jobs, j.input())
	}
	return in
}

func clientViews(items []*domain.Client) []domain.ClientView {
	out := make([]domain.ClientView, 0, len(items))
	for _, c := range items {
		out = append(out, c.View())
	}
	return out
}

func providerViews(items []*domain.Provider) []domain.ProviderView {
	out := make([]domain.ProviderView, 0, len(items))
	for _, p := range items {
		out = append(out, p.View())
	}
	return out
}

func workViews(items []*domain.Work) []domain.WorkView {
	out := make([]domain.WorkView, 0, len(items))
	for _, w := range items {
		out = append(out, w.View())
	}
	return out
}

func requestResponse(req *domain.ServiceRequest, actorID string) RequestResponse {
	return RequestResponse{
		RequestView: req.View(),
		Available:   nonNilSlice(req.Available(req.Participant(actorID))),
	}
}

func logViews(logs []domain.Log) []domain.LogView {
	out := make([]domain.LogView, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.View())
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
