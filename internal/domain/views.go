package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Views are the flat, serializable shapes of the aggregates.

type UserView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Document    string   `json:"document"`
	Email       string   `json:"email"`
	Contact     string   `json:"contact"`
	DOB         string   `json:"dob"`
	Rating      *float64 `json:"rating,omitempty"`
	RatingCount int      `json:"rating_count"`
}

type ClientView struct {
	UserView
	Address Address `json:"address"`
}

type ProviderView struct {
	UserView
	Works []ProviderWorkView `json:"works"`
}

type WorkJobView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type WorkView struct {
	ID   string        `json:"id"`
	Name string        `json:"name"`
	Jobs []WorkJobView `json:"jobs"`
}

type ProviderWorkJobView struct {
	ID                       string          `json:"id"`
	JobID                    string          `json:"job_id"`
	JobName                  string          `json:"job_name,omitempty"`
	Cost                     decimal.Decimal `json:"cost"`
	EstimatedDurationSeconds int64           `json:"estimated_duration_seconds"`
}

type ProviderWorkView struct {
	ID                       string                `json:"id"`
	WorkID                   string                `json:"work_id,omitempty"`
	WorkName                 string                `json:"work_name,omitempty"`
	MinCost                  decimal.Decimal       `json:"min_cost"`
	TotalCost                decimal.Decimal       `json:"total_cost"`
	EstimatedDurationSeconds int64                 `json:"estimated_duration_seconds"`
	Jobs                     []ProviderWorkJobView `json:"jobs"`
}

type LogView struct {
	Status Status `json:"status"`
	ByID   string `json:"by_id"`
	At     string `json:"at"`
	Reason string `json:"reason,omitempty"`
}

type RequestView struct {
	ID             string          `json:"id"`
	ClientID       string          `json:"client_id"`
	ProviderID     string          `json:"provider_id"`
	ProviderWorkID string          `json:"provider_work_id,omitempty"`
	ScheduledAt    string          `json:"scheduled_at"`
	Status         Status          `json:"status"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Closed         bool            `json:"closed"`
	Logs           []LogView       `json:"logs"`
}

func (u *User) View() UserView {
	v := UserView{
		ID:          u.ID,
		Name:        u.Name,
		Document:    string(u.Document),
		Email:       string(u.Email),
		Contact:     string(u.Contact),
		DOB:         u.DOB.Format(time.DateOnly),
		RatingCount: u.Ratings().Count(),
	}
	if m, ok := u.Ratings().Mean(); ok {
		v.Rating = &m
	}
	return v
}

func (c *Client) View() ClientView {
	return ClientView{UserView: c.User.View(), Address: c.Address}
}

func (p *Provider) View() ProviderView {
	v := ProviderView{UserView: p.User.View(), Works: []ProviderWorkView{}}
	for _, w := range p.works {
		v.Works = append(v.Works, w.View())
	}
	return v
}

func (w *Work) View() WorkView {
	v := WorkView{ID: w.ID, Name: w.Name, Jobs: []WorkJobView{}}
	for _, j := range w.jobs {
		v.Jobs = append(v.Jobs, WorkJobView{ID: j.ID, Name: j.Name})
	}
	return v
}

func (pw *ProviderWork) View() ProviderWorkView {
	v := ProviderWorkView{
		ID:                       pw.ID,
		MinCost:                  pw.MinCost,
		TotalCost:                pw.TotalCost(),
		EstimatedDurationSeconds: int64(pw.EstimatedDuration() / time.Second),
		Jobs:                     []ProviderWorkJobView{},
	}
	if pw.Work != nil {
		v.WorkID = pw.Work.ID
		v.WorkName = pw.Work.Name
	}
	for _, j := range pw.jobs {
		v.Jobs = append(v.Jobs, ProviderWorkJobView{
			ID:                       j.ID,
			JobID:                    j.Job.ID,
			JobName:                  j.Job.Name,
			Cost:                     j.Cost,
			EstimatedDurationSeconds: int64(j.EstimatedDuration / time.Second),
		})
	}
	return v
}

func (l Log) View() LogView {
	return LogView{Status: l.Status, ByID: l.ActorID(), At: l.At.UTC().Format(time.RFC3339), Reason: l.Reason}
}

func (r *ServiceRequest) View() RequestView {
	logs := r.Logs()
	v := RequestView{
		ID:          r.id,
		ClientID:    r.client.ID,
		ProviderID:  r.provider.ID,
		ScheduledAt: r.When().Format(time.RFC3339Nano),
		TotalCost:   r.TotalCost(),
		Closed:      r.Closed(),
		Logs:        make([]LogView, 0, len(logs)),
	}
	if r.work != nil {
		v.ProviderWorkID = r.work.ID
	}
	for _, l := range logs {
		v.Logs = append(v.Logs, l.View())
	}
	if len(logs) > 0 {
		v.Status = logs[len(logs)-1].Status
	}
	return v
}
