package repo

import (
	"database/sql"
	"fmt"
	"time"

	"servicehub/internal/domain"
)

// RequestRecord is the stored shape of a service request row.
type RequestRecord struct {
	ID             string
	ClientID       string
	ProviderID     string
	ProviderWorkID string
	ScheduledAt    string
	Status         string
	CreatedAt      string
	UpdatedAt      string
}

// LogRecord is one stored request_logs row.
type LogRecord struct {
	Seq    int
	Status string
	ByID   string
	At     string
	Reason string
}

func scanRequestRecord(row rowScanner) (RequestRecord, error) {
	var rec RequestRecord
	var pwID sql.NullString
	err := row.Scan(&rec.ID, &rec.ClientID, &rec.ProviderID, &pwID, &rec.ScheduledAt, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	rec.ProviderWorkID = pwID.String
	return rec, err
}

// Summary flattens the record for listings.
func (rec RequestRecord) Summary() domain.RequestSummary {
	return domain.RequestSummary{
		ID:             rec.ID,
		ClientID:       rec.ClientID,
		ProviderID:     rec.ProviderID,
		ProviderWorkID: rec.ProviderWorkID,
		ScheduledAt:    rec.ScheduledAt,
		Status:         domain.Status(rec.Status),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

// BuildServiceRequest rebuilds the aggregate from its stored rows. Log
// authors resolve to the client or provider of the request; any other id
// means the rows are corrupt.
func BuildServiceRequest(rec RequestRecord, client *domain.Client, provider *domain.Provider, logs []LogRecord, now func() time.Time) (*domain.ServiceRequest, error) {
	if client == nil || client.ID != rec.ClientID {
		return nil, fmt.Errorf("request %s: client %s not loaded", rec.ID, rec.ClientID)
	}
	if provider == nil || provider.ID != rec.ProviderID {
		return nil, fmt.Errorf("request %s: provider %s not loaded", rec.ID, rec.ProviderID)
	}
	scheduledAt, err := parseTS(rec.ScheduledAt)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", rec.ID, err)
	}
	var work *domain.ProviderWork
	if rec.ProviderWorkID != "" {
		w, ok := provider.Work(rec.ProviderWorkID)
		if !ok {
			return nil, fmt.Errorf("request %s: %w", rec.ID, domain.UnknownItemError{Collection: "provider work", ID: rec.ProviderWorkID})
		}
		work = w
	}
	entries := make([]domain.Log, 0, len(logs))
	for i, lr := range logs {
		if lr.Seq != i+1 {
			return nil, fmt.Errorf("request %s: log seq %d out of order at %d", rec.ID, lr.Seq, i+1)
		}
		status, err := domain.ParseStatus(lr.Status)
		if err != nil {
			return nil, fmt.Errorf("request %s log %d: %w", rec.ID, lr.Seq, err)
		}
		at, err := parseTS(lr.At)
		if err != nil {
			return nil, fmt.Errorf("request %s log %d: %w", rec.ID, lr.Seq, err)
		}
		var by *domain.User
		switch lr.ByID {
		case client.ID:
			by = client.User
		case provider.ID:
			by = provider.User
		default:
			return nil, fmt.Errorf("request %s log %d: actor %s takes no part in the request", rec.ID, lr.Seq, lr.ByID)
		}
		entries = append(entries, domain.Log{Status: status, By: by, At: at, Reason: lr.Reason})
	}
	return domain.RestoreServiceRequest(domain.RequestParams{
		ID:          rec.ID,
		Client:      client,
		Provider:    provider,
		Work:        work,
		ScheduledAt: scheduledAt,
		Now:         now,
	}, entries)
}
