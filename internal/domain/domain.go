package domain

// Event is one row of the append-only audit log written by every engine mutation.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at"`
}

// RequestSummary is the listing shape of a service request.
type RequestSummary struct {
	ID             string `json:"id"`
	ClientID       string `json:"client_id"`
	ProviderID     string `json:"provider_id"`
	ProviderWorkID string `json:"provider_work_id,omitempty"`
	ScheduledAt    string `json:"scheduled_at"`
	Status         Status `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}
