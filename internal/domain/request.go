package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Action names a lifecycle transition.
type Action string

const (
	ActionCreate     Action = "create"
	ActionSchedule   Action = "schedule"
	ActionReschedule Action = "reschedule"
	ActionCancel     Action = "cancel"
	ActionConfirm    Action = "confirm"
	ActionRefuse     Action = "refuse"
	ActionStart      Action = "start"
	ActionFinish     Action = "finish"
	ActionRate       Action = "rate"
)

// Actions lists the transitions available after creation, in lifecycle order.
var Actions = []Action{
	ActionSchedule,
	ActionReschedule,
	ActionCancel,
	ActionConfirm,
	ActionRefuse,
	ActionStart,
	ActionFinish,
	ActionRate,
}

// RequestParams are the inputs to open a service request.
type RequestParams struct {
	ID          string
	Client      *Client
	Provider    *Provider
	Work        *ProviderWork
	ScheduledAt time.Time
	Now         func() time.Time
}

// ServiceRequest is the agreement between one client and one provider to
// perform a work at a scheduled time. Its log trail is the only source of the
// current stage. All methods are safe for concurrent use; transitions on one
// instance are serialized.
type ServiceRequest struct {
	mu          sync.Mutex
	id          string
	client      *Client
	provider    *Provider
	work        *ProviderWork
	scheduledAt time.Time
	logs        LogTrail
	now         func() time.Time
}

// NewServiceRequest opens a request and logs CREATED on behalf of the client.
func NewServiceRequest(p RequestParams) (*ServiceRequest, error) {
	r, err := newServiceRequest(p)
	if err != nil {
		return nil, err
	}
	r.logs.Append(StatusCreated, r.client.User, "")
	return r, nil
}

// RestoreServiceRequest rebuilds a stored request from its persisted history.
func RestoreServiceRequest(p RequestParams, logs []Log) (*ServiceRequest, error) {
	if len(logs) == 0 {
		return nil, ErrEmptyLog
	}
	r, err := newServiceRequest(p)
	if err != nil {
		return nil, err
	}
	r.logs.restore(logs...)
	return r, nil
}

func newServiceRequest(p RequestParams) (*ServiceRequest, error) {
	if p.Client == nil || p.Client.User == nil {
		return nil, ValidationError{Field: "client", Reason: "is required"}
	}
	if p.Provider == nil || p.Provider.User == nil {
		return nil, ValidationError{Field: "provider", Reason: "is required"}
	}
	if p.Client.ID == p.Provider.ID {
		return nil, ValidationError{Field: "provider", Reason: "must differ from the client"}
	}
	if p.ScheduledAt.IsZero() {
		return nil, ValidationError{Field: "scheduled_at", Reason: "is required"}
	}
	if p.Work != nil {
		if _, ok := p.Provider.Work(p.Work.ID); !ok {
			return nil, UnknownItemError{Collection: "provider work", ID: p.Work.ID}
		}
	}
	r := &ServiceRequest{
		id:          p.ID,
		client:      p.Client,
		provider:    p.Provider,
		work:        p.Work,
		scheduledAt: p.ScheduledAt.UTC(),
	}
	r.setClock(p.Now)
	return r, nil
}

// SetClock replaces the clock used for log timestamps and the start check.
func (r *ServiceRequest) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setClock(now)
}

func (r *ServiceRequest) setClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.now = now
	r.logs.Now = now
}

func (r *ServiceRequest) ID() string { return r.id }

func (r *ServiceRequest) Client() *Client { return r.client }

func (r *ServiceRequest) Provider() *Provider { return r.provider }

func (r *ServiceRequest) Work() *ProviderWork { return r.work }

// When is the scheduled date and time.
func (r *ServiceRequest) When() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduledAt
}

// TotalCost is the cost of the requested work; zero when no work is attached.
func (r *ServiceRequest) TotalCost() decimal.Decimal {
	if r.work == nil {
		return decimal.Zero
	}
	return r.work.TotalCost()
}

// Logs returns a copy of the full history.
func (r *ServiceRequest) Logs() []Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs.Entries()
}

// CurrentLog returns the most recent history entry.
func (r *ServiceRequest) CurrentLog() Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, _ := r.logs.Current()
	return l
}

// Status is the stage recorded by the most recent entry.
func (r *ServiceRequest) Status() Status {
	return r.CurrentLog().Status
}

// Participant resolves an actor id to the client or provider user of this
// request, or nil when the id takes no part in it.
func (r *ServiceRequest) Participant(actorID string) *User {
	switch actorID {
	case r.client.ID:
		return r.client.User
	case r.provider.ID:
		return r.provider.User
	}
	return nil
}

// RoleOf reports which side the user plays in this request.
func (r *ServiceRequest) RoleOf(by *User) (Role, bool) {
	if by == nil {
		return "", false
	}
	switch by.ID {
	case r.client.ID:
		return RoleClient, true
	case r.provider.ID:
		return RoleProvider, true
	}
	return "", false
}

// Counterpart returns the other side of the request for a participant.
func (r *ServiceRequest) Counterpart(by *User) *User {
	role, ok := r.RoleOf(by)
	if !ok {
		return nil
	}
	if role == RoleClient {
		return r.provider.User
	}
	return r.client.User
}

// Closed reports whether the request reached an end: cancelled, refused, or
// rated by both sides.
func (r *ServiceRequest) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := r.logs.Current()
	if err != nil {
		return false
	}
	switch cur.Status {
	case StatusCancelled, StatusRefused:
		return true
	}
	return r.logs.Exists(StatusRated, r.client.User) && r.logs.Exists(StatusRated, r.provider.User)
}

// Available lists the transitions the user may perform right now.
func (r *ServiceRequest) Available(by *User) []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Action
	for _, a := range Actions {
		if r.check(a, by) == nil {
			out = append(out, a)
		}
	}
	return out
}

// Schedule moves a freshly created request to SCHEDULED.
func (r *ServiceRequest) Schedule(by *User) error {
	return r.apply(ActionSchedule, by, "", nil)
}

// Reschedule moves the scheduled time; the new time is kept only when every
// check passes.
func (r *ServiceRequest) Reschedule(by *User, when time.Time) error {
	return r.apply(ActionReschedule, by, "", func() error {
		if when.IsZero() {
			return ValidationError{Field: "scheduled_at", Reason: "is required"}
		}
		r.scheduledAt = when.UTC()
		return nil
	})
}

func (r *ServiceRequest) Cancel(by *User, reason string) error {
	return r.apply(ActionCancel, by, reason, nil)
}

func (r *ServiceRequest) Confirm(by *User) error {
	return r.apply(ActionConfirm, by, "", nil)
}

func (r *ServiceRequest) Refuse(by *User) error {
	return r.apply(ActionRefuse, by, "", nil)
}

func (r *ServiceRequest) Start(by *User) error {
	return r.apply(ActionStart, by, "", nil)
}

// Finish records that one side considers the work finished. Each side finishes once.
func (r *ServiceRequest) Finish(by *User) error {
	return r.apply(ActionFinish, by, "", nil)
}

// Rate lets one side rate the other once the work is finished.
func (r *ServiceRequest) Rate(by *User, value float64) error {
	return r.apply(ActionRate, by, "", func() error {
		return by.Rate(r.counterpart(by), value)
	})
}

func (r *ServiceRequest) counterpart(by *User) *User {
	if by.ID == r.client.ID {
		return r.provider.User
	}
	return r.client.User
}

// apply runs the checks for action, then effect, then appends exactly one entry.
// Nothing is appended when a check or the effect fails.
func (r *ServiceRequest) apply(action Action, by *User, reason string, effect func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(action, by); err != nil {
		return err
	}
	if effect != nil {
		if err := effect(); err != nil {
			return err
		}
	}
	r.logs.Append(lifecycle[action].to, r.Participant(by.ID), reason)
	return nil
}
