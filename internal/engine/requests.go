package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"servicehub/internal/domain"
	"servicehub/internal/engine/auth"
	"servicehub/internal/events"
	"servicehub/internal/repo"
)

type RequestCreateOptions struct {
	ID             string
	ClientID       string
	ProviderID     string
	ProviderWorkID string
	ScheduledAt    time.Time
	ActorID        string
}

// TransitionOptions selects one lifecycle action. ScheduledAt is read by
// reschedule, Reason by cancel and Rating by rate.
type TransitionOptions struct {
	RequestID   string
	Action      domain.Action
	ActorID     string
	Reason      string
	ScheduledAt time.Time
	Rating      float64
}

// CreateRequest opens a request on behalf of its client.
func (e Engine) CreateRequest(ctx context.Context, opts RequestCreateOptions) (*domain.ServiceRequest, error) {
	if opts.ActorID == "" {
		return nil, auth.ErrActorRequired
	}
	if opts.ClientID == "" {
		opts.ClientID = opts.ActorID
	}
	if opts.ActorID != opts.ClientID {
		return nil, domain.UnauthorizedActorError{Action: domain.ActionCreate, ActorID: opts.ActorID, Allowed: []domain.Role{domain.RoleClient}}
	}
	var req *domain.ServiceRequest
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		client, err := e.Repo.GetClient(ctx, tx, opts.ClientID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.UnauthorizedActorError{Action: domain.ActionCreate, ActorID: opts.ActorID, Allowed: []domain.Role{domain.RoleClient}}
		}
		if err != nil {
			return err
		}
		provider, err := e.Repo.GetProvider(ctx, tx, opts.ProviderID)
		if errors.Is(err, repo.ErrNotFound) {
			return domain.UnknownItemError{Collection: "provider", ID: opts.ProviderID}
		}
		if err != nil {
			return err
		}
		var work *domain.ProviderWork
		if opts.ProviderWorkID != "" {
			if work, err = providerWork(provider, opts.ProviderWorkID); err != nil {
				return err
			}
		}
		req, err = domain.NewServiceRequest(domain.RequestParams{
			ID:          newID(opts.ID),
			Client:      client,
			Provider:    provider,
			Work:        work,
			ScheduledAt: opts.ScheduledAt,
			Now:         e.now,
		})
		if err != nil {
			return err
		}
		if _, err := e.Repo.GetRequestRecord(ctx, tx, req.ID()); err == nil {
			return domain.DuplicateItemError{Collection: "service request", ID: req.ID()}
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := e.Repo.InsertRequest(ctx, tx, req, e.now()); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "request.created", events.KindRequest, req.ID(), opts.ActorID, events.EventPayload{
			"provider_id":  provider.ID,
			"scheduled_at": req.When().Format(time.RFC3339),
			"total_cost":   req.TotalCost().String(),
		})
	})
	if err != nil {
		return nil, err
	}
	e.Log.Debug().Str("request_id", req.ID()).Str("actor_id", opts.ActorID).Str("action", string(domain.ActionCreate)).Msg("request created")
	return req, nil
}

// GetRequest returns the request when the actor takes part in it.
func (e Engine) GetRequest(ctx context.Context, id, actorID string) (*domain.ServiceRequest, error) {
	req, err := e.Repo.GetRequest(ctx, nil, id, e.now)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireParty(e.Config, actorID, req.Client().ID, req.Provider().ID); err != nil {
		return nil, err
	}
	return req, nil
}

// ListRequests lists the actor's own requests; catalog admins see all.
func (e Engine) ListRequests(ctx context.Context, actorID string, f repo.RequestFilters) ([]domain.RequestSummary, error) {
	if actorID == "" {
		return nil, auth.ErrActorRequired
	}
	if f.Status != "" {
		if _, err := domain.ParseStatus(f.Status); err != nil {
			return nil, domain.ValidationError{Field: "status", Reason: err.Error()}
		}
	}
	if !e.Config.IsCatalogAdmin(actorID) {
		f.ParticipantID = actorID
	}
	return e.Repo.ListRequests(ctx, f)
}

func (e Engine) Logs(ctx context.Context, id, actorID string) ([]domain.Log, error) {
	req, err := e.GetRequest(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	return req.Logs(), nil
}

// Available lists what actorID may do on the request right now.
func (e Engine) Available(ctx context.Context, id, actorID string) ([]domain.Action, error) {
	req, err := e.GetRequest(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	return req.Available(req.Participant(actorID)), nil
}

func (e Engine) Schedule(ctx context.Context, id, actorID string) (*domain.ServiceRequest, error) {
	return e.Transition(ctx, TransitionOptions{RequestID: id, Action: domain.ActionSchedule, ActorID: actorID})
}

func (e Engine) Reschedule(ctx context.Context, id, actorID string, when time.Time) (*domain.ServiceRequest, error) {
	return e.Transition(ctx, TransitionOptions{RequestID: id, Action: domain.ActionReschedule, ActorID: actorID, ScheduledAt: when})
}

func (e Engine) Cancel(ctx context.Context, id, actorID, reason string) (*domain.ServiceRequest, error) {
	return e.Transition(ctx, TransitionOptions{RequestID: id, Action: domain.ActionCancel, ActorID: actorID, Reason: reason})
}

func (e Engine) Confirm(ctx context.Context, id, actorID string) (*domain.ServiceRequest, error) {
	return e.Transition(ctx, TransitionOptions{RequestID: id, Action: domain.ActionConfirm, ActorID: actorID})
}

func (e Engine) Refuse(ctx context.Context, id, actorID string) (*domain.ServiceRequest, error) {
	return e.Transition(ctx, TransitionOptions{RequestID: id, Action: domain.ActionRefuse, ActorID: actorID})
}

func (e Engine) Start(ctx context.Context, id, actorID string) (*domain.ServiceRequest, error) {
	return e.Transition(ctx, TransitionOptions{RequestID: id, Action: domain.ActionStart, ActorID: actorID})
}

func (e Engine) Finish(ctx context.Context, id, actorID string) (*domain.ServiceRequest, error) {
	return e.Transition(ctx, TransitionOptions{RequestID: id, Action: domain.ActionFinish, ActorID: actorID})
}

func (e Engine) Rate(ctx context.Context, id, actorID string, value float64) (*domain.ServiceRequest, error) {
	return e.Transition(ctx, TransitionOptions{RequestID: id, Action: domain.ActionRate, ActorID: actorID, Rating: value})
}

// Transition loads the request, applies one action and stores the new log
// entries, the request row, any rating and one event in a single transaction.
func (e Engine) Transition(ctx context.Context, opts TransitionOptions) (*domain.ServiceRequest, error) {
	if opts.ActorID == "" {
		return nil, auth.ErrActorRequired
	}
	unlock := e.lockRequest(opts.RequestID)
	defer unlock()

	log := e.Log.With().Str("request_id", opts.RequestID).Str("actor_id", opts.ActorID).Str("action", string(opts.Action)).Logger()
	var req *domain.ServiceRequest
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if req, err = e.Repo.GetRequest(ctx, tx, opts.RequestID, e.now); err != nil {
			return err
		}
		stored := len(req.Logs())
		by := req.Participant(opts.ActorID)
		if by == nil {
			by = domain.RestoreUser(domain.UserParams{ID: opts.ActorID})
		}
		if err := apply(req, by, opts); err != nil {
			log.Warn().Err(err).Str("status", string(req.Status())).Msg("transition rejected")
			return err
		}
		now := e.now()
		if err := e.Repo.AppendLogs(ctx, tx, req.ID(), stored, req.Logs()); err != nil {
			return err
		}
		if err := e.Repo.UpdateRequestState(ctx, tx, req, now); err != nil {
			return err
		}
		payload := events.EventPayload{"status": string(req.Status())}
		switch opts.Action {
		case domain.ActionRate:
			target := req.Counterpart(by)
			if err := e.Repo.InsertRating(ctx, tx, req.ID(), by.ID, target.ID, opts.Rating, now); err != nil {
				return err
			}
			payload["target_id"] = target.ID
			payload["value"] = opts.Rating
		case domain.ActionReschedule:
			payload["scheduled_at"] = req.When().Format(time.RFC3339)
		case domain.ActionCancel:
			if opts.Reason != "" {
				payload["reason"] = opts.Reason
			}
		}
		return e.appendEvent(ctx, tx, "request."+strings.ToLower(string(req.Status())), events.KindRequest, req.ID(), opts.ActorID, payload)
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("status", string(req.Status())).Msg("transition applied")
	return req, nil
}

func apply(req *domain.ServiceRequest, by *domain.User, opts TransitionOptions) error {
	switch opts.Action {
	case domain.ActionSchedule:
		return req.Schedule(by)
	case domain.ActionReschedule:
		return req.Reschedule(by, opts.ScheduledAt)
	case domain.ActionCancel:
		return req.Cancel(by, opts.Reason)
	case domain.ActionConfirm:
		return req.Confirm(by)
	case domain.ActionRefuse:
		return req.Refuse(by)
	case domain.ActionStart:
		return req.Start(by)
	case domain.ActionFinish:
		return req.Finish(by)
	case domain.ActionRate:
		return req.Rate(by, opts.Rating)
	}
	return domain.ValidationError{Field: "action", Reason: "unknown action " + string(opts.Action)}
}
