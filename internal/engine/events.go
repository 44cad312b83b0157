package engine

import (
	"context"
	"errors"

	"servicehub/internal/domain"
	"servicehub/internal/engine/auth"
	"servicehub/internal/events"
	"servicehub/internal/repo"
)

// EventQuery filters the audit log. Cursor pages backwards by event id.
type EventQuery struct {
	Type       string
	EntityKind string
	EntityID   string
	Cursor     int64
	Limit      int
}

// ListEvents reads the audit log. Catalog admins see everything; participants may
// read only the trail of a request they take part in.
func (e Engine) ListEvents(ctx context.Context, actorID string, q EventQuery) ([]domain.Event, error) {
	if actorID == "" {
		return nil, auth.ErrActorRequired
	}
	if !e.Config.IsCatalogAdmin(actorID) {
		if q.EntityKind != events.KindRequest || q.EntityID == "" {
			return nil, auth.ForbiddenError{Permission: auth.PermEventsRead}
		}
		rec, err := e.Repo.GetRequestRecord(ctx, nil, q.EntityID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, auth.ForbiddenError{Permission: auth.PermEventsRead}
			}
			return nil, err
		}
		if err := auth.RequireParty(nil, actorID, rec.ClientID, rec.ProviderID); err != nil {
			return nil, auth.ForbiddenError{Permission: auth.PermEventsRead}
		}
	}
	return e.Repo.LatestEventsFrom(ctx, q.Limit, q.Cursor, q.Type, q.EntityKind, q.EntityID)
}

// EventsAfter streams the audit log forward from cursor, for tailing.
func (e Engine) EventsAfter(ctx context.Context, actorID string, cursor int64, limit int) ([]domain.Event, error) {
	if err := auth.RequireCatalogAdmin(e.Config, actorID); err != nil {
		var fe auth.ForbiddenError
		if errors.As(err, &fe) {
			return nil, auth.ForbiddenError{Permission: auth.PermEventsRead}
		}
		return nil, err
	}
	return e.Repo.EventsAfter(ctx, limit, cursor)
}
