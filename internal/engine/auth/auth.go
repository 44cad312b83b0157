package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"servicehub/internal/domain"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

var ErrActorRequired = errors.New("actor_id required")

// Permissions checked outside the request lifecycle table.
const (
	PermCatalogWrite  = "catalog.write"
	PermProfileWrite  = "participant.self"
	PermRequestCreate = "request.create"
	PermRequestRead   = "request.read"
	PermEventsRead    = "events.read"
)

// RequireSelf allows participants to change only their own records.
func RequireSelf(actorID, targetID string) error {
	if actorID == "" {
		return ErrActorRequired
	}
	if actorID != targetID {
		return ForbiddenError{Permission: PermProfileWrite}
	}
	return nil
}

// CatalogAdmins decides who may edit the work catalog.
type CatalogAdmins interface {
	IsCatalogAdmin(actorID string) bool
}

func RequireCatalogAdmin(admins CatalogAdmins, actorID string) error {
	if actorID == "" {
		return ErrActorRequired
	}
	if admins == nil || !admins.IsCatalogAdmin(actorID) {
		return ForbiddenError{Permission: PermCatalogWrite}
	}
	return nil
}

// RequireParty allows only the listed participants, or a catalog admin, to
// read a request.
func RequireParty(admins CatalogAdmins, actorID string, parties ...string) error {
	if actorID == "" {
		return ErrActorRequired
	}
	for _, p := range parties {
		if p == actorID {
			return nil
		}
	}
	if admins != nil && admins.IsCatalogAdmin(actorID) {
		return nil
	}
	return ForbiddenError{Permission: PermRequestRead}
}

// Service resolves actors against the participants table.
type Service struct {
	DB *sql.DB
}

// ActorRole returns the role of a registered participant, or "" when the
// actor is not one.
func (s Service) ActorRole(ctx context.Context, tx *sql.Tx, actorID string) (domain.Role, error) {
	if actorID == "" {
		return "", ErrActorRequired
	}
	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id=?`, actorID)
	} else {
		row = s.DB.QueryRowContext(ctx, `SELECT role FROM users WHERE id=?`, actorID)
	}
	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return domain.Role(role), err
}

// ActorPermissions lists what the actor may do: request transitions by role,
// plus catalog and profile permissions.
func (s Service) ActorPermissions(ctx context.Context, tx *sql.Tx, admins CatalogAdmins, actorID string) ([]string, error) {
	role, err := s.ActorRole(ctx, tx, actorID)
	if err != nil {
		return nil, err
	}
	var perms []string
	if role != "" {
		perms = append(perms, PermProfileWrite, PermRequestRead)
	}
	if role == domain.RoleClient {
		perms = append(perms, PermRequestCreate)
	}
	for _, a := range domain.ActionsFor(role) {
		perms = append(perms, "request."+string(a))
	}
	if admins != nil && admins.IsCatalogAdmin(actorID) {
		perms = append(perms, PermCatalogWrite, PermEventsRead)
	}
	return perms, nil
}
