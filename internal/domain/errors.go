package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyLog is returned when the current entry of an empty log trail is requested.
var ErrEmptyLog = errors.New("log trail is empty")

// UnauthorizedActorError indicates the actor does not play the role the action requires.
type UnauthorizedActorError struct {
	Action  Action
	ActorID string
	Allowed []Role
}

func (e UnauthorizedActorError) Error() string {
	roles := make([]string, 0, len(e.Allowed))
	for _, r := range e.Allowed {
		roles = append(roles, string(r))
	}
	return fmt.Sprintf("only the %s can %s the request", strings.Join(roles, " or "), e.Action)
}

// InvalidStageError indicates the current stage is not one the action accepts.
type InvalidStageError struct {
	Action  Action
	Current Status
	Allowed []Status
}

func (e InvalidStageError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	return fmt.Sprintf("cannot %s the request on %s stage; allowed: %s", e.Action, e.Current, strings.Join(allowed, "/"))
}

// AlreadyPerformedError indicates a once-only action was repeated.
type AlreadyPerformedError struct {
	Action  Action
	ActorID string
}

func (e AlreadyPerformedError) Error() string {
	if e.ActorID == "" {
		return fmt.Sprintf("the request can only %s once", e.Action)
	}
	return fmt.Sprintf("actor %s can only %s the request once", e.ActorID, e.Action)
}

// PrematureActionError indicates an action was attempted before the scheduled time.
type PrematureActionError struct {
	Action      Action
	ScheduledAt time.Time
	Now         time.Time
}

func (e PrematureActionError) Error() string {
	return fmt.Sprintf("the request can only %s after %s", e.Action, e.ScheduledAt.UTC().Format(time.RFC3339))
}

// InvalidRatingError indicates a rating outside the accepted range.
type InvalidRatingError struct {
	Value float64
}

func (e InvalidRatingError) Error() string {
	return fmt.Sprintf("rating %g must be between %g and %g", e.Value, MinRating, MaxRating)
}

// EmptyCollectionError indicates a collection that must keep at least one item would be empty.
type EmptyCollectionError struct {
	Owner      string
	Collection string
}

func (e EmptyCollectionError) Error() string {
	return fmt.Sprintf("%s must have at least one %s", e.Owner, e.Collection)
}

// DuplicateItemError indicates an item id already present in a collection.
type DuplicateItemError struct {
	Collection string
	ID         string
}

func (e DuplicateItemError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Collection, e.ID)
}

// UnknownItemError indicates an item id missing from a collection.
type UnknownItemError struct {
	Collection string
	ID         string
}

func (e UnknownItemError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Collection, e.ID)
}

// ValidationError reports an invalid field value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
