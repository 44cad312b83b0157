package domain

import "fmt"

// Status is the stage a service request is in, as recorded by its log trail.
type Status string

const (
	StatusCreated     Status = "CREATED"
	StatusScheduled   Status = "SCHEDULED"
	StatusRescheduled Status = "RESCHEDULED"
	StatusCancelled   Status = "CANCELLED"
	StatusConfirmed   Status = "CONFIRMED"
	StatusRefused     Status = "REFUSED"
	StatusStarted     Status = "STARTED"
	StatusFinished    Status = "FINISHED"
	StatusRated       Status = "RATED"
)

var allStatuses = []Status{
	StatusCreated,
	StatusScheduled,
	StatusRescheduled,
	StatusCancelled,
	StatusConfirmed,
	StatusRefused,
	StatusStarted,
	StatusFinished,
	StatusRated,
}

// Statuses returns every known status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s Status) String() string { return string(s) }

// Role is the side a user plays in a service request.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
)
