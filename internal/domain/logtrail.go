package domain

import "time"

// Log is one entry of a request's history.
type Log struct {
	Status Status
	By     *User
	At     time.Time
	Reason string
}

// ActorID returns the id of the user that produced the entry.
func (l Log) ActorID() string {
	if l.By == nil {
		return ""
	}
	return l.By.ID
}

// LogTrail is an append-only ordered history of log entries.
type LogTrail struct {
	entries []Log
	Now     func() time.Time
}

func (t *LogTrail) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Append pushes a new entry stamped with the trail clock. Callers validate the transition.
func (t *LogTrail) Append(status Status, by *User, reason string) Log {
	l := Log{Status: status, By: by, At: t.now().UTC(), Reason: reason}
	t.entries = append(t.entries, l)
	return l
}

// restore pushes persisted entries as-is.
func (t *LogTrail) restore(entries ...Log) {
	t.entries = append(t.entries, entries...)
}

// Current returns the last appended entry.
func (t *LogTrail) Current() (Log, error) {
	if len(t.entries) == 0 {
		return Log{}, ErrEmptyLog
	}
	return t.entries[len(t.entries)-1], nil
}

// Exists reports whether any entry has the status. A non-nil actor narrows the
// match to entries produced by that user.
func (t *LogTrail) Exists(status Status, by *User) bool {
	for _, l := range t.entries {
		if l.Status != status {
			continue
		}
		if by == nil || l.ActorID() == by.ID {
			return true
		}
	}
	return false
}

// Entries returns a copy of the history.
func (t *LogTrail) Entries() []Log {
	out := make([]Log, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *LogTrail) Len() int { return len(t.entries) }
