package domain

import (
	"math"
	"strings"
	"sync"
	"time"
)

const (
	MinRating = 1.0
	MaxRating = 5.0

	// MinAge is the youngest a participant can be when registering.
	MinAge = 18
)

// Ratings accumulates the ratings a participant received. It is shared by every
// request the participant takes part in, so it is safe for concurrent use.
type Ratings struct {
	mu     sync.Mutex
	values []float64
}

func (r *Ratings) add(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

// Values returns a copy of the received ratings in arrival order.
func (r *Ratings) Values() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}

func (r *Ratings) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Mean returns the average rating and false when nothing was rated yet.
func (r *Ratings) Mean() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return math.NaN(), false
	}
	sum := 0.0
	for _, v := range r.values {
		sum += v
	}
	return sum / float64(len(r.values)), true
}

// UserParams are the fields needed to register a participant.
type UserParams struct {
	ID       string
	Name     string
	Document Document
	Email    Email
	Contact  Contact
	DOB      time.Time
}

// User is a marketplace participant.
type User struct {
	ID       string
	Name     string
	Document Document
	Email    Email
	Contact  Contact
	DOB      time.Time

	ratings *Ratings
}

// NewUser registers a participant, rejecting anyone younger than MinAge at now.
func NewUser(p UserParams, now time.Time) (*User, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, ValidationError{Field: "name", Reason: "is required"}
	}
	if p.DOB.IsZero() || p.DOB.After(now.AddDate(-MinAge, 0, 0)) {
		return nil, ValidationError{Field: "dob", Reason: "user must be at least 18 years old"}
	}
	return RestoreUser(p), nil
}

// RestoreUser rebuilds a stored participant without re-running registration checks.
func RestoreUser(p UserParams, ratings ...float64) *User {
	u := &User{
		ID:       p.ID,
		Name:     strings.TrimSpace(p.Name),
		Document: p.Document,
		Email:    p.Email,
		Contact:  p.Contact,
		DOB:      p.DOB,
		ratings:  &Ratings{},
	}
	for _, v := range ratings {
		u.ratings.add(v)
	}
	return u
}

func (u *User) ChangeName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError{Field: "name", Reason: "is required"}
	}
	u.Name = strings.TrimSpace(name)
	return nil
}

func (u *User) ChangeEmail(email Email) { u.Email = email }

func (u *User) ChangeContact(contact Contact) { u.Contact = contact }

// Ratings returns the accumulator of ratings this user received.
func (u *User) Ratings() *Ratings {
	if u.ratings == nil {
		u.ratings = &Ratings{}
	}
	return u.ratings
}

// Rating is the mean received rating; NaN when nothing was rated yet.
func (u *User) Rating() float64 {
	m, _ := u.Ratings().Mean()
	return m
}

// Rate gives target a rating between MinRating and MaxRating.
func (u *User) Rate(target *User, value float64) error {
	if math.IsNaN(value) || value < MinRating || value > MaxRating {
		return InvalidRatingError{Value: value}
	}
	target.Ratings().add(value)
	return nil
}

// Client is a user that requests works.
type Client struct {
	*User
	Address Address
}

func NewClient(u *User, addr Address) *Client {
	return &Client{User: u, Address: addr}
}

func (c *Client) ChangeAddress(addr Address) { c.Address = addr }

// Provider is a user offering one or more priced works.
type Provider struct {
	*User
	works []*ProviderWork
}

// NewProvider requires at least one work, with unique ids.
func NewProvider(u *User, works ...*ProviderWork) (*Provider, error) {
	if len(works) == 0 {
		return nil, EmptyCollectionError{Owner: "provider " + u.ID, Collection: "work"}
	}
	p := &Provider{User: u}
	for _, w := range works {
		if err := p.AddWork(w); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Works returns the provider's works in insertion order.
func (p *Provider) Works() []*ProviderWork {
	out := make([]*ProviderWork, len(p.works))
	copy(out, p.works)
	return out
}

func (p *Provider) Work(id string) (*ProviderWork, bool) {
	for _, w := range p.works {
		if w.ID == id {
			return w, true
		}
	}
	return nil, false
}

func (p *Provider) AddWork(w *ProviderWork) error {
	if _, ok := p.Work(w.ID); ok {
		return DuplicateItemError{Collection: "provider work", ID: w.ID}
	}
	p.works = append(p.works, w)
	return nil
}

// RemoveWork drops a work by id. The last work cannot be removed.
func (p *Provider) RemoveWork(id string) error {
	idx := -1
	for i, w := range p.works {
		if w.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return UnknownItemError{Collection: "provider work", ID: id}
	}
	if len(p.works) == 1 {
		return EmptyCollectionError{Owner: "provider " + p.ID, Collection: "work"}
	}
	p.works = append(p.works[:idx:idx], p.works[idx+1:]...)
	return nil
}
