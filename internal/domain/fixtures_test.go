package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"servicehub/internal/domain"
)

var (
	registeredAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	scheduledAt  = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
)

// fakeClock is a settable clock for the aggregate.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Set(t time.Time)         { c.t = t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newUser(t *testing.T, id, name, doc string) *domain.User {
	t.Helper()
	d, err := domain.NewDocument(doc)
	require.NoError(t, err)
	email, err := domain.NewEmail(id + "@example.com")
	require.NoError(t, err)
	contact, err := domain.NewContact("(11) 91234-5678")
	require.NoError(t, err)
	u, err := domain.NewUser(domain.UserParams{
		ID:       id,
		Name:     name,
		Document: d,
		Email:    email,
		Contact:  contact,
		DOB:      time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
	}, registeredAt)
	require.NoError(t, err)
	return u
}

func newWork(t *testing.T) *domain.Work {
	t.Helper()
	w, err := domain.NewWork("w-cleaning", "House cleaning",
		domain.WorkJob{ID: "j-kitchen", Name: "Kitchen"},
		domain.WorkJob{ID: "j-bath", Name: "Bathroom"},
	)
	require.NoError(t, err)
	return w
}

func newProviderWork(t *testing.T, w *domain.Work) *domain.ProviderWork {
	t.Helper()
	kitchen, _ := w.Job("j-kitchen")
	pw, err := domain.NewProviderWork("pw-1", w, decimal.NewFromInt(100), domain.ProviderWorkJob{
		ID:                "pwj-kitchen",
		Cost:              decimal.NewFromInt(40),
		EstimatedDuration: 90 * time.Minute,
		Job:               kitchen,
	})
	require.NoError(t, err)
	return pw
}

type parties struct {
	client   *domain.Client
	provider *domain.Provider
	work     *domain.ProviderWork
	clock    *fakeClock
}

func newParties(t *testing.T) parties {
	t.Helper()
	addr, err := domain.NewAddress("01310-100", 1000, "apt 12")
	require.NoError(t, err)
	client := domain.NewClient(newUser(t, "client-1", "Carla Client", "529.982.247-25"), addr)
	pw := newProviderWork(t, newWork(t))
	provider, err := domain.NewProvider(newUser(t, "provider-1", "Paulo Provider", "111.444.777-35"), pw)
	require.NoError(t, err)
	return parties{
		client:   client,
		provider: provider,
		work:     pw,
		clock:    &fakeClock{t: scheduledAt.Add(-24 * time.Hour)},
	}
}

func newRequest(t *testing.T, p parties) *domain.ServiceRequest {
	t.Helper()
	req, err := domain.NewServiceRequest(domain.RequestParams{
		ID:          "req-1",
		Client:      p.client,
		Provider:    p.provider,
		Work:        p.work,
		ScheduledAt: scheduledAt,
		Now:         p.clock.Now,
	})
	require.NoError(t, err)
	return req
}
