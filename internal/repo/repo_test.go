package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/db"
	"servicehub/internal/domain"
	"servicehub/internal/migrate"
	"servicehub/internal/repo"
)

var created = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func user(t *testing.T, id, doc string) *domain.User {
	t.Helper()
	d, err := domain.NewDocument(doc)
	require.NoError(t, err)
	u, err := domain.NewUser(domain.UserParams{
		ID: id, Name: "User " + id, Document: d,
		Email: domain.Email(id + "@example.com"), Contact: "(11) 91234-5678",
		DOB: time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
	}, created)
	require.NoError(t, err)
	return u
}

func seed(t *testing.T, r repo.Repo) (*domain.Client, *domain.Provider) {
	t.Helper()
	ctx := context.Background()
	work, err := domain.NewWork("w-1", "Cleaning", domain.WorkJob{ID: "j-1", Name: "Kitchen"}, domain.WorkJob{ID: "j-2", Name: "Bathroom"})
	require.NoError(t, err)
	require.NoError(t, r.InsertWork(ctx, nil, work, created))

	pw, err := domain.NewProviderWork("pw-1", work, decimal.NewFromInt(100),
		domain.ProviderWorkJob{ID: "pj-1", Cost: decimal.RequireFromString("40.50"), EstimatedDuration: 90 * time.Minute, Job: domain.WorkJob{ID: "j-1", Name: "Kitchen"}})
	require.NoError(t, err)
	provider, err := domain.NewProvider(user(t, "provider-1", "111.444.777-35"), pw)
	require.NoError(t, err)
	require.NoError(t, r.InsertProvider(ctx, nil, provider, created))

	addr, err := domain.NewAddress("01310-100", 1000, "apt 4")
	require.NoError(t, err)
	client := domain.NewClient(user(t, "client-1", "529.982.247-25"), addr)
	require.NoError(t, r.InsertClient(ctx, nil, client, created))
	return client, provider
}

func TestParticipantsRoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seed(t, r)

	c, err := r.GetClient(ctx, nil, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "01310-100", c.Address.CEP)
	assert.Equal(t, "apt 4", c.Address.Complement)
	assert.Equal(t, time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC), c.DOB)

	p, err := r.GetProvider(ctx, nil, "provider-1")
	require.NoError(t, err)
	require.Len(t, p.Works(), 1)
	pw := p.Works()[0]
	assert.Equal(t, "Cleaning", pw.Work.Name)
	assert.Len(t, pw.Work.Jobs(), 2)
	assert.Equal(t, "100", pw.TotalCost().String())
	assert.Equal(t, 90*time.Minute, pw.EstimatedDuration())

	role, err := r.UserRole(ctx, nil, "provider-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleProvider, role)

	_, err = r.GetClient(ctx, nil, "provider-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRequestRoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	client, provider := seed(t, r)
	pw, _ := provider.Work("pw-1")

	now := time.Date(2024, 1, 31, 10, 0, 0, 123456789, time.UTC)
	clock := func() time.Time { return now }
	req, err := domain.NewServiceRequest(domain.RequestParams{
		ID: "req-1", Client: client, Provider: provider, Work: pw,
		ScheduledAt: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC), Now: clock,
	})
	require.NoError(t, err)
	require.NoError(t, r.InsertRequest(ctx, nil, req, now))

	require.NoError(t, req.Schedule(client.User))
	require.NoError(t, req.Cancel(client.User, "changed plans"))
	require.NoError(t, r.AppendLogs(ctx, nil, req.ID(), 1, req.Logs()))
	require.NoError(t, r.UpdateRequestState(ctx, nil, req, now))

	loaded, err := r.GetRequest(ctx, nil, "req-1", clock)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, loaded.Status())
	assert.Equal(t, req.Logs(), loaded.Logs())
	assert.Equal(t, "changed plans", loaded.CurrentLog().Reason)
	assert.True(t, loaded.Closed())

	list, err := r.ListRequests(ctx, repo.RequestFilters{ParticipantID: "provider-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.StatusCancelled, list[0].Status)
	assert.Equal(t, "pw-1", list[0].ProviderWorkID)

	// a second writer replaying the same seq is rejected
	err = r.AppendLogs(ctx, nil, req.ID(), 2, req.Logs())
	assert.Error(t, err)

	err = r.DeleteUser(ctx, nil, "client-1", domain.RoleClient)
	assert.True(t, errors.Is(err, repo.ErrInUse))
	err = r.DeleteProviderWork(ctx, nil, "provider-1", "pw-1")
	assert.ErrorIs(t, err, repo.ErrInUse)
}

func TestDeleteWorkJobInUse(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	seed(t, r)

	assert.ErrorIs(t, r.DeleteWorkJob(ctx, nil, "w-1", "j-1"), repo.ErrInUse)
	assert.NoError(t, r.DeleteWorkJob(ctx, nil, "w-1", "j-2"))
	assert.ErrorIs(t, r.DeleteWorkJob(ctx, nil, "w-1", "j-2"), repo.ErrNotFound)
}

func TestBuildServiceRequestRejectsStrangers(t *testing.T) {
	addr, err := domain.NewAddress("01310-100", 1, "")
	require.NoError(t, err)
	client := domain.NewClient(user(t, "client-1", "529.982.247-25"), addr)
	work, err := domain.NewWork("w-1", "Cleaning", domain.WorkJob{ID: "j-1", Name: "Kitchen"})
	require.NoError(t, err)
	pw, err := domain.NewProviderWork("pw-1", work, decimal.Zero,
		domain.ProviderWorkJob{ID: "pj-1", Cost: decimal.NewFromInt(1), Job: domain.WorkJob{ID: "j-1"}})
	require.NoError(t, err)
	provider, err := domain.NewProvider(user(t, "provider-1", "111.444.777-35"), pw)
	require.NoError(t, err)

	rec := repo.RequestRecord{ID: "req-1", ClientID: "client-1", ProviderID: "provider-1", ScheduledAt: "2024-02-01T09:00:00Z", Status: "CREATED"}
	_, err = repo.BuildServiceRequest(rec, client, provider, []repo.LogRecord{{Seq: 1, Status: "CREATED", ByID: "mallory", At: "2024-01-31T10:00:00Z"}}, nil)
	assert.ErrorContains(t, err, "takes no part")

	_, err = repo.BuildServiceRequest(rec, client, provider, nil, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyLog)

	req, err := repo.BuildServiceRequest(rec, client, provider, []repo.LogRecord{{Seq: 1, Status: "CREATED", ByID: "client-1", At: "2024-01-31T10:00:00Z"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, req.Status())
	assert.Nil(t, req.Work())
}
