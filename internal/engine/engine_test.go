package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/config"
	"servicehub/internal/db"
	"servicehub/internal/domain"
	"servicehub/internal/engine"
	"servicehub/internal/engine/auth"
	"servicehub/internal/migrate"
	"servicehub/internal/repo"
)

var scheduledAt = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *clock
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	eng := engine.New(conn, config.Default("test"))
	eng.Now = clk.Now
	return testEnv{Engine: eng, Ctx: context.Background(), Clock: clk}
}

func userInput(id, doc string) engine.UserInput {
	return engine.UserInput{
		ID:       id,
		Name:     "User " + id,
		Document: doc,
		Email:    id + "@example.com",
		Contact:  "(11) 91234-5678",
		DOB:      time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

// seed registers the cleaning work, provider-1 pricing it, and client-1.
func (env testEnv) seed(t *testing.T) {
	t.Helper()
	_, err := env.Engine.CreateWork(env.Ctx, engine.WorkCreateOptions{
		ID: "w-cleaning", Name: "Cleaning", ActorID: "admin",
		Jobs: []engine.WorkJobInput{{ID: "j-kitchen", Name: "Kitchen"}, {ID: "j-bath", Name: "Bathroom"}},
	})
	require.NoError(t, err)
	_, err = env.Engine.CreateProvider(env.Ctx, engine.ProviderCreateOptions{
		User:    userInput("provider-1", "111.444.777-35"),
		ActorID: "provider-1",
		Works: []engine.ProviderWorkInput{{
			ID: "pw-1", WorkID: "w-cleaning", MinCost: decimal.NewFromInt(100),
			Jobs: []engine.ProviderWorkJobInput{{ID: "pj-kitchen", JobID: "j-kitchen", Cost: decimal.NewFromInt(40), EstimatedDuration: 90 * time.Minute}},
		}},
	})
	require.NoError(t, err)
	_, err = env.Engine.CreateClient(env.Ctx, engine.ClientCreateOptions{
		User:    userInput("client-1", "529.982.247-25"),
		Address: engine.AddressInput{CEP: "01310-100", Number: 1000},
		ActorID: "client-1",
	})
	require.NoError(t, err)
}

func (env testEnv) newRequest(t *testing.T, id string) *domain.ServiceRequest {
	t.Helper()
	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ID: id, ProviderID: "provider-1", ProviderWorkID: "pw-1", ScheduledAt: scheduledAt, ActorID: "client-1",
	})
	require.NoError(t, err)
	return req
}

func TestRequestLifecycleThroughStorage(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	req := env.newRequest(t, "req-1")
	assert.Equal(t, domain.StatusCreated, req.Status())
	assert.Equal(t, "100", req.TotalCost().String())

	steps := []struct {
		name string
		run  func() (*domain.ServiceRequest, error)
		want domain.Status
	}{
		{"schedule", func() (*domain.ServiceRequest, error) { return env.Engine.Schedule(env.Ctx, "req-1", "client-1") }, domain.StatusScheduled},
		{"confirm", func() (*domain.ServiceRequest, error) { return env.Engine.Confirm(env.Ctx, "req-1", "provider-1") }, domain.StatusConfirmed},
		{"start", func() (*domain.ServiceRequest, error) {
			env.Clock.Set(scheduledAt.Add(time.Minute))
			return env.Engine.Start(env.Ctx, "req-1", "provider-1")
		}, domain.StatusStarted},
		{"client finish", func() (*domain.ServiceRequest, error) { return env.Engine.Finish(env.Ctx, "req-1", "client-1") }, domain.StatusFinished},
		{"provider finish", func() (*domain.ServiceRequest, error) { return env.Engine.Finish(env.Ctx, "req-1", "provider-1") }, domain.StatusFinished},
		{"client rate", func() (*domain.ServiceRequest, error) { return env.Engine.Rate(env.Ctx, "req-1", "client-1", 5) }, domain.StatusRated},
		{"provider rate", func() (*domain.ServiceRequest, error) { return env.Engine.Rate(env.Ctx, "req-1", "provider-1", 4) }, domain.StatusRated},
	}
	for _, step := range steps {
		got, err := step.run()
		require.NoError(t, err, step.name)
		assert.Equal(t, step.want, got.Status(), step.name)
	}

	loaded, err := env.Engine.GetRequest(env.Ctx, "req-1", "client-1")
	require.NoError(t, err)
	assert.Len(t, loaded.Logs(), 8)
	assert.True(t, loaded.Closed())

	provider, err := env.Engine.GetProvider(env.Ctx, "provider-1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, provider.Rating())
	client, err := env.Engine.GetClient(env.Ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, client.Rating())

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 20, "", "service_request", "req-1")
	require.NoError(t, err)
	require.Len(t, evts, 8)
	assert.Equal(t, "request.rated", evts[0].Type)
	assert.Equal(t, "request.created", evts[len(evts)-1].Type)

	_, err = env.Engine.Rate(env.Ctx, "req-1", "client-1", 3)
	var already domain.AlreadyPerformedError
	assert.True(t, errors.As(err, &already))
}

func TestGuardsSurviveReload(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	env.newRequest(t, "req-1")

	_, err := env.Engine.Start(env.Ctx, "req-1", "provider-1")
	var stage domain.InvalidStageError
	require.True(t, errors.As(err, &stage))
	assert.Equal(t, domain.StatusCreated, stage.Current)

	_, err = env.Engine.Schedule(env.Ctx, "req-1", "client-1")
	require.NoError(t, err)
	_, err = env.Engine.Confirm(env.Ctx, "req-1", "provider-1")
	require.NoError(t, err)

	_, err = env.Engine.Start(env.Ctx, "req-1", "provider-1")
	var premature domain.PrematureActionError
	require.True(t, errors.As(err, &premature))

	_, err = env.Engine.Cancel(env.Ctx, "req-1", "client-1", "found someone else")
	require.NoError(t, err)
	_, err = env.Engine.Cancel(env.Ctx, "req-1", "client-1", "again")
	var already domain.AlreadyPerformedError
	require.True(t, errors.As(err, &already))

	logs, err := env.Engine.Logs(env.Ctx, "req-1", "provider-1")
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Equal(t, "found someone else", logs[3].Reason)
	assert.Equal(t, "client-1", logs[3].ActorID())

	list, err := env.Engine.ListRequests(env.Ctx, "client-1", repo.RequestFilters{Status: "CANCELLED"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "req-1", list[0].ID)
}

func TestRescheduleKeepsNewTime(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	env.newRequest(t, "req-1")
	_, err := env.Engine.Schedule(env.Ctx, "req-1", "client-1")
	require.NoError(t, err)

	later := scheduledAt.Add(48 * time.Hour)
	_, err = env.Engine.Reschedule(env.Ctx, "req-1", "provider-1", later)
	var unauthorized domain.UnauthorizedActorError
	require.True(t, errors.As(err, &unauthorized))

	req, err := env.Engine.Reschedule(env.Ctx, "req-1", "client-1", later)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRescheduled, req.Status())

	loaded, err := env.Engine.GetRequest(env.Ctx, "req-1", "client-1")
	require.NoError(t, err)
	assert.Equal(t, later, loaded.When())
}

func TestStrangersAreUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	env.newRequest(t, "req-1")

	_, err := env.Engine.Schedule(env.Ctx, "req-1", "mallory")
	var unauthorized domain.UnauthorizedActorError
	require.True(t, errors.As(err, &unauthorized))
	assert.Equal(t, "mallory", unauthorized.ActorID)

	_, err = env.Engine.GetRequest(env.Ctx, "req-1", "mallory")
	var forbidden auth.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	_, err = env.Engine.GetRequest(env.Ctx, "req-1", "admin")
	assert.NoError(t, err)

	_, err = env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ClientID: "client-1", ProviderID: "provider-1", ScheduledAt: scheduledAt, ActorID: "provider-1",
	})
	require.True(t, errors.As(err, &unauthorized))
	assert.Equal(t, domain.ActionCreate, unauthorized.Action)

	list, err := env.Engine.ListRequests(env.Ctx, "mallory", repo.RequestFilters{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConcurrentTransitionsOnOneRequest(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	env.newRequest(t, "req-1")
	_, err := env.Engine.Schedule(env.Ctx, "req-1", "client-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := map[domain.Action]int{}
	calls := []func() (*domain.ServiceRequest, error){
		func() (*domain.ServiceRequest, error) { return env.Engine.Cancel(env.Ctx, "req-1", "client-1", "") },
		func() (*domain.ServiceRequest, error) { return env.Engine.Confirm(env.Ctx, "req-1", "provider-1") },
		func() (*domain.ServiceRequest, error) { return env.Engine.Refuse(env.Ctx, "req-1", "provider-1") },
	}
	actions := []domain.Action{domain.ActionCancel, domain.ActionConfirm, domain.ActionRefuse}
	for round := 0; round < 4; round++ {
		for i := range calls {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := calls[i](); err == nil {
					mu.Lock()
					succeeded[actions[i]]++
					mu.Unlock()
				}
			}(i)
		}
	}
	wg.Wait()

	decided := succeeded[domain.ActionConfirm] + succeeded[domain.ActionRefuse]
	assert.LessOrEqual(t, decided, 1)
	assert.LessOrEqual(t, succeeded[domain.ActionCancel], 1)
	assert.Equal(t, 1, max(decided, succeeded[domain.ActionCancel]))

	logs, err := env.Engine.Logs(env.Ctx, "req-1", "client-1")
	require.NoError(t, err)
	total := succeeded[domain.ActionCancel] + succeeded[domain.ActionConfirm] + succeeded[domain.ActionRefuse]
	require.Len(t, logs, 2+total)
	for i := 1; i < len(logs); i++ {
		ok := false
		for _, a := range domain.Actions {
			if domain.Allows(a, logs[i-1].Status, logs[i].Status) {
				ok = true
				break
			}
		}
		assert.True(t, ok, "%s -> %s", logs[i-1].Status, logs[i].Status)
	}
}

func TestCatalogRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	_, err := env.Engine.CreateWork(env.Ctx, engine.WorkCreateOptions{Name: "Painting", ActorID: "client-1", Jobs: []engine.WorkJobInput{{Name: "Wall"}}})
	var forbidden auth.ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, auth.PermCatalogWrite, forbidden.Permission)

	_, err = env.Engine.CreateWork(env.Ctx, engine.WorkCreateOptions{Name: "Painting", ActorID: "admin"})
	var empty domain.EmptyCollectionError
	assert.True(t, errors.As(err, &empty))

	w, err := env.Engine.AddWorkJob(env.Ctx, "w-cleaning", "admin", engine.WorkJobInput{ID: "j-windows", Name: "Windows"})
	require.NoError(t, err)
	assert.Len(t, w.Jobs(), 3)

	_, err = env.Engine.RemoveWorkJob(env.Ctx, "w-cleaning", "j-kitchen", "admin")
	assert.ErrorIs(t, err, repo.ErrInUse)

	w, err = env.Engine.RemoveWorkJob(env.Ctx, "w-cleaning", "j-windows", "admin")
	require.NoError(t, err)
	assert.Len(t, w.Jobs(), 2)

	works, err := env.Engine.ListWorks(env.Ctx)
	require.NoError(t, err)
	require.Len(t, works, 1)
	assert.Len(t, works[0].Jobs(), 2)
}

func TestProviderWorkPricing(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	p, err := env.Engine.AddProviderWorkJob(env.Ctx, "provider-1", "pw-1", "provider-1", engine.ProviderWorkJobInput{
		ID: "pj-bath", JobID: "j-bath", Cost: decimal.NewFromInt(80), EstimatedDuration: time.Hour,
	})
	require.NoError(t, err)
	pw, _ := p.Work("pw-1")
	assert.Equal(t, "120", pw.TotalCost().String())

	_, err = env.Engine.UpdateProviderWorkJob(env.Ctx, "provider-1", "pw-1", "provider-1", engine.ProviderWorkJobInput{
		ID: "pj-bath", Cost: decimal.RequireFromString("10.50"), EstimatedDuration: time.Hour,
	})
	require.NoError(t, err)
	_, err = env.Engine.ChangeProviderWorkMinCost(env.Ctx, "provider-1", "pw-1", "provider-1", decimal.NewFromInt(20))
	require.NoError(t, err)

	p, err = env.Engine.GetProvider(env.Ctx, "provider-1")
	require.NoError(t, err)
	pw, _ = p.Work("pw-1")
	assert.Equal(t, "50.5", pw.TotalCost().String())
	assert.Equal(t, 150*time.Minute, pw.EstimatedDuration())

	_, err = env.Engine.AddProviderWorkJob(env.Ctx, "provider-1", "pw-1", "client-1", engine.ProviderWorkJobInput{JobID: "j-bath"})
	var forbidden auth.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	_, err = env.Engine.RemoveProviderWork(env.Ctx, "provider-1", "pw-1", "provider-1")
	var empty domain.EmptyCollectionError
	assert.True(t, errors.As(err, &empty))

	_, err = env.Engine.AddProviderWorkJob(env.Ctx, "provider-1", "pw-1", "provider-1", engine.ProviderWorkJobInput{JobID: "j-unknown"})
	var unknown domain.UnknownItemError
	assert.True(t, errors.As(err, &unknown))
}

func TestParticipantProfiles(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	_, err := env.Engine.CreateClient(env.Ctx, engine.ClientCreateOptions{
		User: userInput("client-1", "390.533.447-05"), Address: engine.AddressInput{CEP: "01310-100", Number: 1}, ActorID: "client-1",
	})
	var dup domain.DuplicateItemError
	assert.True(t, errors.As(err, &dup))

	young := userInput("client-2", "390.533.447-05")
	young.DOB = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = env.Engine.CreateClient(env.Ctx, engine.ClientCreateOptions{User: young, Address: engine.AddressInput{CEP: "01310-100", Number: 1}, ActorID: "client-2"})
	var invalid domain.ValidationError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "dob", invalid.Field)

	name := "Renamed"
	c, err := env.Engine.UpdateClient(env.Ctx, engine.ClientUpdateOptions{
		ID: "client-1", ActorID: "client-1",
		Profile: engine.ProfileUpdate{Name: &name},
		Address: &engine.AddressInput{CEP: "04538-133", Number: 42, Complement: "sala 1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", c.Name)

	c, err = env.Engine.GetClient(env.Ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "04538-133", c.Address.CEP)
	assert.Equal(t, "sala 1", c.Address.Complement)

	_, err = env.Engine.UpdateClient(env.Ctx, engine.ClientUpdateOptions{ID: "client-1", ActorID: "provider-1", Profile: engine.ProfileUpdate{Name: &name}})
	var forbidden auth.ForbiddenError
	assert.True(t, errors.As(err, &forbidden))

	env.newRequest(t, "req-1")
	assert.ErrorIs(t, env.Engine.DeleteClient(env.Ctx, "client-1", "client-1"), repo.ErrInUse)

	_, err = env.Engine.CreateClient(env.Ctx, engine.ClientCreateOptions{
		User: userInput("client-3", "390.533.447-05"), Address: engine.AddressInput{CEP: "01310-100", Number: 1}, ActorID: "client-3",
	})
	require.NoError(t, err)
	require.NoError(t, env.Engine.DeleteClient(env.Ctx, "client-3", "client-3"))
	_, err = env.Engine.GetClient(env.Ctx, "client-3")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	plain, key, err := env.Engine.CreateAPIKey(env.Ctx, "client-1", "laptop")
	require.NoError(t, err)
	assert.NotEmpty(t, plain)
	assert.Equal(t, repo.HashAPIKey(plain), key.KeyHash)

	stored, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	require.NoError(t, err)
	assert.Equal(t, "client-1", stored.ActorID)

	_, _, err = env.Engine.CreateAPIKey(env.Ctx, "nobody", "")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	assert.ErrorIs(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, "provider-1"), repo.ErrNotFound)
	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, "client-1"))
	keys, err := env.Engine.ListAPIKeys(env.Ctx, "client-1")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEventsVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	env.newRequest(t, "req-1")
	_, err := env.Engine.Schedule(env.Ctx, "req-1", "client-1")
	require.NoError(t, err)

	q := engine.EventQuery{EntityKind: "service_request", EntityID: "req-1", Limit: 10}
	evts, err := env.Engine.ListEvents(env.Ctx, "provider-1", q)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "request.scheduled", evts[0].Type)

	var fe auth.ForbiddenError
	_, err = env.Engine.ListEvents(env.Ctx, "stranger", q)
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, auth.PermEventsRead, fe.Permission)
	_, err = env.Engine.ListEvents(env.Ctx, "client-1", engine.EventQuery{})
	require.True(t, errors.As(err, &fe))
	_, err = env.Engine.ListEvents(env.Ctx, "client-1", engine.EventQuery{EntityKind: "service_request", EntityID: "missing"})
	require.True(t, errors.As(err, &fe))

	all, err := env.Engine.ListEvents(env.Ctx, "admin", engine.EventQuery{Limit: 100})
	require.NoError(t, err)
	after, err := env.Engine.EventsAfter(env.Ctx, "admin", all[2].ID, 100)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, all[1].ID, after[0].ID)
	assert.Equal(t, all[0].ID, after[1].ID)

	_, err = env.Engine.EventsAfter(env.Ctx, "client-1", 0, 10)
	require.True(t, errors.As(err, &fe))
}

func TestScheduledTimeKeepsSubSecondPrecision(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	at := scheduledAt.Add(900 * time.Millisecond)
	_, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ID: "req-ms", ProviderID: "provider-1", ProviderWorkID: "pw-1", ScheduledAt: at, ActorID: "client-1",
	})
	require.NoError(t, err)
	_, err = env.Engine.Schedule(env.Ctx, "req-ms", "client-1")
	require.NoError(t, err)
	_, err = env.Engine.Confirm(env.Ctx, "req-ms", "provider-1")
	require.NoError(t, err)

	env.Clock.Set(scheduledAt.Add(100 * time.Millisecond))
	_, err = env.Engine.Start(env.Ctx, "req-ms", "provider-1")
	var pae domain.PrematureActionError
	require.ErrorAs(t, err, &pae)

	req, err := env.Engine.GetRequest(env.Ctx, "req-ms", "client-1")
	require.NoError(t, err)
	assert.True(t, at.Equal(req.When()), "got %s", req.When())
	assert.Equal(t, domain.StatusConfirmed, req.Status())

	later := at.Add(time.Hour + 250*time.Millisecond)
	_, err = env.Engine.Reschedule(env.Ctx, "req-ms", "client-1", later)
	var ise domain.InvalidStageError
	require.ErrorAs(t, err, &ise)

	env.Clock.Set(at)
	req, err = env.Engine.Start(env.Ctx, "req-ms", "provider-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStarted, req.Status())
}
