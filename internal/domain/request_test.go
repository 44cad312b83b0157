package domain_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/domain"
)

func statuses(logs []domain.Log) []domain.Status {
	out := make([]domain.Status, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Status)
	}
	return out
}

func TestNewServiceRequestLogsCreated(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)

	logs := req.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.StatusCreated, logs[0].Status)
	assert.Equal(t, p.client.ID, logs[0].ActorID())
	assert.Equal(t, p.clock.Now(), logs[0].At)
	assert.Equal(t, logs[0], req.CurrentLog())
	assert.Equal(t, scheduledAt, req.When())
	assert.Equal(t, "100", req.TotalCost().String())
}

func TestNewServiceRequestRejectsInvalidBindings(t *testing.T) {
	p := newParties(t)

	_, err := domain.NewServiceRequest(domain.RequestParams{
		ID:          "req-x",
		Client:      domain.NewClient(p.provider.User, p.client.Address),
		Provider:    p.provider,
		ScheduledAt: scheduledAt,
	})
	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "provider", ve.Field)

	other := newProviderWork(t, newWork(t))
	other.ID = "pw-foreign"
	_, err = domain.NewServiceRequest(domain.RequestParams{
		ID:          "req-y",
		Client:      p.client,
		Provider:    p.provider,
		Work:        other,
		ScheduledAt: scheduledAt,
	})
	var ue domain.UnknownItemError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "pw-foreign", ue.ID)
}

func TestRestoreServiceRequestRequiresLogs(t *testing.T) {
	p := newParties(t)
	_, err := domain.RestoreServiceRequest(domain.RequestParams{
		ID: "req-1", Client: p.client, Provider: p.provider, ScheduledAt: scheduledAt,
	}, nil)
	require.ErrorIs(t, err, domain.ErrEmptyLog)
}

func TestFullLifecycle(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)
	c, pr := p.client.User, p.provider.User

	require.NoError(t, req.Schedule(c))
	require.NoError(t, req.Confirm(pr))
	p.clock.Set(scheduledAt)
	require.NoError(t, req.Start(pr))
	require.NoError(t, req.Finish(pr))
	require.NoError(t, req.Finish(c))
	require.NoError(t, req.Rate(c, 5))
	require.NoError(t, req.Rate(pr, 4))

	logs := req.Logs()
	assert.Len(t, logs, 8)
	assert.Equal(t, domain.StatusRated, req.CurrentLog().Status)
	assert.Equal(t, 5.0, p.provider.Rating())
	assert.Equal(t, 4.0, p.client.Rating())
	assert.True(t, req.Closed())
	assert.Equal(t, []domain.Status{
		domain.StatusCreated,
		domain.StatusScheduled,
		domain.StatusConfirmed,
		domain.StatusStarted,
		domain.StatusFinished,
		domain.StatusFinished,
		domain.StatusRated,
		domain.StatusRated,
	}, statuses(logs))
}

func TestCancelOnlyOnce(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)
	c := p.client.User

	require.NoError(t, req.Schedule(c))
	require.NoError(t, req.Cancel(c, "changed plans"))

	cur := req.CurrentLog()
	assert.Equal(t, domain.StatusCancelled, cur.Status)
	assert.Equal(t, "changed plans", cur.Reason)

	err := req.Cancel(c, "again")
	var ape domain.AlreadyPerformedError
	require.ErrorAs(t, err, &ape)
	assert.Equal(t, domain.ActionCancel, ape.Action)
	assert.Len(t, req.Logs(), 3)
	assert.True(t, req.Closed())
}

func TestCancelAfterConfirm(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)
	require.NoError(t, req.Schedule(p.client.User))
	require.NoError(t, req.Confirm(p.provider.User))
	require.NoError(t, req.Cancel(p.client.User, "found someone closer"))
	assert.Equal(t, domain.StatusCancelled, req.Status())
}

func TestCancelRejectedAfterStart(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)
	require.NoError(t, req.Schedule(p.client.User))
	require.NoError(t, req.Confirm(p.provider.User))
	p.clock.Set(scheduledAt.Add(time.Minute))
	require.NoError(t, req.Start(p.provider.User))

	var ise domain.InvalidStageError
	require.ErrorAs(t, req.Cancel(p.client.User, "too late"), &ise)
	assert.Equal(t, domain.StatusStarted, ise.Current)
}

func TestStartBeforeConfirmFails(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)
	require.NoError(t, req.Schedule(p.client.User))

	// even with the scheduled time reached, the stage check fails first
	p.clock.Set(scheduledAt.Add(time.Hour))
	err := req.Start(p.provider.User)
	var ise domain.InvalidStageError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, domain.StatusScheduled, ise.Current)
	assert.Equal(t, []domain.Status{domain.StatusConfirmed}, ise.Allowed)
	assert.Len(t, req.Logs(), 2)
}

func TestStartBeforeScheduledTimeFails(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)
	require.NoError(t, req.Schedule(p.client.User))
	require.NoError(t, req.Confirm(p.provider.User))

	p.clock.Set(scheduledAt.Add(-time.Second))
	err := req.Start(p.provider.User)
	var pae domain.PrematureActionError
	require.ErrorAs(t, err, &pae)
	assert.Equal(t, scheduledAt, pae.ScheduledAt)
	assert.Equal(t, domain.StatusConfirmed, req.Status())

	p.clock.Set(scheduledAt)
	require.NoError(t, req.Start(p.provider.User))
}

func TestRescheduleMovesTimeOnlyWhenAllowed(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)
	later := scheduledAt.Add(48 * time.Hour)

	// CREATED does not accept reschedule
	var ise domain.InvalidStageError
	require.ErrorAs(t, req.Reschedule(p.client.User, later), &ise)
	assert.Equal(t, scheduledAt, req.When())

	// wrong actor leaves the time untouched too
	require.NoError(t, req.Schedule(p.client.User))
	var uae domain.UnauthorizedActorError
	require.ErrorAs(t, req.Reschedule(p.provider.User, later), &uae)
	assert.Equal(t, scheduledAt, req.When())
	require.ErrorAs(t, req.Reschedule(p.provider.User, time.Time{}), &uae)

	var ve domain.ValidationError
	require.ErrorAs(t, req.Reschedule(p.client.User, time.Time{}), &ve)
	assert.Equal(t, "scheduled_at", ve.Field)
	assert.Equal(t, scheduledAt, req.When())
	assert.Len(t, req.Logs(), 2)

	require.NoError(t, req.Reschedule(p.client.User, later))
	require.NoError(t, req.Reschedule(p.client.User, later.Add(time.Hour)))
	assert.Equal(t, later.Add(time.Hour), req.When())
	assert.Equal(t, domain.StatusRescheduled, req.Status())

	require.NoError(t, req.Refuse(p.provider.User))
	assert.Equal(t, domain.StatusRefused, req.Status())
	assert.True(t, req.Closed())
}

func TestFinishAndRateAreActorScoped(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)
	c, pr := p.client.User, p.provider.User
	require.NoError(t, req.Schedule(c))
	require.NoError(t, req.Confirm(pr))
	p.clock.Set(scheduledAt)
	require.NoError(t, req.Start(pr))

	var ise domain.InvalidStageError
	require.ErrorAs(t, req.Rate(c, 5), &ise)

	require.NoError(t, req.Finish(pr))
	var ape domain.AlreadyPerformedError
	require.ErrorAs(t, req.Finish(pr), &ape)
	assert.Equal(t, pr.ID, ape.ActorID)
	assert.Len(t, req.Logs(), 5)

	require.NoError(t, req.Rate(pr, 3))
	require.ErrorAs(t, req.Rate(pr, 4), &ape)
	assert.Len(t, req.Logs(), 6)
	assert.False(t, req.Closed())

	// once rated, finish is closed to the client but rating is not
	require.ErrorAs(t, req.Finish(c), &ise)
	assert.Equal(t, domain.StatusRated, ise.Current)
	assert.Len(t, req.Logs(), 6)
	require.NoError(t, req.Rate(c, 5))
	assert.Equal(t, 3.0, p.client.Rating())
	assert.Equal(t, 5.0, p.provider.Rating())
	assert.True(t, req.Closed())
}

func TestRateWithInvalidValueAppendsNothing(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)
	c, pr := p.client.User, p.provider.User
	require.NoError(t, req.Schedule(c))
	require.NoError(t, req.Confirm(pr))
	p.clock.Set(scheduledAt)
	require.NoError(t, req.Start(pr))
	require.NoError(t, req.Finish(c))

	for _, v := range []float64{0, 5.5, -1} {
		var ire domain.InvalidRatingError
		require.ErrorAs(t, req.Rate(c, v), &ire)
		assert.Equal(t, v, ire.Value)
	}
	assert.Len(t, req.Logs(), 5)
	assert.Equal(t, 0, p.provider.Ratings().Count())

	require.NoError(t, req.Rate(c, 1))
	assert.Equal(t, 1.0, p.provider.Rating())
}

func TestRoleEnforcement(t *testing.T) {
	p := newParties(t)
	c, pr := p.client.User, p.provider.User
	stranger := newUser(t, "stranger", "Sam Stranger", "390.533.447-05")
	later := scheduledAt.Add(time.Hour)

	cases := []struct {
		name  string
		do    func(*domain.ServiceRequest, *domain.User) error
		wrong []*domain.User
	}{
		{"schedule", func(r *domain.ServiceRequest, u *domain.User) error { return r.Schedule(u) }, []*domain.User{pr, stranger}},
		{"reschedule", func(r *domain.ServiceRequest, u *domain.User) error { return r.Reschedule(u, later) }, []*domain.User{pr, stranger}},
		{"cancel", func(r *domain.ServiceRequest, u *domain.User) error { return r.Cancel(u, "x") }, []*domain.User{pr, stranger}},
		{"confirm", func(r *domain.ServiceRequest, u *domain.User) error { return r.Confirm(u) }, []*domain.User{c, stranger}},
		{"refuse", func(r *domain.ServiceRequest, u *domain.User) error { return r.Refuse(u) }, []*domain.User{c, stranger}},
		{"start", func(r *domain.ServiceRequest, u *domain.User) error { return r.Start(u) }, []*domain.User{c, stranger}},
		{"finish", func(r *domain.ServiceRequest, u *domain.User) error { return r.Finish(u) }, []*domain.User{stranger, nil}},
		{"rate", func(r *domain.ServiceRequest, u *domain.User) error { return r.Rate(u, 5) }, []*domain.User{stranger, nil}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// a fresh request in CREATED: the stage is wrong for most actions,
			// yet the authorization error must win
			req := newRequest(t, p)
			for _, u := range tc.wrong {
				err := tc.do(req, u)
				var uae domain.UnauthorizedActorError
				require.ErrorAs(t, err, &uae)
				assert.Equal(t, domain.Action(tc.name), uae.Action)
			}
			assert.Len(t, req.Logs(), 1)
		})
	}
}

func TestAvailableActions(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)
	c, pr := p.client.User, p.provider.User

	assert.Equal(t, []domain.Action{domain.ActionSchedule}, req.Available(c))
	assert.Empty(t, req.Available(pr))

	require.NoError(t, req.Schedule(c))
	assert.Equal(t, []domain.Action{domain.ActionReschedule, domain.ActionCancel}, req.Available(c))
	assert.Equal(t, []domain.Action{domain.ActionConfirm, domain.ActionRefuse}, req.Available(pr))

	require.NoError(t, req.Confirm(pr))
	assert.Empty(t, req.Available(pr), "start waits for the scheduled time")
	p.clock.Set(scheduledAt)
	assert.Equal(t, []domain.Action{domain.ActionStart}, req.Available(pr))
}

func TestParticipantResolution(t *testing.T) {
	p := newParties(t)
	req := newRequest(t, p)

	assert.Same(t, p.client.User, req.Participant(p.client.ID))
	assert.Same(t, p.provider.User, req.Participant(p.provider.ID))
	assert.Nil(t, req.Participant("nobody"))
	assert.Same(t, p.provider.User, req.Counterpart(p.client.User))
	assert.Same(t, p.client.User, req.Counterpart(p.provider.User))

	role, ok := req.RoleOf(p.provider.User)
	assert.True(t, ok)
	assert.Equal(t, domain.RoleProvider, role)
}

// Interleaved transitions on one request must never let two entries pass the
// same stage precondition.
func TestConcurrentTransitionsAreSerialized(t *testing.T) {
	for i := 0; i < 50; i++ {
		p := newParties(t)
		req := newRequest(t, p)
		c, pr := p.client.User, p.provider.User
		require.NoError(t, req.Schedule(c))

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded = map[string]int{}
		)
		record := func(name string, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded[name]++
				return
			}
			var ise domain.InvalidStageError
			var ape domain.AlreadyPerformedError
			if !errors.As(err, &ise) && !errors.As(err, &ape) {
				t.Errorf("unexpected error from %s: %v", name, err)
			}
		}
		for n := 0; n < 4; n++ {
			wg.Add(3)
			go func() { defer wg.Done(); record("cancel", req.Cancel(c, "race")) }()
			go func() { defer wg.Done(); record("confirm", req.Confirm(pr)) }()
			go func() { defer wg.Done(); record("refuse", req.Refuse(pr)) }()
		}
		wg.Wait()

		decided := succeeded["confirm"] + succeeded["refuse"]
		assert.LessOrEqual(t, succeeded["cancel"], 1)
		assert.LessOrEqual(t, decided, 1, "confirm and refuse are mutually exclusive")
		assert.Equal(t, 1, max(decided, succeeded["cancel"]), "the first call always wins")
		assert.Len(t, req.Logs(), 2+decided+succeeded["cancel"])

		logs := req.Logs()
		for i := 1; i < len(logs); i++ {
			prev, cur := logs[i-1].Status, logs[i].Status
			ok := false
			for _, a := range domain.Actions {
				if domain.Allows(a, prev, cur) {
					ok = true
					break
				}
			}
			assert.Truef(t, ok, "entry %d: %s -> %s is not a lifecycle transition", i, prev, cur)
		}
	}
}

func TestActionsForRole(t *testing.T) {
	assert.Equal(t, []domain.Action{domain.ActionSchedule, domain.ActionReschedule, domain.ActionCancel, domain.ActionFinish, domain.ActionRate},
		domain.ActionsFor(domain.RoleClient))
	assert.Equal(t, []domain.Action{domain.ActionConfirm, domain.ActionRefuse, domain.ActionStart, domain.ActionFinish, domain.ActionRate},
		domain.ActionsFor(domain.RoleProvider))
	assert.Empty(t, domain.ActionsFor(domain.Role("admin")))
}
