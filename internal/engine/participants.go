package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"servicehub/internal/domain"
	"servicehub/internal/engine/auth"
	"servicehub/internal/events"
	"servicehub/internal/repo"
)

// UserInput carries the raw registration fields of a participant.
type UserInput struct {
	ID       string
	Name     string
	Document string
	Email    string
	Contact  string
	DOB      time.Time
}

type AddressInput struct {
	CEP        string
	Number     int
	Complement string
}

type ClientCreateOptions struct {
	User    UserInput
	Address AddressInput
	ActorID string
}

// ProfileUpdate holds optional profile changes; nil fields stay as they are.
type ProfileUpdate struct {
	Name    *string
	Email   *string
	Contact *string
}

type ClientUpdateOptions struct {
	ID      string
	ActorID string
	Profile ProfileUpdate
	Address *AddressInput
}

type ProviderWorkJobInput struct {
	ID                string
	JobID             string
	Cost              decimal.Decimal
	EstimatedDuration time.Duration
}

type ProviderWorkInput struct {
	ID      string
	WorkID  string
	MinCost decimal.Decimal
	Jobs    []ProviderWorkJobInput
}

type ProviderCreateOptions struct {
	User    UserInput
	Works   []ProviderWorkInput
	ActorID string
}

type ProviderUpdateOptions struct {
	ID      string
	ActorID string
	Profile ProfileUpdate
}

// registrant resolves the id of a new participant: it defaults to the actor,
// and only catalog admins may register someone else.
func (e Engine) registrant(id, actorID string) (string, error) {
	if actorID == "" {
		return "", auth.ErrActorRequired
	}
	if id == "" {
		return actorID, nil
	}
	if id != actorID && !e.Config.IsCatalogAdmin(actorID) {
		return "", auth.ForbiddenError{Permission: auth.PermProfileWrite}
	}
	return id, nil
}

func (e Engine) buildUser(in UserInput) (*domain.User, error) {
	doc, err := domain.NewDocument(in.Document)
	if err != nil {
		return nil, err
	}
	email, err := domain.NewEmail(in.Email)
	if err != nil {
		return nil, err
	}
	contact, err := domain.NewContact(in.Contact)
	if err != nil {
		return nil, err
	}
	return domain.NewUser(domain.UserParams{
		ID:       in.ID,
		Name:     in.Name,
		Document: doc,
		Email:    email,
		Contact:  contact,
		DOB:      in.DOB,
	}, e.now())
}

func applyProfile(u *domain.User, p ProfileUpdate) error {
	if p.Name != nil {
		if err := u.ChangeName(*p.Name); err != nil {
			return err
		}
	}
	if p.Email != nil {
		email, err := domain.NewEmail(*p.Email)
		if err != nil {
			return err
		}
		u.ChangeEmail(email)
	}
	if p.Contact != nil {
		contact, err := domain.NewContact(*p.Contact)
		if err != nil {
			return err
		}
		u.ChangeContact(contact)
	}
	return nil
}

func (e Engine) CreateClient(ctx context.Context, opts ClientCreateOptions) (*domain.Client, error) {
	id, err := e.registrant(opts.User.ID, opts.ActorID)
	if err != nil {
		return nil, err
	}
	opts.User.ID = id
	u, err := e.buildUser(opts.User)
	if err != nil {
		return nil, err
	}
	addr, err := domain.NewAddress(opts.Address.CEP, opts.Address.Number, opts.Address.Complement)
	if err != nil {
		return nil, err
	}
	c := domain.NewClient(u, addr)
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.ensureUnregistered(ctx, tx, id); err != nil {
			return err
		}
		if err := e.Repo.InsertClient(ctx, tx, c, e.now()); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "client.created", events.KindClient, c.ID, opts.ActorID, events.EventPayload{"name": c.Name})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (e Engine) ensureUnregistered(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := e.Repo.UserRole(ctx, tx, id)
	if err == nil {
		return domain.DuplicateItemError{Collection: "user", ID: id}
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	return err
}

func (e Engine) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	return e.Repo.GetClient(ctx, nil, id)
}

func (e Engine) ListClients(ctx context.Context) ([]*domain.Client, error) {
	return e.Repo.ListClients(ctx)
}

func (e Engine) UpdateClient(ctx context.Context, opts ClientUpdateOptions) (*domain.Client, error) {
	if err := auth.RequireSelf(opts.ActorID, opts.ID); err != nil {
		return nil, err
	}
	var c *domain.Client
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if c, err = e.Repo.GetClient(ctx, tx, opts.ID); err != nil {
			return err
		}
		if err := applyProfile(c.User, opts.Profile); err != nil {
			return err
		}
		if opts.Address != nil {
			addr, err := domain.NewAddress(opts.Address.CEP, opts.Address.Number, opts.Address.Complement)
			if err != nil {
				return err
			}
			c.ChangeAddress(addr)
		}
		if err := e.Repo.UpdateClient(ctx, tx, c, e.now()); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "client.updated", events.KindClient, c.ID, opts.ActorID, nil)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (e Engine) DeleteClient(ctx context.Context, id, actorID string) error {
	return e.deleteUser(ctx, id, actorID, domain.RoleClient, events.KindClient)
}

func (e Engine) DeleteProvider(ctx context.Context, id, actorID string) error {
	return e.deleteUser(ctx, id, actorID, domain.RoleProvider, events.KindProvider)
}

func (e Engine) deleteUser(ctx context.Context, id, actorID string, role domain.Role, kind string) error {
	if err := auth.RequireSelf(actorID, id); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteUser(ctx, tx, id, role); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, kind+".deleted", kind, id, actorID, nil)
	})
}

// buildProviderWork prices a catalog work; every job must come from it.
func (e Engine) buildProviderWork(ctx context.Context, tx *sql.Tx, in ProviderWorkInput) (*domain.ProviderWork, error) {
	work, err := e.Repo.GetWork(ctx, tx, in.WorkID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, domain.UnknownItemError{Collection: "work", ID: in.WorkID}
	}
	if err != nil {
		return nil, err
	}
	jobs := make([]domain.ProviderWorkJob, 0, len(in.Jobs))
	for _, j := range in.Jobs {
		job, err := buildProviderWorkJob(work, j)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return domain.NewProviderWork(newID(in.ID), work, in.MinCost, jobs...)
}

func buildProviderWorkJob(work *domain.Work, in ProviderWorkJobInput) (domain.ProviderWorkJob, error) {
	wj, ok := work.Job(in.JobID)
	if !ok {
		return domain.ProviderWorkJob{}, domain.UnknownItemError{Collection: "work job", ID: in.JobID}
	}
	return domain.ProviderWorkJob{
		ID:                newID(in.ID),
		Cost:              in.Cost,
		EstimatedDuration: in.EstimatedDuration,
		Job:               wj,
	}, nil
}

func (e Engine) CreateProvider(ctx context.Context, opts ProviderCreateOptions) (*domain.Provider, error) {
	id, err := e.registrant(opts.User.ID, opts.ActorID)
	if err != nil {
		return nil, err
	}
	opts.User.ID = id
	u, err := e.buildUser(opts.User)
	if err != nil {
		return nil, err
	}
	var p *domain.Provider
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.ensureUnregistered(ctx, tx, id); err != nil {
			return err
		}
		works := make([]*domain.ProviderWork, 0, len(opts.Works))
		for _, in := range opts.Works {
			pw, err := e.buildProviderWork(ctx, tx, in)
			if err != nil {
				return err
			}
			works = append(works, pw)
		}
		if p, err = domain.NewProvider(u, works...); err != nil {
			return err
		}
		if err := e.Repo.InsertProvider(ctx, tx, p, e.now()); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "provider.created", events.KindProvider, p.ID, opts.ActorID, events.EventPayload{"name": p.Name, "works": len(works)})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (e Engine) GetProvider(ctx context.Context, id string) (*domain.Provider, error) {
	return e.Repo.GetProvider(ctx, nil, id)
}

func (e Engine) ListProviders(ctx context.Context) ([]*domain.Provider, error) {
	return e.Repo.ListProviders(ctx)
}

func (e Engine) UpdateProvider(ctx context.Context, opts ProviderUpdateOptions) (*domain.Provider, error) {
	return e.withProvider(ctx, opts.ID, opts.ActorID, func(tx *sql.Tx, p *domain.Provider) error {
		if err := applyProfile(p.User, opts.Profile); err != nil {
			return err
		}
		if err := e.Repo.UpdateUser(ctx, tx, p.User, e.now()); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "provider.updated", events.KindProvider, p.ID, opts.ActorID, nil)
	})
}

// withProvider loads a provider the actor owns and runs fn in the same transaction.
func (e Engine) withProvider(ctx context.Context, id, actorID string, fn func(tx *sql.Tx, p *domain.Provider) error) (*domain.Provider, error) {
	if err := auth.RequireSelf(actorID, id); err != nil {
		return nil, err
	}
	var p *domain.Provider
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if p, err = e.Repo.GetProvider(ctx, tx, id); err != nil {
			return err
		}
		return fn(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (e Engine) AddProviderWork(ctx context.Context, providerID, actorID string, in ProviderWorkInput) (*domain.Provider, error) {
	return e.withProvider(ctx, providerID, actorID, func(tx *sql.Tx, p *domain.Provider) error {
		pw, err := e.buildProviderWork(ctx, tx, in)
		if err != nil {
			return err
		}
		if err := p.AddWork(pw); err != nil {
			return err
		}
		if err := e.Repo.InsertProviderWork(ctx, tx, p.ID, pw, e.now()); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "provider_work.added", events.KindProviderWork, pw.ID, actorID, events.EventPayload{"provider_id": p.ID, "work_id": pw.Work.ID})
	})
}

func (e Engine) RemoveProviderWork(ctx context.Context, providerID, workID, actorID string) (*domain.Provider, error) {
	return e.withProvider(ctx, providerID, actorID, func(tx *sql.Tx, p *domain.Provider) error {
		if err := p.RemoveWork(workID); err != nil {
			return err
		}
		if err := e.Repo.DeleteProviderWork(ctx, tx, p.ID, workID); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "provider_work.removed", events.KindProviderWork, workID, actorID, events.EventPayload{"provider_id": p.ID})
	})
}

// providerWork finds one of the provider's works or reports it unknown.
func providerWork(p *domain.Provider, id string) (*domain.ProviderWork, error) {
	pw, ok := p.Work(id)
	if !ok {
		return nil, domain.UnknownItemError{Collection: "provider work", ID: id}
	}
	return pw, nil
}

func (e Engine) ChangeProviderWorkMinCost(ctx context.Context, providerID, workID, actorID string, minCost decimal.Decimal) (*domain.Provider, error) {
	return e.withProvider(ctx, providerID, actorID, func(tx *sql.Tx, p *domain.Provider) error {
		pw, err := providerWork(p, workID)
		if err != nil {
			return err
		}
		if err := pw.ChangeMinCost(minCost); err != nil {
			return err
		}
		if err := e.Repo.UpdateProviderWorkMinCost(ctx, tx, pw.ID, pw.MinCost); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "provider_work.updated", events.KindProviderWork, pw.ID, actorID, events.EventPayload{"min_cost": pw.MinCost.String()})
	})
}

func (e Engine) AddProviderWorkJob(ctx context.Context, providerID, workID, actorID string, in ProviderWorkJobInput) (*domain.Provider, error) {
	return e.withProvider(ctx, providerID, actorID, func(tx *sql.Tx, p *domain.Provider) error {
		pw, err := providerWork(p, workID)
		if err != nil {
			return err
		}
		job, err := buildProviderWorkJob(pw.Work, in)
		if err != nil {
			return err
		}
		if err := pw.AddJob(job); err != nil {
			return err
		}
		if err := e.Repo.InsertProviderWorkJob(ctx, tx, pw.ID, job); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "provider_work.job_added", events.KindProviderWork, pw.ID, actorID, events.EventPayload{"job_id": job.Job.ID, "cost": job.Cost.String()})
	})
}

func (e Engine) UpdateProviderWorkJob(ctx context.Context, providerID, workID, actorID string, in ProviderWorkJobInput) (*domain.Provider, error) {
	return e.withProvider(ctx, providerID, actorID, func(tx *sql.Tx, p *domain.Provider) error {
		pw, err := providerWork(p, workID)
		if err != nil {
			return err
		}
		if err := pw.UpdateJob(in.ID, in.Cost, in.EstimatedDuration); err != nil {
			return err
		}
		job, _ := pw.Job(in.ID)
		if err := e.Repo.UpdateProviderWorkJob(ctx, tx, pw.ID, job); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "provider_work.job_updated", events.KindProviderWork, pw.ID, actorID, events.EventPayload{"job_id": job.ID, "cost": job.Cost.String()})
	})
}

func (e Engine) RemoveProviderWorkJob(ctx context.Context, providerID, workID, jobID, actorID string) (*domain.Provider, error) {
	return e.withProvider(ctx, providerID, actorID, func(tx *sql.Tx, p *domain.Provider) error {
		pw, err := providerWork(p, workID)
		if err != nil {
			return err
		}
		if err := pw.RemoveJob(jobID); err != nil {
			return err
		}
		if err := e.Repo.DeleteProviderWorkJob(ctx, tx, pw.ID, jobID); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "provider_work.job_removed", events.KindProviderWork, pw.ID, actorID, events.EventPayload{"job_id": jobID})
	})
}
