package engine

import (
	"context"
	"database/sql"
	"errors"

	"servicehub/internal/domain"
	"servicehub/internal/engine/auth"
	"servicehub/internal/events"
	"servicehub/internal/repo"
)

type WorkJobInput struct {
	ID   string
	Name string
}

type WorkCreateOptions struct {
	ID      string
	Name    string
	Jobs    []WorkJobInput
	ActorID string
}

func (e Engine) CreateWork(ctx context.Context, opts WorkCreateOptions) (*domain.Work, error) {
	if err := auth.RequireCatalogAdmin(e.Config, opts.ActorID); err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, domain.ValidationError{Field: "name", Reason: "is required"}
	}
	jobs := make([]domain.WorkJob, 0, len(opts.Jobs))
	for _, j := range opts.Jobs {
		if j.Name == "" {
			return nil, domain.ValidationError{Field: "jobs.name", Reason: "is required"}
		}
		jobs = append(jobs, domain.WorkJob{ID: newID(j.ID), Name: j.Name})
	}
	w, err := domain.NewWork(newID(opts.ID), opts.Name, jobs...)
	if err != nil {
		return nil, err
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetWork(ctx, tx, w.ID); err == nil {
			return domain.DuplicateItemError{Collection: "work", ID: w.ID}
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := e.Repo.InsertWork(ctx, tx, w, e.now()); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "work.created", events.KindWork, w.ID, opts.ActorID, events.EventPayload{"name": w.Name, "jobs": len(jobs)})
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (e Engine) GetWork(ctx context.Context, id string) (*domain.Work, error) {
	return e.Repo.GetWork(ctx, nil, id)
}

func (e Engine) ListWorks(ctx context.Context) ([]*domain.Work, error) {
	return e.Repo.ListWorks(ctx)
}

func (e Engine) AddWorkJob(ctx context.Context, workID, actorID string, in WorkJobInput) (*domain.Work, error) {
	if in.Name == "" {
		return nil, domain.ValidationError{Field: "name", Reason: "is required"}
	}
	job := domain.WorkJob{ID: newID(in.ID), Name: in.Name}
	return e.withWork(ctx, workID, actorID, func(tx *sql.Tx, w *domain.Work) error {
		if err := w.AddJob(job); err != nil {
			return err
		}
		if err := e.Repo.InsertWorkJob(ctx, tx, w.ID, job); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "work.job_added", events.KindWork, w.ID, actorID, events.EventPayload{"job_id": job.ID, "name": job.Name})
	})
}

func (e Engine) RemoveWorkJob(ctx context.Context, workID, jobID, actorID string) (*domain.Work, error) {
	return e.withWork(ctx, workID, actorID, func(tx *sql.Tx, w *domain.Work) error {
		if err := w.RemoveJob(jobID); err != nil {
			return err
		}
		if err := e.Repo.DeleteWorkJob(ctx, tx, w.ID, jobID); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, "work.job_removed", events.KindWork, w.ID, actorID, events.EventPayload{"job_id": jobID})
	})
}

func (e Engine) withWork(ctx context.Context, id, actorID string, fn func(tx *sql.Tx, w *domain.Work) error) (*domain.Work, error) {
	if err := auth.RequireCatalogAdmin(e.Config, actorID); err != nil {
		return nil, err
	}
	var w *domain.Work
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if w, err = e.Repo.GetWork(ctx, tx, id); err != nil {
			return err
		}
		return fn(tx, w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}
