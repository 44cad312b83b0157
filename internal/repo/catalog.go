package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"servicehub/internal/domain"
)

// InsertWork stores a catalog work with its jobs in order.
func (r Repo) InsertWork(ctx context.Context, tx *sql.Tx, w *domain.Work, now time.Time) error {
	if _, err := r.q(tx).ExecContext(ctx, `INSERT INTO works(id,name,created_at) VALUES (?,?,?)`, w.ID, w.Name, formatTS(now)); err != nil {
		return err
	}
	for _, j := range w.Jobs() {
		if err := r.InsertWorkJob(ctx, tx, w.ID, j); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) InsertWorkJob(ctx context.Context, tx *sql.Tx, workID string, j domain.WorkJob) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO work_jobs(id,work_id,name,position)
VALUES (?,?,?,(SELECT COALESCE(MAX(position),0)+1 FROM work_jobs WHERE work_id=?))`, j.ID, workID, j.Name, workID)
	return err
}

// DeleteWorkJob removes a catalog job nobody prices anymore.
func (r Repo) DeleteWorkJob(ctx context.Context, tx *sql.Tx, workID, jobID string) error {
	q := r.q(tx)
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM provider_work_jobs WHERE job_id=?`, jobID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("job %s is priced by %d provider works: %w", jobID, n, ErrInUse)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM work_jobs WHERE id=? AND work_id=?`, jobID, workID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) GetWork(ctx context.Context, tx *sql.Tx, id string) (*domain.Work, error) {
	return r.getWork(ctx, r.q(tx), id)
}

func (r Repo) getWork(ctx context.Context, q querier, id string) (*domain.Work, error) {
	var name string
	err := q.QueryRowContext(ctx, `SELECT name FROM works WHERE id=?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	jobs, err := r.workJobs(ctx, q, id)
	if err != nil {
		return nil, err
	}
	w, err := domain.NewWork(id, name, jobs...)
	if err != nil {
		return nil, fmt.Errorf("restore work %s: %w", id, err)
	}
	return w, nil
}

func (r Repo) workJobs(ctx context.Context, q querier, workID string) ([]domain.WorkJob, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,name FROM work_jobs WHERE work_id=? ORDER BY position, id`, workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.WorkJob
	for rows.Next() {
		var j domain.WorkJob
		if err := rows.Scan(&j.ID, &j.Name); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r Repo) ListWorks(ctx context.Context) ([]*domain.Work, error) {
	ids, err := r.collectIDs(ctx, r.DB, `SELECT id FROM works ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	res := make([]*domain.Work, 0, len(ids))
	for _, id := range ids {
		w, err := r.getWork(ctx, r.DB, id)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, nil
}

func (r Repo) collectIDs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertProviderWork stores a priced work for providerID with its jobs.
func (r Repo) InsertProviderWork(ctx context.Context, tx *sql.Tx, providerID string, pw *domain.ProviderWork, now time.Time) error {
	if pw.Work == nil {
		return domain.ValidationError{Field: "work_id", Reason: "is required"}
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO provider_works(id,provider_id,work_id,min_cost,position,created_at)
VALUES (?,?,?,?,(SELECT COALESCE(MAX(position),0)+1 FROM provider_works WHERE provider_id=?),?)`,
		pw.ID, providerID, pw.Work.ID, pw.MinCost.String(), providerID, formatTS(now))
	if err != nil {
		return err
	}
	for _, j := range pw.Jobs() {
		if err := r.InsertProviderWorkJob(ctx, tx, pw.ID, j); err != nil {
			return err
		}
	}
	return nil
}

// DeleteProviderWork removes a priced work unless a request was opened for it.
func (r Repo) DeleteProviderWork(ctx context.Context, tx *sql.Tx, providerID, id string) error {
	q := r.q(tx)
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_requests WHERE provider_work_id=?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("provider work %s is requested %d times: %w", id, n, ErrInUse)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM provider_works WHERE id=? AND provider_id=?`, id, providerID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) UpdateProviderWorkMinCost(ctx context.Context, tx *sql.Tx, id string, minCost decimal.Decimal) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE provider_works SET min_cost=? WHERE id=?`, minCost.String(), id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) InsertProviderWorkJob(ctx context.Context, tx *sql.Tx, providerWorkID string, j domain.ProviderWorkJob) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO provider_work_jobs(id,provider_work_id,job_id,cost,estimated_duration_seconds,position)
VALUES (?,?,?,?,?,(SELECT COALESCE(MAX(position),0)+1 FROM provider_work_jobs WHERE provider_work_id=?))`,
		j.ID, providerWorkID, j.Job.ID, j.Cost.String(), int64(j.EstimatedDuration/time.Second), providerWorkID)
	return err
}

func (r Repo) UpdateProviderWorkJob(ctx context.Context, tx *sql.Tx, providerWorkID string, j domain.ProviderWorkJob) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE provider_work_jobs SET cost=?, estimated_duration_seconds=? WHERE id=? AND provider_work_id=?`,
		j.Cost.String(), int64(j.EstimatedDuration/time.Second), j.ID, providerWorkID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) DeleteProviderWorkJob(ctx context.Context, tx *sql.Tx, providerWorkID, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM provider_work_jobs WHERE id=? AND provider_work_id=?`, id, providerWorkID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

type providerWorkRow struct {
	id, workID, minCost string
}

// providerWorks loads a provider's priced works with their catalog works.
func (r Repo) providerWorks(ctx context.Context, q querier, providerID string) ([]*domain.ProviderWork, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,work_id,min_cost FROM provider_works WHERE provider_id=? ORDER BY position, id`, providerID)
	if err != nil {
		return nil, err
	}
	var found []providerWorkRow
	for rows.Next() {
		var pr providerWorkRow
		if err := rows.Scan(&pr.id, &pr.workID, &pr.minCost); err != nil {
			rows.Close()
			return nil, err
		}
		found = append(found, pr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	catalog := map[string]*domain.Work{}
	res := make([]*domain.ProviderWork, 0, len(found))
	for _, pr := range found {
		w, ok := catalog[pr.workID]
		if !ok {
			if w, err = r.getWork(ctx, q, pr.workID); err != nil {
				return nil, fmt.Errorf("provider work %s: %w", pr.id, err)
			}
			catalog[pr.workID] = w
		}
		minCost, err := decimal.NewFromString(pr.minCost)
		if err != nil {
			return nil, fmt.Errorf("provider work %s min_cost: %w", pr.id, err)
		}
		jobs, err := r.providerWorkJobs(ctx, q, pr.id)
		if err != nil {
			return nil, err
		}
		pw, err := domain.NewProviderWork(pr.id, w, minCost, jobs...)
		if err != nil {
			return nil, fmt.Errorf("restore provider work %s: %w", pr.id, err)
		}
		res = append(res, pw)
	}
	return res, nil
}

func (r Repo) providerWorkJobs(ctx context.Context, q querier, providerWorkID string) ([]domain.ProviderWorkJob, error) {
	rows, err := q.QueryContext(ctx, `SELECT pj.id,pj.cost,pj.estimated_duration_seconds,wj.id,wj.name
FROM provider_work_jobs pj JOIN work_jobs wj ON wj.id=pj.job_id
WHERE pj.provider_work_id=? ORDER BY pj.position, pj.id`, providerWorkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.ProviderWorkJob
	for rows.Next() {
		var j domain.ProviderWorkJob
		var cost string
		var seconds int64
		if err := rows.Scan(&j.ID, &cost, &seconds, &j.Job.ID, &j.Job.Name); err != nil {
			return nil, err
		}
		if j.Cost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("provider work job %s cost: %w", j.ID, err)
		}
		j.EstimatedDuration = time.Duration(seconds) * time.Second
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
