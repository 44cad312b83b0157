package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkJob is a catalog job.
type WorkJob struct {
	ID   string
	Name string
}

// Work is a catalog service offering. It always holds at least one job.
type Work struct {
	ID   string
	Name string
	jobs []WorkJob
}

func NewWork(id, name string, jobs ...WorkJob) (*Work, error) {
	w := &Work{ID: id, Name: name}
	if len(jobs) == 0 {
		return nil, EmptyCollectionError{Owner: "work " + id, Collection: "job"}
	}
	for _, j := range jobs {
		if err := w.AddJob(j); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Work) Jobs() []WorkJob {
	out := make([]WorkJob, len(w.jobs))
	copy(out, w.jobs)
	return out
}

func (w *Work) Job(id string) (WorkJob, bool) {
	for _, j := range w.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return WorkJob{}, false
}

func (w *Work) AddJob(j WorkJob) error {
	if _, ok := w.Job(j.ID); ok {
		return DuplicateItemError{Collection: "job", ID: j.ID}
	}
	w.jobs = append(w.jobs, j)
	return nil
}

// RemoveJob drops the job with the given id. The last job cannot be removed.
func (w *Work) RemoveJob(id string) error {
	idx := -1
	for i, j := range w.jobs {
		if j.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return UnknownItemError{Collection: "job", ID: id}
	}
	if len(w.jobs) == 1 {
		return EmptyCollectionError{Owner: "work " + w.ID, Collection: "job"}
	}
	w.jobs = append(w.jobs[:idx:idx], w.jobs[idx+1:]...)
	return nil
}

// ProviderWorkJob is a provider's price and duration for a catalog job.
type ProviderWorkJob struct {
	ID                string
	Cost              decimal.Decimal
	EstimatedDuration time.Duration
	Job               WorkJob
}

// ProviderWork is a provider's priced instantiation of a catalog work.
type ProviderWork struct {
	ID      string
	MinCost decimal.Decimal
	Work    *Work
	jobs    []ProviderWorkJob
}

func NewProviderWork(id string, work *Work, minCost decimal.Decimal, jobs ...ProviderWorkJob) (*ProviderWork, error) {
	if minCost.IsNegative() {
		return nil, ValidationError{Field: "min_cost", Reason: "must not be negative"}
	}
	pw := &ProviderWork{ID: id, MinCost: minCost, Work: work}
	if len(jobs) == 0 {
		return nil, EmptyCollectionError{Owner: "provider work " + id, Collection: "job"}
	}
	for _, j := range jobs {
		if err := pw.AddJob(j); err != nil {
			return nil, err
		}
	}
	return pw, nil
}

func (pw *ProviderWork) Jobs() []ProviderWorkJob {
	out := make([]ProviderWorkJob, len(pw.jobs))
	copy(out, pw.jobs)
	return out
}

func (pw *ProviderWork) Job(id string) (ProviderWorkJob, bool) {
	for _, j := range pw.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return ProviderWorkJob{}, false
}

// AddJob appends a priced job. When the catalog work is known the job must
// reference one of its jobs.
func (pw *ProviderWork) AddJob(j ProviderWorkJob) error {
	if _, ok := pw.Job(j.ID); ok {
		return DuplicateItemError{Collection: "job", ID: j.ID}
	}
	if j.Cost.IsNegative() {
		return ValidationError{Field: "cost", Reason: "must not be negative"}
	}
	if j.EstimatedDuration < 0 {
		return ValidationError{Field: "estimated_duration", Reason: "must not be negative"}
	}
	if pw.Work != nil {
		if _, ok := pw.Work.Job(j.Job.ID); !ok {
			return UnknownItemError{Collection: "work job", ID: j.Job.ID}
		}
	}
	pw.jobs = append(pw.jobs, j)
	return nil
}

func (pw *ProviderWork) RemoveJob(id string) error {
	idx := -1
	for i, j := range pw.jobs {
		if j.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return UnknownItemError{Collection: "job", ID: id}
	}
	if len(pw.jobs) == 1 {
		return EmptyCollectionError{Owner: "provider work " + pw.ID, Collection: "job"}
	}
	pw.jobs = append(pw.jobs[:idx:idx], pw.jobs[idx+1:]...)
	return nil
}

// UpdateJob replaces the cost and duration of an existing job.
func (pw *ProviderWork) UpdateJob(id string, cost decimal.Decimal, estimated time.Duration) error {
	if cost.IsNegative() {
		return ValidationError{Field: "cost", Reason: "must not be negative"}
	}
	if estimated < 0 {
		return ValidationError{Field: "estimated_duration", Reason: "must not be negative"}
	}
	for i, j := range pw.jobs {
		if j.ID == id {
			pw.jobs[i].Cost = cost
			pw.jobs[i].EstimatedDuration = estimated
			return nil
		}
	}
	return UnknownItemError{Collection: "job", ID: id}
}

func (pw *ProviderWork) ChangeMinCost(minCost decimal.Decimal) error {
	if minCost.IsNegative() {
		return ValidationError{Field: "min_cost", Reason: "must not be negative"}
	}
	pw.MinCost = minCost
	return nil
}

// TotalCost is the sum of job costs, never less than MinCost.
func (pw *ProviderWork) TotalCost() decimal.Decimal {
	sum := decimal.Zero
	for _, j := range pw.jobs {
		sum = sum.Add(j.Cost)
	}
	return decimal.Max(sum, pw.MinCost)
}

// EstimatedDuration is the sum of job durations.
func (pw *ProviderWork) EstimatedDuration() time.Duration {
	var d time.Duration
	for _, j := range pw.jobs {
		d += j.EstimatedDuration
	}
	return d
}
