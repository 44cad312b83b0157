package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"servicehub/internal/domain"
)

const requestColumns = `id,client_id,provider_id,provider_work_id,scheduled_at,status,created_at,updated_at`

// InsertRequest stores a new request with every log entry it already holds.
func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, req *domain.ServiceRequest, now time.Time) error {
	var pwID string
	if w := req.Work(); w != nil {
		pwID = w.ID
	}
	ts := formatTS(now)
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO service_requests(`+requestColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		req.ID(), req.Client().ID, req.Provider().ID, nullable(pwID), req.When().UTC().Format(logTSLayout), string(req.Status()), ts, ts)
	if err != nil {
		return err
	}
	return r.AppendLogs(ctx, tx, req.ID(), 0, req.Logs())
}

// AppendLogs stores entries after the first `stored` ones. The unique
// (request_id, seq) key rejects a concurrent writer that raced past the same seq.
func (r Repo) AppendLogs(ctx context.Context, tx *sql.Tx, requestID string, stored int, logs []domain.Log) error {
	q := r.q(tx)
	for i := stored; i < len(logs); i++ {
		l := logs[i]
		_, err := q.ExecContext(ctx, `INSERT INTO request_logs(request_id,seq,status,by_id,at,reason) VALUES (?,?,?,?,?,?)`,
			requestID, i+1, string(l.Status), l.ActorID(), l.At.UTC().Format(logTSLayout), nullable(l.Reason))
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateRequestState mirrors the current stage and schedule onto the request row.
func (r Repo) UpdateRequestState(ctx context.Context, tx *sql.Tx, req *domain.ServiceRequest, now time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE service_requests SET status=?, scheduled_at=?, updated_at=? WHERE id=?`,
		string(req.Status()), req.When().UTC().Format(logTSLayout), formatTS(now), req.ID())
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) InsertRating(ctx context.Context, tx *sql.Tx, requestID, raterID, targetID string, value float64, at time.Time) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO ratings(request_id,rater_id,target_id,value,at) VALUES (?,?,?,?,?)`,
		requestID, raterID, targetID, value, formatTS(at))
	return err
}

func (r Repo) GetRequestRecord(ctx context.Context, tx *sql.Tx, id string) (RequestRecord, error) {
	rec, err := scanRequestRecord(r.q(tx).QueryRowContext(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

func (r Repo) ListLogRecords(ctx context.Context, tx *sql.Tx, requestID string) ([]LogRecord, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT seq,status,by_id,at,reason FROM request_logs WHERE request_id=? ORDER BY seq`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LogRecord
	for rows.Next() {
		var lr LogRecord
		var reason sql.NullString
		if err := rows.Scan(&lr.Seq, &lr.Status, &lr.ByID, &lr.At, &reason); err != nil {
			return nil, err
		}
		lr.Reason = reason.String
		res = append(res, lr)
	}
	return res, rows.Err()
}

// GetRequest loads the full aggregate: both parties with their ratings, the
// provider's works and the whole log trail.
func (r Repo) GetRequest(ctx context.Context, tx *sql.Tx, id string, now func() time.Time) (*domain.ServiceRequest, error) {
	rec, err := r.GetRequestRecord(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	client, err := r.GetClient(ctx, tx, rec.ClientID)
	if err != nil {
		return nil, err
	}
	provider, err := r.GetProvider(ctx, tx, rec.ProviderID)
	if err != nil {
		return nil, err
	}
	logs, err := r.ListLogRecords(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return BuildServiceRequest(rec, client, provider, logs, now)
}

type RequestFilters struct {
	ClientID        string
	ProviderID      string
	ParticipantID   string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.RequestSummary, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.ProviderID != "" {
		clauses = append(clauses, "provider_id=?")
		args = append(args, f.ProviderID)
	}
	if f.ParticipantID != "" {
		clauses = append(clauses, "(client_id=? OR provider_id=?)")
		args = append(args, f.ParticipantID, f.ParticipantID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + requestColumns + ` FROM service_requests ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RequestSummary
	for rows.Next() {
		rec, err := scanRequestRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec.Summary())
	}
	return res, rows.Err()
}
