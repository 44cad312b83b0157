package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"servicehub/internal/domain"
)

const userColumns = `u.id,u.name,u.document,u.email,u.contact,u.dob`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserParams(row rowScanner, extra ...any) (domain.UserParams, error) {
	var p domain.UserParams
	var doc, email, contact, dob string
	dest := append([]any{&p.ID, &p.Name, &doc, &email, &contact, &dob}, extra...)
	if err := row.Scan(dest...); err != nil {
		return p, err
	}
	born, err := time.Parse(time.DateOnly, dob)
	if err != nil {
		return p, fmt.Errorf("user %s dob: %w", p.ID, err)
	}
	p.Document = domain.Document(doc)
	p.Email = domain.Email(email)
	p.Contact = domain.Contact(contact)
	p.DOB = born
	return p, nil
}

func (r Repo) insertUser(ctx context.Context, tx *sql.Tx, u *domain.User, role domain.Role, now time.Time) error {
	ts := formatTS(now)
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,role,name,document,email,contact,dob,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		u.ID, string(role), u.Name, string(u.Document), string(u.Email), string(u.Contact), u.DOB.Format(time.DateOnly), ts, ts)
	return err
}

// UpdateUser persists the mutable profile fields of a participant.
func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u *domain.User, now time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE users SET name=?, email=?, contact=?, updated_at=? WHERE id=?`,
		u.Name, string(u.Email), string(u.Contact), formatTS(now), u.ID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// UserRole reports whether id is a registered client or provider.
func (r Repo) UserRole(ctx context.Context, tx *sql.Tx, id string) (domain.Role, error) {
	var role string
	err := r.q(tx).QueryRowContext(ctx, `SELECT role FROM users WHERE id=?`, id).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return domain.Role(role), err
}

// DeleteUser removes a participant of the given role. Participants that take
// part in any service request are kept and reported as ErrInUse.
func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, id string, role domain.Role) error {
	n, err := r.CountRequestsFor(ctx, tx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%s %s takes part in %d requests: %w", role, id, n, ErrInUse)
	}
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM users WHERE id=? AND role=?`, id, string(role))
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r Repo) CountRequestsFor(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM service_requests WHERE client_id=? OR provider_id=?`, userID, userID).Scan(&n)
	return n, err
}

func (r Repo) ratingsFor(ctx context.Context, q querier, userID string) ([]float64, error) {
	rows, err := q.QueryContext(ctx, `SELECT value FROM ratings WHERE target_id=? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (r Repo) restoreUser(ctx context.Context, q querier, p domain.UserParams) (*domain.User, error) {
	ratings, err := r.ratingsFor(ctx, q, p.ID)
	if err != nil {
		return nil, err
	}
	return domain.RestoreUser(p, ratings...), nil
}

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c *domain.Client, now time.Time) error {
	if err := r.insertUser(ctx, tx, c.User, domain.RoleClient, now); err != nil {
		return err
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO clients(user_id,cep,number,complement) VALUES (?,?,?,?)`,
		c.ID, c.Address.CEP, c.Address.Number, nullable(c.Address.Complement))
	return err
}

// UpdateClient persists profile and address changes.
func (r Repo) UpdateClient(ctx context.Context, tx *sql.Tx, c *domain.Client, now time.Time) error {
	if err := r.UpdateUser(ctx, tx, c.User, now); err != nil {
		return err
	}
	_, err := r.q(tx).ExecContext(ctx, `UPDATE clients SET cep=?, number=?, complement=? WHERE user_id=?`,
		c.Address.CEP, c.Address.Number, nullable(c.Address.Complement), c.ID)
	return err
}

const clientQuery = `SELECT ` + userColumns + `,c.cep,c.number,c.complement FROM users u JOIN clients c ON c.user_id=u.id WHERE u.role='client'`

type clientRow struct {
	params domain.UserParams
	addr   domain.Address
}

func scanClientRow(row rowScanner) (clientRow, error) {
	var cr clientRow
	var complement sql.NullString
	p, err := scanUserParams(row, &cr.addr.CEP, &cr.addr.Number, &complement)
	if err != nil {
		return cr, err
	}
	cr.params = p
	cr.addr.Complement = complement.String
	return cr, nil
}

func (r Repo) GetClient(ctx context.Context, tx *sql.Tx, id string) (*domain.Client, error) {
	q := r.q(tx)
	cr, err := scanClientRow(q.QueryRowContext(ctx, clientQuery+` AND u.id=?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u, err := r.restoreUser(ctx, q, cr.params)
	if err != nil {
		return nil, err
	}
	return domain.NewClient(u, cr.addr), nil
}

func (r Repo) ListClients(ctx context.Context) ([]*domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, clientQuery+` ORDER BY u.created_at, u.id`)
	if err != nil {
		return nil, err
	}
	var found []clientRow
	for rows.Next() {
		cr, err := scanClientRow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		found = append(found, cr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res := make([]*domain.Client, 0, len(found))
	for _, cr := range found {
		u, err := r.restoreUser(ctx, r.DB, cr.params)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.NewClient(u, cr.addr))
	}
	return res, nil
}

// InsertProvider stores the provider and every work it offers.
func (r Repo) InsertProvider(ctx context.Context, tx *sql.Tx, p *domain.Provider, now time.Time) error {
	if err := r.insertUser(ctx, tx, p.User, domain.RoleProvider, now); err != nil {
		return err
	}
	for _, pw := range p.Works() {
		if err := r.InsertProviderWork(ctx, tx, p.ID, pw, now); err != nil {
			return err
		}
	}
	return nil
}

const providerQuery = `SELECT ` + userColumns + ` FROM users u WHERE u.role='provider'`

func (r Repo) GetProvider(ctx context.Context, tx *sql.Tx, id string) (*domain.Provider, error) {
	q := r.q(tx)
	p, err := scanUserParams(q.QueryRowContext(ctx, providerQuery+` AND u.id=?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.restoreProvider(ctx, q, p)
}

func (r Repo) ListProviders(ctx context.Context) ([]*domain.Provider, error) {
	rows, err := r.DB.QueryContext(ctx, providerQuery+` ORDER BY u.created_at, u.id`)
	if err != nil {
		return nil, err
	}
	var found []domain.UserParams
	for rows.Next() {
		p, err := scanUserParams(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		found = append(found, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res := make([]*domain.Provider, 0, len(found))
	for _, p := range found {
		prov, err := r.restoreProvider(ctx, r.DB, p)
		if err != nil {
			return nil, err
		}
		res = append(res, prov)
	}
	return res, nil
}

func (r Repo) restoreProvider(ctx context.Context, q querier, p domain.UserParams) (*domain.Provider, error) {
	u, err := r.restoreUser(ctx, q, p)
	if err != nil {
		return nil, err
	}
	works, err := r.providerWorks(ctx, q, p.ID)
	if err != nil {
		return nil, err
	}
	prov, err := domain.NewProvider(u, works...)
	if err != nil {
		return nil, fmt.Errorf("restore provider %s: %w", p.ID, err)
	}
	return prov, nil
}
