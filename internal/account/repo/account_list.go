package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
)

// ListFilter narrows and pages the admin account listing.
type ListFilter struct {
	Search      string
	Role        entity.Role
	Status      entity.Status
	Gender      entity.Gender
	CreatedFrom *time.Time
	CreatedTo   *time.Time

	Page  int
	Limit int
	// Sort is "column:direction", e.g. "created_at:desc". Unknown columns
	// fall back to created_at.
	Sort string
}

var sortColumns = map[string]bool{
	"id":            true,
	"username":      true,
	"created_at":    true,
	"last_login_at": true,
}

func (f *ListFilter) orderBy() string {
	col, dir := "created_at", "DESC"
	if parts := strings.SplitN(f.Sort, ":", 2); len(parts) == 2 {
		if sortColumns[parts[0]] {
			col = parts[0]
		}
		if strings.EqualFold(parts[1], "asc") {
			dir = "ASC"
		}
	}
	return col + " " + dir
}

// List returns a filtered page of live accounts plus the total match count.
func (r *AccountRepo) List(ctx context.Context, f ListFilter) ([]entity.Account, int, error) {
	where := []string{"deleted_at IS NULL"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, fmt.Sprintf(
			"(username ILIKE %[1]s OR nickname ILIKE %[1]s OR email ILIKE %[1]s OR phone ILIKE %[1]s)", p))
	}
	if f.Role != "" {
		where = append(where, "role = "+arg(f.Role))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(f.Status))
	}
	if f.Gender != "" {
		where = append(where, "gender = "+arg(f.Gender))
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at >= "+arg(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at <= "+arg(*f.CreatedTo))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM accounts WHERE "+cond, args...); err != nil {
		return nil, 0, wrapErr(err)
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	q := fmt.Sprintf("SELECT %s FROM accounts WHERE %s ORDER BY %s LIMIT %s OFFSET %s",
		accountColumns, cond, f.orderBy(), arg(limit), arg((page-1)*limit))

	var rows []entity.Account
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, wrapErr(err)
	}
	return rows, total, nil
}

// Stats is the admin dashboard aggregate.
type Stats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Banned int `json:"banned"`
	Today  int `json:"today"`

	RoleDistribution   map[entity.Role]int   `json:"role_distribution"`
	GenderDistribution map[entity.Gender]int `json:"gender_distribution"`
}

// GetStats aggregates account counts for the admin dashboard.
func (r *AccountRepo) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{
		RoleDistribution:   map[entity.Role]int{},
		GenderDistribution: map[entity.Gender]int{},
	}

	const totals = `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status = 'active') AS active,
		COUNT(*) FILTER (WHERE status = 'banned') AS banned,
		COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW())) AS today
		FROM accounts WHERE deleted_at IS NULL`
	var row struct {
		Total  int `db:"total"`
		Active int `db:"active"`
		Banned int `db:"banned"`
		Today  int `db:"today"`
	}
	if err := r.db.GetContext(ctx, &row, totals); err != nil {
		return nil, wrapErr(err)
	}
	s.Total, s.Active, s.Banned, s.Today = row.Total, row.Active, row.Banned, row.Today

	type bucket struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}
	var roles []bucket
	if err := r.db.SelectContext(ctx, &roles,
		`SELECT role AS key, COUNT(*) AS count FROM accounts WHERE deleted_at IS NULL GROUP BY role`); err != nil {
		return nil, wrapErr(err)
	}
	for _, b := range roles {
		s.RoleDistribution[entity.Role(b.Key)] = b.Count
	}

	var genders []bucket
	if err := r.db.SelectContext(ctx, &genders,
		`SELECT gender AS key, COUNT(*) AS count FROM accounts WHERE deleted_at IS NULL GROUP BY gender`); err != nil {
		return nil, wrapErr(err)
	}
	for _, b := range genders {
		s.GenderDistribution[entity.Gender(b.Key)] = b.Count
	}
	return s, nil
}

// Search finds live, active accounts by keyword over username, nickname,
// and email. Intended for pick lists, so only a small projection matters
// to callers; the full row is returned for simplicity.
func (r *AccountRepo) Search(ctx context.Context, keyword string, limit int) ([]entity.Account, error) {
	if limit < 1 {
		limit = 10
	}
	q := `SELECT ` + accountColumns + ` FROM accounts
		WHERE deleted_at IS NULL AND status = 'active'
		AND (username ILIKE $1 OR nickname ILIKE $1 OR email ILIKE $1)
		ORDER BY id LIMIT $2`
	var rows []entity.Account
	if err := r.db.SelectContext(ctx, &rows, q, "%"+keyword+"%", limit); err != nil {
		return nil, wrapErr(err)
	}
	return rows, nil
}

// BatchUpdate sets status and/or role for a set of accounts and returns
// the number of rows touched.
func (r *AccountRepo) BatchUpdate(ctx context.Context, ids []int64, status *entity.Status, role *entity.Role) (int64, error) {
	if len(ids) == 0 || (status == nil && role == nil) {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET
		status = COALESCE($2, status),
		role = COALESCE($3, role),
		updated_at = NOW()
		WHERE id = ANY($1) AND deleted_at IS NULL`,
		pq.Array(ids), status, role)
	if err != nil {
		return 0, wrapErr(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
