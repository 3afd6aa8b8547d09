// Package repo provides Postgres data access for the accounts table using
// sqlx. It owns the account rows exclusively: services never touch storage
// except through these operations, and mutators return post-mutation state.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
	"github.com/wenqu/backend-api-scaffold/internal/auth"
)

// AccountRepo implements the account repository contract over Postgres.
type AccountRepo struct {
	db *sqlx.DB
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

// EnsureTable creates the accounts table if not exists (idempotent).
// Convenience for early development; prefer migrations in production.
func (r *AccountRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
  id BIGSERIAL PRIMARY KEY,
  username VARCHAR(50) NOT NULL UNIQUE,
  email VARCHAR(100) UNIQUE,
  phone VARCHAR(20) UNIQUE,
  password_hash VARCHAR(255),
  nickname VARCHAR(50),
  avatar TEXT,
  gender VARCHAR(10) NOT NULL DEFAULT 'unknown',
  birthday DATE,
  role VARCHAR(20) NOT NULL DEFAULT 'user',
  status VARCHAR(10) NOT NULL DEFAULT 'active',
  openid VARCHAR(100) UNIQUE,
  unionid VARCHAR(100) UNIQUE,
  email_verified BOOLEAN NOT NULL DEFAULT false,
  phone_verified BOOLEAN NOT NULL DEFAULT false,
  login_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  last_login_ip VARCHAR(45),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  deleted_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_accounts_status ON accounts(status);
CREATE INDEX IF NOT EXISTS idx_accounts_role ON accounts(role);
CREATE INDEX IF NOT EXISTS idx_accounts_created_at ON accounts(created_at);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const accountColumns = `id, username, email, phone, password_hash, nickname, avatar, gender,
	birthday, role, status, openid, unionid, email_verified, phone_verified,
	login_attempts, locked_until, last_login_at, last_login_ip,
	created_at, updated_at, deleted_at`

// wrapErr normalizes storage failures into the contract's error kinds.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrAccountNotFound
	}
	if dup := duplicateField(err); dup != nil {
		return dup
	}
	return fmt.Errorf("%w: %v", auth.ErrRepositoryUnavailable, err)
}

// duplicateField maps a Postgres unique violation to the offending field.
// A single insert reports at most one constraint, so field precedence is
// decided by the order checks run at the service layer.
func duplicateField(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	for _, field := range []string{"username", "email", "phone", "openid", "unionid"} {
		if strings.Contains(pqErr.Constraint, field) {
			return &auth.DuplicateFieldError{Field: field}
		}
	}
	return &auth.DuplicateFieldError{Field: "account"}
}

// FindByIdentifier resolves username, email, or phone to a live account.
func (r *AccountRepo) FindByIdentifier(ctx context.Context, identifier string) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts
		WHERE (username = $1 OR email = $1 OR phone = $1) AND deleted_at IS NULL
		LIMIT 1`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, identifier); err != nil {
		return nil, wrapErr(err)
	}
	return &a, nil
}

// FindByID fetches one account. Soft-deleted rows are invisible unless
// includeDeleted is set (admin restore path).
func (r *AccountRepo) FindByID(ctx context.Context, id int64, includeDeleted bool) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if !includeDeleted {
		q += ` AND deleted_at IS NULL`
	}
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, id); err != nil {
		return nil, wrapErr(err)
	}
	return &a, nil
}

// FindByOpenID resolves the mini-program external identity.
func (r *AccountRepo) FindByOpenID(ctx context.Context, openid string) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE openid = $1 AND deleted_at IS NULL`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, openid); err != nil {
		return nil, wrapErr(err)
	}
	return &a, nil
}

// Create inserts a new account and returns the stored row.
func (r *AccountRepo) Create(ctx context.Context, draft *entity.Account) (*entity.Account, error) {
	q := `INSERT INTO accounts
		(username, email, phone, password_hash, nickname, avatar, gender, birthday, role, status, openid, unionid)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING ` + accountColumns
	var a entity.Account
	err := r.db.GetContext(ctx, &a, q,
		draft.Username, draft.Email, draft.Phone, draft.PasswordHash,
		draft.Nickname, draft.Avatar, draft.Gender, draft.Birthday,
		draft.Role, draft.Status, draft.OpenID, draft.UnionID)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &a, nil
}

// ProfileUpdate carries the caller-editable profile fields. Nil means
// leave unchanged.
type ProfileUpdate struct {
	Nickname *string
	Avatar   *string
	Gender   *entity.Gender
	Birthday *time.Time
	Email    *string
	Phone    *string
}

// UpdateProfile applies a partial profile update and returns the new row.
func (r *AccountRepo) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*entity.Account, error) {
	q := `UPDATE accounts SET
		nickname = COALESCE($2, nickname),
		avatar = COALESCE($3, avatar),
		gender = COALESCE($4, gender),
		birthday = COALESCE($5, birthday),
		email = COALESCE($6, email),
		phone = COALESCE($7, phone),
		updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + accountColumns
	var a entity.Account
	err := r.db.GetContext(ctx, &a, q, id, upd.Nickname, upd.Avatar, upd.Gender, upd.Birthday, upd.Email, upd.Phone)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &a, nil
}

// UpdateStatus moves the account to a new lifecycle state.
func (r *AccountRepo) UpdateStatus(ctx context.Context, id int64, status entity.Status) (*entity.Account, error) {
	q := `UPDATE accounts SET status = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL RETURNING ` + accountColumns
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, id, status); err != nil {
		return nil, wrapErr(err)
	}
	return &a, nil
}

// UpdateRole assigns a new role.
func (r *AccountRepo) UpdateRole(ctx context.Context, id int64, role entity.Role) (*entity.Account, error) {
	q := `UPDATE accounts SET role = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL RETURNING ` + accountColumns
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, id, role); err != nil {
		return nil, wrapErr(err)
	}
	return &a, nil
}

// SoftDelete marks the account deleted; the row stays recoverable.
func (r *AccountRepo) SoftDelete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return wrapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

// Restore clears the soft-delete marker.
func (r *AccountRepo) Restore(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET deleted_at = NULL, updated_at = NOW() WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return wrapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

// RecordLoginFailure applies the lockout failure transition in a single
// statement so concurrent failures against one account cannot under-count
// past the threshold. Mirrors auth.LockoutPolicy.OnFailure.
func (r *AccountRepo) RecordLoginFailure(ctx context.Context, id int64, policy auth.LockoutPolicy) (int, *time.Time, error) {
	const q = `UPDATE accounts SET
		login_attempts = CASE
			WHEN locked_until IS NOT NULL AND locked_until <= NOW() THEN 1
			ELSE login_attempts + 1
		END,
		locked_until = CASE
			WHEN locked_until IS NOT NULL AND locked_until <= NOW() THEN NULL
			WHEN locked_until IS NULL AND login_attempts + 1 >= $2 THEN NOW() + make_interval(secs => $3)
			ELSE locked_until
		END,
		updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING login_attempts, locked_until`
	var row struct {
		LoginAttempts int        `db:"login_attempts"`
		LockedUntil   *time.Time `db:"locked_until"`
	}
	err := r.db.GetContext(ctx, &row, q, id, policy.MaxAttempts, policy.LockDuration.Seconds())
	if err != nil {
		return 0, nil, wrapErr(err)
	}
	return row.LoginAttempts, row.LockedUntil, nil
}

// RecordLoginSuccess resets lockout state and stamps the login audit columns.
func (r *AccountRepo) RecordLoginSuccess(ctx context.Context, id int64, ip string) error {
	var ipVal *string
	if ip != "" {
		ipVal = &ip
	}
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET
		login_attempts = 0, locked_until = NULL,
		last_login_at = NOW(), last_login_ip = COALESCE($2, last_login_ip),
		updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, ipVal)
	return wrapErr(err)
}

// UpdatePassword stores a new hash. Hashing happens at the service layer;
// this never transforms the value.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, hash)
	return wrapErr(err)
}

// ResetCredentials sets a new hash and clears lockout state in one step.
func (r *AccountRepo) ResetCredentials(ctx context.Context, id int64, hash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE accounts SET
		password_hash = $2, login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, hash)
	return wrapErr(err)
}

// UpdateMiniProfile refreshes optional profile fields for a returning
// mini-program login and stamps the login columns.
func (r *AccountRepo) UpdateMiniProfile(ctx context.Context, id int64, nickname, avatar *string, gender *entity.Gender, ip string) (*entity.Account, error) {
	var ipVal *string
	if ip != "" {
		ipVal = &ip
	}
	q := `UPDATE accounts SET
		nickname = COALESCE($2, nickname),
		avatar = COALESCE($3, avatar),
		gender = COALESCE($4, gender),
		last_login_at = NOW(),
		last_login_ip = COALESCE($5, last_login_ip),
		updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + accountColumns
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, id, nickname, avatar, gender, ipVal); err != nil {
		return nil, wrapErr(err)
	}
	return &a, nil
}
