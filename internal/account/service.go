// Package account implements the administrative account operations:
// listing and filtering, profile updates, status and role changes, soft
// delete and restore. Authentication flows live in internal/auth.
package account

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
	"github.com/wenqu/backend-api-scaffold/internal/account/repo"
	"github.com/wenqu/backend-api-scaffold/internal/audit"
	"github.com/wenqu/backend-api-scaffold/internal/auth"
)

// Store is the repository surface the admin service needs. *repo.AccountRepo
// satisfies it; tests use an in-memory fake.
type Store interface {
	FindByID(ctx context.Context, id int64, includeDeleted bool) (*entity.Account, error)
	FindByIdentifier(ctx context.Context, identifier string) (*entity.Account, error)
	UpdateProfile(ctx context.Context, id int64, upd repo.ProfileUpdate) (*entity.Account, error)
	UpdateStatus(ctx context.Context, id int64, status entity.Status) (*entity.Account, error)
	UpdateRole(ctx context.Context, id int64, role entity.Role) (*entity.Account, error)
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
	List(ctx context.Context, f repo.ListFilter) ([]entity.Account, int, error)
	GetStats(ctx context.Context) (*repo.Stats, error)
	Search(ctx context.Context, keyword string, limit int) ([]entity.Account, error)
	BatchUpdate(ctx context.Context, ids []int64, status *entity.Status, role *entity.Role) (int64, error)
}

// Service wraps the store with validation and audit logging.
type Service struct {
	store  Store
	audit  *audit.Recorder
	logger *zap.SugaredLogger
}

func NewService(store Store, rec *audit.Recorder, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, audit: rec, logger: logger}
}

// GetByID fetches one account; includeDeleted exposes soft-deleted rows to
// the admin restore flow.
func (s *Service) GetByID(ctx context.Context, id int64, includeDeleted bool) (*entity.Account, error) {
	return s.store.FindByID(ctx, id, includeDeleted)
}

// UpdateProfile applies a partial profile update after checking email and
// phone uniqueness. Email conflicts report before phone conflicts.
func (s *Service) UpdateProfile(ctx context.Context, id int64, upd repo.ProfileUpdate) (*entity.Account, error) {
	if upd.Gender != nil && !upd.Gender.Valid() {
		return nil, &auth.ValidationError{Field: "gender", Reason: "unknown value"}
	}

	type check struct {
		field string
		value *string
	}
	for _, c := range []check{{"email", upd.Email}, {"phone", upd.Phone}} {
		if c.value == nil {
			continue
		}
		other, err := s.store.FindByIdentifier(ctx, *c.value)
		switch {
		case err == nil && other.ID != id:
			return nil, &auth.DuplicateFieldError{Field: c.field}
		case err != nil && !errors.Is(err, auth.ErrAccountNotFound):
			return nil, err
		}
	}

	updated, err := s.store.UpdateProfile(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.audit.Business("user_profile_updated", "account_id", id)
	return updated, nil
}

// List returns a filtered page of accounts plus the total match count.
func (s *Service) List(ctx context.Context, f repo.ListFilter) ([]entity.Account, int, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, &auth.ValidationError{Field: "role", Reason: "unknown value"}
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, &auth.ValidationError{Field: "status", Reason: "unknown value"}
	}
	return s.store.List(ctx, f)
}

// UpdateStatus moves an account to a new lifecycle state.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status entity.Status) (*entity.Account, error) {
	if !status.Valid() {
		return nil, &auth.ValidationError{Field: "status", Reason: "unknown value"}
	}
	before, err := s.store.FindByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.audit.Business("user_status_changed",
		"account_id", id, "old_status", before.Status, "new_status", status)
	return updated, nil
}

// UpdateRole assigns a new role from the closed set.
func (s *Service) UpdateRole(ctx context.Context, id int64, role entity.Role) (*entity.Account, error) {
	if !role.Valid() {
		return nil, &auth.ValidationError{Field: "role", Reason: "unknown value"}
	}
	before, err := s.store.FindByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateRole(ctx, id, role)
	if err != nil {
		return nil, err
	}
	s.audit.Business("user_role_changed",
		"account_id", id, "old_role", before.Role, "new_role", role)
	return updated, nil
}

// SoftDelete hides the account from every lookup; the row stays recoverable.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.audit.Business("user_deleted", "account_id", id)
	return nil
}

// Restore brings back a soft-deleted account.
func (s *Service) Restore(ctx context.Context, id int64) error {
	acc, err := s.store.FindByID(ctx, id, true)
	if err != nil {
		return err
	}
	if acc.DeletedAt == nil {
		return &auth.ValidationError{Field: "id", Reason: "account is not deleted"}
	}
	if err := s.store.Restore(ctx, id); err != nil {
		return err
	}
	s.audit.Business("user_restored", "account_id", id)
	return nil
}

// GetStats aggregates account counts for the admin dashboard.
func (s *Service) GetStats(ctx context.Context) (*repo.Stats, error) {
	return s.store.GetStats(ctx)
}

// Search finds active accounts by keyword for pick lists.
func (s *Service) Search(ctx context.Context, keyword string, limit int) ([]entity.Account, error) {
	return s.store.Search(ctx, keyword, limit)
}

// BatchUpdate sets status and/or role across several accounts at once.
func (s *Service) BatchUpdate(ctx context.Context, ids []int64, status *entity.Status, role *entity.Role) (int64, error) {
	if status == nil && role == nil {
		return 0, &auth.ValidationError{Field: "update", Reason: "no valid fields to update"}
	}
	if status != nil && !status.Valid() {
		return 0, &auth.ValidationError{Field: "status", Reason: "unknown value"}
	}
	if role != nil && !role.Valid() {
		return 0, &auth.ValidationError{Field: "role", Reason: "unknown value"}
	}
	n, err := s.store.BatchUpdate(ctx, ids, status, role)
	if err != nil {
		return 0, err
	}
	s.audit.Business("batch_update_users", "ids", ids, "affected", n)
	return n, nil
}
