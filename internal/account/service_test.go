package account

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
	"github.com/wenqu/backend-api-scaffold/internal/account/repo"
	"github.com/wenqu/backend-api-scaffold/internal/auth"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[int64]*entity.Account
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[int64]*entity.Account)}
}

func (f *fakeStore) seed(a entity.Account) *entity.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := a
	f.accounts[cp.ID] = &cp
	return &cp
}

func (f *fakeStore) FindByID(_ context.Context, id int64, includeDeleted bool) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || (!includeDeleted && a.DeletedAt != nil) {
		return nil, auth.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) FindByIdentifier(_ context.Context, identifier string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.DeletedAt != nil {
			continue
		}
		if a.Username == identifier ||
			(a.Email != nil && *a.Email == identifier) ||
			(a.Phone != nil && *a.Phone == identifier) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrAccountNotFound
}

func (f *fakeStore) UpdateProfile(_ context.Context, id int64, upd repo.ProfileUpdate) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || a.DeletedAt != nil {
		return nil, auth.ErrAccountNotFound
	}
	if upd.Nickname != nil {
		a.Nickname = upd.Nickname
	}
	if upd.Avatar != nil {
		a.Avatar = upd.Avatar
	}
	if upd.Gender != nil {
		a.Gender = *upd.Gender
	}
	if upd.Birthday != nil {
		a.Birthday = upd.Birthday
	}
	if upd.Email != nil {
		a.Email = upd.Email
	}
	if upd.Phone != nil {
		a.Phone = upd.Phone
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id int64, status entity.Status) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || a.DeletedAt != nil {
		return nil, auth.ErrAccountNotFound
	}
	a.Status = status
	cp := *a
	return &cp, nil
}

func (f *fakeStore) UpdateRole(_ context.Context, id int64, role entity.Role) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || a.DeletedAt != nil {
		return nil, auth.ErrAccountNotFound
	}
	a.Role = role
	cp := *a
	return &cp, nil
}

func (f *fakeStore) SoftDelete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || a.DeletedAt != nil {
		return auth.ErrAccountNotFound
	}
	now := time.Now()
	a.DeletedAt = &now
	return nil
}

func (f *fakeStore) Restore(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return auth.ErrAccountNotFound
	}
	a.DeletedAt = nil
	a.Status = entity.StatusActive
	return nil
}

func (f *fakeStore) List(_ context.Context, fl repo.ListFilter) ([]entity.Account, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Account
	for _, a := range f.accounts {
		if a.DeletedAt != nil {
			continue
		}
		if fl.Role != "" && a.Role != fl.Role {
			continue
		}
		if fl.Status != "" && a.Status != fl.Status {
			continue
		}
		if fl.Search != "" && !strings.Contains(a.Username, fl.Search) {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (f *fakeStore) GetStats(_ context.Context) (*repo.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &repo.Stats{
		RoleDistribution:   map[entity.Role]int{},
		GenderDistribution: map[entity.Gender]int{},
	}
	for _, a := range f.accounts {
		if a.DeletedAt != nil {
			continue
		}
		s.Total++
		if a.Status == entity.StatusActive {
			s.Active++
		}
		s.RoleDistribution[a.Role]++
		s.GenderDistribution[a.Gender]++
	}
	return s, nil
}

func (f *fakeStore) Search(_ context.Context, keyword string, limit int) ([]entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Account
	for _, a := range f.accounts {
		if a.DeletedAt != nil || a.Status != entity.StatusActive {
			continue
		}
		if strings.Contains(a.Username, keyword) {
			out = append(out, *a)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) BatchUpdate(_ context.Context, ids []int64, status *entity.Status, role *entity.Role) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		a, ok := f.accounts[id]
		if !ok || a.DeletedAt != nil {
			continue
		}
		if status != nil {
			a.Status = *status
		}
		if role != nil {
			a.Role = *role
		}
		n++
	}
	return n, nil
}

func newTestService(store Store) *Service {
	return NewService(store, nil, zap.NewNop().Sugar())
}

func str(s string) *string { return &s }

func seedAccount(store *fakeStore, id int64, username string) *entity.Account {
	return store.seed(entity.Account{
		ID:       id,
		Username: username,
		Role:     entity.RoleUser,
		Status:   entity.StatusActive,
		Gender:   entity.GenderUnknown,
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("partial update leaves other fields alone", func(t *testing.T) {
		store := newFakeStore()
		seedAccount(store, 1, "alice")
		svc := newTestService(store)

		updated, err := svc.UpdateProfile(ctx, 1, repo.ProfileUpdate{Nickname: str("Alice W")})
		require.NoError(t, err)
		require.NotNil(t, updated.Nickname)
		assert.Equal(t, "Alice W", *updated.Nickname)
		assert.Equal(t, "alice", updated.Username)
	})

	t.Run("email conflict with another account", func(t *testing.T) {
		store := newFakeStore()
		seedAccount(store, 1, "alice")
		bob := seedAccount(store, 2, "bob")
		_, err := store.UpdateProfile(ctx, bob.ID, repo.ProfileUpdate{Email: str("bob@example.com")})
		require.NoError(t, err)
		svc := newTestService(store)

		_, err = svc.UpdateProfile(ctx, 1, repo.ProfileUpdate{Email: str("bob@example.com")})
		var derr *auth.DuplicateFieldError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "email", derr.Field)
	})

	t.Run("email conflict reported before phone conflict", func(t *testing.T) {
		store := newFakeStore()
		seedAccount(store, 1, "alice")
		bob := seedAccount(store, 2, "bob")
		_, err := store.UpdateProfile(ctx, bob.ID, repo.ProfileUpdate{
			Email: str("bob@example.com"),
			Phone: str("13800138000"),
		})
		require.NoError(t, err)
		svc := newTestService(store)

		_, err = svc.UpdateProfile(ctx, 1, repo.ProfileUpdate{
			Email: str("bob@example.com"),
			Phone: str("13800138000"),
		})
		var derr *auth.DuplicateFieldError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "email", derr.Field)
	})

	t.Run("keeping own email is not a conflict", func(t *testing.T) {
		store := newFakeStore()
		alice := seedAccount(store, 1, "alice")
		_, err := store.UpdateProfile(ctx, alice.ID, repo.ProfileUpdate{Email: str("alice@example.com")})
		require.NoError(t, err)
		svc := newTestService(store)

		_, err = svc.UpdateProfile(ctx, 1, repo.ProfileUpdate{
			Email:    str("alice@example.com"),
			Nickname: str("Alice"),
		})
		assert.NoError(t, err)
	})

	t.Run("invalid gender rejected", func(t *testing.T) {
		store := newFakeStore()
		seedAccount(store, 1, "alice")
		svc := newTestService(store)

		g := entity.Gender("martian")
		_, err := svc.UpdateProfile(ctx, 1, repo.ProfileUpdate{Gender: &g})
		var verr *auth.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "gender", verr.Field)
	})
}

func TestUpdateStatusAndRole(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	seedAccount(store, 1, "alice")
	svc := newTestService(store)

	updated, err := svc.UpdateStatus(ctx, 1, entity.StatusBanned)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusBanned, updated.Status)

	_, err = svc.UpdateStatus(ctx, 1, entity.Status("frozen"))
	var verr *auth.ValidationError
	assert.ErrorAs(t, err, &verr)

	updated, err = svc.UpdateRole(ctx, 1, entity.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleModerator, updated.Role)

	_, err = svc.UpdateRole(ctx, 1, entity.Role("owner"))
	assert.ErrorAs(t, err, &verr)

	_, err = svc.UpdateStatus(ctx, 99, entity.StatusActive)
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	seedAccount(store, 1, "alice")
	svc := newTestService(store)

	require.NoError(t, svc.SoftDelete(ctx, 1))

	// hidden from normal lookups
	_, err := svc.GetByID(ctx, 1, false)
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)

	// still visible when deleted rows are included
	acc, err := svc.GetByID(ctx, 1, true)
	require.NoError(t, err)
	assert.NotNil(t, acc.DeletedAt)

	require.NoError(t, svc.Restore(ctx, 1))
	acc, err = svc.GetByID(ctx, 1, false)
	require.NoError(t, err)
	assert.Nil(t, acc.DeletedAt)

	// restoring a live account is rejected
	err = svc.Restore(ctx, 1)
	var verr *auth.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestListValidation(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	seedAccount(store, 1, "alice")
	seedAccount(store, 2, "bob")
	svc := newTestService(store)

	items, total, err := svc.List(ctx, repo.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	_, _, err = svc.List(ctx, repo.ListFilter{Role: "owner"})
	var verr *auth.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, _, err = svc.List(ctx, repo.ListFilter{Status: "frozen"})
	assert.ErrorAs(t, err, &verr)
}

func TestBatchUpdate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	seedAccount(store, 1, "alice")
	seedAccount(store, 2, "bob")
	svc := newTestService(store)

	_, err := svc.BatchUpdate(ctx, []int64{1, 2}, nil, nil)
	var verr *auth.ValidationError
	require.ErrorAs(t, err, &verr)

	banned := entity.StatusBanned
	n, err := svc.BatchUpdate(ctx, []int64{1, 2, 42}, &banned, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	acc, err := svc.GetByID(ctx, 1, false)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusBanned, acc.Status)

	bad := entity.Status("frozen")
	_, err = svc.BatchUpdate(ctx, []int64{1}, &bad, nil)
	assert.ErrorAs(t, err, &verr)
}
