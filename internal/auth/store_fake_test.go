package auth

import (
	"context"
	"sync"
	"time"

	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
)

// fakeStore is an in-memory Store for service tests. It applies the same
// lockout transition the Postgres repository runs in SQL, under one mutex.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*entity.Account

	failRecordFailure error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, accounts: map[int64]*entity.Account{}}
}

func (f *fakeStore) seed(a *entity.Account) *entity.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	cp.ID = f.nextID
	f.nextID++
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.accounts[cp.ID] = &cp
	return &cp
}

func strEq(p *string, v string) bool { return p != nil && *p == v }

func (f *fakeStore) FindByIdentifier(_ context.Context, identifier string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.DeletedAt != nil {
			continue
		}
		if a.Username == identifier || strEq(a.Email, identifier) || strEq(a.Phone, identifier) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (f *fakeStore) FindByID(_ context.Context, id int64, includeDeleted bool) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || (a.DeletedAt != nil && !includeDeleted) {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) FindByOpenID(_ context.Context, openid string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.DeletedAt == nil && strEq(a.OpenID, openid) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (f *fakeStore) Create(_ context.Context, draft *entity.Account) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		switch {
		case a.Username == draft.Username:
			return nil, &DuplicateFieldError{Field: "username"}
		case draft.Email != nil && strEq(a.Email, *draft.Email):
			return nil, &DuplicateFieldError{Field: "email"}
		case draft.Phone != nil && strEq(a.Phone, *draft.Phone):
			return nil, &DuplicateFieldError{Field: "phone"}
		case draft.OpenID != nil && strEq(a.OpenID, *draft.OpenID):
			return nil, &DuplicateFieldError{Field: "openid"}
		}
	}
	cp := *draft
	cp.ID = f.nextID
	f.nextID++
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.accounts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeStore) RecordLoginFailure(_ context.Context, id int64, policy LockoutPolicy) (int, *time.Time, error) {
	if f.failRecordFailure != nil {
		return 0, nil, f.failRecordFailure
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return 0, nil, ErrAccountNotFound
	}
	a.LoginAttempts, a.LockedUntil = policy.OnFailure(a.LoginAttempts, a.LockedUntil, time.Now())
	a.UpdatedAt = time.Now()
	return a.LoginAttempts, a.LockedUntil, nil
}

func (f *fakeStore) RecordLoginSuccess(_ context.Context, id int64, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	now := time.Now()
	a.LoginAttempts = 0
	a.LockedUntil = nil
	a.LastLoginAt = &now
	if ip != "" {
		a.LastLoginIP = &ip
	}
	a.UpdatedAt = now
	return nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = &hash
	a.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) ResetCredentials(_ context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = &hash
	a.LoginAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) UpdateMiniProfile(_ context.Context, id int64, nickname, avatar *string, gender *entity.Gender, ip string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if nickname != nil {
		a.Nickname = nickname
	}
	if avatar != nil {
		a.Avatar = avatar
	}
	if gender != nil {
		a.Gender = *gender
	}
	now := time.Now()
	a.LastLoginAt = &now
	if ip != "" {
		a.LastLoginIP = &ip
	}
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}

func (f *fakeStore) get(id int64) *entity.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.accounts[id]
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
