// Package auth implements the authentication and authorization core:
// registration, credential login with lockout tracking, bearer token
// issuance and rotation, password maintenance, and mini-program login.
package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
	"github.com/wenqu/backend-api-scaffold/internal/audit"
	"github.com/wenqu/backend-api-scaffold/internal/miniprogram"
	"github.com/wenqu/backend-api-scaffold/internal/password"
	"github.com/wenqu/backend-api-scaffold/internal/token"
)

// Store is the account repository contract consumed by the service. The
// Postgres implementation lives in internal/account/repo; tests use an
// in-memory fake. Lookup methods return ErrAccountNotFound when no live
// row matches; Create returns *DuplicateFieldError on uniqueness violations.
type Store interface {
	FindByIdentifier(ctx context.Context, identifier string) (*entity.Account, error)
	FindByID(ctx context.Context, id int64, includeDeleted bool) (*entity.Account, error)
	FindByOpenID(ctx context.Context, openid string) (*entity.Account, error)
	Create(ctx context.Context, a *entity.Account) (*entity.Account, error)

	// RecordLoginFailure applies the lockout failure transition atomically
	// and returns the post-mutation counter state.
	RecordLoginFailure(ctx context.Context, id int64, policy LockoutPolicy) (attempts int, lockedUntil *time.Time, err error)
	// RecordLoginSuccess zeroes the counter, clears any lock, and stamps
	// last_login_at / last_login_ip.
	RecordLoginSuccess(ctx context.Context, id int64, ip string) error

	UpdatePassword(ctx context.Context, id int64, hash string) error
	// ResetCredentials sets a new password hash and clears lockout state in
	// one step.
	ResetCredentials(ctx context.Context, id int64, hash string) error
	// UpdateMiniProfile refreshes optional profile fields on a returning
	// mini-program login and stamps the login audit columns.
	UpdateMiniProfile(ctx context.Context, id int64, nickname, avatar *string, gender *entity.Gender, ip string) (*entity.Account, error)
}

// Exchanger trades a one-time mini-program code for a durable identity.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*miniprogram.Session, error)
}

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,50}$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe    = regexp.MustCompile(`^1[3-9]\d{9}$`)
)

const (
	passwordMinLen = 6
	passwordMaxLen = 128
)

// Service orchestrates the authentication use cases. Construct via
// NewService; all fields are immutable afterwards.
type Service struct {
	store     Store
	hasher    password.Hasher
	tokens    *token.Codec
	lockout   LockoutPolicy
	exchanger Exchanger
	audit     *audit.Recorder
	logger    *zap.SugaredLogger

	// dummyHash is compared against when the account does not exist or has
	// no password, keeping the failure paths comparable in cost.
	dummyHash string
}

func NewService(store Store, hasher password.Hasher, tokens *token.Codec, lockout LockoutPolicy, exchanger Exchanger, rec *audit.Recorder, logger *zap.SugaredLogger) *Service {
	dummy, err := hasher.Hash("scaffold-dummy-credential")
	if err != nil {
		// bcrypt only fails on impossible cost values; an empty dummy just
		// loses the timing mitigation, not correctness.
		dummy = ""
	}
	return &Service{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		lockout:   lockout,
		exchanger: exchanger,
		audit:     rec,
		logger:    logger,
		dummyHash: dummy,
	}
}

// TokenPair bundles one access and one refresh token.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Service) issuePair(a *entity.Account) (TokenPair, error) {
	access, err := s.tokens.IssueAccess(a.ID, a.Username, a.Role)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefresh(a.ID, a.Username, a.Role)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Username string
	Email    string
	Phone    string
	Password string
	Nickname string
}

func (in *RegisterInput) validate() error {
	if !usernameRe.MatchString(in.Username) {
		return &ValidationError{Field: "username", Reason: "3-50 letters, digits or underscores"}
	}
	if in.Email != "" && !emailRe.MatchString(in.Email) {
		return &ValidationError{Field: "email", Reason: "not a valid email address"}
	}
	if in.Phone != "" && !phoneRe.MatchString(in.Phone) {
		return &ValidationError{Field: "phone", Reason: "not a valid phone number"}
	}
	if l := len(in.Password); l < passwordMinLen || l > passwordMaxLen {
		return &ValidationError{Field: "password", Reason: "must be 6-128 characters"}
	}
	return nil
}

// Register creates an active account and issues a fresh token pair.
// Uniqueness conflicts are reported with username > email > phone precedence.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.Account, TokenPair, error) {
	if err := in.validate(); err != nil {
		return nil, TokenPair{}, err
	}

	type check struct {
		field string
		value string
	}
	checks := []check{{"username", in.Username}}
	if in.Email != "" {
		checks = append(checks, check{"email", in.Email})
	}
	if in.Phone != "" {
		checks = append(checks, check{"phone", in.Phone})
	}
	for _, c := range checks {
		_, err := s.store.FindByIdentifier(ctx, c.value)
		switch {
		case err == nil:
			return nil, TokenPair{}, &DuplicateFieldError{Field: c.field}
		case errors.Is(err, ErrAccountNotFound):
			// free to use
		default:
			return nil, TokenPair{}, err
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, TokenPair{}, &ValidationError{Field: "password", Reason: "cannot be hashed"}
	}

	nickname := in.Nickname
	if nickname == "" {
		nickname = in.Username
	}
	draft := &entity.Account{
		Username:     in.Username,
		Email:        optional(in.Email),
		Phone:        optional(in.Phone),
		PasswordHash: &hash,
		Nickname:     &nickname,
		Gender:       entity.GenderUnknown,
		Role:         entity.RoleUser,
		Status:       entity.StatusActive,
	}
	created, err := s.store.Create(ctx, draft)
	if err != nil {
		// the store enforces uniqueness with the same field precedence, so a
		// race between the checks above and the insert still reports correctly
		return nil, TokenPair{}, err
	}

	pair, err := s.issuePair(created)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.audit.Business("user_register", "account_id", created.ID, "username", created.Username)
	return created, pair, nil
}

// Login authenticates by username, email, or phone. A wrong password
// advances the lockout counter; a locked account rejects every attempt
// without further counting.
func (s *Service) Login(ctx context.Context, identifier, plaintext, ip string) (*entity.Account, TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || plaintext == "" {
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	acc, err := s.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// burn a comparable amount of work before reporting
			s.hasher.Verify(plaintext, s.dummyHash)
			s.audit.Security("login_user_not_found", "identifier", identifier, "ip", ip)
			return nil, TokenPair{}, ErrAccountNotFound
		}
		return nil, TokenPair{}, err
	}

	if acc.Status != entity.StatusActive {
		s.audit.Security("login_inactive_account", "account_id", acc.ID, "status", acc.Status)
		return nil, TokenPair{}, ErrAccountInactive
	}

	now := time.Now()
	if acc.IsLocked(now) {
		s.audit.Security("login_account_locked", "account_id", acc.ID)
		return nil, TokenPair{}, ErrAccountLocked
	}

	verified := false
	if acc.HasPassword() {
		verified = s.hasher.Verify(plaintext, *acc.PasswordHash)
	} else {
		s.hasher.Verify(plaintext, s.dummyHash)
	}
	if !verified {
		attempts, lockedUntil, ferr := s.store.RecordLoginFailure(ctx, acc.ID, s.lockout)
		if ferr != nil {
			s.logger.Warnw("lockout update failed", "account_id", acc.ID, "err", ferr)
		}
		s.audit.Security("login_invalid_password",
			"account_id", acc.ID, "attempts", attempts, "locked", lockedUntil != nil, "ip", ip)
		// the failure that trips the threshold reports the lock it opened
		if ferr == nil && s.lockout.Locked(lockedUntil, now) {
			return nil, TokenPair{}, ErrAccountLocked
		}
		return nil, TokenPair{}, ErrInvalidCredentials
	}

	if err := s.store.RecordLoginSuccess(ctx, acc.ID, ip); err != nil {
		return nil, TokenPair{}, err
	}
	acc.LoginAttempts = 0
	acc.LockedUntil = nil
	acc.LastLoginAt = &now
	if ip != "" {
		acc.LastLoginIP = &ip
	}

	pair, err := s.issuePair(acc)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.audit.Business("user_login", "account_id", acc.ID, "username", acc.Username, "ip", ip)
	return acc, pair, nil
}

// Refresh verifies a refresh token, re-checks the account, and rotates the
// pair. The returned refresh token is never the one consumed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	acc, err := s.store.FindByID(ctx, claims.AccountID, false)
	if err != nil {
		return TokenPair{}, err
	}
	if acc.Status != entity.StatusActive {
		return TokenPair{}, ErrAccountInactive
	}

	return s.issuePair(acc)
}

// ChangePassword re-verifies the old password before accepting the new one.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error {
	if l := len(newPassword); l < passwordMinLen || l > passwordMaxLen {
		return &ValidationError{Field: "password", Reason: "must be 6-128 characters"}
	}

	acc, err := s.store.FindByID(ctx, accountID, false)
	if err != nil {
		return err
	}
	if !acc.HasPassword() || !s.hasher.Verify(oldPassword, deref(acc.PasswordHash)) {
		s.audit.Security("change_password_rejected", "account_id", accountID)
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return &ValidationError{Field: "password", Reason: "cannot be hashed"}
	}
	if err := s.store.UpdatePassword(ctx, accountID, hash); err != nil {
		return err
	}
	s.audit.Business("password_changed", "account_id", accountID)
	return nil
}

// ResetPassword sets a new password and clears lockout state. The
// verification code is validated by an external service before this is
// called; it is accepted here as a satisfied precondition.
func (s *Service) ResetPassword(ctx context.Context, identifier, verificationCode, newPassword string) error {
	if l := len(newPassword); l < passwordMinLen || l > passwordMaxLen {
		return &ValidationError{Field: "password", Reason: "must be 6-128 characters"}
	}

	acc, err := s.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return &ValidationError{Field: "password", Reason: "cannot be hashed"}
	}
	if err := s.store.ResetCredentials(ctx, acc.ID, hash); err != nil {
		return err
	}
	s.audit.Business("password_reset", "account_id", acc.ID)
	return nil
}

// ProfileHints are the optional profile fields delivered by the
// mini-program client alongside the login code.
type ProfileHints struct {
	Nickname string
	Avatar   string
	// Gender uses the platform encoding: 1 male, 2 female, anything else unknown.
	Gender int
}

func (h *ProfileHints) gender() entity.Gender {
	switch h.Gender {
	case 1:
		return entity.GenderMale
	case 2:
		return entity.GenderFemale
	default:
		return entity.GenderUnknown
	}
}

// MiniProgramResult is the mini-program login payload. SessionSecret is the
// provider session key, passed through to the client and never stored.
type MiniProgramResult struct {
	Account       *entity.Account
	Tokens        TokenPair
	SessionSecret string
}

// MiniProgramLogin exchanges the one-time code, then upserts the account by
// openid: first sight creates it with a generated username, later logins
// only refresh the optional profile fields. Repeated exchanges for one
// external identity always resolve to the same account.
func (s *Service) MiniProgramLogin(ctx context.Context, code string, hints *ProfileHints, ip string) (*MiniProgramResult, error) {
	sess, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		s.audit.Security("miniprogram_login_failed", "err", err)
		return nil, err
	}

	acc, err := s.store.FindByOpenID(ctx, sess.OpenID)
	switch {
	case err == nil:
		var nickname, avatar *string
		var gender *entity.Gender
		if hints != nil {
			if hints.Nickname != "" {
				nickname = &hints.Nickname
			}
			if hints.Avatar != "" {
				avatar = &hints.Avatar
			}
			if g := hints.gender(); g != entity.GenderUnknown {
				gender = &g
			}
		}
		acc, err = s.store.UpdateMiniProfile(ctx, acc.ID, nickname, avatar, gender, ip)
		if err != nil {
			return nil, err
		}
		s.audit.Business("miniprogram_user_login", "account_id", acc.ID)

	case errors.Is(err, ErrAccountNotFound):
		acc, err = s.createMiniAccount(ctx, sess, hints)
		if err != nil {
			return nil, err
		}
		s.audit.Business("miniprogram_user_register", "account_id", acc.ID, "username", acc.Username)

	default:
		return nil, err
	}

	pair, err := s.issuePair(acc)
	if err != nil {
		return nil, err
	}
	return &MiniProgramResult{Account: acc, Tokens: pair, SessionSecret: sess.SessionKey}, nil
}

func (s *Service) createMiniAccount(ctx context.Context, sess *miniprogram.Session, hints *ProfileHints) (*entity.Account, error) {
	username := generatedUsername(sess.OpenID)
	nickname := username
	var avatar *string
	gender := entity.GenderUnknown
	if hints != nil {
		if hints.Nickname != "" {
			nickname = hints.Nickname
		}
		if hints.Avatar != "" {
			avatar = &hints.Avatar
		}
		gender = hints.gender()
	}

	draft := &entity.Account{
		Username: username,
		Nickname: &nickname,
		Avatar:   avatar,
		Gender:   gender,
		Role:     entity.RoleUser,
		Status:   entity.StatusActive,
		OpenID:   &sess.OpenID,
		UnionID:  optional(sess.UnionID),
	}
	created, err := s.store.Create(ctx, draft)
	if err == nil {
		return created, nil
	}

	// a concurrent first login for the same openid may have won the insert;
	// the upsert contract resolves both callers to that single account
	var dup *DuplicateFieldError
	if errors.As(err, &dup) {
		return s.store.FindByOpenID(ctx, sess.OpenID)
	}
	return nil, err
}

func generatedUsername(openid string) string {
	suffix := openid
	if len(suffix) > 10 {
		suffix = suffix[:10]
	}
	return "wx_" + suffix
}

// ValidateToken verifies an access token and re-checks that the account is
// still live. Lockout state is never touched here.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*entity.Account, *token.Claims, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, nil, err
	}
	acc, err := s.store.FindByID(ctx, claims.AccountID, false)
	if err != nil {
		return nil, nil, err
	}
	if acc.Status != entity.StatusActive {
		return nil, nil, ErrAccountInactive
	}
	return acc, claims, nil
}

// Logout records the event. Tokens are not revoked server-side; an issued
// access token stays valid until its natural expiry.
func (s *Service) Logout(ctx context.Context, accountID int64) {
	s.audit.Business("user_logout", "account_id", accountID)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
