package entity

import "time"

// Role is one of a closed, ordered set of permission roles. Ordering is by
// Level, not by string comparison.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// roleLevels is the static hierarchy table. Higher means more privilege.
var roleLevels = map[Role]int{
	RoleGuest:      0,
	RoleUser:       10,
	RoleModerator:  20,
	RoleAdmin:      30,
	RoleSuperAdmin: 99,
}

// Level returns the numeric privilege level of the role. Unknown roles map
// to the guest level so a corrupted value never grants access.
func (r Role) Level() int {
	return roleLevels[r]
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Status is the account lifecycle state. Only active accounts may authenticate.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBanned   Status = "banned"
	StatusPending  Status = "pending"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusBanned, StatusPending:
		return true
	}
	return false
}

// Gender values mirror the profile hints delivered by the mini-program platform.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderUnknown:
		return true
	}
	return false
}

// Account represents a row in the `accounts` table. Optional columns are
// pointers; a nil PasswordHash marks a pure mini-program identity that has
// never set a password.
type Account struct {
	ID       int64   `db:"id"`
	Username string  `db:"username"`
	Email    *string `db:"email"`
	Phone    *string `db:"phone"`

	PasswordHash *string `db:"password_hash"`

	Nickname *string    `db:"nickname"`
	Avatar   *string    `db:"avatar"`
	Gender   Gender     `db:"gender"`
	Birthday *time.Time `db:"birthday"`

	Role   Role   `db:"role"`
	Status Status `db:"status"`

	// Mini-program identity. OpenID is unique per app, UnionID across apps.
	OpenID  *string `db:"openid"`
	UnionID *string `db:"unionid"`

	EmailVerified bool `db:"email_verified"`
	PhoneVerified bool `db:"phone_verified"`

	LoginAttempts int        `db:"login_attempts"`
	LockedUntil   *time.Time `db:"locked_until"`
	LastLoginAt   *time.Time `db:"last_login_at"`
	LastLoginIP   *string    `db:"last_login_ip"`

	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

// IsLocked reports whether the lockout window is still open at the given time.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// HasPassword reports whether the account can authenticate with credentials.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// Public is the externally visible projection of an account. Credential and
// lockout columns never leave the service layer.
type Public struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         *string    `json:"email,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	Nickname      *string    `json:"nickname,omitempty"`
	Avatar        *string    `json:"avatar,omitempty"`
	Gender        Gender     `json:"gender"`
	Birthday      *time.Time `json:"birthday,omitempty"`
	Role          Role       `json:"role"`
	Status        Status     `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	PhoneVerified bool       `json:"phone_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Public strips sensitive fields for API responses.
func (a *Account) Public() Public {
	return Public{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		Phone:         a.Phone,
		Nickname:      a.Nickname,
		Avatar:        a.Avatar,
		Gender:        a.Gender,
		Birthday:      a.Birthday,
		Role:          a.Role,
		Status:        a.Status,
		EmailVerified: a.EmailVerified,
		PhoneVerified: a.PhoneVerified,
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
	}
}
