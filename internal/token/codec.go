// Package token implements the bearer token codec: signed, time-boxed
// access and refresh tokens sharing one claim shape.
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/segmentio/ksuid"

	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
)

var (
	// ErrTokenExpired is returned when the token is well-formed and correctly
	// signed but past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other verification failure: bad signature,
	// wrong issuer or audience, malformed input.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims carried by both access and refresh tokens. The jti makes every
// issued token unique, so a rotated refresh token can never equal the one
// it replaced even within the same second.
type Claims struct {
	AccountID int64       `json:"account_id"`
	Username  string      `json:"username"`
	Role      entity.Role `json:"role"`
	jwt.RegisteredClaims
}

// Config for the codec. Secret is the symmetric HS256 signing key.
type Config struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Codec issues and verifies tokens. It is stateless and safe for
// concurrent use.
type Codec struct {
	cfg Config
}

func NewCodec(cfg Config) *Codec {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 7 * 24 * time.Hour
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Codec{cfg: cfg}
}

// IssueAccess signs an access token for the account.
func (c *Codec) IssueAccess(accountID int64, username string, role entity.Role) (string, error) {
	return c.issue(accountID, username, role, c.cfg.AccessTTL)
}

// IssueRefresh signs a refresh token for the account. Same claim shape as
// access tokens, longer expiry.
func (c *Codec) IssueRefresh(accountID int64, username string, role entity.Role) (string, error) {
	return c.issue(accountID, username, role, c.cfg.RefreshTTL)
}

func (c *Codec) issue(accountID int64, username string, role entity.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		AccountID: accountID,
		Username:  username,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ksuid.New().String(),
			Subject:   strconv.FormatInt(accountID, 10),
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.Secret))
}

// Verify parses and validates a token string. Expiry is reported as
// ErrTokenExpired; every other failure collapses into ErrTokenInvalid so
// callers cannot branch on details that would aid forgery.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(c.cfg.Secret), nil
	},
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
