package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
)

func testConfig() Config {
	return Config{
		Secret:     "test-secret",
		Issuer:     "backend-api-scaffold",
		Audience:   "scaffold-client",
		AccessTTL:  time.Hour,
		RefreshTTL: 2 * time.Hour,
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	c := NewCodec(testConfig())

	tok, err := c.IssueAccess(42, "alice", entity.RoleUser)
	require.NoError(t, err)

	claims, err := c.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.AccountID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, entity.RoleUser, claims.Role)
	assert.Equal(t, "backend-api-scaffold", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyExpired(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTTL = -time.Minute
	c := NewCodec(cfg)

	tok, err := c.IssueAccess(1, "bob", entity.RoleUser)
	require.NoError(t, err)

	_, err = c.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	c := NewCodec(testConfig())
	tok, err := c.IssueAccess(1, "bob", entity.RoleUser)
	require.NoError(t, err)

	other := testConfig()
	other.Secret = "different-secret"
	_, err = NewCodec(other).Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyWrongIssuerOrAudience(t *testing.T) {
	base := testConfig()
	tok, err := NewCodec(base).IssueAccess(1, "bob", entity.RoleUser)
	require.NoError(t, err)

	badIss := base
	badIss.Issuer = "someone-else"
	_, err = NewCodec(badIss).Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	badAud := base
	badAud.Audience = "other-client"
	_, err = NewCodec(badAud).Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyGarbage(t *testing.T) {
	c := NewCodec(testConfig())
	for _, bad := range []string{"", "garbage", "a.b.c"} {
		_, err := c.Verify(bad)
		assert.ErrorIs(t, err, ErrTokenInvalid, "input %q", bad)
	}
}

func TestIssuedTokensAreUnique(t *testing.T) {
	c := NewCodec(testConfig())
	t1, err := c.IssueRefresh(7, "carol", entity.RoleAdmin)
	require.NoError(t, err)
	t2, err := c.IssueRefresh(7, "carol", entity.RoleAdmin)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2, "jti must make back-to-back tokens distinct")
}

func TestDefaultLifetimes(t *testing.T) {
	c := NewCodec(Config{Secret: "s", Issuer: "i", Audience: "a"})
	assert.Equal(t, 7*24*time.Hour, c.cfg.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, c.cfg.RefreshTTL)
}
