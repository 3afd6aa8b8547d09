package auth

import (
	"context"

	"github.com/wenqu/backend-api-scaffold/internal/account/entity"
)

type contextKey int

const accountKey contextKey = iota

// ContextWithAccount stamps the authenticated account onto the request
// context. Used by the auth middleware.
func ContextWithAccount(ctx context.Context, acct *entity.Account) context.Context {
	return context.WithValue(ctx, accountKey, acct)
}

// AccountFrom retrieves the authenticated account placed by the auth
// middleware, or nil when the request is anonymous.
func AccountFrom(ctx context.Context) *entity.Account {
	acct, _ := ctx.Value(accountKey).(*entity.Account)
	return acct
}
