package utils

import (
	"context"

	"github.com/mmdatafocus/orderdesk_backend/appctx"
)

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyIsAdmin       = appctx.ContextKeyIsAdmin
)

// CurrentUser is the identity fact handed over by the authentication layer.
type CurrentUser struct {
	Id      int
	IsAdmin bool
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetIsAdminFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsAdmin)
}

// GetCurrentUserFromContext returns false when the request carries no user.
func GetCurrentUserFromContext(ctx context.Context) (CurrentUser, bool) {
	id, ok := GetUserIdFromContext(ctx)
	if !ok {
		return CurrentUser{}, false
	}
	isAdmin, _ := GetIsAdminFromContext(ctx)
	return CurrentUser{Id: id, IsAdmin: isAdmin}, true
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetIsAdminInContext(ctx context.Context, isAdmin bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsAdmin, isAdmin)
}

// SetCurrentUserInContext stores both the user id and the admin flag.
func SetCurrentUserInContext(ctx context.Context, user CurrentUser) context.Context {
	ctx = SetUserIdInContext(ctx, user.Id)
	return SetIsAdminInContext(ctx, user.IsAdmin)
}
