package utils

import (
	"context"

	"github.com/NathiDhliso/Lexo-sub007/appctx"
)

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyAdvocateId    = appctx.ContextKeyAdvocateId
	ContextKeyActorName     = appctx.ContextKeyActorName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeySystem        = appctx.ContextKeySystem
)

func GetAdvocateIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyAdvocateId)
}

func SetAdvocateIdInContext(ctx context.Context, advocateId string) context.Context {
	return appctx.Set(ctx, ContextKeyAdvocateId, advocateId)
}

func GetActorNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActorName)
}

func SetActorNameInContext(ctx context.Context, name string) context.Context {
	return appctx.Set(ctx, ContextKeyActorName, name)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

// SystemContext marks ctx as background work with no calling advocate.
func SystemContext(ctx context.Context) context.Context {
	return appctx.Set(ctx, ContextKeySystem, true)
}

func IsSystemContext(ctx context.Context) bool {
	v, ok := appctx.GetBool(ctx, ContextKeySystem)
	return ok && v
}

// RequireAdvocate returns the calling advocate or an UnauthorizedError.
func RequireAdvocate(ctx context.Context) (string, error) {
	advocateId, ok := GetAdvocateIdFromContext(ctx)
	if !ok || advocateId == "" {
		return "", NewUnauthorizedError("caller identity is required")
	}
	return advocateId, nil
}

// Actor names the caller for audit rows: actor name when known, else the advocate id.
func Actor(ctx context.Context) string {
	if IsSystemContext(ctx) {
		return "System"
	}
	if name, ok := GetActorNameFromContext(ctx); ok && name != "" {
		return name
	}
	if id, ok := GetAdvocateIdFromContext(ctx); ok && id != "" {
		return id
	}
	return "unknown"
}
