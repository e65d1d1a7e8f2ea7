package httpx

import "context"

type ctxKey string

const (
	CtxKeyProjectID  ctxKey = "project_id"
	CtxKeyRefreshJWT ctxKey = "refresh_jwt"
)

// ProjectFromCtx returns the project id placed by BearerMiddleware.
func ProjectFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyProjectID).(string)
	return v
}

// RefreshJWTFromCtx returns the user-scoped JWT half of the bearer value, or
// "" for anonymous calls.
func RefreshJWTFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyRefreshJWT).(string)
	return v
}
