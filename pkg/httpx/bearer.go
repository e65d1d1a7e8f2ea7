package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

// FormatBearer builds the Authorization value used by the identity backend:
// "Bearer {projectId}" for anonymous calls and "Bearer {projectId}:{jwt}"
// for calls made on behalf of a signed-in user.
func FormatBearer(projectID, jwt string) string {
	if jwt == "" {
		return "Bearer " + projectID
	}
	return "Bearer " + projectID + ":" + jwt
}

// ParseBearer splits an Authorization header produced by FormatBearer.
func ParseBearer(header string) (projectID, jwt string, ok bool) {
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", "", false
	}
	raw = strings.TrimSpace(raw)
	projectID, jwt, _ = strings.Cut(raw, ":")
	if projectID == "" {
		return "", "", false
	}
	return projectID, jwt, true
}

// BearerMiddleware rejects requests without a composite bearer value for
// projectID and stores the parsed parts in the request context.
func BearerMiddleware(projectID string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pid, jwt, ok := ParseBearer(r.Header.Get("Authorization"))
			if !ok {
				writeBearerError(w, "missing bearer value")
				return
			}
			if pid != projectID {
				writeBearerError(w, "unknown project")
				return
			}

			ctx := context.WithValue(r.Context(), CtxKeyProjectID, pid)
			ctx = slogx.With(ctx, "project_id", pid)
			if jwt != "" {
				ctx = context.WithValue(ctx, CtxKeyRefreshJWT, jwt)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, ErrorBody{
		Code:        CodeUnauthorized,
		Description: desc,
	})
}
