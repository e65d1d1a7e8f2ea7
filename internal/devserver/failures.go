package devserver

import (
	"net/http"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
)

// Failure describes a canned failure for one request path.
type Failure struct {
	// Status and Code make up the error response. Code defaults to the
	// SDK's code for Status.
	Status int
	Code   string

	// Drop closes the connection without answering, which the client sees
	// as a network error.
	Drop bool

	// Times limits how many requests fail; zero means until cleared.
	Times int
}

// InjectFailure makes requests to path fail as f describes.
func (s *Server) InjectFailure(path string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = &f
}

// ClearFailures removes every injected failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.failures)
}

// takeFailure returns the failure for path, consuming one use.
func (s *Server) takeFailure(path string) (Failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.failures[path]
	if !ok {
		return Failure{}, false
	}
	out := *f
	if f.Times > 0 {
		f.Times--
		if f.Times == 0 {
			delete(s.failures, path)
		}
	}
	return out, true
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := s.takeFailure(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		s.logger.Debug("injecting failure", "path", r.URL.Path, "status", f.Status, "drop", f.Drop)
		if f.Drop {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			// Without a hijackable connection the closest thing is a 502.
			f.Status = http.StatusBadGateway
		}

		status := f.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := f.Code
		if code == "" {
			code = codeFor(status)
		}
		writeError(w, status, code, "injected failure")
	})
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return authsdk.ErrCodeBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return authsdk.ErrCodeUnauthorized
	case http.StatusNotFound:
		return authsdk.ErrCodeNotFound
	case http.StatusTooManyRequests:
		return authsdk.ErrCodeTooManyRequests
	default:
		return authsdk.ErrCodeServerFailure
	}
}
