package authsdk

import (
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

// Session pairs a session token, a refresh token and a user snapshot.
// Values are immutable: WithTokens and WithUser return updated copies, so a
// *Session can be shared between goroutines without locking.
type Session struct {
	sessionToken *jwtx.Token
	refreshToken *jwtx.Token
	user         User
}

// NewSession parses both JWTs. Either failing to decode yields an error
// matching ErrDecode.
func NewSession(sessionJWT, refreshJWT string, user User) (*Session, error) {
	st, err := jwtx.Parse(sessionJWT)
	if err != nil {
		return nil, err
	}
	rt, err := jwtx.Parse(refreshJWT)
	if err != nil {
		return nil, err
	}
	return &Session{sessionToken: st, refreshToken: rt, user: user}, nil
}

func (s *Session) SessionToken() *jwtx.Token { return s.sessionToken }
func (s *Session) RefreshToken() *jwtx.Token { return s.refreshToken }
func (s *Session) SessionJWT() string        { return s.sessionToken.Raw() }
func (s *Session) RefreshJWT() string        { return s.refreshToken.Raw() }

// User returns the snapshot stored with the session.
func (s *Session) User() User { return s.user }

// WithTokens returns a copy holding the refreshed tokens. The refresh token
// is kept when r carries none. The user is untouched.
func (s *Session) WithTokens(r RefreshResponse) (*Session, error) {
	st, err := jwtx.Parse(r.SessionJWT)
	if err != nil {
		return nil, err
	}
	rt := s.refreshToken
	if r.RefreshJWT != "" {
		if rt, err = jwtx.Parse(r.RefreshJWT); err != nil {
			return nil, err
		}
	}
	return &Session{sessionToken: st, refreshToken: rt, user: s.user}, nil
}

// WithUser returns a copy holding u in place of the current snapshot.
func (s *Session) WithUser(u User) *Session {
	return &Session{sessionToken: s.sessionToken, refreshToken: s.refreshToken, user: u}
}

// Equal reports whether both JWT strings and the user snapshot match.
// Two nil sessions are equal.
func (s *Session) Equal(other *Session) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.SessionJWT() == other.SessionJWT() &&
		s.RefreshJWT() == other.RefreshJWT() &&
		s.user.Equal(other.user)
}

// String keeps raw JWTs out of accidental %v formatting.
func (s *Session) String() string {
	if s == nil {
		return "authsdk.Session(nil)"
	}
	return "authsdk.Session{user=" + s.user.UserID + ", project=" + s.sessionToken.ProjectID() + "}"
}
