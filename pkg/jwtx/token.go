package jwtx

import (
	"encoding/json"
	"maps"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is a read-only view over a compact JWT issued by the identity
// backend. Parse only decodes the payload; signature checks are a separate,
// optional step (see VerifySignature) because the SDK receives its tokens
// straight from the backend over TLS.
type Token struct {
	raw       string
	entityID  string
	projectID string

	expiresAt time.Time
	hasExp    bool
	issuedAt  time.Time
	hasIat    bool

	claims jwt.MapClaims
}

// Parse decodes a compact JWT. It fails with a *DecodeError when the string
// does not have exactly three segments, the payload is not a JSON object, or
// the sub/iss claims are missing or not strings. A missing or malformed exp
// claim is tolerated and simply leaves the expiry unset.
func Parse(raw string) (*Token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, decodeErr("invalid format", nil)
	}

	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return nil, decodeErr("invalid payload encoding", err)
	}

	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, decodeErr("invalid payload", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, decodeErr("missing subject claim", err)
	}

	iss, err := claims.GetIssuer()
	if err != nil || iss == "" {
		return nil, decodeErr("missing issuer claim", err)
	}

	projectID := lastPathSegment(iss)
	if projectID == "" {
		return nil, decodeErr("invalid issuer claim", nil)
	}

	t := &Token{
		raw:       raw,
		entityID:  sub,
		projectID: projectID,
		claims:    claims,
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t.expiresAt, t.hasExp = exp.Time, true
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t.issuedAt, t.hasIat = iat.Time, true
	}

	return t, nil
}

// MustParse is like Parse but panics on error. Meant for fixtures.
func MustParse(raw string) *Token {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func lastPathSegment(s string) string {
	parts := strings.Split(s, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

// Raw returns the compact JWT string.
func (t *Token) Raw() string { return t.raw }

// EntityID is the subject claim: the user or access key id.
func (t *Token) EntityID() string { return t.entityID }

// ProjectID is the last path segment of the issuer claim.
func (t *Token) ProjectID() string { return t.projectID }

// ExpiresAt returns the expiry and whether the token carries one.
func (t *Token) ExpiresAt() (time.Time, bool) { return t.expiresAt, t.hasExp }

// ExpiresAtMillis returns the expiry as epoch milliseconds (exp * 1000).
func (t *Token) ExpiresAtMillis() (int64, bool) {
	if !t.hasExp {
		return 0, false
	}
	return t.expiresAt.UnixMilli(), true
}

// IssuedAt returns the iat claim and whether it is present.
func (t *Token) IssuedAt() (time.Time, bool) { return t.issuedAt, t.hasIat }

// IsExpired reports whether the token has an expiry that is not after now.
// Tokens without an expiry never expire.
func (t *Token) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// IsExpiredAt is IsExpired against an explicit clock reading.
func (t *Token) IsExpiredAt(now time.Time) bool {
	return t.hasExp && !t.expiresAt.After(now)
}

// Claim returns a single claim value as decoded from JSON.
func (t *Token) Claim(name string) (any, bool) {
	v, ok := t.claims[name]
	return v, ok
}

// CustomClaims returns a copy of every claim outside the reserved set.
func (t *Token) CustomClaims() map[string]any {
	out := make(map[string]any, len(t.claims))
	for k, v := range t.claims {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}

// Claims returns a copy of the full claim map.
func (t *Token) Claims() map[string]any {
	return maps.Clone(map[string]any(t.claims))
}

// String keeps raw JWTs out of accidental %v formatting.
func (t *Token) String() string {
	return "jwtx.Token{sub=" + t.entityID + ", project=" + t.projectID + "}"
}
