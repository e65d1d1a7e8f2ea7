package flowbridge

import (
	"net/http"
	"net/url"
	"time"

	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

// Cookie names checked when a success payload carries no tokens and the
// page did not advertise its own.
const (
	DefaultSessionCookieName = "AKS"
	DefaultRefreshCookieName = "AKR"
)

// cookieToken returns the newest JWT among cookies called name that belongs
// to projectID. Cookies that do not parse or belong to another project are
// skipped.
func cookieToken(cookies []*http.Cookie, name, projectID string) string {
	var (
		best   string
		bestAt time.Time
		found  bool
	)
	for _, c := range cookies {
		if c.Name != name || c.Value == "" {
			continue
		}
		tok, err := jwtx.Parse(c.Value)
		if err != nil || tok.ProjectID() != projectID {
			continue
		}
		iat, _ := tok.IssuedAt()
		if !found || iat.After(bestAt) {
			best, bestAt, found = c.Value, iat, true
		}
	}
	return best
}

func jarCookies(jar http.CookieJar, pageURL string) []*http.Cookie {
	if jar == nil || pageURL == "" {
		return nil
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	return jar.Cookies(u)
}
