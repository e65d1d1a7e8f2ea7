package devserver

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/cryptox"
	"github.com/aussiebroadwan/authkit/pkg/jwtx"
)

// Claim names the server adds on top of the registered ones.
const (
	ClaimTokenUse = "token_use"
	ClaimTokenID  = "jti"
	ClaimEmail    = "email"
)

const (
	tokenUseSession = "session"
	tokenUseRefresh = "refresh"
)

var (
	errRevoked      = errors.New("devserver: refresh token revoked")
	errWrongUse     = errors.New("devserver: not a refresh token")
	errUnknownOwner = errors.New("devserver: token subject has no account")
)

// MintSession signs in loginID without any verification, as a successful
// sign-in would.
func (s *Server) MintSession(loginID string) (*authsdk.AuthenticationResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accountLocked(loginID, false)
	if !ok {
		return nil, fmt.Errorf("devserver: no account for %q", loginID)
	}
	return s.authResponseLocked(acct)
}

// MintSessionJWT signs a session token for subject that expires after ttl,
// for exercising expiry handling.
func (s *Server) MintSessionJWT(subject string, ttl time.Duration) (string, error) {
	claims := s.baseClaims(subject, ttl, tokenUseSession)
	return s.signer.Sign(claims)
}

// authResponseLocked issues a fresh token pair for acct. Callers hold s.mu.
func (s *Server) authResponseLocked(acct *account) (*authsdk.AuthenticationResponse, error) {
	sessionJWT, err := s.sessionJWT(acct)
	if err != nil {
		return nil, err
	}
	refreshJWT, err := s.signer.Sign(s.baseClaims(acct.user.UserID, s.cfg.RefreshTTL, tokenUseRefresh))
	if err != nil {
		return nil, err
	}

	firstSeen := !acct.signedIn
	acct.signedIn = true
	return &authsdk.AuthenticationResponse{
		SessionJWT: sessionJWT,
		RefreshJWT: refreshJWT,
		User:       acct.user,
		FirstSeen:  firstSeen,
	}, nil
}

func (s *Server) baseClaims(subject string, ttl time.Duration, use string) map[string]any {
	claims := jwtx.StandardClaims(s.cfg.IssuerBase, s.cfg.ProjectID, subject, ttl, s.cfg.Now())
	claims[ClaimTokenUse] = use
	claims[ClaimTokenID] = uuid.NewString()
	return claims
}

func (s *Server) sessionJWT(acct *account) (string, error) {
	claims := s.baseClaims(acct.user.UserID, s.cfg.SessionTTL, tokenUseSession)
	maps.Copy(claims, acct.opts.CustomClaims)

	if acct.user.Email != "" {
		claims[ClaimEmail] = acct.user.Email
	}
	if len(acct.opts.Roles) > 0 {
		claims[jwtx.ClaimRoles] = acct.opts.Roles
	}
	if len(acct.opts.Permissions) > 0 {
		claims[jwtx.ClaimPermissions] = acct.opts.Permissions
	}
	if len(acct.opts.Tenants) > 0 {
		claims[jwtx.ClaimTenants] = acct.opts.Tenants
	}
	return s.signer.Sign(claims)
}

// checkRefresh verifies raw and returns its owner. Callers hold s.mu.
func (s *Server) checkRefreshLocked(raw string) (*account, error) {
	tok, err := jwtx.VerifySignature(raw, s.keys, s.cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	if use, _ := tok.Claim(ClaimTokenUse); use != tokenUseRefresh {
		return nil, errWrongUse
	}
	if _, ok := s.revoked[cryptox.Fingerprint(raw)]; ok {
		return nil, errRevoked
	}
	acct, ok := s.accountByUserIDLocked(tok.EntityID())
	if !ok {
		return nil, errUnknownOwner
	}
	return acct, nil
}

func (s *Server) revokeLocked(raw string) {
	s.revoked[cryptox.Fingerprint(raw)] = struct{}{}
}

// RefreshCount reports how many refresh calls succeeded.
func (s *Server) RefreshCount() int64 {
	return s.refreshes.Load()
}
