package devserver

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
)

// TenantClaims are the roles and permissions a user holds in one tenant.
type TenantClaims struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// UserOptions seeds an account with AddUser.
type UserOptions struct {
	Name     string
	Email    string
	Phone    string
	Password string

	Roles       []string
	Permissions []string
	Tenants     map[string]TenantClaims

	// CustomClaims are copied into every session token.
	CustomClaims map[string]any
}

type account struct {
	user         authsdk.User
	passwordHash string
	totpSecret   string
	opts         UserOptions
	signedIn     bool
}

type pendingLink struct {
	loginID  string
	verified bool
}

// AddUser creates or replaces the account for loginID and returns its
// profile.
func (s *Server) AddUser(loginID string, opts UserOptions) (authsdk.User, error) {
	acct := &account{
		opts: opts,
		user: authsdk.User{
			UserID:        "U" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			LoginIDs:      []string{loginID},
			Name:          opts.Name,
			Email:         opts.Email,
			VerifiedEmail: opts.Email != "",
			Phone:         opts.Phone,
			VerifiedPhone: opts.Phone != "",
			Status:        authsdk.UserStatusEnabled,
			CreatedTime:   s.cfg.Now().Unix(),
			Authorization: authsdk.UserAuthorization{
				RoleNames: slices.Clone(opts.Roles),
			},
		},
	}
	if opts.Password != "" {
		hash, err := s.hasher.Hash(opts.Password)
		if err != nil {
			return authsdk.User{}, fmt.Errorf("hash password: %w", err)
		}
		acct.passwordHash = hash
		acct.user.Authentication.Password = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[loginID] = acct
	return acct.user, nil
}

// User returns the profile for loginID.
func (s *Server) User(loginID string) (authsdk.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[loginID]
	if !ok {
		return authsdk.User{}, false
	}
	return acct.user, true
}

// accountLocked returns the account for loginID, creating a bare one when
// create is set. Callers hold s.mu.
func (s *Server) accountLocked(loginID string, create bool) (*account, bool) {
	if acct, ok := s.accounts[loginID]; ok {
		return acct, true
	}
	if !create {
		return nil, false
	}
	acct := &account{
		user: authsdk.User{
			UserID:      "U" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			LoginIDs:    []string{loginID},
			Status:      authsdk.UserStatusEnabled,
			CreatedTime: s.cfg.Now().Unix(),
		},
	}
	if strings.Contains(loginID, "@") {
		acct.user.Email = loginID
	}
	s.accounts[loginID] = acct
	return acct, true
}

func (s *Server) accountByUserIDLocked(userID string) (*account, bool) {
	for _, acct := range s.accounts {
		if acct.user.UserID == userID {
			return acct, true
		}
	}
	return nil, false
}

// maskEmail keeps the first character of the local part.
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return ""
	}
	return local[:1] + "***@" + domain
}

// maskPhone keeps the last two digits.
func maskPhone(phone string) string {
	if len(phone) <= 2 {
		return ""
	}
	return strings.Repeat("*", len(phone)-2) + phone[len(phone)-2:]
}
