package authsdk

import (
	"bytes"
	"encoding/json"
)

// UserStatus is the account state reported by the backend.
type UserStatus string

const (
	UserStatusEnabled  UserStatus = "enabled"
	UserStatusDisabled UserStatus = "disabled"
	UserStatusInvited  UserStatus = "invited"
)

// User is a profile snapshot as returned by the backend. It is replaced
// wholesale on every successful auth call or Me refresh and never merged.
type User struct {
	UserID string `json:"userId"`

	// LoginIDs are unique per user but only globally unique once verified.
	LoginIDs []string `json:"loginIds"`

	Name       string `json:"name,omitempty"`
	GivenName  string `json:"givenName,omitempty"`
	MiddleName string `json:"middleName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
	Picture    string `json:"picture,omitempty"`

	Email         string `json:"email,omitempty"`
	VerifiedEmail bool   `json:"verifiedEmail"`
	Phone         string `json:"phone,omitempty"`
	VerifiedPhone bool   `json:"verifiedPhone"`

	CustomAttributes map[string]any `json:"customAttributes,omitempty"`

	Status      UserStatus `json:"status"`
	CreatedTime int64      `json:"createdTime,omitempty"`

	Authentication UserAuthentication `json:"authentication"`
	Authorization  UserAuthorization  `json:"authorization"`
}

// UserAuthentication summarises which sign-in methods the user has set up.
type UserAuthentication struct {
	Password bool     `json:"password"`
	TOTP     bool     `json:"totp"`
	Passkey  bool     `json:"passkey"`
	SSO      bool     `json:"sso"`
	OAuth    []string `json:"oauth,omitempty"`
}

// UserAuthorization lists the user's role names and SSO app ids.
type UserAuthorization struct {
	RoleNames []string `json:"roleNames,omitempty"`
	SSOAppIDs []string `json:"ssoAppIds,omitempty"`
}

// Equal compares two snapshots by their JSON form, so values that only
// differ in numeric representation after a storage round trip still match.
func (u User) Equal(other User) bool {
	a, errA := json.Marshal(u)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// AuthenticationResponse is returned by every sign-in or verify call.
type AuthenticationResponse struct {
	SessionJWT string `json:"sessionJwt"`
	RefreshJWT string `json:"refreshJwt"`
	User       User   `json:"user"`
	FirstSeen  bool   `json:"firstSeen"`
}

// Session parses the response into a Session.
func (r *AuthenticationResponse) Session() (*Session, error) {
	return NewSession(r.SessionJWT, r.RefreshJWT, r.User)
}

// RefreshResponse carries a new session JWT and, optionally, a rotated
// refresh JWT.
type RefreshResponse struct {
	SessionJWT string `json:"sessionJwt"`
	RefreshJWT string `json:"refreshJwt,omitempty"`
}

// DeliveryMethod selects how an OTP code is sent.
type DeliveryMethod string

const (
	DeliveryEmail    DeliveryMethod = "email"
	DeliverySMS      DeliveryMethod = "sms"
	DeliveryWhatsApp DeliveryMethod = "whatsapp"
)

// OTPSignInResponse reports where the code was sent, masked.
type OTPSignInResponse struct {
	MaskedEmail string `json:"maskedEmail,omitempty"`
	MaskedPhone string `json:"maskedPhone,omitempty"`
}

// TOTPEnrollment is returned when an authenticator app is (re)registered.
type TOTPEnrollment struct {
	ProvisioningURL string `json:"provisioningURL"`
	Image           string `json:"image,omitempty"` // base64 PNG QR code
	Secret          string `json:"key"`
}

// EnchantedLinkResponse identifies a pending enchanted link sign-in.
type EnchantedLinkResponse struct {
	PendingRef  string `json:"pendingRef"`
	LinkID      string `json:"linkId"`
	MaskedEmail string `json:"maskedEmail,omitempty"`
}

type loginIDRequest struct {
	LoginID string `json:"loginId"`
}

type codeRequest struct {
	LoginID string `json:"loginId"`
	Code    string `json:"code"`
}

type passwordRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

type enchantedLinkRequest struct {
	LoginID string `json:"loginId"`
	URI     string `json:"URI,omitempty"`
}

type pendingSessionRequest struct {
	PendingRef string `json:"pendingRef"`
}
