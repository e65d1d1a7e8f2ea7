package devserver

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"math/rand/v2"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
)

const (
	totpPeriod = 30
	qrSize     = 200
)

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Request bodies, mirroring what authsdk.Client sends.
type (
	loginIDRequest struct {
		LoginID string `json:"loginId"`
	}
	codeRequest struct {
		LoginID string `json:"loginId"`
		Code    string `json:"code"`
	}
	passwordRequest struct {
		LoginID  string `json:"loginId"`
		Password string `json:"password"`
	}
	enchantedLinkRequest struct {
		LoginID string `json:"loginId"`
		URI     string `json:"URI,omitempty"`
	}
	pendingSessionRequest struct {
		PendingRef string `json:"pendingRef"`
	}
)

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "projectId") != s.cfg.ProjectID {
		writeError(w, http.StatusNotFound, authsdk.ErrCodeNotFound, "Unknown project")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.keys.PublicJWKS())
}

func validMethod(m string) bool {
	switch authsdk.DeliveryMethod(m) {
	case authsdk.DeliveryEmail, authsdk.DeliverySMS, authsdk.DeliveryWhatsApp:
		return true
	}
	return false
}

// handleOTPSignIn signs up or signs in: unknown login ids get an account.
func (s *Server) handleOTPSignIn(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	if !validMethod(method) {
		writeBadRequest(w, "Unsupported delivery method")
		return
	}

	var req loginIDRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.LoginID == "" {
		writeBadRequest(w, "Missing login id")
		return
	}

	s.mu.Lock()
	acct, _ := s.accountLocked(req.LoginID, true)
	if authsdk.DeliveryMethod(method) != authsdk.DeliveryEmail && acct.user.Phone == "" {
		acct.user.Phone = req.LoginID
	}
	resp := authsdk.OTPSignInResponse{}
	if authsdk.DeliveryMethod(method) == authsdk.DeliveryEmail {
		resp.MaskedEmail = maskEmail(acct.user.Email)
	} else {
		resp.MaskedPhone = maskPhone(acct.user.Phone)
	}
	s.mu.Unlock()

	slogx.FromContext(r.Context()).Info("otp sent", "method", method, "user_id", acct.user.UserID)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	if !validMethod(chi.URLParam(r, "method")) {
		writeBadRequest(w, "Unsupported delivery method")
		return
	}

	var req codeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.LoginID == "" {
		writeBadRequest(w, "Missing login id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accountLocked(req.LoginID, false)
	if !ok || req.Code != s.cfg.OTPCode {
		writeError(w, http.StatusUnauthorized, authsdk.ErrCodeInvalidOTP, "Wrong OTP code")
		return
	}
	s.writeAuthLocked(w, r, acct)
}

func (s *Server) handlePasswordSignIn(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.LoginID == "" {
		writeBadRequest(w, "Missing login id")
		return
	}

	s.mu.Lock()
	acct, ok := s.accountLocked(req.LoginID, false)
	hash := ""
	if ok {
		hash = acct.passwordHash
	}
	s.mu.Unlock()

	// Hashing happens outside the lock; argon2 is slow on purpose.
	if hash == "" || s.hasher.Verify(req.Password, hash) != nil {
		writeError(w, http.StatusUnauthorized, authsdk.ErrCodeInvalidCredentials, "Invalid login credentials")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeAuthLocked(w, r, acct)
}

func (s *Server) handleTOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.LoginID == "" {
		writeBadRequest(w, "Missing login id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accountLocked(req.LoginID, false)
	if !ok || acct.totpSecret == "" {
		writeError(w, http.StatusUnauthorized, authsdk.ErrCodeInvalidOTP, "TOTP not configured")
		return
	}
	valid, err := totp.ValidateCustom(req.Code, acct.totpSecret, s.cfg.Now().UTC(), totpOpts)
	if err != nil || !valid {
		writeError(w, http.StatusUnauthorized, authsdk.ErrCodeInvalidOTP, "Wrong TOTP code")
		return
	}
	s.writeAuthLocked(w, r, acct)
}

// handleTOTPUpdate enrolls a new authenticator for the caller. The refresh
// JWT must belong to the login id being updated.
func (s *Server) handleTOTPUpdate(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req loginIDRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.LoginID == "" {
		writeBadRequest(w, "Missing login id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.checkRefreshLocked(httpx.RefreshJWTFromCtx(r.Context()))
	if err != nil {
		log.Warn("totp update rejected", "error", err)
		writeError(w, http.StatusUnauthorized, authsdk.ErrCodeUnauthorized, "Invalid refresh token")
		return
	}
	acct, ok := s.accountLocked(req.LoginID, false)
	if !ok || acct != owner {
		writeError(w, http.StatusUnauthorized, authsdk.ErrCodeUnauthorized, "Login id does not match session")
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.ProjectID,
		AccountName: req.LoginID,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		log.Error("failed to generate TOTP key", "error", err)
		writeError(w, http.StatusInternalServerError, authsdk.ErrCodeServerFailure, "Failed to generate key")
		return
	}

	image, err := qrImage(key)
	if err != nil {
		log.Error("failed to render TOTP QR code", "error", err)
		writeError(w, http.StatusInternalServerError, authsdk.ErrCodeServerFailure, "Failed to render QR code")
		return
	}

	acct.totpSecret = key.Secret()
	acct.user.Authentication.TOTP = true

	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollment{
		ProvisioningURL: key.URL(),
		Image:           image,
		Secret:          key.Secret(),
	})
}

func qrImage(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *Server) handleEnchantedSignIn(w http.ResponseWriter, r *http.Request) {
	var req enchantedLinkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.LoginID == "" {
		writeBadRequest(w, "Missing login id")
		return
	}

	s.mu.Lock()
	acct, _ := s.accountLocked(req.LoginID, true)
	ref := uuid.NewString()
	s.pending[ref] = &pendingLink{loginID: req.LoginID}
	masked := maskEmail(acct.user.Email)
	s.mu.Unlock()

	slogx.FromContext(r.Context()).Info("enchanted link sent", "pending_ref", ref, "redirect", req.URI)
	httpx.WriteJSON(w, http.StatusOK, authsdk.EnchantedLinkResponse{
		PendingRef:  ref,
		LinkID:      fmt.Sprintf("%02d", rand.IntN(100)), // #nosec G404 - display hint only
		MaskedEmail: masked,
	})
}

func (s *Server) handlePendingSession(w http.ResponseWriter, r *http.Request) {
	var req pendingSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.PendingRef == "" {
		writeBadRequest(w, "Missing pending ref")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.pending[req.PendingRef]
	if !ok {
		writeError(w, http.StatusNotFound, authsdk.ErrCodeNotFound, "Unknown pending ref")
		return
	}
	if !link.verified {
		writeError(w, http.StatusUnauthorized, authsdk.ErrCodeEnchantedLinkPending, "Enchanted link not verified yet")
		return
	}

	acct, ok := s.accountLocked(link.loginID, false)
	if !ok {
		writeError(w, http.StatusNotFound, authsdk.ErrCodeNotFound, "Account removed")
		return
	}
	delete(s.pending, req.PendingRef)
	s.writeAuthLocked(w, r, acct)
}

// handleDevVerifyLink stands in for the user clicking the emailed link.
func (s *Server) handleDevVerifyLink(w http.ResponseWriter, r *http.Request) {
	var req pendingSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid body")
		return
	}
	if err := s.VerifyEnchantedLink(req.PendingRef); err != nil {
		writeError(w, http.StatusNotFound, authsdk.ErrCodeNotFound, "Unknown pending ref")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyEnchantedLink marks the link for pendingRef as clicked.
func (s *Server) VerifyEnchantedLink(pendingRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.pending[pendingRef]
	if !ok {
		return ErrUnknownPendingRef
	}
	link.verified = true
	return nil
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())
	raw := httpx.RefreshJWTFromCtx(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.checkRefreshLocked(raw)
	if err != nil {
		log.Warn("refresh rejected", "error", err)
		writeError(w, http.StatusUnauthorized, authsdk.ErrCodeUnauthorized, "Invalid refresh token")
		return
	}

	sessionJWT, err := s.sessionJWT(acct)
	if err != nil {
		log.Error("failed to sign session token", "error", err)
		writeError(w, http.StatusInternalServerError, authsdk.ErrCodeServerFailure, "Failed to sign token")
		return
	}
	resp := authsdk.RefreshResponse{SessionJWT: sessionJWT}

	if s.cfg.RotateRefresh {
		next, err := s.signer.Sign(s.baseClaims(acct.user.UserID, s.cfg.RefreshTTL, tokenUseRefresh))
		if err != nil {
			log.Error("failed to sign refresh token", "error", err)
			writeError(w, http.StatusInternalServerError, authsdk.ErrCodeServerFailure, "Failed to sign token")
			return
		}
		s.revokeLocked(raw)
		resp.RefreshJWT = next
	}

	s.refreshes.Add(1)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.checkRefreshLocked(httpx.RefreshJWTFromCtx(r.Context()))
	if err != nil {
		writeError(w, http.StatusUnauthorized, authsdk.ErrCodeUnauthorized, "Invalid refresh token")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, acct.user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw := httpx.RefreshJWTFromCtx(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.checkRefreshLocked(raw); err != nil {
		writeError(w, http.StatusUnauthorized, authsdk.ErrCodeUnauthorized, "Invalid refresh token")
		return
	}
	s.revokeLocked(raw)
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

// writeAuthLocked issues tokens for acct and writes them. Callers hold s.mu.
func (s *Server) writeAuthLocked(w http.ResponseWriter, r *http.Request, acct *account) {
	resp, err := s.authResponseLocked(acct)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to issue tokens", "error", err)
		writeError(w, http.StatusInternalServerError, authsdk.ErrCodeServerFailure, "Failed to issue tokens")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// TOTPCode returns the current authenticator code for loginID.
func (s *Server) TOTPCode(loginID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accountLocked(loginID, false)
	if !ok || acct.totpSecret == "" {
		return "", fmt.Errorf("devserver: no authenticator for %q", loginID)
	}
	return totp.GenerateCodeCustom(acct.totpSecret, s.cfg.Now().UTC(), totpOpts)
}
