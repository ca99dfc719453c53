package backendfake

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/stockpilot/backend"
	"github.com/rs/zerolog/log"
)

func encodeUID(id int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(id)))
}

func decodeUID(uid string) (int, bool) {
	b, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return 0, false
	}
	id, err := strconv.Atoi(string(b))
	return id, err == nil
}

// fieldErrors collects DRF-style {"field": ["message"]} validation errors.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return false
	}
	return true
}

func (s *Server) csrf(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.csrfCalls++
	tok := s.csrfToken
	s.lock.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     backend.CSRFCookieName,
		Value:    tok,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, backend.CSRFResponse{CSRFToken: tok})
}

func (s *Server) issuePair(u *User) (backend.TokenResponse, error) {
	now := time.Now()
	access, err := mintAccessToken(s.secret, u.ID, u.Username, now.Add(s.accessTTL), s.generation())
	if err != nil {
		return backend.TokenResponse{}, err
	}
	refresh, err := mintRefreshToken(s.secret, u.ID, u.Username, now.Add(s.refreshTTL))
	if err != nil {
		return backend.TokenResponse{}, err
	}
	return backend.TokenResponse{
		User:    &backend.UserInfo{Username: u.Username, Email: u.Email},
		Access:  access,
		Refresh: refresh,
	}, nil
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.logins++
	s.lock.Unlock()

	var req backend.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	errs := fieldErrors{}
	if req.Username == "" {
		errs.add("username", "This field is required.")
	}
	if req.Password == "" {
		errs.add("password", "This field is required.")
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	u, ok := s.data.userByName(req.Username)
	if !ok || !u.CheckPassword(req.Password) {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	pair, err := s.issuePair(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req backend.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	errs := fieldErrors{}
	if strings.TrimSpace(req.Username) == "" {
		errs.add("username", "This field is required.")
	}
	if !strings.Contains(req.Email, "@") {
		errs.add("email", "Enter a valid email address.")
	}
	if len(req.Password) < 6 {
		errs.add("password", "Ensure this field has at least 6 characters.")
	}
	if req.Password != req.ConfirmPassword {
		errs.add("confirm_password", "Passwords must match.")
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	u, err := s.data.addUser(req.Username, req.Email, req.Password)
	if err != nil {
		field := "username"
		if strings.Contains(err.Error(), "email") {
			field = "email"
		}
		writeJSON(w, http.StatusBadRequest, fieldErrors{field: {err.Error()}})
		return
	}
	pair, err := s.issuePair(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req backend.ForgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"email": {"Enter a valid email address."}})
		return
	}
	u, ok := s.data.userByEmail(req.Email)
	if !ok {
		writeError(w, http.StatusNotFound, "User with this email does not exist")
		return
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.data.setResetToken(u, token)
	log.Info().Str("email", u.Email).Msgf("password reset link: /reset-password/%s/%s/", encodeUID(u.ID), token)
	writeJSON(w, http.StatusOK, backend.MessageResponse{Message: "Password reset link sent!"})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeUID(chi.URLParam(r, "uid"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid token or user")
		return
	}
	u, ok := s.data.userByID(id)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid token or user")
		return
	}

	var req backend.ResetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	errs := fieldErrors{}
	if len(req.Password) < 8 {
		errs.add("password", "Ensure this field has at least 8 characters.")
	}
	if req.Password != req.ConfirmPassword {
		errs.add("confirm_password", "Passwords must match.")
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	if err := s.data.resetPassword(u, chi.URLParam(r, "token"), req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, backend.MessageResponse{Message: "Password reset successfully"})
}

// refreshToken mirrors SimpleJWT's TokenRefreshView, including refresh
// rotation with blacklisting when RotateRefresh is on.
func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.refreshes++
	fail, rotate, delay := s.failRefresh, s.rotateRefresh, s.refreshDelay
	s.lock.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	var req backend.RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, fieldErrors{"refresh": {"This field is required."}})
		return
	}
	if fail {
		writeTokenInvalid(w)
		return
	}
	tok, err := verify(s.secret, req.Refresh, tokenTypeRefresh)
	if err != nil {
		writeTokenInvalid(w)
		return
	}

	blacklisted := s.revoked.contains(tok.jti)
	if !blacklisted && rotate {
		blacklisted = !s.revoked.add(tok.jti, tok.exp)
	}
	if blacklisted {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is blacklisted", "code": "token_not_valid"})
		return
	}

	now := time.Now()
	out := backend.TokenResponse{}
	if out.Access, err = mintAccessToken(s.secret, tok.userID, tok.username, now.Add(s.accessTTL), s.generation()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rotate {
		if out.Refresh, err = mintRefreshToken(s.secret, tok.userID, tok.username, now.Add(s.refreshTTL)); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// logout blacklists the posted refresh token.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req backend.RefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "No refresh token provided")
		return
	}
	tok, err := verify(s.secret, req.Refresh, tokenTypeRefresh)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.revoked.add(tok.jti, tok.exp)
	writeJSON(w, http.StatusOK, backend.MessageResponse{Message: "Successfully logged out."})
}
