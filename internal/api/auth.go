package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/karat/internal/auth"
	"github.com/erazemk/karat/internal/model"
	"github.com/erazemk/karat/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	DB        *sqlx.DB
	JWTSecret string
	Log       *zap.Logger
}

type loginRequest struct {
	Tenant   string `json:"tenant"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	if req.Tenant == "" || req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "tenant, username and password required")
		return
	}

	user, err := store.GetUserForLogin(r.Context(), h.DB, req.Tenant, req.Username)
	if errors.Is(err, model.ErrNotFound) {
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, log, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.Warn("login failed", zap.String("tenant", req.Tenant), zap.String("username", req.Username), zap.String("remote", r.RemoteAddr))
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, user.TenantID, user.ID, user.Username, user.Role)
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("user logged in", zap.String("tenant_id", user.TenantID), zap.String("user", user.Username), zap.String("role", user.Role))
	jsonResponse(w, http.StatusOK, loginResponse{Token: token})
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	expiresAt := time.Now().Add(auth.TokenExpiry)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, expiresAt); err != nil {
		writeError(w, log, model.Persistence("revoking token", err))
		return
	}

	log.Info("user logged out")
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		writeError(w, log, err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, claims.TenantID, claims.UserID)
	if err != nil {
		writeError(w, log, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		jsonError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, log, err)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, claims.TenantID, claims.UserID, string(hash)); err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("user changed own password")
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	user, err := store.GetUser(r.Context(), h.DB, claims.TenantID, claims.UserID)
	if err != nil {
		writeError(w, log, err)
		return
	}
	tenant, err := store.GetTenant(r.Context(), h.DB, claims.TenantID)
	if err != nil {
		writeError(w, log, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"user": user, "tenant": tenant})
}
