package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/karat/internal/model"
	"github.com/erazemk/karat/internal/store"
)

// UsersHandler handles user management endpoints (admin only). Users are
// always managed within the caller's tenant.
type UsersHandler struct {
	DB  *sqlx.DB
	Log *zap.Logger
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Role string `json:"role"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	users, err := store.ListUsers(r.Context(), h.DB, claims.TenantID)
	if err != nil {
		writeError(w, requestLog(h.Log, r), err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"users": users})
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	if req.Username == "" || req.Password == "" || req.Role == "" {
		jsonError(w, http.StatusBadRequest, "username, password, and role required")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, log, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, log, err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, claims.TenantID, req.Username, string(hash), req.Role)
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("user created", zap.String("new_user", user.Username), zap.String("role", user.Role))
	jsonResponse(w, http.StatusCreated, map[string]any{"user": user})
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	user, err := store.GetUser(r.Context(), h.DB, claims.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, requestLog(h.Log, r), err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"user": user})
}

// Update handles PUT /api/users/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())
	id := chi.URLParam(r, "id")

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	if id == claims.UserID && req.Role != model.RoleAdmin {
		jsonError(w, http.StatusBadRequest, "cannot demote yourself")
		return
	}

	if err := store.UpdateUser(r.Context(), h.DB, claims.TenantID, id, req.Role); err != nil {
		writeError(w, log, err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, claims.TenantID, id)
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("user role updated", zap.String("target_user", user.Username), zap.String("new_role", user.Role))
	jsonResponse(w, http.StatusOK, map[string]any{"user": user})
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())
	id := chi.URLParam(r, "id")

	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, log, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, log, err)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, claims.TenantID, id, string(hash)); err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("user password reset", zap.String("target_user_id", id))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())
	id := chi.URLParam(r, "id")

	if id == claims.UserID {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, claims.TenantID, id); err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("user deleted", zap.String("deleted_user_id", id))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
