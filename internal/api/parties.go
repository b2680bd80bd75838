package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/erazemk/karat/internal/model"
	"github.com/erazemk/karat/internal/store"
)

func statusFilter(r *http.Request) (model.PartyStatus, error) {
	status := model.PartyStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		return "", model.Invalid("status", "must be active or inactive")
	}
	return status, nil
}

// DealersHandler handles dealer endpoints.
type DealersHandler struct {
	DB  *sqlx.DB
	Log *zap.Logger
}

// List handles GET /api/dealers.
func (h *DealersHandler) List(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	status, err := statusFilter(r)
	if err != nil {
		writeError(w, log, err)
		return
	}
	dealers, err := store.ListDealers(r.Context(), h.DB, claims.TenantID, status)
	if err != nil {
		writeError(w, log, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"dealers": dealers})
}

// Create handles POST /api/dealers.
func (h *DealersHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	var in store.PartyInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, log, err)
		return
	}
	dealer, err := store.CreateDealer(r.Context(), h.DB, claims.TenantID, in)
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("dealer created", zap.String("dealer_id", dealer.ID), zap.String("name", dealer.Name))
	jsonResponse(w, http.StatusCreated, map[string]any{"dealer": dealer})
}

// Get handles GET /api/dealers/{id}.
func (h *DealersHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	dealer, err := store.GetDealer(r.Context(), h.DB, claims.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, requestLog(h.Log, r), err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"dealer": dealer})
}

// Update handles PUT /api/dealers/{id}.
func (h *DealersHandler) Update(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	var in store.PartyInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, log, err)
		return
	}
	dealer, err := store.UpdateDealer(r.Context(), h.DB, claims.TenantID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("dealer updated", zap.String("dealer_id", dealer.ID), zap.String("status", string(dealer.Status)))
	jsonResponse(w, http.StatusOK, map[string]any{"dealer": dealer})
}

// EmployeesHandler handles employee endpoints.
type EmployeesHandler struct {
	DB  *sqlx.DB
	Log *zap.Logger
}

// List handles GET /api/employees.
func (h *EmployeesHandler) List(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	status, err := statusFilter(r)
	if err != nil {
		writeError(w, log, err)
		return
	}
	employees, err := store.ListEmployees(r.Context(), h.DB, claims.TenantID, status)
	if err != nil {
		writeError(w, log, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"employees": employees})
}

// Create handles POST /api/employees.
func (h *EmployeesHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	var in store.PartyInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, log, err)
		return
	}
	employee, err := store.CreateEmployee(r.Context(), h.DB, claims.TenantID, in)
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("employee created", zap.String("employee_id", employee.ID), zap.String("name", employee.Name))
	jsonResponse(w, http.StatusCreated, map[string]any{"employee": employee})
}

// Get handles GET /api/employees/{id}.
func (h *EmployeesHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	employee, err := store.GetEmployee(r.Context(), h.DB, claims.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, requestLog(h.Log, r), err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"employee": employee})
}

// Update handles PUT /api/employees/{id}.
func (h *EmployeesHandler) Update(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	var in store.PartyInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, log, err)
		return
	}
	employee, err := store.UpdateEmployee(r.Context(), h.DB, claims.TenantID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("employee updated", zap.String("employee_id", employee.ID), zap.String("status", string(employee.Status)))
	jsonResponse(w, http.StatusOK, map[string]any{"employee": employee})
}
