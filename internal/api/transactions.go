package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/erazemk/karat/internal/ledger"
	"github.com/erazemk/karat/internal/model"
	"github.com/erazemk/karat/internal/store"
)

// Header names for idempotent transaction recording.
const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// TransactionsHandler handles the inventory transaction ledger endpoints.
type TransactionsHandler struct {
	DB       *sqlx.DB
	Recorder *ledger.Recorder
	Log      *zap.Logger
}

// Create handles POST /api/inventory/transactions.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	var in ledger.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, log, err)
		return
	}
	in.IdempotencyKey = r.Header.Get(headerIdempotencyKey)

	res, err := h.Recorder.Record(r.Context(), ledger.Actor{
		TenantID: claims.TenantID,
		UserID:   claims.UserID,
	}, in)
	if err != nil {
		writeError(w, log, err)
		return
	}

	body := map[string]any{
		"transaction":      res.Transaction,
		"updatedInventory": res.Item,
	}
	if res.Replayed {
		w.Header().Set(headerReplayed, "true")
		jsonResponse(w, http.StatusOK, body)
		return
	}
	jsonResponse(w, http.StatusCreated, body)
}

// List handles GET /api/inventory/transactions.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	q := r.URL.Query()
	filter := store.TransactionFilter{
		InventoryID: q.Get("inventory_id"),
		DealerID:    q.Get("dealer_id"),
		EmployeeID:  q.Get("employee_id"),
		Type:        model.TransactionType(q.Get("type")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeError(w, log, model.Invalid("type", "must be one of deposit, withdraw, transfer"))
		return
	}

	transactions, err := store.ListTransactions(r.Context(), h.DB, claims.TenantID, filter)
	if err != nil {
		writeError(w, log, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"transactions": transactions})
}

// Get handles GET /api/inventory/transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	t, err := store.GetTransaction(r.Context(), h.DB, claims.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, requestLog(h.Log, r), err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"transaction": t})
}
