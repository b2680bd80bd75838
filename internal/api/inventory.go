package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erazemk/karat/internal/imaging"
	"github.com/erazemk/karat/internal/model"
	"github.com/erazemk/karat/internal/store"
)

// InventoryHandler handles inventory item endpoints.
type InventoryHandler struct {
	DB     *sqlx.DB
	Log    *zap.Logger
	Images imaging.Options
}

type createInventoryRequest struct {
	ItemType          model.ItemType      `json:"item_type"`
	Quantity          decimal.Decimal     `json:"quantity"`
	Unit              model.Unit          `json:"unit"`
	Description       string              `json:"description"`
	Location          string              `json:"location"`
	Notes             string              `json:"notes"`
	LowStockThreshold decimal.NullDecimal `json:"low_stock_threshold"`
}

// Fields PUT /api/inventory/{id} must not carry. Quantity changes only
// through transactions; type and unit are fixed at creation.
var immutableInventoryFields = []string{"quantity", "item_type", "unit"}

// List handles GET /api/inventory.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	items, err := store.ListInventory(r.Context(), h.DB, claims.TenantID)
	if err != nil {
		writeError(w, requestLog(h.Log, r), err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"inventory": items})
}

// Create handles POST /api/inventory.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	var req createInventoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	item, err := store.CreateInventoryItem(r.Context(), h.DB, claims.TenantID, store.NewInventoryItem{
		ItemType:          req.ItemType,
		Quantity:          req.Quantity,
		Unit:              req.Unit,
		Description:       req.Description,
		Location:          req.Location,
		Notes:             req.Notes,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("inventory item created",
		zap.String("inventory_id", item.ID),
		zap.String("item_type", string(item.ItemType)),
		zap.Stringer("quantity", item.Quantity),
		zap.String("unit", string(item.Unit)),
	)
	jsonResponse(w, http.StatusCreated, map[string]any{"inventory": item})
}

// Get handles GET /api/inventory/{id}.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	item, err := store.GetInventoryItem(r.Context(), h.DB, claims.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, requestLog(h.Log, r), err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"inventory": item})
}

// Update handles PUT /api/inventory/{id}. Only descriptive fields may be
// changed.
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())

	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, log, err)
		return
	}
	details, err := parseInventoryDetails(raw)
	if err != nil {
		writeError(w, log, err)
		return
	}

	item, err := store.UpdateInventoryDetails(r.Context(), h.DB, claims.TenantID, chi.URLParam(r, "id"), details)
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("inventory item updated", zap.String("inventory_id", item.ID))
	jsonResponse(w, http.StatusOK, map[string]any{"inventory": item})
}

func parseInventoryDetails(raw map[string]json.RawMessage) (store.InventoryDetails, error) {
	var d store.InventoryDetails
	for _, field := range immutableInventoryFields {
		if _, ok := raw[field]; ok {
			return d, model.Invalid(field, "cannot be changed here; record a transaction instead")
		}
	}

	str := func(field string) (*string, error) {
		v, ok := raw[field]
		if !ok {
			return nil, nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, model.Invalid(field, "must be a string")
		}
		return &s, nil
	}

	var err error
	if d.Description, err = str("description"); err != nil {
		return d, err
	}
	if d.Location, err = str("location"); err != nil {
		return d, err
	}
	if d.Notes, err = str("notes"); err != nil {
		return d, err
	}
	if v, ok := raw["low_stock_threshold"]; ok {
		var t decimal.NullDecimal
		if err := t.UnmarshalJSON(v); err != nil {
			return d, model.Invalid("low_stock_threshold", "must be a number or null")
		}
		d.LowStockThreshold = &t
	}
	return d, nil
}

// UploadImage handles PUT /api/inventory/{id}/image.
func (h *InventoryHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	log := requestLog(h.Log, r)
	claims := GetClaims(r.Context())
	id := chi.URLParam(r, "id")

	limit := h.Images.MaxBytes
	if limit <= 0 {
		limit = imaging.DefaultMaxBytes
	}
	// Leave room for the multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)

	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		jsonError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	data, err := imaging.Process(file, h.Images)
	if err != nil {
		writeError(w, log, err)
		return
	}

	if err := store.SetInventoryImage(r.Context(), h.DB, claims.TenantID, id, data, imaging.OutputMIME); err != nil {
		writeError(w, log, err)
		return
	}

	item, err := store.GetInventoryItem(r.Context(), h.DB, claims.TenantID, id)
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("inventory image uploaded", zap.String("inventory_id", id), zap.Int("bytes", len(data)))
	jsonResponse(w, http.StatusOK, map[string]any{"inventory": item})
}

// GetImage handles GET /api/inventory/{id}/image.
func (h *InventoryHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	data, mime, err := store.GetInventoryImage(r.Context(), h.DB, claims.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, requestLog(h.Log, r), err)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}
