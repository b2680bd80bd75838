package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/karat/internal/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target. Malformed
// bodies are reported as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return model.Invalid("", "request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return model.Invalid("", "request body too large")
		}
		return model.Invalid("", "invalid request body")
	}
	return nil
}

// writeError maps err onto the error taxonomy. Datastore details are
// logged, never returned to the client.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, message := classify(err)

	switch {
	case status >= http.StatusInternalServerError:
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	default:
		log.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}

	jsonError(w, status, message)
}

func classify(err error) (int, string) {
	var (
		validation   *model.ValidationError
		notFound     *model.NotFoundError
		insufficient *model.InsufficientQuantityError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, insufficient.Error()
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, "the record was modified concurrently, please retry"
	case errors.Is(err, model.ErrPersistence):
		return http.StatusServiceUnavailable, "datastore temporarily unavailable"
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "insufficient permissions"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
