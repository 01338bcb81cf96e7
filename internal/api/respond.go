package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/stocksense/stocksense/internal/models"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message    string `json:"message"`
	Code       string `json:"code"`
	Field      string `json:"field,omitempty"`
	BlockingID string `json:"blockingId,omitempty"`
}

// listBody wraps collection responses.
type listBody[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func list[T any](items []T) listBody[T] {
	if items == nil {
		items = []T{}
	}
	return listBody[T]{Items: items, Count: len(items)}
}

// WriteJSON writes payload as JSON with status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		// An unencodable payload (for example an invalid tier) is a server bug.
		slog.Error("encoding response failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"internal error","code":"internal"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// DecodeJSON decodes a single JSON object from the request body, rejecting
// unknown fields and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return models.NewValidationError("body", "request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return verr
		}
		if errors.Is(err, io.EOF) {
			return models.NewValidationError("body", "request body is required")
		}
		return models.NewValidationError("body", "%v", err)
	}
	if decoder.More() {
		return models.NewValidationError("body", "unexpected data after JSON object")
	}
	return nil
}

// writeError maps err onto the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		verr     *models.ValidationError
		nferr    *models.NotFoundError
		conflict *models.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusBadRequest, errorBody{errorDetail{
			Message: verr.Error(), Code: "validation_error", Field: verr.Field,
		}})
	case errors.As(err, &nferr):
		WriteJSON(w, http.StatusNotFound, errorBody{errorDetail{Message: nferr.Error(), Code: "not_found"}})
	case errors.As(err, &conflict):
		WriteJSON(w, http.StatusConflict, errorBody{errorDetail{
			Message: conflict.Error(), Code: "conflict", BlockingID: conflict.BlockingID,
		}})
	default:
		logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		WriteJSON(w, http.StatusInternalServerError, errorBody{errorDetail{Message: "internal error", Code: "internal"}})
	}
}

// parseLimit reads the limit query parameter. Absent means the default
// page size and large values are capped; malformed or non-positive values
// are rejected.
func parseLimit(r *http.Request) (int, error) {
	var page models.Pagination
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, models.NewValidationError("limit", "must be a positive integer")
		}
		page.Limit = n
	}
	return page.Normalize().Limit, nil
}
