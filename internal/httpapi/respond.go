package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/qoldau/qoldau/internal/storage"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps sentinel errors to status codes. Internal errors never
// leak their text to the client.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	kind, status := classifyErr(err)

	var body errorBody
	body.Error.Kind = kind
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		body.Error.Message = "internal error"
	} else {
		body.Error.Message = err.Error()
	}
	writeJSON(w, status, body)
}

func classifyErr(err error) (string, int) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		return "invalid_input", http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, storage.ErrForbidden):
		return "forbidden", http.StatusForbidden
	case errors.Is(err, storage.ErrConflict):
		return "conflict", http.StatusConflict
	case errors.Is(err, storage.ErrUnavailable):
		return "unavailable", http.StatusServiceUnavailable
	default:
		return "internal", http.StatusInternalServerError
	}
}

func badRequest(w http.ResponseWriter, log *slog.Logger, msg string) {
	var body errorBody
	body.Error.Kind = "invalid_input"
	body.Error.Message = msg
	writeJSON(w, http.StatusBadRequest, body)
}
