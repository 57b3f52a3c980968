package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/songforge/creditd/internal/domain"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encode JSON response", "error", err)
		}
	}
}

// Error writes an error JSON response, using AppError metadata when
// available. Rate-limited errors carry a Retry-After header alongside
// the retryAfter timestamp in the body.
func Error(w http.ResponseWriter, err error) {
	appErr, ok := domain.AsAppError(err)
	if !ok {
		slog.Error("unhandled error", "error", err)
		JSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if appErr.Kind == domain.KindInternal {
		slog.Error("internal error", "error", appErr)
	}

	if appErr.Kind == domain.KindRateLimited && !appErr.RetryAfter.IsZero() {
		seconds := int(time.Until(appErr.RetryAfter).Seconds())
		if seconds < 0 {
			seconds = 0
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	JSON(w, appErr.Code, appErr)
}

// DecodeJSON decodes a JSON request body into the given struct.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}
