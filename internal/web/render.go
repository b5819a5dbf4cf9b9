package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hpungsan/stateintent/internal/errors"
)

// maskedMessage replaces messages that may carry collaborator detail.
const maskedMessage = "an internal error occurred"

func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes the error envelope. Errors that are not *errors.Error
// are treated as internal.
func (h *Handlers) renderError(w http.ResponseWriter, err error) {
	e, ok := errors.As(err)
	if !ok {
		e = errors.NewInternal(err)
	}

	message := e.Message
	if !e.Public() {
		message = maskedMessage
	}
	if e.Status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("code", string(e.Code)), zap.Error(err))
	}

	renderJSON(w, e.Status, map[string]any{
		"error": map[string]any{
			"code":    string(e.Code),
			"message": message,
			"status":  e.Status,
		},
	})
}
