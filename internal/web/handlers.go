package web

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/stateintent/internal/contract"
	"github.com/hpungsan/stateintent/internal/convert"
	"github.com/hpungsan/stateintent/internal/errors"
)

// maxBodyBytes caps a request body before it is decoded.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP route handlers for the conversion API.
type Handlers struct {
	conv   *convert.Controller
	logger *zap.Logger
}

// convertRequest is the POST /convert body. Text is a pointer so an absent
// field and an empty string are both seen.
type convertRequest struct {
	Text *string `json:"text"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleConvert handles POST /convert.
func (h *Handlers) HandleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooBig):
			h.renderError(w, errors.NewInvalidInput("request body too large"))
		case stderrors.Is(err, io.EOF):
			h.renderError(w, errors.NewInvalidInput("text must not be empty"))
		default:
			h.renderError(w, errors.NewInvalidInput("request body must be valid JSON"))
		}
		return
	}

	if req.Text == nil {
		h.renderError(w, errors.NewInvalidInput("text must not be empty"))
		return
	}
	text := strings.TrimSpace(*req.Text)
	if text == "" {
		h.renderError(w, errors.NewInvalidInput("text must not be empty"))
		return
	}

	final, err := h.conv.Convert(r.Context(), text)
	if err != nil {
		h.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, final)
}

// HandlePresets handles GET /presets.
func (h *Handlers) HandlePresets(w http.ResponseWriter, _ *http.Request) {
	presets, err := contract.LoadPresets()
	if err != nil {
		h.renderError(w, errors.NewInternal(err))
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"presets": presets})
}
