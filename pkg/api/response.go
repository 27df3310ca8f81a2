package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
	"github.com/codeGROOVE-dev/codepulse/pkg/refresh"
	"github.com/codeGROOVE-dev/codepulse/pkg/store"
)

// Error codes that are not scrape error kinds.
const (
	codeNotConnected    = "not_connected"
	codeCycleInProgress = "cycle_in_progress"
	codeBadRequest      = "bad_request"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// statusFor maps an error to an HTTP status and a machine-readable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, codeNotConnected
	case errors.Is(err, refresh.ErrCycleInProgress):
		return http.StatusConflict, codeCycleInProgress
	}

	kind := profile.Kind(err)
	switch kind {
	case profile.KindInvalidIdentifier, profile.KindUnknownPlatform:
		return http.StatusBadRequest, kind
	case profile.KindProfileNotFound:
		return http.StatusNotFound, kind
	case profile.KindUpstreamTimeout:
		return http.StatusGatewayTimeout, kind
	case profile.KindUpstreamError:
		return http.StatusBadGateway, kind
	case profile.KindUnparseableResponse:
		return http.StatusInternalServerError, kind
	default:
		return http.StatusInternalServerError, profile.KindInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if code == profile.KindInternal {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = "an internal error occurred"
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
