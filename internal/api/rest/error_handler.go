package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	domainErrors "github.com/driveline/auto-auction-backend/internal/domain/errors"
)

// errorResponse is the wire shape for all error replies.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    string                 `json:"type"`
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeError maps a service error onto an HTTP response. AppError carries
// its own status code; everything else is treated as an internal error
// and logged with its cause, which is never leaked to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *domainErrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Type == domainErrors.ErrorTypeInternal || appErr.Type == domainErrors.ErrorTypeExternal {
			slog.ErrorContext(r.Context(), "request failed",
				"path", r.URL.Path,
				"error_type", string(appErr.Type),
				"error", appErr.Error(),
			)
		}
		writeJSON(w, appErr.StatusCode, errorResponse{Error: errorBody{
			Type:    string(appErr.Type),
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: errorBody{
			Type:    "timeout",
			Message: "request timed out",
		}})
		return
	}

	slog.ErrorContext(r.Context(), "unhandled error",
		"path", r.URL.Path,
		"error", err.Error(),
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
		Type:    string(domainErrors.ErrorTypeInternal),
		Message: "an internal error occurred",
	}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
