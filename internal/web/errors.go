package web

// errors.go turns Go errors into responses. The technical error is logged
// with the request ID; the client gets the mapped user message, rendered as
// an HTML fragment for HTMX, JSON for the API, or plain text otherwise.

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/bulkupload/internal/core"
	"github.com/JonMunkholm/bulkupload/internal/logging"
	"github.com/JonMunkholm/bulkupload/internal/source"
)

var (
	errNotCompleted    = errors.New("upload has no summary yet")
	errHistoryDisabled = errors.New("upload history is not configured")
)

// ErrorResponse is the JSON body of API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status of a known error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownConfig),
		errors.Is(err, core.ErrUploadNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrMultipleFiles),
		errors.Is(err, source.ErrNoFile),
		errors.Is(err, source.ErrEmptyFile),
		strings.HasPrefix(err.Error(), "invalid form"),
		strings.HasPrefix(err.Error(), "parse csv"):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTerminalState),
		errors.Is(err, core.ErrAlreadyStarted),
		errors.Is(err, errNotCompleted):
		return http.StatusConflict
	case errors.Is(err, errHistoryDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		render(w, r, errorAlert(msg))
	case wantsJSON(r):
		writeJSONStatus(w, status, ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
	default:
		http.Error(w, core.FormatUserError(err), status)
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client prefers JSON. API routes always do.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json") ||
		strings.HasPrefix(r.URL.Path, "/api/")
}
