package access

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Domain errors. Handlers wrap these with context via errors.Join; the HTTP
// layer maps them to status codes in exactly one place (Status).
var (
	ErrBadRequest       = errors.New("bad request")
	ErrInvalidAttribute = errors.New("invalid attribute")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrPolicyBinding    = errors.New("policy binding mismatch")
	ErrKeyNotFound      = errors.New("key not found")
	ErrPluginIsBad      = errors.New("plugin is bad")
	ErrPluginFailed     = errors.New("plugin failed")
	ErrPluginBackend    = errors.New("plugin backend error")
	ErrRequestTimeout   = errors.New("request timeout")
	ErrCrypto           = errors.New("crypto failure")
	ErrServerStartup    = errors.New("server startup failure")
)

var statusCodes = []struct {
	err    error
	code   string
	status int
}{
	{ErrBadRequest, "BadRequest", http.StatusBadRequest},
	{ErrInvalidAttribute, "InvalidAttribute", http.StatusBadRequest},
	{ErrUnauthorized, "Unauthorized", http.StatusUnauthorized},
	{ErrPolicyBinding, "InvalidBinding", http.StatusForbidden},
	{ErrForbidden, "Forbidden", http.StatusForbidden},
	{ErrKeyNotFound, "KeyNotFound", http.StatusNotFound},
	{ErrPluginBackend, "PluginBackend", http.StatusBadGateway},
	{ErrRequestTimeout, "RequestTimeout", http.StatusGatewayTimeout},
	{ErrPluginFailed, "PluginFailed", http.StatusInternalServerError},
	{ErrCrypto, "Crypto", http.StatusInternalServerError},
}

// Status resolves a domain error to its code string and HTTP status.
// Unrecognized errors map to a 500.
func Status(err error) (string, int) {
	if errors.Is(err, context.DeadlineExceeded) {
		return "RequestTimeout", http.StatusGatewayTimeout
	}
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.code, sc.status
		}
	}
	return "InternalServerError", http.StatusInternalServerError
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps err and writes the JSON error body. Messages on 5xx are
// redacted; the full error goes to the log only.
func writeError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	code, status := Status(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	logger.Warnw("request failed", "code", code, "status", status, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message}})
}
