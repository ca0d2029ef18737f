// Package httputil provides common HTTP request/response helpers shared by
// the plater and automat handlers: JSON encode/decode, error envelopes, and
// query-parameter parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	svcerrors "github.com/kgraph-io/plater-automat/internal/errors"
	"github.com/kgraph-io/plater-automat/internal/logging"
)

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes err as a structured JSON error response,
// translating a *errors.ServiceError into its mapped HTTP status and
// attaching the request's trace ID when present in ctx. A query error's
// details (the offending cypher) are left out of the response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := svcerrors.GetHTTPStatus(err)
	resp := ErrorResponse{
		Code:    string(svcerrors.ErrCodeUpstream),
		Message: err.Error(),
		TraceID: logging.GetTraceID(r.Context()),
	}
	if svcErr := svcerrors.GetServiceError(err); svcErr != nil {
		resp.Code = string(svcErr.Code)
		resp.Message = svcErr.Message
		if svcErr.Code != svcerrors.ErrCodeQueryFailed {
			resp.Details = svcErr.Details
		}
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON decodes a JSON request body into v, returning a ServiceError on
// failure (callers should pass it straight to WriteErrorResponse).
func DecodeJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return svcerrors.InvalidQuery("request body too large")
		}
		return svcerrors.InvalidQuery("malformed request body: " + err.Error())
	}
	return nil
}

// PathParam returns the value of a named mux route variable. Callers supply
// it pre-extracted via mux.Vars to keep this package router-agnostic.
func PathParam(vars map[string]string, name string) string {
	return vars[name]
}

// QueryString extracts a string query parameter with a default value.
func QueryString(r *http.Request, key, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// QueryInt extracts an integer query parameter with a default value.
func QueryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// QueryBool extracts a boolean query parameter with a default value.
func QueryBool(r *http.Request, key string, defaultVal bool) bool {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1" || val == "yes"
}

// ClientIP returns the request's originating IP, preferring the leftmost
// hop of X-Forwarded-For when present (trusted only behind our own proxy
// layer) and falling back to the raw remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PaginationParams extracts offset/limit query parameters, clamped to
// [0, +inf) and [1, maxLimit] respectively.
func PaginationParams(r *http.Request, defaultLimit, maxLimit int) (offset, limit int) {
	offset = QueryInt(r, "offset", 0)
	limit = QueryInt(r, "limit", defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}
	if limit < 1 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}
