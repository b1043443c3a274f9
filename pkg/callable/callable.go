// Package callable implements the request/response envelope of Firebase
// callable functions: requests are {"data": ...}, successes {"result": ...}
// and failures {"error": {"status", "message", "details"}}.
package callable

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Code is the canonical status name carried by an error envelope.
type Code string

const (
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
	CodeInternal          Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status code a callable client expects for c.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure returned to the client.
type Error struct {
	Code    Code
	Message string
	Details any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	out := *e
	out.Details = details
	return &out
}

// Unauthenticated is the error for calls without a valid caller.
func Unauthenticated() *Error {
	return &Error{Code: CodeUnauthenticated, Message: "El usuario no está autenticado."}
}

// InvalidArgument is the error for missing or malformed input.
func InvalidArgument(msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: msg}
}

// NotFound is the error for targets absent from every searched location.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// Internal wraps an unclassified failure. The cause message goes to details.
func Internal(msg string, cause error) *Error {
	e := &Error{Code: CodeInternal, Message: msg}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// AsError converts any error into an *Error. Unclassified errors become
// INTERNAL without leaking their message.
func AsError(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Code: CodeInternal, Message: "internal error"}
}

const maxRequestBytes = 1 << 20

// DecodeRequest reads the {"data": ...} envelope into out. A missing or
// null data member leaves out untouched. Callers reject non-POST methods.
func DecodeRequest(r *http.Request, out any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return InvalidArgument("Content-Type must be application/json")
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&env); err != nil {
		return InvalidArgument("Bad Request: invalid JSON body")
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return InvalidArgument("Bad Request: invalid data")
	}
	return nil
}

// WriteResult writes a success envelope.
func WriteResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

type errorBody struct {
	Status  Code   `json:"status"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes a failure envelope with the status mapped from the code.
func WriteError(w http.ResponseWriter, err error) {
	ce := AsError(err)
	writeJSON(w, ce.Code.HTTPStatus(), map[string]errorBody{
		"error": {Status: ce.Code, Message: ce.Message, Details: ce.Details},
	})
}

// WriteMethodNotAllowed answers non-POST requests.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", http.MethodPost)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]errorBody{
		"error": {Status: CodeInvalidArgument, Message: "method not allowed"},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
