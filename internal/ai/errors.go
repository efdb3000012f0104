package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type ErrorKind string

const (
	// KindValidation: bad model or credentials, raised before any request.
	KindValidation ErrorKind = "validation"
	// KindTransport: network or backend failure during a call.
	KindTransport ErrorKind = "transport"
	// KindCatalog: model listing failed. Never surfaced by Models().
	KindCatalog ErrorKind = "catalog"
)

type Error struct {
	Kind       ErrorKind
	Provider   string
	HTTPStatus int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s", e.Provider, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsValidation(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindValidation
}

func validationError(provider, format string, args ...any) error {
	return &Error{Kind: KindValidation, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

func transportError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = "request deadline exceeded"
	case errors.Is(err, context.Canceled):
		msg = "request canceled"
	}
	return &Error{Kind: KindTransport, Provider: provider, Message: msg, Cause: err}
}

// statusError reads a bounded slice of a non-2xx body into a transport error.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := errorEnvelopeMessage(body)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{
		Kind:       KindTransport,
		Provider:   provider,
		HTTPStatus: resp.StatusCode,
		Message:    fmt.Sprintf("%s (%s)", msg, classifyStatus(resp.StatusCode)),
	}
}

func classifyStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth"
	case status == http.StatusTooManyRequests:
		return "rate limit"
	case status == http.StatusNotFound:
		return "not found"
	case status >= 500:
		return "server"
	default:
		return fmt.Sprintf("status %d", status)
	}
}

// errorEnvelopeMessage understands {"error":{"message":..}} and {"error":".."}.
func errorEnvelopeMessage(raw []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Error) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(env.Error, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(env.Error, &obj) == nil {
		return obj.Message
	}
	return ""
}
