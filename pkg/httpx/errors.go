package httpx

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"
)

// Error kinds. Two APIErrors match under errors.Is when their kinds match.
const (
	KindValidation         = "validation_error"
	KindAuthentication     = "authentication_error"
	KindAuthorization      = "authorization_error"
	KindNotFound           = "not_found"
	KindServiceUnavailable = "service_unavailable"
	KindInternalSigning    = "internal_signing_error"
	KindRateLimit          = "rate_limit_exceeded"
	KindInternal           = "internal_error"
	KindUpstream           = "upstream_error"
)

var (
	ErrValidation         = &APIError{Kind: KindValidation, Status: http.StatusBadRequest}
	ErrAuthentication     = &APIError{Kind: KindAuthentication, Status: http.StatusUnauthorized}
	ErrAuthorization      = &APIError{Kind: KindAuthorization, Status: http.StatusForbidden}
	ErrNotFound           = &APIError{Kind: KindNotFound, Status: http.StatusNotFound}
	ErrServiceUnavailable = &APIError{Kind: KindServiceUnavailable, Status: http.StatusServiceUnavailable}
	ErrInternalSigning    = &APIError{Kind: KindInternalSigning, Status: http.StatusInternalServerError}
	ErrRateLimit          = &APIError{Kind: KindRateLimit, Status: http.StatusTooManyRequests}
	ErrInternal           = &APIError{Kind: KindInternal, Status: http.StatusInternalServerError}
	ErrBadGateway         = &APIError{Kind: KindUpstream, Status: http.StatusBadGateway}
)

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is an error that knows how it should be rendered over HTTP.
// The predefined values are templates; use the With* builders to derive a
// request-specific copy rather than mutating them.
type APIError struct {
	Kind     string
	Status   int
	Messages []string
	Fields   []FieldError

	cause error
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return e.Kind
	}
	return e.Kind + ": " + strings.Join(e.Messages, "; ")
}

// Is reports whether target is an *APIError of the same kind.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *APIError) Unwrap() error { return e.cause }

func (e *APIError) clone() *APIError {
	c := *e
	c.Messages = slices.Clone(e.Messages)
	c.Fields = slices.Clone(e.Fields)
	return &c
}

// WithMessage returns a copy of e with msg appended to its messages.
func (e *APIError) WithMessage(msg string) *APIError {
	c := e.clone()
	c.Messages = append(c.Messages, msg)
	return c
}

// WithField returns a copy of e carrying a field-level validation error.
func (e *APIError) WithField(field, msg string) *APIError {
	c := e.clone()
	c.Fields = append(c.Fields, FieldError{Field: field, Message: msg})
	return c
}

// WithCause returns a copy of e wrapping cause. The cause is never rendered.
func (e *APIError) WithCause(cause error) *APIError {
	c := e.clone()
	c.cause = cause
	return c
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Timestamp        time.Time    `json:"timestamp"`
	Status           int          `json:"status"`
	Error            string       `json:"error"`
	Message          []string     `json:"message"`
	Path             string       `json:"path"`
	ValidationErrors []FieldError `json:"validationErrors,omitempty"`
}

// Body renders e for the request path.
func (e *APIError) Body(path string) ErrorBody {
	msgs := e.Messages
	if msgs == nil {
		msgs = []string{}
	}
	return ErrorBody{
		Timestamp:        time.Now().UTC(),
		Status:           e.Status,
		Error:            http.StatusText(e.Status),
		Message:          msgs,
		Path:             path,
		ValidationErrors: e.Fields,
	}
}

// KindForStatus maps an HTTP status back onto an error kind.
func KindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized:
		return KindAuthentication
	case http.StatusForbidden:
		return KindAuthorization
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusServiceUnavailable:
		return KindServiceUnavailable
	case http.StatusInternalServerError:
		return KindInternal
	default:
		return KindUpstream
	}
}

// FromBody rebuilds an APIError from a decoded error body. A zero body still
// yields an error carrying status.
func FromBody(status int, body ErrorBody) *APIError {
	return &APIError{
		Kind:     KindForStatus(status),
		Status:   status,
		Messages: body.Message,
		Fields:   body.ValidationErrors,
	}
}

// WriteError renders err as an error body. Errors that are not an *APIError
// are reported as a bare 500 so internals never leak to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = ErrInternal
	}
	WriteJSON(w, apiErr.Status, apiErr.Body(r.URL.Path))
}
