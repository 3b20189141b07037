package common

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error kinds, matched through errors.Is. An HTTPError matches its own kind.
// A RefreshError matches ErrRefreshFailed and ErrSessionExpired as well as
// the kind of the failure it wraps.
var (
	// ErrSessionExpired means the session cannot be recovered: the refresh
	// token is missing or the refresh call failed. The session is signed out.
	ErrSessionExpired = errors.New("session expired")

	// ErrRefreshFailed is the refresh call itself failing.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrUnauthorized is a 401 whose reason is not a recoverable token error.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAPI is a non-401 failure carrying a server message.
	ErrAPI = errors.New("api error")

	// ErrUnknownServer is a failure with no structured body.
	ErrUnknownServer = errors.New("unknown server error")

	// ErrRefreshTimeout is returned to a queued request whose refresh did not
	// settle in time.
	ErrRefreshTimeout = errors.New("timed out waiting for token refresh")

	// ErrNoCredentials is returned by stores holding no tokens or profile.
	ErrNoCredentials = errors.New("no stored credentials")
)

// FallbackMessage replaces the message of failures without a structured body.
const FallbackMessage = "server error"

// Reasons the API uses in a 401 body to ask for a token refresh.
const (
	ReasonTokenExpired = "token.expired"
	ReasonTokenInvalid = "token.invalid"
)

// HTTPError captures an unexpected status code or a transport failure.
type HTTPError struct {
	StatusCode int
	Body       []byte
	// Message is the server supplied message, or FallbackMessage.
	Message string
	// Structured reports whether the body carried a {message}.
	Structured bool
	Kind       error
	Err        error
}

func (e *HTTPError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Kind, e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// WithKind returns a copy of e reclassified as kind.
func (e *HTTPError) WithKind(kind error) *HTTPError {
	clone := *e
	clone.Kind = kind
	return &clone
}

type errorBody struct {
	Message string `json:"message"`
}

// NewHTTPError classifies a non-2xx response. A {message} body is an ErrAPI,
// anything else an ErrUnknownServer.
func NewHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{
		StatusCode: status,
		Body:       body,
		Message:    FallbackMessage,
		Kind:       ErrUnknownServer,
	}

	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil && eb.Message != "" {
		e.Message = eb.Message
		e.Structured = true
		e.Kind = ErrAPI
	}
	return e
}

// NewTransportError wraps a failure that produced no response at all.
func NewTransportError(err error) *HTTPError {
	return &HTTPError{
		Message: FallbackMessage,
		Kind:    ErrUnknownServer,
		Err:     err,
	}
}

// IsTokenFailure reports whether a 401 reason selects the refresh path.
func IsTokenFailure(reason string) bool {
	return reason == ReasonTokenExpired || reason == ReasonTokenInvalid
}

// RefreshError wraps the failure of a refresh cycle. It matches both
// ErrRefreshFailed and ErrSessionExpired.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s: %v", ErrRefreshFailed, e.Err)
}

func (e *RefreshError) Unwrap() []error {
	return []error{ErrRefreshFailed, ErrSessionExpired, e.Err}
}

// UserMessage is the text a caller should display for err.
func UserMessage(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	return FallbackMessage
}
