package graphql

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// TransportErrorKind classifies a transport-level failure: the server was
// never reached or the connection broke before a GraphQL response arrived.
type TransportErrorKind string

const (
	TransportTimeout    TransportErrorKind = "timeout"
	TransportConnection TransportErrorKind = "connection"
	TransportTLS        TransportErrorKind = "tls"
)

// TransportError wraps a network-level failure. It is never used for
// responses the server actually produced; those map to Error, MultiError,
// UnauthorizedError or InvalidResponseError.
type TransportError struct {
	Kind TransportErrorKind
	URL  string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s error calling %s: %v", e.Kind, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// classifyTransportError maps a raw network failure onto a TransportError
// kind. TLS validation failures are picked out first since they also show
// up as connection errors.
func classifyTransportError(err error, url string) *TransportError {
	kind := TransportConnection

	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var netErr net.Error

	switch {
	case errors.As(err, &certErr), errors.As(err, &unknownAuthority), errors.As(err, &hostnameErr):
		kind = TransportTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = TransportTimeout
	}

	return &TransportError{Kind: kind, URL: url, Err: err}
}

// Location is a position in the query document attached to a server error.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is a single GraphQL error returned by the server. Locations, Path
// and Extensions are preserved for diagnostics when present.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Code returns the extension error code, or the empty string.
func (e *Error) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// codeUnauthenticated is the extension code the server uses for
// authentication failures.
const codeUnauthenticated = "UNAUTHENTICATED"

// UnauthorizedError signals that the server rejected the API key.
type UnauthorizedError struct {
	Err *Error
}

func (e *UnauthorizedError) Error() string { return e.Err.Message }

func (e *UnauthorizedError) Unwrap() error { return e.Err }

// MultiError wraps multiple GraphQL errors from one response, in original
// order, together with any partial data returned alongside.
type MultiError struct {
	Errors []*Error
	Data   json.RawMessage
}

func (e *MultiError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Message
	}
	return strings.Join(msgs, "; ")
}

// InvalidResponseError signals a response body that does not have the
// expected GraphQL shape: undecodable JSON, a non-success HTTP status, or
// a body with neither data nor errors.
type InvalidResponseError struct {
	StatusCode int
	Err        error
}

func (e *InvalidResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid response (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("invalid response (status %d)", e.StatusCode)
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// InvalidMessageError signals a malformed inbound websocket message. The
// dispatch loop reports it and keeps running.
type InvalidMessageError struct {
	Raw    []byte
	Reason string
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("invalid subscription message: %s", e.Reason)
}

// classifyGraphQLErrors maps the errors list of a response onto the typed
// taxonomy. A single error with the UNAUTHENTICATED code becomes
// UnauthorizedError; a single error of any other kind is returned as-is;
// multiple errors are wrapped in order together with partial data.
func classifyGraphQLErrors(errs []*Error, data json.RawMessage) error {
	if len(errs) == 1 {
		if errs[0].Code() == codeUnauthenticated {
			return &UnauthorizedError{Err: errs[0]}
		}
		return errs[0]
	}
	return &MultiError{Errors: errs, Data: data}
}
