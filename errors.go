package carepulse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jpalmerr/carepulse/internal/transport"
)

// ErrUnknownResource is returned when a query names a resource or parameter
// that is not in the registry.
var ErrUnknownResource = errors.New("unknown resource")

// NetworkErrorMessage is the top-level message of transport failures.
const NetworkErrorMessage = "Network Error"

// ErrorKind classifies an [APIError].
type ErrorKind string

const (
	// KindNetworkFailure means no HTTP response was received (DNS, connect,
	// timeout, body read).
	KindNetworkFailure ErrorKind = "network_failure"

	// KindServerError means the API answered with a non-2xx status.
	KindServerError ErrorKind = "server_error"
)

// ErrorBody is the server-supplied part of a failed response.
type ErrorBody struct {
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// ErrorResponse is the decoded response of a failed request.
type ErrorResponse struct {
	Status int       `json:"status"`
	Data   ErrorBody `json:"data"`
}

// APIError is the error stored for a failed query.
//
// It carries a top-level message plus the nested server message and detail,
// exposed through Message, ServerMessage and ServerDetail so that
// statcard.ErrorMessage can pick the most specific readable text.
type APIError struct {
	Kind ErrorKind

	// Msg is the top-level message. Set for network failures; empty for
	// server errors so that the server's own message is shown instead.
	Msg string

	// Path is the request path relative to the API base URL.
	Path string

	// StatusCode is zero for network failures.
	StatusCode int

	// Response is nil for network failures.
	Response *ErrorResponse

	// RequestID is the X-Request-ID sent with the failed request.
	RequestID string

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch e.Kind {
	case KindNetworkFailure:
		if e.Err != nil {
			return fmt.Sprintf("GET %s: %s: %v", e.Path, NetworkErrorMessage, e.Err)
		}
		return fmt.Sprintf("GET %s: %s", e.Path, NetworkErrorMessage)
	default:
		msg := fmt.Sprintf("GET %s: %d %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode))
		if s := e.ServerMessage(); s != "" {
			return msg + ": " + s
		}
		if d := e.ServerDetail(); d != "" {
			return msg + ": " + d
		}
		return msg
	}
}

// Unwrap returns the underlying transport error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Message returns the top-level message.
func (e *APIError) Message() string {
	return e.Msg
}

// ServerMessage returns response.data.message, or "" when absent.
func (e *APIError) ServerMessage() string {
	if e.Response == nil {
		return ""
	}
	return e.Response.Data.Message
}

// ServerDetail returns response.data.detail, or "" when absent.
func (e *APIError) ServerDetail() string {
	if e.Response == nil {
		return ""
	}
	return e.Response.Data.Detail
}

// newAPIError converts a failed transport response into an [APIError].
func newAPIError(path string, resp transport.Response) *APIError {
	if resp.Error != nil {
		return &APIError{
			Kind:      KindNetworkFailure,
			Msg:       NetworkErrorMessage,
			Path:      path,
			RequestID: resp.RequestID,
			Err:       resp.Error,
		}
	}
	return &APIError{
		Kind:       KindServerError,
		Path:       path,
		StatusCode: resp.StatusCode,
		Response: &ErrorResponse{
			Status: resp.StatusCode,
			Data:   decodeErrorBody(resp.Body),
		},
		RequestID: resp.RequestID,
	}
}

// decodeErrorBody reads "message" and "detail" from a JSON error body.
// Non-string values are kept in their JSON form; anything unparsable yields
// an empty body.
func decodeErrorBody(body []byte) ErrorBody {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return ErrorBody{}
	}
	return ErrorBody{
		Message: jsonText(raw["message"]),
		Detail:  jsonText(raw["detail"]),
	}
}

func jsonText(v json.RawMessage) string {
	if len(v) == 0 || string(v) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}
