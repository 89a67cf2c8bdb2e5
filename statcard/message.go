package statcard

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultErrorMessage is shown when an error carries no readable message.
const DefaultErrorMessage = "An error occurred"

// Errors that carry structured HTTP failure details expose them through
// these methods. carepulse.APIError implements all three.
type (
	messager       interface{ Message() string }
	serverMessager interface{ ServerMessage() string }
	serverDetailer interface{ ServerDetail() string }
)

// ErrorMessage extracts a human-readable message from an error value.
//
// The first non-empty candidate wins, checked in this order:
//  1. v itself when it is a string
//  2. the top-level message: Message() on an error in the chain, or Error()
//     for errors without one; "message" for maps
//  3. the server-supplied message: ServerMessage(), or response.data.message
//  4. the server-supplied detail: ServerDetail(), or response.data.detail
//  5. [DefaultErrorMessage]
func ErrorMessage(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		return mapMessage(e)
	case error:
		return errorMessage(e)
	}
	return DefaultErrorMessage
}

func errorMessage(err error) string {
	var m messager
	if errors.As(err, &m) {
		if msg := m.Message(); msg != "" {
			return msg
		}
	} else if msg := err.Error(); msg != "" {
		return msg
	}

	var sm serverMessager
	if errors.As(err, &sm) {
		if msg := sm.ServerMessage(); msg != "" {
			return msg
		}
	}
	var sd serverDetailer
	if errors.As(err, &sd) {
		if detail := sd.ServerDetail(); detail != "" {
			return detail
		}
	}
	return DefaultErrorMessage
}

// mapMessage handles errors decoded from JSON, e.g.
// {"response": {"data": {"detail": "..."}}}.
func mapMessage(m map[string]any) string {
	if msg, ok := present(m["message"]); ok {
		return msg
	}
	data := nested(m, "response", "data")
	if msg, ok := present(data["message"]); ok {
		return msg
	}
	if detail, ok := present(data["detail"]); ok {
		return detail
	}
	return DefaultErrorMessage
}

// nested walks object keys, returning nil when a step is missing or not an
// object.
func nested(m map[string]any, path ...string) map[string]any {
	current := m
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// present reports whether a decoded JSON value counts as a message. Null,
// false, zero and the empty string do not.
func present(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case bool:
		if !x {
			return "", false
		}
	case float64:
		if x == 0 {
			return "", false
		}
	case json.Number:
		if f, err := x.Float64(); err == nil && f == 0 {
			return "", false
		}
	}
	return fmt.Sprint(v), true
}
