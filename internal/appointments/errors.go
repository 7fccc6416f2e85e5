package appointments

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized is returned when the API rejects the bearer token.
	ErrUnauthorized = errors.New("appointments: unauthorized")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("appointments: not found")
	// ErrInvalidStatus is returned for unknown status values.
	ErrInvalidStatus = errors.New("appointments: invalid status")
	// ErrMissingPatient is returned when a create request names no patient.
	ErrMissingPatient = errors.New("appointments: patient id or name required")
	// ErrAmbiguousPatient is returned when both patient id and name are set.
	ErrAmbiguousPatient = errors.New("appointments: patient id and name are mutually exclusive")
	// ErrUnexpectedPayload is returned when a list response is neither an array nor an envelope.
	ErrUnexpectedPayload = errors.New("appointments: unexpected payload")
)

// APIError is a non-2xx response from the clinic API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clinic API %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message())
}

// Unwrap maps well-known status codes onto sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Message extracts the most specific human-readable message from the body:
// non_field_errors, then detail, then the first field's messages, then the
// raw body.
func (e *APIError) Message() string {
	body := bytes.TrimSpace(e.Body)
	if len(body) == 0 {
		return http.StatusText(e.StatusCode)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return string(body)
	}

	if raw, ok := doc["non_field_errors"]; ok {
		if msg := joinMessages(raw); msg != "" {
			return msg
		}
	}
	if raw, ok := doc["detail"]; ok {
		if msg := joinMessages(raw); msg != "" {
			return msg
		}
	}
	if key, ok := firstKey(body); ok {
		if msg := joinMessages(doc[key]); msg != "" {
			return key + ": " + msg
		}
	}
	return string(body)
}

// joinMessages flattens a string or a list of strings into one line.
func joinMessages(raw json.RawMessage) string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			switch v := item.(type) {
			case string:
				parts = append(parts, v)
			case nil:
			default:
				parts = append(parts, fmt.Sprint(v))
			}
		}
		return strings.TrimSpace(strings.Join(parts, " "))
	}
	return strings.TrimSpace(string(raw))
}

// firstKey returns the first object key in document order.
func firstKey(body []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", false
	}
	tok, err = dec.Token()
	if err != nil {
		return "", false
	}
	key, ok := tok.(string)
	return key, ok
}

// MessageFor returns the text to show a user for err.
func MessageFor(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}
