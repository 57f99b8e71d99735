package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	// Detail is the backend's "detail" field, flattened to text.
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %s", e.Status)
	}
	return fmt.Sprintf("backend returned %s: %s", e.Status, e.Detail)
}

// Temporary reports whether retrying the same request could succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusServiceUnavailable ||
		e.StatusCode == http.StatusBadGateway ||
		e.StatusCode == http.StatusGatewayTimeout
}

// newStatusError drains a failed response and extracts the FastAPI detail.
// Validation failures carry a list of error objects instead of a string.
func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	se := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		se.Detail = strings.TrimSpace(string(body))
		return se
	}

	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil {
		se.Detail = detail
	} else {
		var items []struct {
			Loc []any  `json:"loc"`
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &items); err == nil {
			parts := make([]string, 0, len(items))
			for _, it := range items {
				loc := make([]string, 0, len(it.Loc))
				for _, l := range it.Loc {
					loc = append(loc, fmt.Sprint(l))
				}
				parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(loc, "."), it.Msg))
			}
			se.Detail = strings.Join(parts, "; ")
		}
	}

	if payload.Error != "" {
		if se.Detail == "" {
			se.Detail = payload.Error
		} else {
			se.Detail = se.Detail + " (" + payload.Error + ")"
		}
	}
	return se
}
