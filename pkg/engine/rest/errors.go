package rest

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBodyBytes = 512

// RequestError is a non-2xx engine gateway response.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("engine request %s %s failed with status %d", e.Method, e.Path, e.StatusCode)
	}

	return fmt.Sprintf("engine request %s %s failed with status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func newRequestError(method, path string, resp *http.Response) *RequestError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	return &RequestError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
