// Package rest implements the engine client over the engine's REST gateway.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dukex/flowscope/pkg/engine"
	"github.com/dukex/flowscope/pkg/records"
)

const defaultTimeoutSeconds = 30

// Client talks to the engine's REST gateway. All commands are idempotent on
// the engine side and safe to retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a REST engine client for the given base URL, for example
// "http://engine:8080".
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		logger:     logger,
	}
}

func (c *Client) ExportedRecords(ctx context.Context, valueType records.ValueType, afterPosition int64, limit int) ([]records.Record, error) {
	query := url.Values{}
	query.Set("value_type", string(valueType))
	query.Set("after_position", strconv.FormatInt(afterPosition, 10))
	query.Set("limit", strconv.Itoa(limit))

	var batch []records.Record
	if err := c.getJSON(ctx, "/records?"+query.Encode(), &batch); err != nil {
		return nil, err
	}

	return batch, nil
}

func (c *Client) Definition(ctx context.Context, workflowID string) (*engine.Definition, error) {
	definition := &engine.Definition{}

	found, err := c.getJSONOptional(ctx, "/definitions/"+url.PathEscape(workflowID), definition)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return definition, nil
}

func (c *Client) CancelInstance(ctx context.Context, instanceKey int64) error {
	return c.post(ctx, fmt.Sprintf("/instances/%d/cancel", instanceKey), nil)
}

func (c *Client) ResolveIncident(ctx context.Context, incidentKey int64) error {
	return c.post(ctx, fmt.Sprintf("/incidents/%d/resolve", incidentKey), nil)
}

func (c *Client) UpdateJobRetries(ctx context.Context, jobKey int64, retries int32) error {
	return c.post(ctx, fmt.Sprintf("/jobs/%d/retries", jobKey), map[string]any{
		"retries": retries,
	})
}

func (c *Client) SetVariable(ctx context.Context, scopeKey int64, name, value string) error {
	return c.post(ctx, fmt.Sprintf("/scopes/%d/variables", scopeKey), map[string]any{
		"name":  name,
		"value": json.RawMessage(value),
	})
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	found, err := c.getJSONOptional(ctx, path, out)
	if err != nil {
		return err
	}

	if !found {
		return &RequestError{Method: http.MethodGet, Path: path, StatusCode: http.StatusNotFound}
	}

	return nil
}

// getJSONOptional performs a GET and decodes the body into out. A 404 reports
// found=false with a nil error.
func (c *Client) getJSONOptional(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, err
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return false, newRequestError(http.MethodGet, path, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, err
	}

	return true, nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return newRequestError(http.MethodPost, path, resp)
	}

	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	return nil
}
