/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Error is a non-2xx response from the control API.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Code, e.StatusCode)
}

// Client talks to a running powerdown server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL, e.g. "http://127.0.0.1:8765".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Status fetches the current schedule.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/schedule", nil)
}

// Schedule requests a shutdown; mode is "at" or "after".
func (c *Client) Schedule(ctx context.Context, mode, value string) (*StatusResponse, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/schedule", StartRequest{Mode: mode, Time: value})
}

// Confirm confirms a short-delay schedule.
func (c *Client) Confirm(ctx context.Context) (*StatusResponse, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/schedule/confirm", nil)
}

// Reject discards a short-delay schedule.
func (c *Client) Reject(ctx context.Context) (*StatusResponse, error) {
	return c.do(ctx, http.MethodPost, "/api/v1/schedule/reject", nil)
}

// Cancel withdraws the pending schedule.
func (c *Client) Cancel(ctx context.Context) (*StatusResponse, error) {
	return c.do(ctx, http.MethodDelete, "/api/v1/schedule", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*StatusResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			apiErr.Code = payload.Error
			apiErr.Message = payload.Message
		}
		return nil, apiErr
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &status, nil
}
