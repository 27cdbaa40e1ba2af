// Copyright (C) 2025 Shinnosuke Uesaka (shinnosuke@opt-com.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream provides the client-side event transport for optimizer
// and exchange runs.
//
// This file contains the HTTP client abstraction the session talks
// through. The indirection exists so tests can inject canned responses
// without a network.
package stream

import (
	"context"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// HTTP Client Interface
// =============================================================================

// HTTPClient abstracts the HTTP operations the session needs.
//
// Implementations must honor the request context: a cancelled context
// must unblock both the request and any subsequent body reads.
type HTTPClient interface {
	// Post sends a POST request with the given content type and body.
	Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error)

	// Get sends a GET request.
	Get(ctx context.Context, url string) (*http.Response, error)

	// PostWithHeaders sends a POST request with additional headers.
	PostWithHeaders(ctx context.Context, url, contentType string, body io.Reader, headers map[string]string) (*http.Response, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// defaultHTTPClient wraps net/http with context-bound requests.
type defaultHTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates the default HTTPClient.
//
// A zero timeout disables the client-level deadline. Streaming sessions
// should pass zero and bound their lifetime with a context instead: the
// client timeout covers the entire body read, which would kill a healthy
// long-lived stream.
func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &defaultHTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *defaultHTTPClient) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	return c.PostWithHeaders(ctx, url, contentType, body, nil)
}

func (c *defaultHTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

func (c *defaultHTTPClient) PostWithHeaders(ctx context.Context, url, contentType string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ HTTPClient = (*defaultHTTPClient)(nil)
