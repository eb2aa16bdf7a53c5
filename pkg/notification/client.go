// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notification sends email through the external email gateway.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SendEmailAPIPath is appended to the gateway base URL.
const SendEmailAPIPath = "/api/v1/send-email"

// DefaultTimeout applies to both connecting and waiting for the response.
const DefaultTimeout = 10 * time.Second

var validate = validator.New()

// EmailDispatchRequest is the gateway payload.
type EmailDispatchRequest struct {
	Recipient string `json:"recipient" validate:"required,email"`
	Subject   string `json:"subject" validate:"required"`
	Body      string `json:"body" validate:"required"`
}

// Validate checks the request before it is sent.
func (r EmailDispatchRequest) Validate() error {
	return validate.Struct(r)
}

// APIUnreachableError means no HTTP response was received, for example on a
// connection refusal or timeout.
type APIUnreachableError struct {
	Cause error
}

func (e *APIUnreachableError) Error() string {
	return fmt.Sprintf("email gateway unreachable: %v", e.Cause)
}

func (e *APIUnreachableError) Unwrap() error { return e.Cause }

// APIFailureError means the gateway answered with a non-2xx status.
type APIFailureError struct {
	StatusCode int
	Body       string
}

func (e *APIFailureError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("email gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("email gateway returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the email gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a gateway client with the default timeouts.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: DefaultTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = DefaultTimeout

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Transport: transport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendEmail posts req to the gateway. It returns nil on any 2xx status, an
// *APIFailureError on other statuses and an *APIUnreachableError when no
// response arrives.
func (c *Client) SendEmail(ctx context.Context, req EmailDispatchRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding email request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SendEmailAPIPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building email request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &APIUnreachableError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIFailureError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
