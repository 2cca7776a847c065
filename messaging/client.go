// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/roomchat/lib/netutil"
	"github.com/bureau-foundation/roomchat/lib/ref"
	"github.com/bureau-foundation/roomchat/lib/secret"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the homeserver
	// (e.g., "https://matrix.example.org").
	HomeserverURL string
	// HTTPClient is used for all requests. If nil, a client without a
	// global timeout is used; /sync long-polls rely on contexts.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// LoginType is the /login flow. Default: "m.login.password".
	LoginType string
	// DeviceDisplayName names devices created by Login.
	DeviceDisplayName string
}

// Client is an unauthenticated Matrix client. It holds the homeserver
// URL and HTTP transport, shared by every Session derived from it.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	logger            *slog.Logger
	loginType         string
	deviceDisplayName string
}

// NewClient validates config and returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q must be http or https", config.HomeserverURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q has no host", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loginType := config.LoginType
	if loginType == "" {
		loginType = "m.login.password"
	}

	return &Client{
		baseURL:           strings.TrimRight(config.HomeserverURL, "/"),
		httpClient:        httpClient,
		logger:            logger,
		loginType:         loginType,
		deviceDisplayName: config.DeviceDisplayName,
	}, nil
}

// BaseURL returns the homeserver URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// CloseIdleConnections drops pooled connections so that the next
// request opens a fresh one. Called after network errors.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Login exchanges an account identifier and password for a Session.
// The password Buffer is read but not closed.
func (c *Client) Login(ctx context.Context, user string, password *secret.Buffer) (*Session, error) {
	if user == "" {
		return nil, fmt.Errorf("messaging: user is required for login")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: password is required for login")
	}

	// The password becomes a heap string only for JSON encoding.
	request := LoginRequest{
		Type:                     c.loginType,
		User:                     user,
		Password:                 password.String(),
		InitialDeviceDisplayName: c.deviceDisplayName,
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, request)
	if err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}

	var auth AuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse login response: %w", err)
	}
	if auth.AccessToken == "" || auth.UserID.IsZero() {
		return nil, fmt.Errorf("messaging: login response missing access_token or user_id")
	}

	c.logger.Info("logged in to matrix",
		"user_id", auth.UserID,
		"device_id", auth.DeviceID,
	)
	return c.newSession(auth.UserID, auth.DeviceID, auth.AccessToken)
}

// SessionFromToken resumes a session from a saved access token. The
// token is not validated; call WhoAmI to check it.
func (c *Client) SessionFromToken(userID ref.UserID, deviceID, accessToken string) (*Session, error) {
	return c.newSession(userID, deviceID, accessToken)
}

func (c *Client) newSession(userID ref.UserID, deviceID, accessToken string) (*Session, error) {
	token, err := secret.NewFromString(accessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &Session{
		client:      c,
		accessToken: token,
		userID:      userID,
		deviceID:    deviceID,
	}, nil
}

// doRequest performs a JSON request and returns the response body.
// Non-2xx responses become *MatrixError. accessToken may be nil for
// unauthenticated endpoints.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	var bodyReader io.Reader
	contentType := ""
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
		contentType = "application/json"
	}
	var values url.Values
	if len(query) > 0 {
		values = query[0]
	}
	response, err := c.send(ctx, method, path, accessToken, contentType, bodyReader, -1, values)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to read response body: %w", err)
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, parseError(method, path, response.StatusCode, responseBody)
}

// send builds and executes a request. contentLength < 0 leaves it to
// the transport.
func (c *Client) send(ctx context.Context, method, path string, accessToken *secret.Buffer, contentType string, body io.Reader, contentLength int64, query url.Values) (*http.Response, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to create request: %w", err)
	}
	if contentLength >= 0 {
		request.ContentLength = contentLength
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	return response, nil
}

// parseError converts an error response into a *MatrixError, or a
// *StatusError carrying the raw body when the server did not send the
// standard JSON shape (typically a reverse proxy error page).
func parseError(method, path string, status int, body []byte) error {
	var matrixErr MatrixError
	if err := json.Unmarshal(body, &matrixErr); err != nil || matrixErr.Code == "" {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return &StatusError{Method: method, Path: path, StatusCode: status, Body: snippet}
	}
	matrixErr.StatusCode = status
	return &matrixErr
}
