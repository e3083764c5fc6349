package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"keygate/internal/models"
	"keygate/internal/version"
)

// adminClient talks to the admin endpoints of a running keygate server.
type adminClient struct {
	baseURL    string
	apiKey     string
	headerName string
	httpClient *http.Client
}

func newAdminClient(baseURL, apiKey, headerName string) *adminClient {
	if headerName == "" {
		headerName = models.DefaultHeaderName
	}
	return &adminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		headerName: headerName,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError is returned for any non-2xx answer from the server.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *adminClient) List(ctx context.Context, includeUsage bool) (*models.ListKeysResponse, error) {
	path := "/api/v1/admin/keys"
	if includeUsage {
		path += "?include_usage=true"
	}
	var out models.ListKeysResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) Generate(ctx context.Context, req models.GenerateKeyRequest) (*models.GenerateKeyResponse, error) {
	var out models.GenerateKeyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/keys", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) Info(ctx context.Context, key string) (*models.KeyInfoResponse, error) {
	var out models.KeyInfoResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/keys/info", models.KeyLookupRequest{Key: key}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) Update(ctx context.Context, req models.UpdateKeyRequest) (*models.UpdateKeyResponse, error) {
	var out models.UpdateKeyResponse
	if err := c.do(ctx, http.MethodPatch, "/api/v1/admin/keys", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) Revoke(ctx context.Context, key string) (*models.RevokeKeyResponse, error) {
	var out models.RevokeKeyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/admin/keys/revoke", models.KeyLookupRequest{Key: key}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *adminClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(c.headerName, c.apiKey)
	req.Header.Set("User-Agent", version.GetInfo().UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls the message out of either the gate's rejection body
// or the admin API's error envelope.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return "no response body"
}

// isStatus reports whether err is an apiError with the given status.
func isStatus(err error, status int) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.StatusCode == status
}
