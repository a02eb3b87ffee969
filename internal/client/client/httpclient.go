package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

const maxAttempts = 3

// retryBackoff is a test seam.
var retryBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(100*time.Millisecond))
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewHTTPClient returns a client for the API at baseURL. token may be empty
// for the unauthenticated endpoints.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
	}
}

// post sends body as JSON and decodes a 2xx answer into out. Transport
// failures and 502/503/504 answers are retried when idempotent is set.
func (c *HTTPClient) post(ctx context.Context, path string, auth, idempotent bool, body, out any, okStatus ...int) error {
	if auth && c.token == "" {
		return ErrNoToken
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	attempt := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if auth {
			req.Header.Set(common.AuthorizationHeaderName, common.BearerScheme+" "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
			if idempotent {
				return retry.RetryableError(err)
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if !accepted(resp.StatusCode, okStatus) {
			apiErr := decodeAPIError(resp.StatusCode, data)
			if idempotent && transient(resp.StatusCode) {
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	return retry.Do(ctx, retryBackoff(), attempt)
}

func accepted(code int, extra []int) bool {
	if code >= 200 && code < 300 {
		return true
	}
	for _, c := range extra {
		if code == c {
			return true
		}
	}
	return false
}

func transient(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

func (c *HTTPClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var out GenerateResponse
	if err := c.post(ctx, "/jwt/custom/generate", false, false, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListMine(ctx context.Context, filter ListFilter) ([]TokenSummary, error) {
	var out []TokenSummary
	if err := c.post(ctx, "/jwt/custom/list/me", true, true, filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Extend(ctx context.Context, tokenID string, minutes int) (*ExtendResponse, error) {
	body := map[string]any{"tokenId": tokenID, "extensionInMinutes": minutes}
	var out ExtendResponse
	if err := c.post(ctx, "/jwt/custom/extend", true, false, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Revoke(ctx context.Context, tokenID, reason string) (*RevokeResponse, error) {
	body := map[string]any{"tokenId": tokenID, "reason": reason}
	var out RevokeResponse
	if err := c.post(ctx, "/jwt/custom/revoke", true, true, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) BulkRevoke(ctx context.Context, tokenIDs []string, reason string) (*BulkRevokeResponse, error) {
	body := map[string]any{"tokenIds": tokenIDs, "reason": reason}
	var out BulkRevokeResponse
	if err := c.post(ctx, "/jwt/custom/revoke/bulk", true, true, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate reports an invalid token through the response, not an error.
func (c *HTTPClient) Validate(ctx context.Context, req ValidateRequest) (*ValidateResponse, error) {
	var out ValidateResponse
	err := c.post(ctx, "/jwt/custom/validate", false, true, req, &out, http.StatusUnauthorized)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// decodeAPIError reads the server's {"error","message"} body. A body that is
// not such an object leaves only the status code.
func decodeAPIError(status int, data []byte) *APIError {
	var body APIError
	if err := json.Unmarshal(data, &body); err != nil {
		return &APIError{StatusCode: status}
	}
	body.StatusCode = status
	return &body
}
