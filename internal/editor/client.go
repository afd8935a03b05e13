package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conneroisu/devlens/internal/errors"
)

// SwapSide identifies one component of a swap by name and current order.
type SwapSide struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// SwapRequest asks the persistence service to exchange two adjacent
// components on a page.
type SwapRequest struct {
	Page   string   `json:"page"`
	Site   string   `json:"site"`
	First  SwapSide `json:"first"`
	Second SwapSide `json:"second"`
}

// DataClient talks to the data persistence service.
type DataClient interface {
	Load(ctx context.Context, site, path string) (string, error)
	Save(ctx context.Context, site, path, body string) error
	Swap(ctx context.Context, req SwapRequest) error
}

// HTTPClient implements DataClient against the dev server data API.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Load fetches the raw payload at path.
func (c *HTTPClient) Load(ctx context.Context, site, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dataURL(site, path), nil)
	if err != nil {
		return "", errors.NewInternalError(errors.ErrCodeInternalError, "cannot build request", err)
	}
	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Save replaces the payload at path with body.
func (c *HTTPClient) Save(ctx context.Context, site, path, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.dataURL(site, path), strings.NewReader(body))
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "cannot build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

// Swap submits a reorder request.
func (c *HTTPClient) Swap(ctx context.Context, swap SwapRequest) error {
	payload, err := json.Marshal(swap)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "cannot encode swap request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/reorder", bytes.NewReader(payload))
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "cannot build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

func (c *HTTPClient) dataURL(site, path string) string {
	q := url.Values{}
	q.Set("path", path)
	q.Set("site", site)
	return c.BaseURL + "/api/data?" + q.Encode()
}

// apiError is the error body returned by the data API.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeRequestFailed,
			fmt.Sprintf("%s %s failed", req.Method, req.URL.Path), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeRequestFailed, "cannot read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, errors.NewNetworkError(errors.ErrCodeRequestFailed,
			fmt.Sprintf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, msg), nil).
			WithContext("status", resp.StatusCode)
	}
	return body, nil
}
