package grafana

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grafana-backup/internal/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 30 * time.Second
	UserAgent      = "grafana-backup/1.0"

	// maxErrorBody bounds how much of a failed response is kept for logs.
	maxErrorBody = 512
)

// FetchError is returned for transport failures and non-2xx responses.
// StatusCode is 0 when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s failed: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client issues authenticated GETs against a Grafana instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient returns a Client for host (scheme://host[:port][/subpath]).
// A zero timeout means DefaultTimeout.
func NewClient(host, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(host, "/"),
		token:      token,
	}
}

// BaseURL returns the host without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins an API path onto the base URL.
func (c *Client) URL(path string) string {
	return APIURL(c.baseURL, path)
}

// APIURL joins an API path onto host.
func APIURL(host, path string) string {
	return strings.TrimRight(host, "/") + "/" + strings.TrimLeft(path, "/")
}

// JoinID appends an escaped item identifier to an endpoint URL, keeping any query string last.
func JoinID(endpoint, id string) string {
	base, query, hasQuery := strings.Cut(endpoint, "?")
	joined := strings.TrimRight(base, "/") + "/" + url.PathEscape(id)
	if hasQuery {
		return joined + "?" + query
	}
	return joined
}

// Get fetches endpoint and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{URL: endpoint, Err: errors.Wrap(err, "building request")}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: endpoint, StatusCode: 0, Err: errors.Wrap(err, "reading response body")}
	}

	logger.Log.Debug("Grafana API response",
		zap.String("url", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &FetchError{
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       snippet,
			Err:        errors.Newf("unexpected status %s", resp.Status),
		}
	}
	return body, nil
}
