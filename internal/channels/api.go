package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// apiClient posts JSON to a platform API, paced by a token bucket so bursts
// of replies stay under the platform's rate limits.
type apiClient struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func newAPIClient(name, baseURL string, perSecond float64, burst int) *apiClient {
	return &apiClient{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (c *apiClient) postJSON(ctx context.Context, path string, hdr http.Header, payload any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate wait: %w", c.name, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s marshal: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s request: %w", c.name, err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s send: %w", c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s API %d: %s", c.name, resp.StatusCode, string(respBody))
	}
	return nil
}
