package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

// DefaultURL is the public wheretheiss.at feed for the ISS (NORAD 25544).
const DefaultURL = "https://api.wheretheiss.at/v1/satellites/25544"

const defaultTimeout = 8 * time.Second

// Client fetches the current position from an HTTP telemetry endpoint.
type Client struct {
	url    string
	client *http.Client
}

var _ port.Feed = (*Client)(nil)

// NewClient builds a feed client for the given endpoint. An empty url
// falls back to DefaultURL, a non-positive timeout to 8s.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch performs one GET against the endpoint and normalizes the body.
func (c *Client) Fetch(ctx context.Context) (model.Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return model.Position{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.Position{}, fmt.Errorf("telemetry request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Position{}, fmt.Errorf("read telemetry response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Position{}, fmt.Errorf("telemetry http %d: %s", resp.StatusCode, string(body))
	}

	return Normalize(body, time.Now())
}
