// Package metadata is the thin client for the external video-metadata
// provider. It is an opaque collaborator: the nested document it
// returns flows straight into the feature extractor.
package metadata

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// #endregion

// #region errors

// ErrNotFound means the provider has no document for the item.
var ErrNotFound = errors.New("video metadata not found")

// #endregion errors

// #region client

// Client looks up video metadata documents by item identifier.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a metadata client against the given endpoint.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// #endregion client

// #region lookup

// itemListing mirrors the provider's wire shape.
type itemListing struct {
	Items []map[string]any `json:"items"`
}

// Lookup fetches the metadata document for one item.
func (c *Client) Lookup(ctx context.Context, itemID string) (map[string]any, error) {
	q := url.Values{}
	q.Set("part", "snippet,statistics")
	q.Set("id", itemID)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch metadata: status %d: %s", resp.StatusCode, body)
	}

	var listing itemListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(listing.Items) == 0 {
		return nil, ErrNotFound
	}
	return listing.Items[0], nil
}

// #endregion lookup
