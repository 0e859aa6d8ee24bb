// Package categories resolves numeric video category codes to display
// names and holds the per-category keyword tables used for keyword-hit
// detection.
package categories

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// #endregion

// #region unknown

// Unknown is the literal name for category codes the table does not map.
const Unknown = "Unknown"

// #endregion unknown

// #region resolver

// Resolver maps numeric category codes (as strings) to display names.
type Resolver interface {
	// Table fetches the full code-to-name mapping.
	Table(ctx context.Context) (map[string]string, error)
}

// #endregion resolver

// #region http-resolver

// HTTPResolver fetches the category table from the metadata provider's
// category listing endpoint.
type HTTPResolver struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPResolver creates a resolver against the given endpoint.
func NewHTTPResolver(baseURL, apiKey string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// categoryListing mirrors the provider's wire shape: a list of items
// carrying an id and a titled snippet.
type categoryListing struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

// Table implements Resolver.
func (r *HTTPResolver) Table(ctx context.Context) (map[string]string, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	if r.apiKey != "" {
		q.Set("key", r.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build category request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch categories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch categories: status %d: %s", resp.StatusCode, body)
	}

	var listing categoryListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}

	table := make(map[string]string, len(listing.Items))
	for _, item := range listing.Items {
		table[item.ID] = item.Snippet.Title
	}
	return table, nil
}

// #endregion http-resolver

// #region cached

// Cached wraps a Resolver and fetches the table at most once per
// process lifetime. The upstream table is assumed stable enough for
// that.
type Cached struct {
	inner Resolver

	mu    sync.Mutex
	table map[string]string
}

// NewCached wraps a resolver with a process-lifetime cache.
func NewCached(inner Resolver) *Cached {
	return &Cached{inner: inner}
}

// Table returns the cached mapping, fetching it on first use.
func (c *Cached) Table(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.table != nil {
		return c.table, nil
	}
	table, err := c.inner.Table(ctx)
	if err != nil {
		return nil, err
	}
	c.table = table
	return table, nil
}

// Name resolves one code, returning Unknown for unmapped codes.
func (c *Cached) Name(ctx context.Context, code string) (string, error) {
	table, err := c.Table(ctx)
	if err != nil {
		return "", err
	}
	name, ok := table[code]
	if !ok || name == "" {
		return Unknown, nil
	}
	return name, nil
}

// #endregion cached

// #region static

// Static is a fixed in-memory Resolver, used by tests and offline runs.
type Static map[string]string

// Table implements Resolver.
func (s Static) Table(ctx context.Context) (map[string]string, error) {
	return s, nil
}

// #endregion static
