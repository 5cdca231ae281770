package daz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramonehamilton/VAB-Companion/internal/assets"
)

const (
	defaultSlabBaseURL = "https://www.daz3d.com/dazApi/slab"
	productBaseURL     = "https://www.daz3d.com"
	slabTimeout        = 30 * time.Second
	slabMaxRetries     = 3
	slabInitialBackoff = 1 * time.Second
	slabMaxBackoff     = 16 * time.Second
)

// NotFoundError indicates the store has no slab record for a SKU.
type NotFoundError struct {
	SKU string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no slab record for SKU %s", e.SKU)
}

// SlabClient fetches product metadata from the DAZ store's slab API with
// rate limiting.
type SlabClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	userAgent   string
}

// SlabConfig holds slab client settings.
type SlabConfig struct {
	// BaseURL is the slab API base URL. Empty means the public store.
	BaseURL string

	// RequestsPerSecond caps the request rate. Zero or negative means 2.
	RequestsPerSecond int
}

// NewSlabClient creates a new slab API client.
func NewSlabClient(config SlabConfig) *SlabClient {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultSlabBaseURL
	}
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	return &SlabClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: slabTimeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 1),
		userAgent:   "VAB-Companion/1.0",
	}
}

// slabRecord is the subset of the slab response the catalog consumes.
type slabRecord struct {
	URL            string   `json:"url"`
	ImageURL       string   `json:"imageUrl"`
	Mature         bool     `json:"mature"`
	CategoriesData []string `json:"categoriesData"`
	FigureData     []string `json:"figureData"`
}

// Enrich fills store-derived fields of an asset from its slab record: the
// product page URL, image URL, maturity flag, and category and figure lists.
// The asset's EnrichedAt timestamp is set on success.
func (c *SlabClient) Enrich(ctx context.Context, a *assets.Asset) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, a.SKU)

	var record slabRecord
	if err := c.doRequest(ctx, url, &record, a.SKU); err != nil {
		return fmt.Errorf("failed to enrich asset %s: %w", a.SKU, err)
	}

	if record.URL != "" {
		a.URL = fmt.Sprintf("%s/%s", productBaseURL, strings.TrimPrefix(record.URL, "/"))
	}
	a.ImageURL = trimImageURL(record.ImageURL)
	a.Mature = record.Mature
	if len(record.CategoriesData) > 0 {
		a.Category = record.CategoriesData[0]
		for _, cat := range record.CategoriesData[1:] {
			if cat != "" && !containsFold(a.Tags, cat) {
				a.Tags = append(a.Tags, cat)
			}
		}
	}
	if len(record.FigureData) > 0 {
		a.CompatibleFigures = record.FigureData
	}

	now := time.Now().UTC()
	a.EnrichedAt = &now
	return nil
}

// trimImageURL strips the store's CDN resize prefix, keeping the plain
// gcdn URL the thumbnail resolves to.
func trimImageURL(imageURL string) string {
	if idx := strings.LastIndex(imageURL, "https://gcdn"); idx > 0 {
		return imageURL[idx:]
	}
	return imageURL
}

// doRequest performs an HTTP request with rate limiting and retry logic.
func (c *SlabClient) doRequest(ctx context.Context, url string, result interface{}, sku string) error {
	var lastErr error
	backoff := slabInitialBackoff

	for attempt := 0; attempt <= slabMaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			if attempt < slabMaxRetries {
				time.Sleep(backoff)
				backoff = min(backoff*2, slabMaxBackoff)
				continue
			}
			return lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			if readErr != nil {
				return fmt.Errorf("failed to read response body: %w", readErr)
			}
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("failed to parse JSON response: %w", err)
			}
			return nil

		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (HTTP 429)")
			if attempt < slabMaxRetries {
				time.Sleep(backoff)
				backoff = min(backoff*2, slabMaxBackoff)
				continue
			}
			return lastErr

		case http.StatusNotFound:
			return &NotFoundError{SKU: sku}

		default:
			return fmt.Errorf("slab request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
