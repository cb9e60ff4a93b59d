// Package watchmode is the streaming-availability provider client. Resolving
// our external movie id to the provider's own id and listing offers for a
// region are separate calls; the aggregation layer caches them independently.
package watchmode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"cineview/config"
	"cineview/models"
)

const defaultBaseURL = "https://api.watchmode.com/v1"

type Client struct {
	apiKey     string
	baseURL    string
	httpc      *http.Client
	retries    uint
	retryDelay time.Duration
}

func NewClient(cfg config.ProviderConfig, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	retries := uint(cfg.Retries)
	if retries == 0 {
		retries = 3
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpc:      httpc,
		retries:    retries,
		retryDelay: cfg.RetryDelay(),
	}
}

type searchResponse struct {
	TitleResults []titleResult `json:"title_results"`
}

type titleResult struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	TMDBID   int    `json:"tmdb_id"`
	TMDBType string `json:"tmdb_type"`
}

type sourceResponse struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	WebURL string   `json:"web_url"`
	Format string   `json:"format"`
	Price  *float64 `json:"price"`
}

// ResolveID maps our external movie id to the provider's internal title id.
// Returns 0 without error when the provider has no match; the caller must not
// cache that outcome.
func (c *Client) ResolveID(ctx context.Context, externalID int) (int64, error) {
	endpoint := fmt.Sprintf("%s/search/?search_field=tmdb_movie_id&search_value=%d", c.baseURL, externalID)

	var out searchResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return 0, err
	}
	if len(out.TitleResults) == 0 {
		return 0, nil
	}
	return out.TitleResults[0].ID, nil
}

// Sources lists the streaming offers for a provider title id in one region.
func (c *Client) Sources(ctx context.Context, titleID int64, region string) ([]models.StreamingSource, error) {
	endpoint := fmt.Sprintf("%s/title/%d/sources/?regions=%s", c.baseURL, titleID, region)

	var out []sourceResponse
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}

	sources := make([]models.StreamingSource, 0, len(out))
	for _, src := range out {
		sources = append(sources, models.StreamingSource{
			Name:    src.Name,
			Type:    src.Type,
			URL:     src.WebURL,
			Quality: src.Format,
			Price:   src.Price,
		})
	}
	return sources, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, target any) error {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	endpoint = endpoint + sep + "apiKey=" + c.apiKey

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: build request: %v", models.ErrUpstream, err))
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpc.Do(req)
			if err != nil {
				return fmt.Errorf("%w: watchmode request: %v", models.ErrUpstream, err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusUnauthorized:
				return retry.Unrecoverable(fmt.Errorf("watchmode: %w", models.ErrUnauthorized))
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(fmt.Errorf("watchmode: %w", models.ErrNotFound))
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				return fmt.Errorf("%w: watchmode status %s", models.ErrUpstream, resp.Status)
			case resp.StatusCode >= 300:
				return retry.Unrecoverable(fmt.Errorf("%w: watchmode status %s", models.ErrUpstream, resp.Status))
			}

			if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: decode watchmode payload: %v", models.ErrUpstream, err))
			}
			return nil
		},
		retry.Attempts(c.retries),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}
