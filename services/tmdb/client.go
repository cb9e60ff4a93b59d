// Package tmdb is the upstream movie catalog client. Besides the raw fetch it
// owns the default-language fallback merge: non-English catalog entries often
// ship without an overview or trailer, so those fields are filled from the
// default language without overwriting anything the primary response carried.
package tmdb

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

const defaultBaseURL = "https://api.themoviedb.org/3"

type Client struct {
	apiKey      string
	baseURL     string
	defaultLang string
	httpc       *http.Client
	retries     uint
	retryDelay  time.Duration
}

// NewClient builds a client from provider config. BaseURL is overridable so
// tests can point at an httptest server.
func NewClient(cfg config.ProviderConfig, defaultLang string, httpc *http.Client) *Client {
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
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		defaultLang: defaultLang,
		httpc:       httpc,
		retries:     retries,
		retryDelay:  cfg.RetryDelay(),
	}
}

type movieResponse struct {
	ID           int            `json:"id"`
	Title        string         `json:"title"`
	Overview     string         `json:"overview"`
	PosterPath   string         `json:"poster_path"`
	BackdropPath string         `json:"backdrop_path"`
	ReleaseDate  string         `json:"release_date"`
	Videos       *videoResponse `json:"videos"`
}

type videoResponse struct {
	Results []videoItem `json:"results"`
}

type videoItem struct {
	Key  string `json:"key"`
	Site string `json:"site"`
	Type string `json:"type"`
}

// FetchDetails fetches metadata for one (id, language) pair. When the primary
// response has a blank overview or no trailer and the requested language is
// not the default, a second fetch in the default language fills only the
// missing fields. Fallback failures are swallowed: the primary result stands.
func (c *Client) FetchDetails(ctx context.Context, id int, lang string) (*models.ExternalMovie, error) {
	primary, err := c.fetchMovie(ctx, id, lang)
	if err != nil {
		return nil, err
	}
	result := mapToExternal(primary)

	complete := strings.TrimSpace(result.Overview) != "" && result.TrailerURL != nil
	if complete || lang == c.defaultLang {
		return result, nil
	}

	fallbackResp, err := c.fetchMovie(ctx, id, c.defaultLang)
	if err != nil {
		return result, nil
	}
	fallback := mapToExternal(fallbackResp)
	if strings.TrimSpace(result.Overview) == "" {
		result.Overview = fallback.Overview
	}
	if result.TrailerURL == nil {
		result.TrailerURL = fallback.TrailerURL
	}
	return result, nil
}

func (c *Client) fetchMovie(ctx context.Context, id int, lang string) (*movieResponse, error) {
	endpoint := fmt.Sprintf("%s/movie/%d?language=%s&append_to_response=videos", c.baseURL, id, lang)

	var out movieResponse
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: build request: %v", models.ErrUpstream, err))
			}
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpc.Do(req)
			if err != nil {
				return fmt.Errorf("%w: tmdb request: %v", models.ErrUpstream, err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusUnauthorized:
				return retry.Unrecoverable(fmt.Errorf("tmdb movie %d: %w", id, models.ErrUnauthorized))
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(fmt.Errorf("tmdb movie %d: %w", id, models.ErrNotFound))
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				return fmt.Errorf("%w: tmdb status %s", models.ErrUpstream, resp.Status)
			case resp.StatusCode >= 300:
				return retry.Unrecoverable(fmt.Errorf("%w: tmdb status %s", models.ErrUpstream, resp.Status))
			}

			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("%w: decode tmdb payload: %v", models.ErrUpstream, err))
			}
			return nil
		},
		retry.Attempts(c.retries),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func mapToExternal(resp *movieResponse) *models.ExternalMovie {
	ext := &models.ExternalMovie{
		ExternalID:   resp.ID,
		Title:        resp.Title,
		Overview:     resp.Overview,
		PosterPath:   resp.PosterPath,
		BackdropPath: resp.BackdropPath,
		ReleaseDate:  parseReleaseDate(resp.ReleaseDate),
		TrailerURL:   trailerURL(resp.Videos),
	}
	return ext
}

func parseReleaseDate(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// trailerURL picks the first YouTube trailer from the appended videos.
func trailerURL(videos *videoResponse) *string {
	if videos == nil {
		return nil
	}
	for _, v := range videos.Results {
		if v.Type == "Trailer" && v.Site == "YouTube" && v.Key != "" {
			u := "https://www.youtube.com/watch?v=" + v.Key
			return &u
		}
	}
	return nil
}
