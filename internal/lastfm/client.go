// Package lastfm looks up artist tags on Last.fm. It is used as the fallback
// genre source when Spotify lists no genres for an artist.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

const (
	// DefaultBaseURL is the Last.fm API endpoint.
	DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// DefaultTimeout bounds each request.
	DefaultTimeout = 10 * time.Second

	userAgent = "spotify-listen-sync/1.0"
)

// Last.fm API error codes.
const (
	errCodeInvalidParams = 6
	errCodeInvalidAPIKey = 10
	errCodeRateLimited   = 29
)

// Sentinel errors.
var (
	// ErrMissingAPIKey is returned by New when no API key is configured.
	ErrMissingAPIKey = errors.New("missing Last.fm API key")

	// ErrRateLimited is returned when the API rate limit is exceeded.
	// Requests are not retried.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidAPIKey is returned when the API key is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrArtistNotFound is returned when Last.fm does not know the artist.
	ErrArtistNotFound = errors.New("artist not found")
)

// Config holds Last.fm API configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client is a Last.fm API client with an in-memory tag cache.
type Client struct {
	apiKey string
	rest   *resty.Client

	// key = lower-cased artist name
	cache   map[string][]Tag
	cacheMu sync.RWMutex
}

// New creates a Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		apiKey: cfg.APIKey,
		rest: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent).
			SetRetryCount(0),
		cache: make(map[string][]Tag),
	}, nil
}

// ArtistTopTag returns the most popular tag for an artist, lower-cased,
// or "" when the artist has no tags.
func (c *Client) ArtistTopTag(ctx context.Context, artist string) (string, error) {
	tags, err := c.ArtistTags(ctx, artist)
	if err != nil {
		return "", err
	}
	if len(tags) == 0 {
		return "", nil
	}
	return strings.ToLower(tags[0].Name), nil
}

// ArtistTags fetches the top tags for an artist (with caching).
// Returns an empty slice (not nil) if no tags are found.
func (c *Client) ArtistTags(ctx context.Context, artist string) ([]Tag, error) {
	cacheKey := strings.ToLower(strings.TrimSpace(artist))

	c.cacheMu.RLock()
	if cached, ok := c.cache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		return cached, nil
	}
	c.cacheMu.RUnlock()

	body, err := c.doRequest(ctx, map[string]string{
		"method":      "artist.getTopTags",
		"artist":      artist,
		"autocorrect": "1",
	})
	if err != nil {
		return nil, fmt.Errorf("fetching artist tags: %w", err)
	}

	var resp topTagsBody
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing artist tags response: %w", err)
	}

	tags := resp.TopTags.Tags
	if tags == nil {
		tags = []Tag{}
	}

	c.cacheMu.Lock()
	c.cache[cacheKey] = tags
	c.cacheMu.Unlock()

	return tags, nil
}

// doRequest performs a single GET. Errors are never retried.
func (c *Client) doRequest(ctx context.Context, params map[string]string) ([]byte, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("format", "json").
		SetQueryParam("api_key", c.apiKey).
		Get("/")
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	body := resp.Body()

	// Last.fm reports most failures in the body, sometimes with a 200.
	var apiErr errorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		switch apiErr.Code {
		case errCodeRateLimited:
			return nil, ErrRateLimited
		case errCodeInvalidAPIKey:
			return nil, ErrInvalidAPIKey
		case errCodeInvalidParams:
			return nil, ErrArtistNotFound
		default:
			return nil, fmt.Errorf("API error %d: %s", apiErr.Code, apiErr.Message)
		}
	}

	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	return body, nil
}
