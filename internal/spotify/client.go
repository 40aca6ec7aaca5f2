// Package spotify provides the Spotify Web API calls used by the sync pipeline.
//
// Every call carries the caller's bearer access value, is bounded by a
// per-request timeout, and is never retried: failures surface as *FetchError.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

const (
	// DefaultAPIURL is the Spotify Web API root.
	DefaultAPIURL = "https://api.spotify.com/v1/"

	// DefaultTimeout bounds every outbound request.
	DefaultTimeout = 10 * time.Second

	userAgent = "spotify-listen-sync/1.0"
)

// Config holds API client configuration.
type Config struct {
	APIURL  string
	Timeout time.Duration

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client talks to the Spotify Web API.
type Client struct {
	rest      *resty.Client
	apiURL    string
	timeout   time.Duration
	transport http.RoundTripper
}

// New creates a new Spotify client.
func New(cfg Config) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	rest := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetTransport(transport).
		SetHeader("User-Agent", userAgent).
		SetRetryCount(0)

	return &Client{
		rest:      rest,
		apiURL:    apiURL,
		timeout:   timeout,
		transport: transport,
	}
}

// api returns a zmb3 client authorised with the given access value.
func (c *Client) api(accessToken string) *spotify.Client {
	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: accessToken,
				TokenType:   "Bearer",
			}),
			Base: c.transport,
		},
	}
	return spotify.New(httpClient, spotify.WithBaseURL(c.apiURL))
}

// CurrentUser returns the profile of the user owning the access value.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*Profile, error) {
	user, err := c.api(accessToken).CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", classify(err))
	}
	return &Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	}, nil
}
