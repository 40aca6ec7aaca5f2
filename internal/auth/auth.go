package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const (
	// DefaultRefreshMargin refreshes credentials this long before they expire.
	DefaultRefreshMargin = 60 * time.Second

	// DefaultTimeout bounds the token endpoint call.
	DefaultTimeout = 10 * time.Second
)

var (
	// ErrMissingCredentials is returned when the client ID or secret is not configured.
	ErrMissingCredentials = errors.New("missing Spotify client ID or secret")

	// ErrCredentialUnavailable is returned when no credential has ever been stored.
	ErrCredentialUnavailable = errors.New("no stored credential, authenticate first")

	// ErrRefreshFailed is returned when the token endpoint rejects the refresh value
	// or cannot be reached.
	ErrRefreshFailed = errors.New("credential refresh failed")
)

// Config holds the OAuth client configuration.
type Config struct {
	ClientID      string
	ClientSecret  string
	TokenURL      string
	RefreshMargin time.Duration
	Timeout       time.Duration
}

// Manager hands out a valid bearer credential, refreshing it when needed.
type Manager struct {
	store      CredentialStore
	oauth      *oauth2.Config
	margin     time.Duration
	httpClient *http.Client
	now        func() time.Time

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithHTTPClient overrides the client used for the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.httpClient = c
	}
}

// NewManager creates a Manager backed by store.
// Returns ErrMissingCredentials if the client ID or secret is empty.
func NewManager(store CredentialStore, cfg Config, opts ...Option) (*Manager, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	margin := cfg.RefreshMargin
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	m := &Manager{
		store: store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyauth.AuthURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		margin:     margin,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Token returns a credential whose access value stays valid for at least the
// refresh margin. An expiring credential is refreshed and persisted before it
// is returned. Refresh failures are not retried.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return nil, ErrCredentialUnavailable
	}

	if !m.needsRefresh(token) {
		return token, nil
	}

	if token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: credential expired and no refresh value is stored", ErrRefreshFailed)
	}

	refreshed, err := m.refresh(ctx, token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	if err := m.store.Save(refreshed); err != nil {
		return nil, fmt.Errorf("saving refreshed credential: %w", err)
	}

	return refreshed, nil
}

// Logout removes the stored credential.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Delete()
}

// needsRefresh reports whether the access value is missing, has no known
// expiry, or expires within the margin.
func (m *Manager) needsRefresh(token *oauth2.Token) bool {
	if token.AccessToken == "" || token.Expiry.IsZero() {
		return true
	}
	return !m.now().Add(m.margin).Before(token.Expiry)
}

// refresh exchanges the refresh value at the token endpoint.
func (m *Manager) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	token, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, err
	}

	// The endpoint may omit the refresh value when it is unchanged.
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}
