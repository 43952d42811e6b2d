package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dyluth/songgrid/pkg/grid"
)

const (
	// tokenRefreshMargin renews the token this long before Spotify expires it.
	tokenRefreshMargin = 60 * time.Second
	defaultTokenTTL    = time.Hour
)

// tokenSource obtains and caches an app access token using the client
// credentials grant. Concurrent callers share one in-flight refresh.
type tokenSource struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	timeout      time.Duration
	now          func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
}

// Token returns a valid access token, fetching a new one when the cached one
// is missing or about to expire.
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := s.cached(); ok {
		return token, nil
	}

	v, err, _ := s.group.Do("token", func() (any, error) {
		if token, ok := s.cached(); ok {
			return token, nil
		}
		// Detach from the first caller's cancellation; the result is shared.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.fetch(fetchCtx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Ready reports whether a usable token is cached.
func (s *tokenSource) Ready() bool {
	_, ok := s.cached()
	return ok
}

// Invalidate drops the cached token so the next call fetches a new one.
func (s *tokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

func (s *tokenSource) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || !s.now().Before(s.expiresAt) {
		return "", false
	}
	return s.token, true
}

func (s *tokenSource) fetch(ctx context.Context) (string, error) {
	if s.clientID == "" || s.clientSecret == "" {
		return "", fmt.Errorf("%w: client id and secret are not configured", grid.ErrCredentialUnavailable)
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.clientID, s.clientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", Error.Wrap(fmt.Errorf("%w: token request failed: %v", grid.ErrCredentialUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", Error.Wrap(fmt.Errorf("%w: token request failed: %d - %s",
			grid.ErrCredentialUnavailable, resp.StatusCode, readExcerpt(resp.Body)))
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", Error.Wrap(fmt.Errorf("%w: failed to decode token response: %v", grid.ErrCredentialUnavailable, err))
	}
	if body.AccessToken == "" {
		return "", Error.Wrap(fmt.Errorf("%w: token response carried no access token", grid.ErrCredentialUnavailable))
	}

	ttl := time.Duration(body.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if ttl > tokenRefreshMargin {
		ttl -= tokenRefreshMargin
	}

	s.mu.Lock()
	s.token = body.AccessToken
	s.expiresAt = s.now().Add(ttl)
	s.mu.Unlock()

	return body.AccessToken, nil
}
