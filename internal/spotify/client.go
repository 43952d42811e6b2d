// Package spotify is the metadata provider adapter: batch track lookup and
// free-text search against the Spotify Web API, authenticated with an app
// token from the client credentials flow.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/dyluth/songgrid/pkg/grid"
)

// Error is the error class for provider failures.
var Error = errs.Class("spotify")

const (
	// MaxBatchSize is the most ids the tracks endpoint accepts per call.
	MaxBatchSize = 50

	// DefaultSearchLimit is the number of results returned by Search.
	DefaultSearchLimit = 10

	defaultAPIBaseURL      = "https://api.spotify.com"
	defaultAccountsBaseURL = "https://accounts.spotify.com"
	defaultTimeout         = 10 * time.Second
	maxErrorExcerpt        = 512
)

// Options configures a Client.
type Options struct {
	ClientID        string
	ClientSecret    string
	APIBaseURL      string        // Default https://api.spotify.com
	AccountsBaseURL string        // Default https://accounts.spotify.com
	Timeout         time.Duration // Per request, default 10s
	HTTPClient      *http.Client
	Logger          *zap.Logger
}

// Client talks to the Spotify Web API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *tokenSource
	log        *zap.Logger
}

// NewClient creates a client. No network call is made until the first lookup
// or an explicit Token call.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.APIBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	accountsURL := strings.TrimRight(strings.TrimSpace(opts.AccountsBaseURL), "/")
	if accountsURL == "" {
		accountsURL = defaultAccountsBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        log,
		tokens: &tokenSource{
			endpoint:     accountsURL + "/api/token",
			clientID:     strings.TrimSpace(opts.ClientID),
			clientSecret: strings.TrimSpace(opts.ClientSecret),
			httpClient:   httpClient,
			timeout:      timeout,
			now:          time.Now,
		},
	}
}

// Token returns the current app token, fetching one if needed. Errors wrap
// grid.ErrCredentialUnavailable.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

// Ready reports whether a token is cached right now.
func (c *Client) Ready() bool {
	return c.tokens.Ready()
}

// Tracks resolves up to MaxBatchSize ids in one call. Ids Spotify does not
// know are simply absent from the result.
func (c *Client) Tracks(ctx context.Context, ids []string) ([]Track, error) {
	if len(ids) == 0 {
		return []Track{}, nil
	}
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d ids exceeds provider limit of %d", len(ids), MaxBatchSize)
	}

	query := url.Values{"ids": {strings.Join(ids, ",")}}
	var body tracksResponse
	if err := c.get(ctx, "/v1/tracks", query, &body); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(body.Tracks))
	for _, t := range body.Tracks {
		if t != nil {
			tracks = append(tracks, *t)
		}
	}
	return tracks, nil
}

// Search runs a free-text track search. limit <= 0 uses DefaultSearchLimit.
func (c *Client) Search(ctx context.Context, q string, limit int) ([]Track, error) {
	if strings.TrimSpace(q) == "" {
		return nil, grid.Validationf("search query is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	query := url.Values{
		"q":     {q},
		"type":  {"track"},
		"limit": {strconv.Itoa(limit)},
	}
	var body searchResponse
	if err := c.get(ctx, "/v1/search", query, &body); err != nil {
		return nil, err
	}
	if body.Tracks.Items == nil {
		return []Track{}, nil
	}
	return body.Tracks.Items, nil
}

// get issues an authenticated GET and decodes the JSON response into out.
// A 401 drops the cached token and retries once with a fresh one.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + query.Encode()

	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return Error.Wrap(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return Error.Wrap(fmt.Errorf("%w: GET %s: %v", grid.ErrProvider, path, err))
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.log.Info("provider rejected token, refreshing", zap.String("path", path))
			c.tokens.Invalidate()
			continue
		}

		err = decodeResponse(resp, path, out)
		resp.Body.Close()
		return err
	}
}

func decodeResponse(resp *http.Response, path string, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Error.Wrap(fmt.Errorf("%w: GET %s: %d - %s", grid.ErrProvider, path, resp.StatusCode, readExcerpt(resp.Body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Error.Wrap(fmt.Errorf("%w: GET %s: failed to decode response: %v", grid.ErrProvider, path, err))
	}
	return nil
}

func readExcerpt(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorExcerpt))
	return strings.TrimSpace(string(data))
}
