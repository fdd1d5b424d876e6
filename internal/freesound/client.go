package freesound

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/roomscape/roomscape-api/internal/logger"
)

const (
	defaultAPIBase  = "https://freesound.org/apiv2"
	defaultAuthURL  = "https://freesound.org/apiv2/oauth2/authorize/"
	defaultTokenURL = "https://freesound.org/apiv2/oauth2/access_token/"

	// Tokens with less remaining validity than this are refreshed.
	tokenFreshnessWindow = 5 * time.Minute

	soundFields = "id,name,username,duration,previews,type,license,filesize,download,tags,description,avg_rating,num_downloads"
)

// APIError is a non-2xx response from the Freesound API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("freesound API error: status %d: %s", e.StatusCode, e.Body)
}

// Sound is the subset of Freesound's sound resource the pipeline uses.
type Sound struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	Username    string            `json:"username"`
	Duration    float64           `json:"duration"`
	Previews    map[string]string `json:"previews"`
	Type        string            `json:"type"`
	License     string            `json:"license"`
	Filesize    int64             `json:"filesize"`
	Download    string            `json:"download"`
	Tags        []string          `json:"tags"`
	Description string            `json:"description"`
	AvgRating   float64           `json:"avg_rating"`
}

// SearchResult is a page of text-search results.
type SearchResult struct {
	Count   int     `json:"count"`
	Results []Sound `json:"results"`
}

// SearchOptions tune a text search. The wav/mp3 type constraint is always
// applied on top of these.
type SearchOptions struct {
	Filter      string // extra filter expression, ANDed with the type filter
	MaxDuration float64
	MinDuration float64
	MinRating   float64
	License     string
	PageSize    int
	Sort        string
	Fields      string
}

// Config carries the client construction parameters. BaseURL, AuthURL and
// TokenURL default to the public Freesound endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	Store        CredentialStore
	BaseURL      string
	AuthURL      string
	TokenURL     string
	HTTPClient   *http.Client
}

// Client talks to the Freesound API with a cached OAuth token. Safe for
// concurrent use.
type Client struct {
	oauth   oauth2.Config
	ccGrant clientcredentials.Config
	store   CredentialStore
	baseURL string
	http    *http.Client

	mu              sync.Mutex
	token           *oauth2.Token
	usingSessionTok bool
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAPIBase
	}
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		ccGrant: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		store:   cfg.Store,
		baseURL: baseURL,
		http:    httpClient,
	}
}

// AuthCodeURL builds the browser authorization URL for the given CSRF state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode swaps an authorization code for a token. Used by the browser
// OAuth callback; the token goes into the user's session, not the cache.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange failed: %w", err)
	}
	return tok, nil
}

// UseSessionToken switches the client onto an externally managed token.
// EnsureFreshToken becomes a no-op; session middleware owns the refresh.
func (c *Client) UseSessionToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = &oauth2.Token{AccessToken: accessToken}
	c.usingSessionTok = true
}

// Authenticate establishes a usable token: a cached token still valid for
// more than five minutes (verified against /me/), else a refresh-token
// exchange, else the client-credentials grant. New tokens are persisted.
func (c *Client) Authenticate(ctx context.Context) error {
	var cached *Credentials
	if c.store != nil {
		creds, err := c.store.Load()
		if err != nil {
			logger.Info("No valid credentials found, using client credentials flow", logger.Fields{
				"error": err.Error(),
			})
		} else {
			cached = creds
		}
	}

	if cached != nil && cached.AccessToken != "" {
		if time.UnixMilli(cached.ExpiresAt).After(time.Now().Add(tokenFreshnessWindow)) {
			logger.Info("Using saved access token", nil)
			tok := cached.Token()
			if err := c.probeIdentity(ctx, tok.AccessToken); err == nil {
				c.setToken(tok)
				return nil
			}
			logger.Info("Saved token is invalid, will refresh or re-authenticate", nil)
		}

		if cached.RefreshToken != "" {
			if err := c.refresh(ctx, cached.RefreshToken); err == nil {
				return nil
			}
			logger.Info("Token refresh failed, will re-authenticate", nil)
		}
	}

	return c.authenticateClientCredentials(ctx)
}

func (c *Client) authenticateClientCredentials(ctx context.Context) error {
	logger.Info("Authenticating with Freesound using client credentials", nil)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.ccGrant.Token(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.setToken(tok)
	c.persist(tok)
	logger.Info("Authentication successful", nil)
	return nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) error {
	logger.Info("Refreshing access token", nil)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return fmt.Errorf("error refreshing token: %w", err)
	}

	c.setToken(tok)
	c.persist(tok)
	logger.Info("Token refreshed successfully", nil)
	return nil
}

// EnsureFreshToken refreshes the cached token when it is about to expire.
// No-op for session tokens.
func (c *Client) EnsureFreshToken(ctx context.Context) error {
	c.mu.Lock()
	usingSession := c.usingSessionTok
	tok := c.token
	c.mu.Unlock()

	if usingSession {
		return nil
	}
	if tok == nil {
		return c.Authenticate(ctx)
	}
	if !tok.Expiry.IsZero() && time.Until(tok.Expiry) < tokenFreshnessWindow {
		logger.Info("Access token is about to expire, refreshing", nil)
		if err := c.refresh(ctx, tok.RefreshToken); err != nil {
			logger.Info("Token refresh failed, re-authenticating", nil)
			return c.Authenticate(ctx)
		}
	}
	return nil
}

func (c *Client) setToken(tok *oauth2.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
	c.usingSessionTok = false
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return ""
	}
	return c.token.AccessToken
}

// AccessToken returns the current bearer token, or "" before Authenticate.
func (c *Client) AccessToken() string {
	return c.accessToken()
}

func (c *Client) persist(tok *oauth2.Token) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(credentialsFromToken(tok)); err != nil {
		logger.Warn("Could not save tokens to file", logger.Fields{"error": err.Error()})
		return
	}
	logger.Info("Tokens saved to credentials file", nil)
}

// probeIdentity hits /me/ as a lightweight token validity check.
func (c *Client) probeIdentity(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

// SearchSounds runs a text search constrained to wav/mp3 results. Returned
// results are re-filtered on the type field as a safety net against drift
// in the server-side filter.
func (c *Client) SearchSounds(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	if err := c.EnsureFreshToken(ctx); err != nil {
		return nil, err
	}

	filter := buildFilter(opts)
	logger.Info("Searching for sounds", logger.Fields{"query": query, "filter": filter})

	params := url.Values{}
	params.Set("query", query)
	params.Set("filter", filter)
	fields := opts.Fields
	if fields == "" {
		fields = soundFields
	}
	params.Set("fields", fields)
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 15
	}
	params.Set("page_size", strconv.Itoa(pageSize))
	sort := opts.Sort
	if sort == "" {
		sort = "score"
	}
	params.Set("sort", sort)

	var result SearchResult
	if err := c.getJSON(ctx, "/search/text/?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	filtered := result.Results[:0]
	for _, sound := range result.Results {
		if isPlayableType(sound.Type) {
			filtered = append(filtered, sound)
		}
	}
	if len(filtered) != len(result.Results) {
		logger.Info("Filtered results to wav/mp3 sounds", logger.Fields{
			"before": len(result.Results),
			"after":  len(filtered),
		})
	}
	result.Results = filtered

	return &result, nil
}

func buildFilter(opts SearchOptions) string {
	parts := []string{"type:(wav OR mp3)"}
	if opts.Filter != "" {
		parts = append(parts, "("+opts.Filter+")")
	}
	if opts.MaxDuration > 0 {
		parts = append(parts, fmt.Sprintf("duration:[%g TO %g]", opts.MinDuration, opts.MaxDuration))
	}
	if opts.MinRating > 0 {
		parts = append(parts, fmt.Sprintf("avg_rating:[%g TO *]", opts.MinRating))
	}
	if opts.License != "" {
		parts = append(parts, fmt.Sprintf("license:%q", opts.License))
	}
	return strings.Join(parts, " AND ")
}

func isPlayableType(t string) bool {
	t = strings.ToLower(t)
	return strings.Contains(t, "wav") || strings.Contains(t, "mp3")
}

// GetSoundInfo fetches sound metadata. Warns when the format is neither
// wav nor mp3, since Unity playback may fail on anything else.
func (c *Client) GetSoundInfo(ctx context.Context, soundID int) (*Sound, error) {
	if err := c.EnsureFreshToken(ctx); err != nil {
		return nil, err
	}

	var sound Sound
	path := fmt.Sprintf("/sounds/%d/?fields=%s", soundID, url.QueryEscape(soundFields))
	if err := c.getJSON(ctx, path, &sound); err != nil {
		return nil, fmt.Errorf("failed to get sound info: %w", err)
	}

	if !isPlayableType(sound.Type) {
		logger.Warn("Sound is not in WAV or MP3 format", logger.Fields{
			"sound_id": soundID,
			"type":     sound.Type,
		})
	}
	return &sound, nil
}

// GetSoundDownloadURL resolves the download location for a sound. The
// download endpoint redirects to a signed URL; when it does not, the
// endpoint URL itself is returned for a direct authorized fetch.
func (c *Client) GetSoundDownloadURL(ctx context.Context, soundID int) (string, error) {
	if err := c.EnsureFreshToken(ctx); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/sounds/%d/download/", c.baseURL, soundID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken())

	noRedirect := &http.Client{
		Transport: c.http.Transport,
		Timeout:   c.http.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get download URL: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc := resp.Header.Get("Location"); loc != "" {
			return loc, nil
		}
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return endpoint, nil
}

// DownloadSound streams a sound to disk and returns its metadata.
func (c *Client) DownloadSound(ctx context.Context, soundID int, savePath string) (*Sound, error) {
	if err := c.EnsureFreshToken(ctx); err != nil {
		return nil, err
	}

	logger.Info("Getting sound info and download URL", logger.Fields{"sound_id": soundID})

	sound, err := c.GetSoundInfo(ctx, soundID)
	if err != nil {
		return nil, err
	}

	downloadURL, err := c.GetSoundDownloadURL(ctx, soundID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading sound %d: %w", soundID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	out, err := os.Create(savePath)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(savePath)
		return nil, fmt.Errorf("error writing file: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	logger.Info("Sound saved", logger.Fields{"sound_id": soundID, "path": savePath})
	return sound, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
