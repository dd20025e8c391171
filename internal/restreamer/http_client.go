package restreamer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultTokenTTL     = time.Hour
	initialLoginBackoff = time.Second
	maxLoginRetries     = 3
)

// Config holds connection settings for an HTTPClient.
type Config struct {
	BaseURL       string // e.g. http://localhost:8080
	Username      string
	Password      string
	Timeout       time.Duration // per request
	RetryAttempts int           // transient failures (network, 5xx, 429)
	RetryInterval time.Duration
	CacheTTL      time.Duration // reference -> process id
	LoginRate     rate.Limit    // login attempts per second
}

func (c *Config) applyDefaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryInterval < 0 {
		c.RetryInterval = 0
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Second
	}
	if c.LoginRate <= 0 {
		c.LoginRate = rate.Every(time.Second)
	}
}

// HTTPClient implements Client over the Restreamer v3 REST API.
// It is safe for concurrent use.
type HTTPClient struct {
	log  *zap.Logger
	cfg  Config
	http *http.Client
	now  func() time.Time

	limiter *rate.Limiter
	ids     *cache.Cache // reference -> process id
	logins  singleflight.Group

	mu            sync.Mutex
	accessToken   string
	refreshToken  string
	expiresAt     time.Time
	loginFailures int
	loginBackoff  time.Duration
	lastLogin     time.Time
	connected     bool
	lastErr       string
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the service at cfg.BaseURL. No request is made.
func NewHTTPClient(log *zap.Logger, cfg Config) (*HTTPClient, error) {
	cfg.applyDefaults()
	if cfg.BaseURL == "" {
		return nil, errors.New("restreamer: base url required")
	}

	return &HTTPClient{
		log:          log.Named("restreamer"),
		cfg:          cfg,
		http:         &http.Client{Timeout: cfg.Timeout},
		now:          time.Now,
		limiter:      rate.NewLimiter(cfg.LoginRate, 1),
		ids:          cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		loginBackoff: initialLoginBackoff,
	}, nil
}

// IsConnected reports whether the last request reached the service successfully.
func (c *HTTPClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastError returns the text of the most recent failure.
func (c *HTTPClient) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *HTTPClient) fail(err error) error {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
	return err
}

func (c *HTTPClient) succeed() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
}

// TestConnection logs in when needed and lists processes.
func (c *HTTPClient) TestConnection(ctx context.Context) error {
	if _, err := c.GetProcesses(ctx); err != nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		return fmt.Errorf("test connection: %w", err)
	}
	return nil
}

/////////////////////
// Authentication. //
/////////////////////

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
}

// ForceLogin discards the current tokens and logs in again.
func (c *HTTPClient) ForceLogin(ctx context.Context) error {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
	return c.login(ctx)
}

// RefreshToken exchanges the refresh token for a new access token.
func (c *HTTPClient) RefreshToken(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return c.fail(ErrNoRefreshToken)
	}

	var tok tokenResponse
	if err := c.send(ctx, http.MethodPost, "/api/v3/refresh", nil, refresh, &tok); err != nil {
		return c.fail(fmt.Errorf("refresh token: %w", err))
	}
	if tok.AccessToken == "" {
		return c.fail(errors.New("refresh token: no access token in response"))
	}
	c.storeTokens(tok)
	c.log.Debug("token refreshed")
	return nil
}

func (c *HTTPClient) storeTokens(tok tokenResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	}
	if tok.ExpiresAt > 0 {
		c.expiresAt = time.Unix(tok.ExpiresAt, 0)
	} else {
		c.expiresAt = c.now().Add(defaultTokenTTL)
	}
	c.loginFailures = 0
	c.loginBackoff = initialLoginBackoff
}

// token returns a valid access token, logging in first when needed.
func (c *HTTPClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok, exp := c.accessToken, c.expiresAt
	c.mu.Unlock()
	if tok != "" && c.now().Before(exp) {
		return tok, nil
	}
	if err := c.login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, nil
}

// login is coalesced: concurrent callers share one request.
func (c *HTTPClient) login(ctx context.Context) error {
	_, err, _ := c.logins.Do("login", func() (any, error) {
		return nil, c.doLogin(ctx)
	})
	return err
}

func (c *HTTPClient) doLogin(ctx context.Context) error {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return c.fail(ErrNoCredentials)
	}

	now := c.now()
	c.mu.Lock()
	if c.loginFailures > 0 && now.Sub(c.lastLogin) < c.loginBackoff {
		wait := c.loginBackoff - now.Sub(c.lastLogin)
		c.mu.Unlock()
		return c.fail(fmt.Errorf("%w, retry in %s", ErrLoginThrottled, wait.Round(time.Second)))
	}
	c.lastLogin = now
	c.mu.Unlock()

	if !c.limiter.Allow() {
		return c.fail(fmt.Errorf("%w: rate limit", ErrLoginThrottled))
	}

	body := map[string]string{"username": c.cfg.Username, "password": c.cfg.Password}
	var tok tokenResponse
	err := c.send(ctx, http.MethodPost, "/api/login", body, "", &tok)
	if err == nil && tok.AccessToken == "" {
		err = errors.New("no access token in login response")
	}
	if err != nil {
		c.loginFailed(err)
		return c.fail(fmt.Errorf("login: %w", err))
	}

	c.storeTokens(tok)
	c.log.Info("logged in", zap.String("url", c.cfg.BaseURL))
	return nil
}

func (c *HTTPClient) loginFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.loginFailures++
	if c.loginFailures < maxLoginRetries {
		c.loginBackoff *= 2
		c.log.Warn("login failed, backing off",
			zap.Int("attempt", c.loginFailures),
			zap.Int("max_attempts", maxLoginRetries),
			zap.Duration("backoff", c.loginBackoff),
			zap.Error(err))
		return
	}
	c.log.Error("login failed", zap.Int("attempts", c.loginFailures), zap.Error(err))
}

//////////////////////
// Request plumbing //
//////////////////////

// statusError is a non-2xx response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("HTTP %d", e.code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func (e *statusError) Unwrap() error { return ErrRemote }

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return false
}

// call performs an authenticated request. A 401 triggers one forced re-login.
// 404 maps to ErrProcessNotFound.
func (c *HTTPClient) call(ctx context.Context, method, path string, payload, dest any) error {
	reauthed := false
	for {
		tok, err := c.token(ctx)
		if err != nil {
			return err
		}

		err = c.send(ctx, method, path, payload, tok, dest)
		var se *statusError
		switch {
		case err == nil:
			c.succeed()
			return nil
		case errors.As(err, &se) && se.code == http.StatusUnauthorized && !reauthed:
			reauthed = true
			c.log.Debug("access token rejected, logging in again", zap.String("path", path))
			if err := c.ForceLogin(ctx); err != nil {
				return err
			}
			continue
		case errors.As(err, &se) && se.code == http.StatusUnauthorized:
			return c.fail(fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized))
		case errors.As(err, &se) && se.code == http.StatusNotFound:
			c.succeed()
			return c.fail(fmt.Errorf("%s %s: %w", method, path, ErrProcessNotFound))
		default:
			return c.fail(fmt.Errorf("%s %s: %w", method, path, err))
		}
	}
}

// send performs one request with bounded fixed-interval retries of transient failures.
func (c *HTTPClient) send(ctx context.Context, method, path string, payload any, bearer string, dest any) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		lastErr = c.once(ctx, method, path, body, bearer, dest)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt == c.cfg.RetryAttempts {
			break
		}

		c.log.Warn("request failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryInterval):
		}
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return lastErr
}

func (c *HTTPClient) once(ctx context.Context, method, path string, body []byte, bearer string, dest any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

/////////////////
// Id caching. //
/////////////////

func (c *HTTPClient) cachedProcessID(ref string) (string, bool) {
	v, ok := c.ids.Get(ref)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func (c *HTTPClient) rememberProcess(ref, id string) {
	if ref != "" && id != "" {
		c.ids.SetDefault(ref, id)
	}
}

func (c *HTTPClient) forgetProcess(id string) {
	for ref, item := range c.ids.Items() {
		if item.Object == id {
			c.ids.Delete(ref)
		}
	}
}
