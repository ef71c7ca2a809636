// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cardapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/bcard-tui/internal/auth"
	"github.com/jeranaias/bcard-tui/internal/security"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is the public card API.
	DefaultBaseURL = "https://monkfish-app-z9uza.ondigitalocean.app/bcard2"

	// DefaultTimeout bounds a single HTTP round trip.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries for transient failures.
	DefaultMaxRetries = 3

	// MaxResponseSize is the largest response body the client will read.
	MaxResponseSize = 10 * 1024 * 1024

	// RequestIDHeader carries the per-call request id.
	RequestIDHeader = "X-Request-ID"

	// UserAgent identifies the client.
	UserAgent = "bcard-tui"

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnauthorized is returned for 401 responses. It matches
	// auth.ErrSessionRejected so the sign-in service can end the session.
	ErrUnauthorized = fmt.Errorf("%w: unauthorized", auth.ErrSessionRejected)

	// ErrForbidden is returned for 403 responses.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyToken is returned when login succeeds without a token.
	ErrEmptyToken = errors.New("login returned an empty token")

	// ErrEmptyID is returned when an id argument is blank.
	ErrEmptyID = errors.New("id is required")
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error (status %d)", e.Status)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// =============================================================================
// CLIENT
// =============================================================================

// Authorizer adds credentials to outgoing requests.
// *security.SessionStore satisfies it.
type Authorizer interface {
	AttachAuth(req *http.Request)
}

// sharedTransport pools connections across clients.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:          10,
	MaxIdleConnsPerHost:   5,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
}

// Client talks to the card API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       Authorizer
	limiter    *rate.Limiter
	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAuth attaches credentials to every request.
func WithAuth(a Authorizer) Option {
	return func(c *Client) { c.auth = a }
}

// WithRateLimit caps outgoing requests per second. Zero or less disables
// the limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxRetries sets the retry count for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the first retry delay and the delay cap.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.retryBase = base
		}
		if max > 0 {
			c.retryMax = max
		}
	}
}

// WithTimeout sets the per-request timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for baseURL. An empty baseURL selects
// DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: sharedTransport, Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		maxRetries: DefaultMaxRetries,
		retryBase:  retryBaseDelay,
		retryMax:   retryMaxDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// USERS
// =============================================================================

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Authenticate exchanges credentials for a token.
func (c *Client) Authenticate(ctx context.Context, creds auth.Credentials) (string, error) {
	payload, err := json.Marshal(loginRequest{Email: creds.Email, Password: creds.Password})
	if err != nil {
		return "", fmt.Errorf("encode login: %w", err)
	}
	body, err := c.doWithRetry(ctx, http.MethodPost, "/users/login", payload)
	if err != nil {
		return "", err
	}
	return parseToken(body)
}

// parseToken accepts the token as a bare string or a JSON string.
func parseToken(body []byte) (string, error) {
	raw := strings.TrimSpace(string(body))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return "", fmt.Errorf("decode token: %w", err)
		}
		raw = strings.TrimSpace(s)
	}
	if raw == "" {
		return "", ErrEmptyToken
	}
	return raw, nil
}

// FetchProfile loads the attributes of subject.
func (c *Client) FetchProfile(ctx context.Context, subject string) (security.Attributes, error) {
	u, err := c.GetUser(ctx, subject)
	if err != nil {
		return security.Attributes{}, err
	}
	return u.Attributes(), nil
}

// GetUser fetches one user.
func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	if strings.TrimSpace(id) == "" {
		return User{}, ErrEmptyID
	}
	var u User
	err := c.getJSON(ctx, "/users/"+url.PathEscape(id), &u)
	return u, err
}

// ListUsers fetches every user. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.getJSON(ctx, "/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// DeleteUser removes a user. Admin only.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	_, err := c.doWithRetry(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil)
	return err
}

// SetBusiness sets the business flag of a user. The API only toggles, so
// the current value is read first and no request is made when it already
// matches.
func (c *Client) SetBusiness(ctx context.Context, id string, business bool) (User, error) {
	u, err := c.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u.IsBusiness == business {
		return u, nil
	}
	body, err := c.doWithRetry(ctx, http.MethodPatch, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return User{}, err
	}
	var updated User
	if err := decode(body, &updated); err != nil {
		return User{}, err
	}
	return updated, nil
}

// UpdateUser replaces the editable fields of a user. Admin only, or the
// user themselves.
func (c *Client) UpdateUser(ctx context.Context, id string, in UserUpdate) (User, error) {
	if strings.TrimSpace(id) == "" {
		return User{}, ErrEmptyID
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return User{}, err
	}
	var u User
	err := c.sendJSON(ctx, http.MethodPut, "/users/"+url.PathEscape(id), in, &u)
	return u, err
}

// =============================================================================
// CARDS
// =============================================================================

// ListCards fetches every card.
func (c *Client) ListCards(ctx context.Context) ([]Card, error) {
	var cards []Card
	if err := c.getJSON(ctx, "/cards", &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// GetCard fetches one card.
func (c *Client) GetCard(ctx context.Context, id string) (Card, error) {
	if strings.TrimSpace(id) == "" {
		return Card{}, ErrEmptyID
	}
	var card Card
	err := c.getJSON(ctx, "/cards/"+url.PathEscape(id), &card)
	return card, err
}

// ToggleLike likes or unlikes a card for the signed-in user and returns the
// updated card.
func (c *Client) ToggleLike(ctx context.Context, id string) (Card, error) {
	if strings.TrimSpace(id) == "" {
		return Card{}, ErrEmptyID
	}
	body, err := c.doWithRetry(ctx, http.MethodPatch, "/cards/"+url.PathEscape(id), nil)
	if err != nil {
		return Card{}, err
	}
	var card Card
	if err := decode(body, &card); err != nil {
		return Card{}, err
	}
	return card, nil
}

// CreateCard publishes a new card owned by the signed-in business user.
func (c *Client) CreateCard(ctx context.Context, in CardInput) (Card, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Card{}, err
	}
	var card Card
	err := c.sendJSON(ctx, http.MethodPost, "/cards", in, &card)
	return card, err
}

// UpdateCard replaces the editable fields of a card. The owner or an admin
// may update it.
func (c *Client) UpdateCard(ctx context.Context, id string, in CardInput) (Card, error) {
	if strings.TrimSpace(id) == "" {
		return Card{}, ErrEmptyID
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return Card{}, err
	}
	var card Card
	err := c.sendJSON(ctx, http.MethodPut, "/cards/"+url.PathEscape(id), in, &card)
	return card, err
}

// DeleteCard removes a card.
func (c *Client) DeleteCard(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	_, err := c.doWithRetry(ctx, http.MethodDelete, "/cards/"+url.PathEscape(id), nil)
	return err
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decode(body, out)
}

// sendJSON sends in as the request body and decodes the response into out.
func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	body, err := c.doWithRetry(ctx, method, path, payload)
	if err != nil {
		return err
	}
	return decode(body, out)
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doWithRetry sends one logical call. GET, HEAD and DELETE are retried on
// 5xx and 429 with exponential backoff. Writes are sent once: the like and
// business endpoints toggle, POST /cards creates, and a PUT that timed out
// may already have been applied.
func (c *Client) doWithRetry(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	requestID := uuid.NewString()
	retries := c.maxRetries
	if !idempotent(method) {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt - 1)
			c.logger.Debug("API_RETRY", "method", method, "path", path, "attempt", attempt, "delay", delay.String(), "request_id", requestID)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.do(ctx, method, path, payload, requestID)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	if retries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", retries+1, lastErr)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, requestID string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req, requestID, payload != nil)

	start := time.Now()
	c.logRequest(req, requestID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logResponse(req, resp, requestID, time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request, requestID string, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth.AttachAuth(req)
	}
}

// readResponse reads at most MaxResponseSize bytes.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse maps a non-2xx response to an *APIError.
func handleErrorResponse(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: errorMessage(body)}
	switch status {
	case http.StatusUnauthorized:
		apiErr.Err = ErrUnauthorized
	case http.StatusForbidden:
		apiErr.Err = ErrForbidden
	case http.StatusNotFound:
		apiErr.Err = ErrNotFound
	case http.StatusTooManyRequests:
		apiErr.Err = ErrRateLimited
	}
	return apiErr
}

// errorMessage extracts a short message from a JSON or plain-text body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if strings.HasPrefix(msg, "<") {
		return ""
	}
	const maxLen = 200
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	}
	return false
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	return false
}

// calculateBackoff returns base, 2*base, 4*base ... capped at the maximum.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := c.retryBase * time.Duration(1<<uint(attempt))
	if delay > c.retryMax || delay <= 0 {
		delay = c.retryMax
	}
	return delay
}

// logRequest never logs headers or bodies; they carry the token and the
// password.
func (c *Client) logRequest(req *http.Request, requestID string) {
	c.logger.Debug("API_REQUEST", "method", req.Method, "path", req.URL.Path, "request_id", requestID)
}

func (c *Client) logResponse(req *http.Request, resp *http.Response, requestID string, d time.Duration) {
	level := slog.LevelDebug
	if resp.StatusCode >= 500 {
		level = slog.LevelWarn
	}
	c.logger.Log(req.Context(), level, "API_RESPONSE",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", d.String(),
		"request_id", requestID,
	)
}
