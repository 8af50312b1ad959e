// Package profile resolves player names and avatars against the external
// user-profile service (Roblox users and thumbnails APIs).
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tournament-leaderboard/logger"
	"tournament-leaderboard/metrics"
)

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrProfileUnavailable = errors.New("profile service unavailable")
	ErrProfileTimeout     = errors.New("profile service timed out")
	ErrAvatarNotFound     = errors.New("avatar not found")

	errNoCandidates = errors.New("search returned no candidates")
)

const (
	DefaultUsersBaseURL      = "https://users.roblox.com"
	DefaultThumbnailsBaseURL = "https://thumbnails.roblox.com"

	userRequestTimeout   = 30 * time.Second
	avatarRequestTimeout = 20 * time.Second

	rateLimitBaseDelay = 5 * time.Second
	rateLimitMaxDelay  = 20 * time.Second
	retryBaseDelay     = 2 * time.Second
	retryMaxDelay      = 8 * time.Second
	avatarRetryStep    = 2 * time.Second
)

// Profile is the canonical identity of a player in the external service.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// statusError is a non-2xx response from the profile API.
type statusError struct {
	code       int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("profile API returned status code %d", e.code)
}

type Client struct {
	httpClient        HttpClient
	usersBaseURL      string
	thumbnailsBaseURL string
	userAgent         string
	userTimeout       time.Duration
	avatarTimeout     time.Duration
	sleep             func(ctx context.Context, d time.Duration) error
	logger            *logger.Logger
	metrics           *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(httpClient HttpClient) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithBaseURLs(usersBaseURL, thumbnailsBaseURL string) Option {
	return func(c *Client) {
		if usersBaseURL != "" {
			c.usersBaseURL = strings.TrimRight(usersBaseURL, "/")
		}
		if thumbnailsBaseURL != "" {
			c.thumbnailsBaseURL = strings.TrimRight(thumbnailsBaseURL, "/")
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) { c.userAgent = userAgent }
}

// WithSleep replaces the backoff sleep. Tests use it to record delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

func WithTimeouts(user, avatar time.Duration) Option {
	return func(c *Client) {
		if user > 0 {
			c.userTimeout = user
		}
		if avatar > 0 {
			c.avatarTimeout = avatar
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:        NewHTTPClient(),
		usersBaseURL:      DefaultUsersBaseURL,
		thumbnailsBaseURL: DefaultThumbnailsBaseURL,
		userAgent:         "tournament-leaderboard/1.0",
		userTimeout:       userRequestTimeout,
		avatarTimeout:     avatarRequestTimeout,
		sleep:             sleepContext,
		logger:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Data []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"data"`
}

// ResolveUser looks name up with the search endpoint, retrying rate limits,
// server errors, timeouts and empty results up to maxAttempts times.
//
// It returns ErrProfileNotFound when the service answers with a client error
// or never returns a candidate, ErrProfileTimeout when the last attempt timed
// out, and ErrProfileUnavailable otherwise.
func (c *Client) ResolveUser(ctx context.Context, name string, maxAttempts int) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty username", ErrProfileNotFound)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p, err := c.searchOnce(ctx, name)
		if err == nil {
			c.metrics.ProfileRequest("search", "ok")
			return p, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		var delay time.Duration
		var se *statusError
		switch {
		case errors.As(err, &se) && se.code == http.StatusTooManyRequests:
			c.metrics.ProfileRequest("search", "rate_limited")
			delay = max(se.retryAfter, backoff(rateLimitBaseDelay, rateLimitMaxDelay, attempt))
		case errors.As(err, &se) && se.code >= 400 && se.code < 500:
			c.metrics.ProfileRequest("search", "client_error")
			return nil, fmt.Errorf("%w: %s (status %d)", ErrProfileNotFound, name, se.code)
		default:
			c.metrics.ProfileRequest("search", outcomeOf(err))
			delay = backoff(retryBaseDelay, retryMaxDelay, attempt)
		}

		if attempt == maxAttempts-1 {
			break
		}
		c.logger.Warn("[Profile] user search failed, retrying",
			"username", name,
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"delay", delay.String(),
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	switch {
	case errors.Is(lastErr, errNoCandidates):
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	case isTimeout(lastErr):
		return nil, fmt.Errorf("%w: %s: %w", ErrProfileTimeout, name, lastErr)
	default:
		return nil, fmt.Errorf("%w: %s: %w", ErrProfileUnavailable, name, lastErr)
	}
}

func (c *Client) searchOnce(ctx context.Context, name string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.userTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/v1/users/search?keyword=%s&limit=10", c.usersBaseURL, url.QueryEscape(name))
	data, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errNoCandidates
	}

	chosen := resp.Data[0]
	for _, candidate := range resp.Data {
		if strings.EqualFold(candidate.Name, name) {
			chosen = candidate
			break
		}
	}

	return &Profile{
		ID:          strconv.FormatInt(chosen.ID, 10),
		Name:        chosen.Name,
		DisplayName: chosen.DisplayName,
	}, nil
}

type thumbnailResponse struct {
	Data []struct {
		RequestID string `json:"requestId"`
		TargetID  int64  `json:"targetId"`
		State     string `json:"state"`
		ImageURL  string `json:"imageUrl"`
	} `json:"data"`
}

// ResolveAvatar fetches the headshot URL for one profile id. Server errors
// and timeouts are retried with a linear backoff.
func (c *Client) ResolveAvatar(ctx context.Context, profileID string, maxAttempts int) (string, error) {
	if !isProfileID(profileID) {
		return "", fmt.Errorf("%w: invalid profile id %q", ErrAvatarNotFound, profileID)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := avatarRetryStep * time.Duration(attempt)
			c.logger.Warn("[Profile] avatar fetch failed, retrying",
				"profile_id", profileID,
				"attempt", attempt+1,
				"delay", delay.String(),
				"error", lastErr,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		imageURL, err := c.avatarOnce(ctx, profileID)
		if err == nil {
			c.metrics.ProfileRequest("avatar", "ok")
			return imageURL, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.metrics.ProfileRequest("avatar", outcomeOf(err))
		lastErr = err

		var se *statusError
		if errors.Is(err, ErrAvatarNotFound) {
			return "", err
		}
		if errors.As(err, &se) && se.code < 500 {
			if se.code == http.StatusTooManyRequests {
				return "", fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
			}
			return "", fmt.Errorf("%w: %s: %w", ErrAvatarNotFound, profileID, err)
		}
	}

	if isTimeout(lastErr) {
		return "", fmt.Errorf("%w: %w", ErrProfileTimeout, lastErr)
	}
	return "", fmt.Errorf("%w: %w", ErrProfileUnavailable, lastErr)
}

func (c *Client) avatarOnce(ctx context.Context, profileID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.avatarTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/v1/users/avatar-headshot?userIds=%s&size=420x420&format=Png&isCircular=false",
		c.thumbnailsBaseURL, url.QueryEscape(profileID))
	data, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	var resp thumbnailResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to parse avatar response: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].ImageURL == "" {
		return "", fmt.Errorf("%w: %s", ErrAvatarNotFound, profileID)
	}
	return resp.Data[0].ImageURL, nil
}

type batchRequestItem struct {
	RequestID  string `json:"requestId"`
	TargetID   int64  `json:"targetId"`
	Type       string `json:"type"`
	Size       string `json:"size"`
	Format     string `json:"format"`
	IsCircular bool   `json:"isCircular"`
}

// ResolveAvatarsBatch returns the headshot URL for every id the service has a
// completed thumbnail for. It is best effort: ids that are missing, pending or
// malformed are absent from the map, and any failure yields an empty map.
func (c *Client) ResolveAvatarsBatch(ctx context.Context, profileIDs []string) map[string]string {
	result := map[string]string{}

	seen := map[string]bool{}
	payload := make([]batchRequestItem, 0, len(profileIDs))
	for _, id := range profileIDs {
		if seen[id] || !isProfileID(id) {
			continue
		}
		seen[id] = true
		targetID, _ := strconv.ParseInt(id, 10, 64)
		payload = append(payload, batchRequestItem{
			RequestID: id,
			TargetID:  targetID,
			Type:      "AvatarHeadShot",
			Size:      "420x420",
			Format:    "Png",
		})
	}
	if len(payload) == 0 {
		return result
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("[Profile] failed to encode batch request", "error", err)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.avatarTimeout)
	defer cancel()

	data, err := c.do(ctx, http.MethodPost, c.thumbnailsBaseURL+"/v1/batch", body)
	if err != nil {
		c.metrics.ProfileRequest("batch", outcomeOf(err))
		c.logger.Warn("[Profile] batch avatar fetch failed", "count", len(payload), "error", err)
		return result
	}

	var resp thumbnailResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.metrics.ProfileRequest("batch", "error")
		c.logger.Warn("[Profile] failed to parse batch avatar response", "error", err)
		return result
	}
	c.metrics.ProfileRequest("batch", "ok")

	for _, item := range resp.Data {
		if item.State == "Completed" && item.ImageURL != "" {
			result[strconv.FormatInt(item.TargetID, 10)] = item.ImageURL
		}
	}
	return result
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{
			code:       resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return data, nil
}

// backoff is base·2^attempt capped at ceiling.
func backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

func parseRetryAfter(raw string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcomeOf(err error) string {
	var se *statusError
	switch {
	case errors.As(err, &se) && se.code == http.StatusTooManyRequests:
		return "rate_limited"
	case errors.As(err, &se) && se.code >= 500:
		return "server_error"
	case errors.As(err, &se):
		return "client_error"
	case errors.Is(err, errNoCandidates), errors.Is(err, ErrAvatarNotFound):
		return "empty"
	case isTimeout(err):
		return "timeout"
	default:
		return "error"
	}
}

// isProfileID rejects the pending sentinel and anything else that is not a
// numeric external id.
func isProfileID(id string) bool {
	if id == "" {
		return false
	}
	_, err := strconv.ParseInt(id, 10, 64)
	return err == nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
