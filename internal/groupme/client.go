// Package groupme is a rate-limited client for the GroupMe v3 API.
package groupme

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

	"github.com/cenkalti/backoff/v4"
	"github.com/spaceisawaste/groupme-backup/internal/ratelimit"
	"go.uber.org/zap"
)

// maxPageSize is the API's hard cap on messages per request.
const maxPageSize = 100

// RetryPolicy controls the transient-failure retry loop.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// ClientConfig holds the client's connection settings.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retry   RetryPolicy
}

// Client talks to the GroupMe API. All requests pass through the shared rate
// limiter before hitting the wire; transient failures (429, 5xx, network) are
// retried with exponential backoff, auth failures are not.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *ratelimit.Limiter
	retry   RetryPolicy
	logger  *zap.Logger
}

// New creates a client. limiter is shared across all concurrent callers.
func New(cfg ClientConfig, limiter *ratelimit.Limiter, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		limiter: limiter,
		retry:   cfg.Retry,
		logger:  logger,
	}
}

// MessageQuery selects a message page. Exactly one cursor should be set.
// AfterID pages ascend (oldest first); BeforeID and SinceID descend
// (newest first), matching the platform's native behavior.
type MessageQuery struct {
	BeforeID string
	SinceID  string
	AfterID  string
	Limit    int
}

// Messages fetches one page of messages for a group.
func (c *Client) Messages(ctx context.Context, groupID string, q MessageQuery) ([]Message, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	switch {
	case q.BeforeID != "":
		params.Set("before_id", q.BeforeID)
	case q.SinceID != "":
		params.Set("since_id", q.SinceID)
	case q.AfterID != "":
		params.Set("after_id", q.AfterID)
	}

	var body struct {
		Messages []Message `json:"messages"`
	}
	if err := c.get(ctx, "/groups/"+groupID+"/messages", params, &body); err != nil {
		return nil, err
	}

	c.logger.Debug("fetched messages",
		zap.String("group_id", groupID),
		zap.Int("count", len(body.Messages)),
		zap.String("before_id", q.BeforeID),
		zap.String("since_id", q.SinceID),
		zap.String("after_id", q.AfterID),
	)
	return body.Messages, nil
}

// GetGroup fetches a single group with its membership.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	var g Group
	if err := c.get(ctx, "/groups/"+groupID, nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroups fetches all groups visible to the token, paging until a short
// or empty page.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var all []Group
	for page := 1; ; page++ {
		params := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(maxPageSize)},
			"omit":     {"memberships"},
		}
		var groups []Group
		if err := c.get(ctx, "/groups", params, &groups); err != nil {
			return nil, err
		}
		if len(groups) == 0 {
			break
		}
		all = append(all, groups...)
		c.logger.Debug("fetched groups page", zap.Int("page", page), zap.Int("count", len(groups)))
		if len(groups) < maxPageSize {
			break
		}
	}
	return all, nil
}

// envelope is the standard GroupMe response wrapper.
type envelope struct {
	Response json.RawMessage `json:"response"`
	Meta     struct {
		Code   int      `json:"code"`
		Errors []string `json:"errors"`
	} `json:"meta"`
}

// get performs a rate-limited GET with retries, decoding the response
// envelope into out. HTTP 304 leaves out untouched (no new data).
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.token)
	reqURL := c.baseURL + path + "?" + params.Encode()

	op := func() error {
		if err := c.limiter.Acquire(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("request failed, will retry", zap.String("path", path), zap.Error(err))
			return apiError(ErrRemoteUnavailable, 0, err.Error())
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusOK:
			var env envelope
			if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
			if err := json.Unmarshal(env.Response, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response payload: %w", err))
			}
			return nil
		case resp.StatusCode == http.StatusNotModified:
			// No new data.
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(apiError(ErrAuthentication, resp.StatusCode, "invalid or expired access token"))
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(apiError(ErrNotFound, resp.StatusCode, path))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			detail := readDetail(resp.Body)
			c.logger.Warn("transient API error, will retry",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
			)
			return apiError(ErrRemoteUnavailable, resp.StatusCode, detail)
		default:
			return backoff.Permanent(apiError(ErrRemoteUnavailable, resp.StatusCode, readDetail(resp.Body)))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.InitialDelay
	bo.Multiplier = c.retry.Multiplier
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.retry.MaxAttempts)), ctx)

	return backoff.Retry(op, policy)
}

func readDetail(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
