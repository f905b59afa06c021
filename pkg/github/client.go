package github

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

	"ghsampler/pkg/errors"
	"ghsampler/pkg/logger"
	"ghsampler/pkg/ratelimit"
)

// DefaultBaseURL is the production GitHub REST endpoint
const DefaultBaseURL = "https://api.github.com"

// defaultRateLimitCooldown is used when a 403 carries neither an
// X-RateLimit-Reset nor a Retry-After header.
const defaultRateLimitCooldown = 60 * time.Second

// Client is the sole point of upstream I/O. Every request is throttled
// through the limiter, and rate-limit responses are waited out and
// retried transparently; callers only ever see success or a genuine
// failure.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	perPage    int
	limiter    ratelimit.Limiter
	logger     logger.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a new GitHub API client
func NewClient(baseURL, token string, perPage int, timeout time.Duration, limiter ratelimit.Limiter, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		perPage:    perPage,
		limiter:    limiter,
		logger:     log,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// SearchCode issues a code search restricted to files whose size falls
// in [first, last] bytes, sorted by index recency in the given order.
func (c *Client) SearchCode(ctx context.Context, query string, first, last int, order Order) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%s size:%d..%d", query, first, last))
	params.Set("sort", "indexed")
	params.Set("order", string(order))
	params.Set("per_page", strconv.Itoa(c.perPage))

	return c.searchPage(ctx, c.baseURL+"/search/code?"+params.Encode())
}

// NextPage follows a next-page link taken from a prior SearchResponse
func (c *Client) NextPage(ctx context.Context, pageURL string) (*SearchResponse, error) {
	return c.searchPage(ctx, pageURL)
}

// FetchFile retrieves the full file record behind a search item
func (c *Client) FetchFile(ctx context.Context, fileURL string) (*FileContent, error) {
	resp, err := c.get(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var file FileContent
	if err := decodeJSON(resp, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (c *Client) searchPage(ctx context.Context, pageURL string) (*SearchResponse, error) {
	resp, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var search SearchResponse
	if err := decodeJSON(resp, &search); err != nil {
		return nil, err
	}
	search.NextPage = parseNextLink(resp.Header.Get("Link"))
	return &search, nil
}

// get performs a throttled, authorized GET. A 403 is treated as rate
// limiting: the client sleeps out the server-declared cooldown and
// retries the identical request until it gets through. Every attempt
// waits out the declared cooldown, so the loop converges; it is bounded
// only by context cancellation.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	for {
		c.limiter.Wait()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, &errors.Error{
				Type:    errors.ErrorTypeUnknown,
				Message: fmt.Sprintf("failed to create request: %v", err),
			}
		}
		req.Header.Set("Authorization", "token "+c.token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")

		c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
			"url": rawURL,
		})

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &errors.Error{
				Type:    errors.ErrorTypeNetwork,
				Message: fmt.Sprintf("network error: %v", err),
			}
		}

		if resp.StatusCode != http.StatusForbidden {
			return resp, nil
		}

		cooldown := c.rateLimitCooldown(resp)
		resp.Body.Close()

		rateErr := &errors.Error{
			Type:    errors.ErrorTypeRateLimit,
			Message: "rate limit exceeded",
			Code:    resp.StatusCode,
		}
		c.logger.WithError(rateErr).WarnWithFields("retrying after cooldown", map[string]interface{}{
			"url":      rawURL,
			"cooldown": cooldown,
		})

		if err := c.sleep(ctx, cooldown); err != nil {
			return nil, fmt.Errorf("%w: %w", err, rateErr)
		}
	}
}

// rateLimitCooldown derives the wait duration from the response headers:
// X-RateLimit-Reset (epoch seconds) takes precedence, then Retry-After
// (seconds), then a 60s default.
func (c *Client) rateLimitCooldown(resp *http.Response) time.Duration {
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			d := time.Unix(epoch, 0).Sub(c.now())
			if d < 0 {
				d = 0
			}
			return d
		}
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRateLimitCooldown
}

// checkStatus maps non-success statuses to typed errors. Rate limiting
// never reaches this point; it is absorbed by get.
func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return &errors.Error{
			Type:    errors.ErrorTypeAuth,
			Message: "authentication failed, check your GitHub token",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusNotFound:
		return &errors.Error{
			Type:    errors.ErrorTypeNotFound,
			Message: "resource not found",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return &errors.Error{
			Type:    errors.ErrorTypeValidation,
			Message: "upstream rejected the search query",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode >= 500:
		return &errors.Error{
			Type:    errors.ErrorTypeServer,
			Message: "server error",
			Code:    resp.StatusCode,
		}
	default:
		return &errors.Error{
			Type:    errors.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
}

func decodeJSON(resp *http.Response, target interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errors.Error{
			Type:    errors.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}
	if err := json.Unmarshal(body, target); err != nil {
		return &errors.Error{
			Type:    errors.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
		}
	}
	return nil
}

// parseNextLink extracts the rel="next" URL from a Link header,
// e.g. `<https://api.github.com/search/code?page=2>; rel="next", ...`.
func parseNextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		sections := strings.Split(part, ";")
		if len(sections) < 2 {
			continue
		}
		urlPart := strings.Trim(strings.TrimSpace(sections[0]), "<>")
		for _, attr := range sections[1:] {
			if strings.TrimSpace(attr) == `rel="next"` {
				return urlPart
			}
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
