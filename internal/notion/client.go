// Package notion provides the small part of the Notion REST API that comment
// aggregation needs.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// API defaults.
const (
	DefaultBaseURL = "https://api.notion.com/v1"
	DefaultVersion = "2022-06-28"

	// MaxPageSize is the largest page the API returns.
	MaxPageSize = 100

	// DefaultRequestsPerSecond matches the average rate Notion allows per
	// integration.
	DefaultRequestsPerSecond = 3
)

// Client talks to the Notion API on behalf of one bearer credential.
type Client struct {
	baseURL    string
	version    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithVersion sets the Notion-Version header.
func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the sustained request rate. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client authenticated with the given bearer token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		version:    DefaultVersion,
		token:      token,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultRequestsPerSecond),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RetrievePage retrieves a node by ID and decodes it by its object kind.
func (c *Client) RetrievePage(ctx context.Context, id string) (Object, error) {
	var obj Object
	err := c.do(ctx, "retrieve page", http.MethodGet, "/pages/"+url.PathEscape(id), nil, nil, &obj)
	return obj, err
}

// RetrieveDatabase retrieves a database by ID.
func (c *Client) RetrieveDatabase(ctx context.Context, id string) (*Database, error) {
	var obj Object
	if err := c.do(ctx, "retrieve database", http.MethodGet, "/databases/"+url.PathEscape(id), nil, nil, &obj); err != nil {
		return nil, err
	}
	if obj.Database == nil {
		return nil, fmt.Errorf("retrieve database %s: unexpected object kind %q", id, obj.Kind)
	}
	return obj.Database, nil
}

// QueryDatabase returns the first page of records of a database.
func (c *Client) QueryDatabase(ctx context.Context, id string, pageSize int) ([]Page, error) {
	body := map[string]interface{}{"page_size": clampPageSize(pageSize)}
	var resp struct {
		Results []Page `json:"results"`
	}
	if err := c.do(ctx, "query database", http.MethodPost, "/databases/"+url.PathEscape(id)+"/query", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ListBlockChildren returns the first page of child blocks of a block or page.
func (c *Client) ListBlockChildren(ctx context.Context, id string, pageSize int) ([]Block, error) {
	q := url.Values{"page_size": {strconv.Itoa(clampPageSize(pageSize))}}
	var resp struct {
		Results []Block `json:"results"`
	}
	if err := c.do(ctx, "list block children", http.MethodGet, "/blocks/"+url.PathEscape(id)+"/children", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ListComments returns the unresolved comments on a page or block, with
// replies folded into their discussion's first comment.
func (c *Client) ListComments(ctx context.Context, id string) ([]Comment, error) {
	q := url.Values{
		"block_id":  {id},
		"page_size": {strconv.Itoa(MaxPageSize)},
	}
	var resp struct {
		Results []Comment `json:"results"`
	}
	if err := c.do(ctx, "list comments", http.MethodGet, "/comments", q, nil, &resp); err != nil {
		return nil, err
	}
	return foldDiscussions(resp.Results), nil
}

// Search finds pages and databases shared with the integration, most recently
// edited first.
func (c *Client) Search(ctx context.Context, query string) ([]Object, error) {
	body := map[string]interface{}{
		"query": query,
		"sort": map[string]string{
			"direction": "descending",
			"timestamp": "last_edited_time",
		},
		"page_size": MaxPageSize,
	}
	var resp struct {
		Results []Object `json:"results"`
	}
	if err := c.do(ctx, "search", http.MethodPost, "/search", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) (err error) {
	start := time.Now()
	defer func() { observe(op, start, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", op, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.log.Debug().Str("op", op).Str("path", path).Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).Msg("notion request")

	if resp.StatusCode != http.StatusOK {
		return decodeError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func decodeError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	re := &RemoteError{}
	if err := json.Unmarshal(data, re); err != nil || re.Message == "" {
		re.Message = string(bytes.TrimSpace(data))
	}
	re.Op = op
	re.Status = resp.StatusCode
	return re
}

func clampPageSize(n int) int {
	if n <= 0 || n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
