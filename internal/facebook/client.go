// Package facebook provides a client for the Facebook Graph API.
package facebook

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

	"github.com/gauthierbraillon/infographic/internal/feed"
	"github.com/gauthierbraillon/infographic/pkg/oauth"
)

const (
	// DefaultBaseURL is the versioned Graph API endpoint.
	DefaultBaseURL = "https://graph.facebook.com/v2.5"
	// DefaultFeedLimit is the number of stories requested per feed.
	DefaultFeedLimit = 200

	defaultProfileFields = "id,name"
	defaultFeedFields    = "id,name,type,message,status_type,created_time,from,likes{id,name}"

	// createdTimeLayout is the Graph API timestamp format, e.g. 2016-01-02T15:04:05+0000.
	createdTimeLayout = "2006-01-02T15:04:05-0700"

	maxFeedPages = 20
)

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithFeedFields overrides the post fields requested from the feed edge.
func WithFeedFields(fields string) ClientOption {
	return func(c *Client) {
		c.feedFields = fields
	}
}

// Client is a Graph API client acting on behalf of one user.
type Client struct {
	token      *oauth.Token
	baseURL    string
	feedFields string
	httpClient HTTPClient
}

// NewClient creates a new Graph API client with the given OAuth token.
func NewClient(token *oauth.Token, opts ...ClientOption) *Client {
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		feedFields: defaultFeedFields,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchProfile retrieves the authenticated user.
func (c *Client) FetchProfile(ctx context.Context) (feed.User, error) {
	q := url.Values{}
	q.Set("fields", defaultProfileFields)

	body, err := c.doRequest(ctx, c.baseURL+"/me?"+q.Encode())
	if err != nil {
		return feed.User{}, err
	}

	var response userResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return feed.User{}, fmt.Errorf("failed to parse profile response: %w", err)
	}

	user, ok := response.toUser()
	if !ok {
		return feed.User{}, fmt.Errorf("profile response has invalid user id %q", response.ID)
	}
	return user, nil
}

// FetchFeed retrieves up to limit stories from the authenticated user's feed,
// following pagination. A limit of zero or less uses DefaultFeedLimit.
// Stories with an unknown type are dropped; unparseable timestamps and ids are
// left out of the story.
func (c *Client) FetchFeed(ctx context.Context, limit int) ([]feed.Post, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", c.feedFields)
	next := c.baseURL + "/me/feed?" + q.Encode()

	posts := make([]feed.Post, 0)
	for page := 0; next != "" && page < maxFeedPages && len(posts) < limit; page++ {
		body, err := c.doRequest(ctx, next)
		if err != nil {
			return nil, err
		}

		var response feedResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("failed to parse feed response: %w", err)
		}

		for _, item := range response.Data {
			if post, ok := item.toPost(); ok {
				posts = append(posts, post)
			}
		}

		next = ""
		if response.Paging.Next != "" && c.sameOrigin(response.Paging.Next) {
			next = response.Paging.Next
		}
	}

	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// sameOrigin reports whether link points at the configured API host, so the
// token is never sent elsewhere.
func (c *Client) sameOrigin(link string) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Scheme == base.Scheme && u.Host == base.Host
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token.AccessToken))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Facebook API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleAPIError(resp.StatusCode)
	}

	return body, nil
}

// API response types (private - implementation detail)

type userResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (u userResponse) toUser() (feed.User, bool) {
	id, err := strconv.ParseInt(u.ID, 10, 64)
	if err != nil {
		return feed.User{}, false
	}
	return feed.User{ID: id, Name: u.Name}, true
}

type feedResponse struct {
	Data   []postResponse `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type postResponse struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	From        *userResponse `json:"from"`
	Message     string        `json:"message"`
	StatusType  string        `json:"status_type"`
	CreatedTime string        `json:"created_time"`
	Likes       *struct {
		Data []userResponse `json:"data"`
	} `json:"likes"`
}

func (p postResponse) toPost() (feed.Post, bool) {
	postType, err := feed.ParsePostType(p.Type)
	if err != nil {
		return feed.Post{}, false
	}

	post := feed.Post{
		ID:         p.ID,
		Type:       postType,
		Message:    p.Message,
		StatusType: p.StatusType,
		Likes:      make([]feed.User, 0),
	}

	if p.From != nil {
		if author, ok := p.From.toUser(); ok {
			post.Author = &author
		}
	}

	if p.CreatedTime != "" {
		if created, err := time.Parse(createdTimeLayout, p.CreatedTime); err == nil {
			post.CreatedAt = &created
		}
	}

	if p.Likes != nil {
		for _, l := range p.Likes.Data {
			if liker, ok := l.toUser(); ok {
				post.Likes = append(post.Likes, liker)
			}
		}
	}

	return post, true
}

func (c *Client) handleAPIError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("Facebook API authentication failed - please run 'infographic auth' to log in again")
	case http.StatusForbidden:
		return fmt.Errorf("Facebook API access denied - check the permissions granted to the app")
	case http.StatusTooManyRequests:
		return fmt.Errorf("Facebook API rate limit exceeded - please try again later")
	case http.StatusServiceUnavailable:
		return fmt.Errorf("Facebook API temporarily unavailable - please try again in a few minutes")
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("Facebook API server error - please try again later")
	default:
		return fmt.Errorf("Facebook API error (status %d) - please try again", statusCode)
	}
}
