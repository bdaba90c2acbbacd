package bsky

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"skygent.dev/skygent/internal/errs"
)

// endpointPaths maps a SourceKind to its XRPC method name.
var endpointPaths = map[SourceKind]string{
	SourceTimeline:      "app.bsky.feed.getTimeline",
	SourceFeed:          "app.bsky.feed.getFeed",
	SourceList:          "app.bsky.feed.getListFeed",
	SourceAuthor:        "app.bsky.feed.getAuthorFeed",
	SourceThread:        "app.bsky.feed.getPostThread",
	SourceNotifications: "app.bsky.notification.listNotifications",
}

// paramKey names the query parameter a source's selector is passed under.
var paramKey = map[SourceKind]string{
	SourceFeed:   "feed",
	SourceList:   "list",
	SourceAuthor: "actor",
	SourceThread: "uri",
}

// Client is a minimal AT Protocol XRPC HTTP client implementing PullSource
// against a PDS/AppView's public read endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
}

// NewClient builds a Client against baseURL (e.g. "https://bsky.social").
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Authenticate sets the bearer token used for subsequent requests. The
// engine core only ever sees a resolved Credentials value, never a raw
// session token long-term; callers typically call this once at startup
// after exchanging Credentials via createSession.
func (c *Client) Authenticate(token string) { c.authToken = token }

type feedResponse struct {
	Feed   []RawFeedViewPost `json:"feed"`
	Cursor string            `json:"cursor,omitempty"`
}

type notificationsResponse struct {
	Notifications []RawNotification `json:"notifications"`
	Cursor        string            `json:"cursor,omitempty"`
}

// Fetch implements PullSource.
func (c *Client) Fetch(ctx context.Context, kind SourceKind, param, cursor string, limit int) (Page, error) {
	method, ok := endpointPaths[kind]
	if !ok {
		return Page{}, errs.NewCliInputError(fmt.Sprintf("unsupported pull source %q", kind))
	}

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if key, ok := paramKey[kind]; ok && param != "" {
		q.Set(key, param)
	}

	reqURL := fmt.Sprintf("%s/xrpc/%s?%s", c.baseURL, method, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Page{}, errs.NewBskyError(method, 0, err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, errs.NewBskyError(method, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, errs.NewBskyError(method, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if kind == SourceNotifications {
		var nr notificationsResponse
		if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
			return Page{}, errs.NewParseError("source", method, err)
		}
		posts := make([]*Post, 0, len(nr.Notifications))
		for _, raw := range nr.Notifications {
			p, err := NormalizeNotification(raw)
			if err != nil {
				return Page{}, err
			}
			posts = append(posts, p)
		}
		return Page{Posts: posts, NextCursor: nr.Cursor}, nil
	}

	var fr feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return Page{}, errs.NewParseError("source", method, err)
	}
	posts := make([]*Post, 0, len(fr.Feed))
	for _, raw := range fr.Feed {
		p, err := NormalizeFeedViewPost(raw)
		if err != nil {
			return Page{}, err
		}
		posts = append(posts, p)
	}
	return Page{Posts: posts, NextCursor: fr.Cursor}, nil
}
