package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/engage/internal/logging"
)

// Client talks to the content service's v2-style REST API.
type Client struct {
	endpoint string
	bearer   string
	client   *http.Client
	limiter  *rate.Limiter

	// topics broaden every search query for better recall
	topics []string
	// selfHandle is excluded from search results
	selfHandle string
}

// NewClient creates a Client. requestsPerMinute paces all outbound calls;
// timeout bounds each individual request.
func NewClient(endpoint, bearer string, requestsPerMinute int, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = "https://api.x.com/2"
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	interval := time.Minute / time.Duration(requestsPerMinute)
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		bearer:   bearer,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// WithIdentity sets the agent's own handle (excluded from searches) and the
// persona topics used to broaden queries. Returns the client for chaining.
func (c *Client) WithIdentity(selfHandle string, topics []string) *Client {
	c.selfHandle = selfHandle
	c.topics = topics
	return c
}

// searchResponse mirrors the recent-search payload. Engagement counts and
// entities are optional in the wire format; absent values decode to zero.
type searchResponse struct {
	Data []struct {
		ID              string    `json:"id"`
		Text            string    `json:"text"`
		AuthorID        string    `json:"author_id"`
		CreatedAt       time.Time `json:"created_at"`
		InReplyToUserID string    `json:"in_reply_to_user_id"`
		PublicMetrics   struct {
			LikeCount   int `json:"like_count"`
			RepostCount int `json:"retweet_count"`
			ReplyCount  int `json:"reply_count"`
		} `json:"public_metrics"`
		Entities struct {
			Hashtags []struct {
				Tag string `json:"tag"`
			} `json:"hashtags"`
			Mentions []struct {
				Username string `json:"username"`
			} `json:"mentions"`
		} `json:"entities"`
		ReferencedTweets []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"referenced_tweets"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID            string `json:"id"`
			Username      string `json:"username"`
			Verified      bool   `json:"verified"`
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
			} `json:"public_metrics"`
		} `json:"users"`
	} `json:"includes"`
}

// Search implements Searcher. The query is expanded with the first five
// persona topics to broaden recall before being sent.
func (c *Client) Search(ctx context.Context, query string, maxResults int, recent bool) ([]Item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := c.expandQuery(query)

	params := url.Values{}
	params.Set("query", q)
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("tweet.fields", "author_id,created_at,public_metrics,entities,in_reply_to_user_id,referenced_tweets")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "public_metrics,verified")
	if recent {
		params.Set("sort_order", "recency")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/tweets/search/recent?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logging.Error("Search API error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("search API error (status %d): %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	return convertSearchResponse(sr), nil
}

// expandQuery ORs the base query with quoted persona topics (first five, to
// keep the query under length limits) and excludes reposts and self.
func (c *Client) expandQuery(base string) string {
	topics := c.topics
	if len(topics) > 5 {
		topics = topics[:5]
	}

	quoted := make([]string, 0, len(topics))
	for _, t := range topics {
		quoted = append(quoted, `"`+t+`"`)
	}

	q := "(" + base + ")"
	if len(quoted) > 0 {
		q += " OR (" + strings.Join(quoted, " OR ") + ")"
	}
	q += " -is:retweet"
	if c.selfHandle != "" {
		q += " -from:" + c.selfHandle
	}
	return q
}

// convertSearchResponse flattens the wire payload into typed items.
func convertSearchResponse(sr searchResponse) []Item {
	type author struct {
		handle    string
		followers int
		verified  bool
	}
	authors := make(map[string]author, len(sr.Includes.Users))
	for _, u := range sr.Includes.Users {
		authors[u.ID] = author{
			handle:    u.Username,
			followers: u.PublicMetrics.FollowersCount,
			verified:  u.Verified,
		}
	}

	items := make([]Item, 0, len(sr.Data))
	for _, d := range sr.Data {
		item := Item{
			ID:              d.ID,
			AuthorID:        d.AuthorID,
			Text:            d.Text,
			Likes:           d.PublicMetrics.LikeCount,
			Reposts:         d.PublicMetrics.RepostCount,
			Replies:         d.PublicMetrics.ReplyCount,
			InReplyToUserID: d.InReplyToUserID,
			CreatedAt:       d.CreatedAt,
		}
		if a, ok := authors[d.AuthorID]; ok {
			item.AuthorHandle = a.handle
			item.AuthorFollowers = a.followers
			item.AuthorVerified = a.verified
		}
		for _, h := range d.Entities.Hashtags {
			item.Hashtags = append(item.Hashtags, strings.ToLower(h.Tag))
		}
		for _, m := range d.Entities.Mentions {
			item.Mentions = append(item.Mentions, m.Username)
		}
		for _, ref := range d.ReferencedTweets {
			if ref.Type == "retweeted" {
				item.IsRepost = true
				break
			}
		}
		items = append(items, item)
	}
	return items
}

// Post implements Poster.
func (c *Client) Post(ctx context.Context, text, inReplyTo string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := map[string]interface{}{
		"text": text,
	}
	if inReplyTo != "" {
		payload["reply"] = map[string]string{
			"in_reply_to_tweet_id": inReplyTo,
		}
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal post request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/tweets", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create post request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logging.Error("Post API error", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("post API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}
