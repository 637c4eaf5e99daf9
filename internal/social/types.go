// Package social provides access to the external content service: searching
// the public stream and posting replies. Raw API payloads are converted to
// typed items at this boundary; missing fields default rather than propagate.
package social

import (
	"context"
	"time"
)

// Item is a single piece of content from the stream. Immutable once fetched.
type Item struct {
	ID              string
	AuthorID        string
	AuthorHandle    string
	AuthorFollowers int
	AuthorVerified  bool
	Text            string
	Hashtags        []string
	Mentions        []string
	Likes           int
	Reposts         int
	Replies         int
	// InReplyToUserID is the author the item replies to, empty when not a reply
	InReplyToUserID string
	IsRepost        bool
	CreatedAt       time.Time
}

// Metrics is the engagement view over an Item used by the relevance scorer
type Metrics struct {
	Likes   int
	Reposts int
	Replies int
}

// Metrics returns the item's engagement counts
func (it Item) Metrics() Metrics {
	return Metrics{Likes: it.Likes, Reposts: it.Reposts, Replies: it.Replies}
}

// Searcher queries the content stream
type Searcher interface {
	// Search returns up to maxResults items matching the query.
	// When recent is true, results are ordered newest-first.
	Search(ctx context.Context, query string, maxResults int, recent bool) ([]Item, error)
}

// Poster publishes a reply to the content service
type Poster interface {
	// Post publishes text as a reply to the item with the given ID.
	// An empty inReplyTo posts a standalone item.
	Post(ctx context.Context, text, inReplyTo string) error
}
