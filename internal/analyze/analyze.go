// Package analyze turns raw content items into normalized analysis contexts:
// keywords, hashtags, mentions, sentiment, and author stats. Keyword
// augmentation and sentiment classification are delegated to a completion
// provider; either call failing degrades the context, never the sweep.
package analyze

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/engage/internal/brain"
	"github.com/abelbrown/engage/internal/logging"
	"github.com/abelbrown/engage/internal/persona"
	"github.com/abelbrown/engage/internal/social"
)

// Sentiment classification of a content item
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentUnknown  Sentiment = "unknown"
)

// ParseSentiment validates a raw classifier answer against the enum.
// Anything unrecognized degrades to unknown.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNeutral:
		return SentimentNeutral
	case SentimentNegative:
		return SentimentNegative
	default:
		return SentimentUnknown
	}
}

// Author summarizes the item's author for scoring
type Author struct {
	ID        string
	Followers int
	Verified  bool
}

// Context is the normalized analysis of one content item.
// Created fresh per evaluation; never persisted.
type Context struct {
	Text          string
	Keywords      []string // lowercased, deduplicated
	Hashtags      []string // lowercased
	Mentions      []string
	Sentiment     Sentiment
	Author        Author
	IsReplyToSelf bool
}

// Extractor builds analysis contexts using a completion provider for
// keyword augmentation and sentiment classification.
type Extractor struct {
	completer brain.Provider
	profile   *persona.Profile
	// targets are the configured keywords matched directly against the text
	targets []string
}

// NewExtractor creates an Extractor. targets are the policy's target keywords.
func NewExtractor(completer brain.Provider, profile *persona.Profile, targets []string) *Extractor {
	return &Extractor{
		completer: completer,
		profile:   profile,
		targets:   targets,
	}
}

// Extract analyzes one item. The keyword and sentiment prompts run
// concurrently; a failed call degrades its part of the result.
func (e *Extractor) Extract(ctx context.Context, item social.Item) Context {
	text := strings.ToLower(item.Text)

	// Direct keyword matching never depends on the provider
	direct := e.directKeywords(text)

	var aiKeywords []string
	sentiment := SentimentUnknown

	var g errgroup.Group
	g.Go(func() error {
		kws, err := e.extractKeywords(ctx, text)
		if err != nil {
			logging.Warn("AI keyword extraction failed", "item", item.ID, "error", err)
			return nil
		}
		aiKeywords = kws
		return nil
	})
	g.Go(func() error {
		s, err := e.classifySentiment(ctx, text)
		if err != nil {
			logging.Warn("Sentiment analysis failed", "item", item.ID, "error", err)
			return nil
		}
		sentiment = s
		return nil
	})
	_ = g.Wait() // both goroutines degrade instead of failing

	return Context{
		Text:      item.Text,
		Keywords:  mergeKeywords(direct, aiKeywords),
		Hashtags:  lowerAll(item.Hashtags),
		Mentions:  item.Mentions,
		Sentiment: sentiment,
		Author: Author{
			ID:        item.AuthorID,
			Followers: item.AuthorFollowers,
			Verified:  item.AuthorVerified,
		},
		IsReplyToSelf: item.InReplyToUserID != "" && item.InReplyToUserID == e.profile.UserID,
	}
}

// directKeywords returns configured target keywords and persona topics that
// appear in the lowercased text.
func (e *Extractor) directKeywords(text string) []string {
	var matched []string
	seen := make(map[string]bool)
	for _, kw := range append(append([]string{}, e.targets...), e.profile.Topics...) {
		lower := strings.ToLower(kw)
		if seen[lower] {
			continue
		}
		if strings.Contains(text, lower) {
			matched = append(matched, lower)
			seen[lower] = true
		}
	}
	return matched
}

// extractKeywords asks the provider for additional topic keywords.
func (e *Extractor) extractKeywords(ctx context.Context, text string) ([]string, error) {
	prompt := fmt.Sprintf(
		"As %s, analyze this text and extract technical keywords related to:\n%s\n\nText: %q\nReturn only relevant technical keywords, separated by commas.",
		e.profile.Name,
		strings.Join(e.profile.Topics, ", "),
		text,
	)

	resp, err := e.completer.Generate(ctx, brain.Request{
		UserPrompt:  prompt,
		MaxTokens:   50,
		Temperature: 0.3,
		Stop:        []string{"\n", "Keywords:"},
	})
	if err != nil {
		return nil, err
	}

	var keywords []string
	for _, k := range strings.Split(resp.Content, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords, nil
}

// classifySentiment asks the provider for a one-word sentiment judgment.
func (e *Extractor) classifySentiment(ctx context.Context, text string) (Sentiment, error) {
	prompt := fmt.Sprintf(
		"As %s, a technical expert, analyze the sentiment of this text.\nConsider technical accuracy and innovation when determining sentiment.\nRespond with exactly one word: positive, negative, neutral, or unknown.\n\nText: %q",
		e.profile.Name,
		text,
	)

	resp, err := e.completer.Generate(ctx, brain.Request{
		UserPrompt:  prompt,
		MaxTokens:   10,
		Temperature: 0.1,
		Stop:        []string{"\n", "Sentiment:"},
	})
	if err != nil {
		return SentimentUnknown, err
	}
	return ParseSentiment(resp.Content), nil
}

// mergeKeywords unions the two sources, case-insensitively deduplicated,
// in stable sorted order.
func mergeKeywords(direct, ai []string) []string {
	seen := make(map[string]bool, len(direct)+len(ai))
	var merged []string
	for _, k := range append(append([]string{}, direct...), ai...) {
		k = strings.ToLower(k)
		if !seen[k] {
			seen[k] = true
			merged = append(merged, k)
		}
	}
	sort.Strings(merged)
	return merged
}

func lowerAll(ss []string) []string {
	if ss == nil {
		return nil
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}
