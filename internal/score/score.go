// Package score computes the relevance of a content item from its analysis
// context and engagement metrics.
//
// Design principles:
// - Scorers are stateless functions: (context, metrics) -> score
// - Sub-scores are combined by a weighted composite
// - Scorers don't mutate the context; they just score it
package score

import (
	"math"
	"strings"

	"github.com/abelbrown/engage/internal/analyze"
	"github.com/abelbrown/engage/internal/social"
)

// Scorer produces one relevance sub-score.
// Implementations should be stateless and thread-safe.
type Scorer interface {
	// Name returns a unique identifier for this scorer
	Name() string

	// Score returns a sub-score for the item (higher = more relevant).
	// Sub-scores are nominally in [0, 1] for combinability; the engagement
	// sub-score may exceed 1 for unusually popular items.
	Score(c *analyze.Context, m social.Metrics) float64
}

// Composite combines sub-scorers as a weighted sum, clamped to [0, 1].
// With weights summing to 1.0 the result is a weighted average; the sum is
// deliberately not normalized so a high engagement sub-score can dominate.
type Composite struct {
	name    string
	scorers []Scorer
	weights []float64
}

// NewComposite creates an empty composite scorer
func NewComposite(name string) *Composite {
	return &Composite{name: name}
}

// Add adds a scorer with a weight
func (c *Composite) Add(s Scorer, weight float64) *Composite {
	c.scorers = append(c.scorers, s)
	c.weights = append(c.weights, weight)
	return c
}

func (c *Composite) Name() string { return c.name }

func (c *Composite) Score(ctx *analyze.Context, m social.Metrics) float64 {
	sum := 0.0
	for i, s := range c.scorers {
		sum += s.Score(ctx, m) * c.weights[i]
	}
	return clamp01(sum)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// KeywordScorer scores by overlap between context keywords and the
// configured target list.
//
// The denominator is the size of the CONFIGURED target list, not the
// context's keyword count. A short target list therefore inflates the score
// per match; this matches long-observed behavior and must be preserved.
type KeywordScorer struct {
	Targets []string
}

func (k *KeywordScorer) Name() string { return "keyword" }

func (k *KeywordScorer) Score(c *analyze.Context, _ social.Metrics) float64 {
	if len(k.Targets) == 0 {
		return 0
	}

	targetSet := make(map[string]bool, len(k.Targets))
	for _, t := range k.Targets {
		targetSet[strings.ToLower(t)] = true
	}

	matched := 0
	for _, kw := range c.Keywords {
		if targetSet[strings.ToLower(kw)] {
			matched++
		}
	}
	return float64(matched) / float64(len(k.Targets))
}

// InfluenceScorer scores by author reach on a log scale, normalized against
// a configured follower ceiling.
type InfluenceScorer struct {
	MaxFollowers int
}

func (i *InfluenceScorer) Name() string { return "influence" }

func (i *InfluenceScorer) Score(c *analyze.Context, _ social.Metrics) float64 {
	if i.MaxFollowers <= 1 {
		return 0
	}
	return math.Log10(float64(c.Author.Followers)+1) / math.Log10(float64(i.MaxFollowers)+1)
}

// SentimentScorer maps the sentiment classification to a fixed score
type SentimentScorer struct{}

func (s *SentimentScorer) Name() string { return "sentiment" }

func (s *SentimentScorer) Score(c *analyze.Context, _ social.Metrics) float64 {
	switch c.Sentiment {
	case analyze.SentimentPositive:
		return 1.0
	case analyze.SentimentNeutral:
		return 0.7
	case analyze.SentimentNegative:
		return 0.3
	default:
		return 0.5
	}
}

// EngagementScorer scores by weighted engagement counts against a divisor.
// Unbounded above 1.0: high-engagement items are allowed to dominate the
// weighted sum past the nominal ceiling.
type EngagementScorer struct {
	LikeWeight   float64
	RepostWeight float64
	ReplyWeight  float64
	Divisor      float64
}

func (e *EngagementScorer) Name() string { return "engagement" }

func (e *EngagementScorer) Score(_ *analyze.Context, m social.Metrics) float64 {
	if e.Divisor <= 0 {
		return 0
	}
	weighted := float64(m.Likes)*e.LikeWeight +
		float64(m.Reposts)*e.RepostWeight +
		float64(m.Replies)*e.ReplyWeight
	return weighted / e.Divisor
}

// RelationScorer scores by the item's relationship to the agent:
// mentioned directly, shares a target hashtag, or replies to the agent.
type RelationScorer struct {
	SelfHandle     string
	TargetHashtags []string
}

func (r *RelationScorer) Name() string { return "relation" }

func (r *RelationScorer) Score(c *analyze.Context, _ social.Metrics) float64 {
	score := 0.0

	for _, m := range c.Mentions {
		if strings.EqualFold(m, r.SelfHandle) {
			score += 0.5
			break
		}
	}

	targetSet := make(map[string]bool, len(r.TargetHashtags))
	for _, t := range r.TargetHashtags {
		targetSet[strings.ToLower(t)] = true
	}
	for _, h := range c.Hashtags {
		if targetSet[strings.ToLower(h)] {
			score += 0.3
			break
		}
	}

	if c.IsReplyToSelf {
		score += 0.2
	}

	return math.Min(score, 1.0)
}

// ConstantScorer always returns the same score (useful for testing/baseline)
type ConstantScorer struct {
	Value float64
}

func (cs *ConstantScorer) Name() string { return "constant" }

func (cs *ConstantScorer) Score(_ *analyze.Context, _ social.Metrics) float64 {
	return cs.Value
}
