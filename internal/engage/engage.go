// Package engage runs the engagement loop: periodically sweep the content
// stream for candidate items, score them, and reply to the ones that clear
// the relevance threshold and the rate limits.
package engage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/abelbrown/engage/internal/analyze"
	"github.com/abelbrown/engage/internal/config"
	"github.com/abelbrown/engage/internal/gate"
	"github.com/abelbrown/engage/internal/hook"
	"github.com/abelbrown/engage/internal/logging"
	"github.com/abelbrown/engage/internal/persona"
	"github.com/abelbrown/engage/internal/respond"
	"github.com/abelbrown/engage/internal/score"
	"github.com/abelbrown/engage/internal/social"
	"github.com/abelbrown/engage/internal/store"
)

// History persists dispatched replies. Satisfied by *store.Store; may be nil
// when persistence is disabled.
type History interface {
	SaveEngagement(e store.Engagement) error
}

// Loop coordinates the periodic engagement sweep.
// Create with NewLoop, run with Start, shut down by canceling the context
// and calling Wait.
type Loop struct {
	policy    config.Policy
	profile   *persona.Profile
	searcher  social.Searcher
	poster    social.Poster
	extractor *analyze.Extractor
	scorer    score.Scorer
	gate      *gate.Controller
	generator *respond.Generator
	history   History
	notifier  *hook.Notifier

	wg sync.WaitGroup

	// sleep pauses between replies; injectable for tests
	sleep func(ctx context.Context, d time.Duration)
}

// NewLoop wires up the engagement loop
func NewLoop(
	policy config.Policy,
	profile *persona.Profile,
	searcher social.Searcher,
	poster social.Poster,
	extractor *analyze.Extractor,
	scorer score.Scorer,
	ctrl *gate.Controller,
	generator *respond.Generator,
	history History,
	notifier *hook.Notifier,
) *Loop {
	return &Loop{
		policy:    policy,
		profile:   profile,
		searcher:  searcher,
		poster:    poster,
		extractor: extractor,
		scorer:    scorer,
		gate:      ctrl,
		generator: generator,
		history:   history,
		notifier:  notifier,
		sleep:     sleepCtx,
	}
}

// WithSleeper overrides the inter-reply pause. For tests.
func (l *Loop) WithSleeper(sleep func(ctx context.Context, d time.Duration)) *Loop {
	l.sleep = sleep
	return l
}

// Start launches the loop in a background goroutine. The first sweep runs
// immediately; subsequent sweeps run on the policy's tick interval until the
// context is canceled.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		logging.Info("Engagement loop started",
			"tick", l.policy.TickInterval(),
			"max_daily_replies", l.policy.MaxDailyReplies,
			"min_relevance", l.policy.MinRelevance)

		l.runSweep(ctx)

		ticker := time.NewTicker(l.policy.TickInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logging.Info("Engagement loop stopping")
				return
			case <-ticker.C:
				l.runSweep(ctx)
			}
		}
	}()
}

// Wait blocks until the loop goroutine has exited
func (l *Loop) Wait() {
	l.wg.Wait()
}

// runSweep executes one sweep, isolating panics so a bad item can never
// kill the loop.
func (l *Loop) runSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Sweep panicked", "panic", fmt.Sprintf("%v", r))
		}
	}()

	if err := l.sweep(ctx); err != nil {
		logging.Warn("Sweep failed", "error", err)
	}
}

// sweep runs one pass: reset the daily window, search, then evaluate
// candidates in order until the page or the quota is exhausted.
func (l *Loop) sweep(ctx context.Context) error {
	l.gate.ResetIfNewDay()

	if l.gate.QuotaExhausted() {
		logging.Debug("Daily reply quota exhausted, skipping sweep",
			"count", l.gate.DailyCount(), "max", l.policy.MaxDailyReplies)
		return nil
	}

	items, err := l.searcher.Search(ctx, l.buildQuery(), l.policy.SearchPageSize, true)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	logging.Debug("Sweep fetched candidates", "count", len(items))

	replied := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if l.evaluate(ctx, item) {
			replied++
			if l.gate.QuotaExhausted() {
				logging.Info("Daily reply quota reached", "count", l.gate.DailyCount())
				break
			}
			l.sleep(ctx, l.policy.ReplyDelay())
		}
	}

	logging.Debug("Sweep complete", "candidates", len(items), "replied", replied)
	return nil
}

// evaluate runs one candidate through the pipeline and reports whether a
// reply was dispatched.
func (l *Loop) evaluate(ctx context.Context, item social.Item) bool {
	if l.isSelf(item) || item.IsRepost {
		return false
	}

	c := l.extractor.Extract(ctx, item)

	relevance := l.scorer.Score(&c, item.Metrics())
	if relevance < l.policy.MinRelevance {
		return false
	}
	logging.Debug("Candidate cleared relevance threshold",
		"item", item.ID, "author", item.AuthorHandle, "score", relevance)

	if !l.gate.MayEngage(item.AuthorID) {
		logging.Debug("Rate limits block engagement", "item", item.ID, "author", item.AuthorID)
		return false
	}

	reply, ok := l.generator.Generate(ctx, c)
	if !ok {
		logging.Debug("No reply generated", "item", item.ID)
		return false
	}

	if err := l.poster.Post(ctx, reply, item.ID); err != nil {
		logging.Warn("Reply dispatch failed", "item", item.ID, "error", err)
		return false
	}

	l.gate.Record(item.AuthorID)
	logging.Info("Reply posted",
		"item", item.ID, "author", item.AuthorHandle,
		"score", relevance, "daily_count", l.gate.DailyCount())

	if l.history != nil {
		if err := l.history.SaveEngagement(store.Engagement{
			ItemID:   item.ID,
			AuthorID: item.AuthorID,
			Reply:    reply,
			Score:    relevance,
			PostedAt: time.Now().UTC(),
		}); err != nil {
			logging.Warn("Persisting engagement failed", "item", item.ID, "error", err)
		}
	}

	if l.notifier != nil {
		l.notifier.Notify(ctx, l.profile.Name, "reply_posted", map[string]interface{}{
			"item_id":   item.ID,
			"author_id": item.AuthorID,
			"score":     relevance,
		})
	}

	return true
}

// isSelf reports whether the item was authored by the agent itself
func (l *Loop) isSelf(item social.Item) bool {
	if item.AuthorID != "" && item.AuthorID == l.profile.UserID {
		return true
	}
	return strings.EqualFold(item.AuthorHandle, l.profile.Handle)
}

// buildQuery assembles the search query from the policy's target keywords
// and hashtags: quoted keywords OR'd together, hashtags appended as #tags.
func (l *Loop) buildQuery() string {
	terms := make([]string, 0, len(l.policy.TargetKeywords)+len(l.policy.TargetHashtags))
	for _, kw := range l.policy.TargetKeywords {
		terms = append(terms, `"`+kw+`"`)
	}
	for _, tag := range l.policy.TargetHashtags {
		terms = append(terms, "#"+strings.TrimPrefix(tag, "#"))
	}
	return strings.Join(terms, " OR ")
}

// sleepCtx sleeps for d or until the context is canceled
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
