package engage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/engage/internal/analyze"
	"github.com/abelbrown/engage/internal/brain"
	"github.com/abelbrown/engage/internal/config"
	"github.com/abelbrown/engage/internal/gate"
	"github.com/abelbrown/engage/internal/persona"
	"github.com/abelbrown/engage/internal/respond"
	"github.com/abelbrown/engage/internal/score"
	"github.com/abelbrown/engage/internal/social"
	"github.com/abelbrown/engage/internal/store"
)

type fakeSearcher struct {
	items     []social.Item
	err       error
	lastQuery string
	calls     int
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int, _ bool) ([]social.Item, error) {
	f.calls++
	f.lastQuery = query
	return f.items, f.err
}

type fakePoster struct {
	posts []string // item IDs replied to
	err   error
}

func (f *fakePoster) Post(_ context.Context, _, inReplyTo string) error {
	if f.err != nil {
		return f.err
	}
	f.posts = append(f.posts, inReplyTo)
	return nil
}

type fakeCompleter struct {
	content string
	err     error
}

func (f *fakeCompleter) Name() string    { return "fake" }
func (f *fakeCompleter) Available() bool { return f.err == nil }
func (f *fakeCompleter) Generate(_ context.Context, _ brain.Request) (brain.Response, error) {
	if f.err != nil {
		return brain.Response{}, f.err
	}
	return brain.Response{Content: f.content}, nil
}

type memHistory struct {
	saved []store.Engagement
}

func (m *memHistory) SaveEngagement(e store.Engagement) error {
	m.saved = append(m.saved, e)
	return nil
}

func testPolicy() config.Policy {
	return config.Policy{
		MaxDailyReplies: 50,
		CooldownMinutes: 60,
		MinRelevance:    0.65,
		ReplyDelayMs:    0,
		TickMinutes:     5,
		TargetKeywords:  []string{"blockchain", "ai"},
		TargetHashtags:  []string{"web3"},
		SearchPageSize:  100,
	}
}

func testProfile() *persona.Profile {
	return &persona.Profile{
		Name:         "TestBot",
		System:       "A test persona.",
		Handle:       "testbot",
		UserID:       "self-1",
		Topics:       []string{"blockchain"},
		PostExamples: []string{"Blockchain is a ledger."},
	}
}

// newTestLoop wires a loop with a constant relevance score and no-op sleep
func newTestLoop(policy config.Policy, searcher *fakeSearcher, poster *fakePoster, relevance float64, completer brain.Provider) (*Loop, *gate.Controller, *memHistory) {
	profile := testProfile()
	ctrl := gate.NewController(gate.Policy{
		MaxDailyReplies: policy.MaxDailyReplies,
		Cooldown:        policy.Cooldown(),
	})
	history := &memHistory{}
	loop := NewLoop(
		policy, profile,
		searcher, poster,
		analyze.NewExtractor(completer, profile, policy.TargetKeywords),
		&score.ConstantScorer{Value: relevance},
		ctrl,
		respond.NewGenerator(completer, profile),
		history,
		nil,
	).WithSleeper(func(context.Context, time.Duration) {})
	return loop, ctrl, history
}

func item(id, author string) social.Item {
	return social.Item{ID: id, AuthorID: author, AuthorHandle: "user_" + author, Text: "blockchain talk"}
}

func TestSweepRepliesToRelevantCandidates(t *testing.T) {
	searcher := &fakeSearcher{items: []social.Item{item("t1", "a1"), item("t2", "a2")}}
	poster := &fakePoster{}
	loop, ctrl, history := newTestLoop(testPolicy(), searcher, poster, 0.9, &fakeCompleter{content: "reply"})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}

	if len(poster.posts) != 2 {
		t.Fatalf("posted %d replies, want 2", len(poster.posts))
	}
	if ctrl.DailyCount() != 2 {
		t.Errorf("DailyCount() = %d, want 2", ctrl.DailyCount())
	}
	if len(history.saved) != 2 {
		t.Errorf("persisted %d engagements, want 2", len(history.saved))
	}
	if history.saved[0].ItemID != "t1" || history.saved[0].AuthorID != "a1" {
		t.Errorf("persisted engagement = %+v", history.saved[0])
	}
}

func TestSweepSkipsBelowThreshold(t *testing.T) {
	searcher := &fakeSearcher{items: []social.Item{item("t1", "a1")}}
	poster := &fakePoster{}
	loop, ctrl, _ := newTestLoop(testPolicy(), searcher, poster, 0.5, &fakeCompleter{content: "reply"})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if len(poster.posts) != 0 {
		t.Error("below-threshold candidate must not get a reply")
	}
	if ctrl.DailyCount() != 0 {
		t.Error("quota must be untouched by skipped candidates")
	}
}

// mapScorer scores each candidate by its text
type mapScorer struct {
	scores map[string]float64
}

func (m *mapScorer) Name() string { return "map" }
func (m *mapScorer) Score(c *analyze.Context, _ social.Metrics) float64 {
	return m.scores[c.Text]
}

func TestSweepMixedCandidates(t *testing.T) {
	// C1 clears the threshold, C2 falls below it, C3 clears it but shares
	// C1's author and lands inside the cooldown.
	policy := testPolicy()
	policy.MaxDailyReplies = 2

	c1, c2, c3 := item("t1", "a1"), item("t2", "a2"), item("t3", "a1")
	c1.Text, c2.Text, c3.Text = "one", "two", "three"

	searcher := &fakeSearcher{items: []social.Item{c1, c2, c3}}
	poster := &fakePoster{}
	loop, ctrl, _ := newTestLoop(policy, searcher, poster, 0, &fakeCompleter{content: "reply"})
	loop.scorer = &mapScorer{scores: map[string]float64{"one": 0.9, "two": 0.5, "three": 0.8}}

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}

	if len(poster.posts) != 1 || poster.posts[0] != "t1" {
		t.Errorf("posts = %v, want [t1]", poster.posts)
	}
	if got := ctrl.DailyCount(); got != 1 {
		t.Errorf("DailyCount() = %d, want 1", got)
	}
}

func TestSweepEnforcesCooldownWithinOnePage(t *testing.T) {
	// Same author twice, then a fresh author: the second item is blocked by
	// the cooldown stamped by the first.
	searcher := &fakeSearcher{items: []social.Item{
		item("t1", "a1"), item("t2", "a1"), item("t3", "a2"),
	}}
	poster := &fakePoster{}
	loop, _, _ := newTestLoop(testPolicy(), searcher, poster, 0.9, &fakeCompleter{content: "reply"})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}

	want := []string{"t1", "t3"}
	if len(poster.posts) != len(want) {
		t.Fatalf("posts = %v, want %v", poster.posts, want)
	}
	for i := range want {
		if poster.posts[i] != want[i] {
			t.Errorf("posts[%d] = %q, want %q", i, poster.posts[i], want[i])
		}
	}
}

func TestSweepStopsAtDailyQuota(t *testing.T) {
	policy := testPolicy()
	policy.MaxDailyReplies = 1
	searcher := &fakeSearcher{items: []social.Item{item("t1", "a1"), item("t2", "a2")}}
	poster := &fakePoster{}
	loop, ctrl, _ := newTestLoop(policy, searcher, poster, 0.9, &fakeCompleter{content: "reply"})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if len(poster.posts) != 1 {
		t.Fatalf("posted %d replies, want 1", len(poster.posts))
	}
	if !ctrl.QuotaExhausted() {
		t.Error("quota should be exhausted")
	}

	// Next sweep skips the search entirely
	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if searcher.calls != 1 {
		t.Errorf("search calls = %d, want 1 (quota-exhausted sweep must not search)", searcher.calls)
	}
}

func TestSweepSkipsSelfAndReposts(t *testing.T) {
	self := item("t1", "self-1")
	repost := item("t2", "a2")
	repost.IsRepost = true
	searcher := &fakeSearcher{items: []social.Item{self, repost, item("t3", "a3")}}
	poster := &fakePoster{}
	loop, _, _ := newTestLoop(testPolicy(), searcher, poster, 0.9, &fakeCompleter{content: "reply"})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if len(poster.posts) != 1 || poster.posts[0] != "t3" {
		t.Errorf("posts = %v, want [t3]", poster.posts)
	}
}

func TestSweepNoReplyWhenGenerationYieldsNothing(t *testing.T) {
	// Provider down and the item matches no example post: nothing to say.
	it := item("t1", "a1")
	it.Text = "cooking recipes for autumn"
	searcher := &fakeSearcher{items: []social.Item{it}}
	poster := &fakePoster{}
	loop, ctrl, _ := newTestLoop(testPolicy(), searcher, poster, 0.9, &fakeCompleter{err: errors.New("down")})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if len(poster.posts) != 0 {
		t.Error("no reply should be posted when generation yields nothing")
	}
	if ctrl.DailyCount() != 0 {
		t.Error("quota must not be consumed without a dispatched reply")
	}
}

func TestSweepPostFailureDoesNotConsumeQuota(t *testing.T) {
	searcher := &fakeSearcher{items: []social.Item{item("t1", "a1")}}
	poster := &fakePoster{err: errors.New("api error")}
	loop, ctrl, history := newTestLoop(testPolicy(), searcher, poster, 0.9, &fakeCompleter{content: "reply"})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if ctrl.DailyCount() != 0 {
		t.Error("failed dispatch must not consume quota")
	}
	if len(history.saved) != 0 {
		t.Error("failed dispatch must not be persisted")
	}
	// Author must stay engageable for a later retry
	if !ctrl.MayEngage("a1") {
		t.Error("failed dispatch must not stamp a cooldown")
	}
}

func TestSweepSearchErrorIsReturned(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("rate limited")}
	loop, _, _ := newTestLoop(testPolicy(), searcher, &fakePoster{}, 0.9, &fakeCompleter{content: "reply"})

	if err := loop.sweep(context.Background()); err == nil {
		t.Error("sweep() should surface the search error")
	}
}

func TestRunSweepRecoversFromPanic(t *testing.T) {
	loop, _, _ := newTestLoop(testPolicy(), &fakeSearcher{}, &fakePoster{}, 0.9, &fakeCompleter{content: "reply"})
	loop.scorer = nil // force a panic inside the sweep

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("runSweep let a panic escape: %v", r)
		}
	}()
	loop.searcher = &fakeSearcher{items: []social.Item{item("t1", "a1")}}
	loop.runSweep(context.Background())
}

func TestBuildQuery(t *testing.T) {
	loop, _, _ := newTestLoop(testPolicy(), &fakeSearcher{}, &fakePoster{}, 0.9, &fakeCompleter{content: "reply"})

	got := loop.buildQuery()
	want := `"blockchain" OR "ai" OR #web3`
	if got != want {
		t.Errorf("buildQuery() = %q, want %q", got, want)
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	searcher := &fakeSearcher{}
	loop, _, _ := newTestLoop(testPolicy(), searcher, &fakePoster{}, 0.9, &fakeCompleter{content: "reply"})

	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		loop.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}

	if searcher.calls < 1 {
		t.Error("the first sweep should run immediately on start")
	}
}

func TestQueryPassedToSearcher(t *testing.T) {
	searcher := &fakeSearcher{}
	loop, _, _ := newTestLoop(testPolicy(), searcher, &fakePoster{}, 0.9, &fakeCompleter{content: "reply"})

	if err := loop.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if !strings.Contains(searcher.lastQuery, `"blockchain"`) {
		t.Errorf("search query %q missing quoted keyword", searcher.lastQuery)
	}
}
