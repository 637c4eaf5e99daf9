package analyze

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/abelbrown/engage/internal/brain"
	"github.com/abelbrown/engage/internal/persona"
	"github.com/abelbrown/engage/internal/social"
)

// fakeCompleter answers keyword and sentiment prompts independently
type fakeCompleter struct {
	keywords     string
	keywordErr   error
	sentiment    string
	sentimentErr error
}

func (f *fakeCompleter) Name() string    { return "fake" }
func (f *fakeCompleter) Available() bool { return true }
func (f *fakeCompleter) Generate(_ context.Context, req brain.Request) (brain.Response, error) {
	// The sentiment prompt asks for exactly one word; the keyword prompt
	// asks for a comma-separated list.
	if strings.Contains(req.UserPrompt, "sentiment") {
		if f.sentimentErr != nil {
			return brain.Response{}, f.sentimentErr
		}
		return brain.Response{Content: f.sentiment}, nil
	}
	if f.keywordErr != nil {
		return brain.Response{}, f.keywordErr
	}
	return brain.Response{Content: f.keywords}, nil
}

func testProfile() *persona.Profile {
	return &persona.Profile{
		Name:   "TestBot",
		System: "A test persona.",
		Handle: "testbot",
		UserID: "self-123",
		Topics: []string{"superchain", "zero-knowledge"},
	}
}

func TestExtractMergesDirectAndAIKeywords(t *testing.T) {
	fake := &fakeCompleter{keywords: "rollups, Data Availability", sentiment: "positive"}
	e := NewExtractor(fake, testProfile(), []string{"blockchain"})

	c := e.Extract(context.Background(), social.Item{
		ID:   "1",
		Text: "Blockchain scaling via the superchain is here",
	})

	want := []string{"blockchain", "data availability", "rollups", "superchain"}
	if len(c.Keywords) != len(want) {
		t.Fatalf("Keywords = %v, want %v", c.Keywords, want)
	}
	for i, kw := range want {
		if c.Keywords[i] != kw {
			t.Errorf("Keywords[%d] = %q, want %q", i, c.Keywords[i], kw)
		}
	}
	if c.Sentiment != SentimentPositive {
		t.Errorf("Sentiment = %q, want positive", c.Sentiment)
	}
}

func TestExtractSurvivesProviderFailure(t *testing.T) {
	fake := &fakeCompleter{
		keywordErr:   errors.New("provider down"),
		sentimentErr: errors.New("provider down"),
	}
	e := NewExtractor(fake, testProfile(), []string{"blockchain"})

	c := e.Extract(context.Background(), social.Item{
		ID:   "1",
		Text: "blockchain news of the day",
	})

	// Direct matching still works; sentiment degrades to unknown
	if len(c.Keywords) != 1 || c.Keywords[0] != "blockchain" {
		t.Errorf("Keywords = %v, want [blockchain]", c.Keywords)
	}
	if c.Sentiment != SentimentUnknown {
		t.Errorf("Sentiment = %q, want unknown", c.Sentiment)
	}
}

func TestExtractNormalizesHashtags(t *testing.T) {
	fake := &fakeCompleter{sentiment: "neutral"}
	e := NewExtractor(fake, testProfile(), nil)

	c := e.Extract(context.Background(), social.Item{
		ID:       "1",
		Text:     "hello",
		Hashtags: []string{"Web3", "AIResearch"},
	})

	if c.Hashtags[0] != "web3" || c.Hashtags[1] != "airesearch" {
		t.Errorf("Hashtags = %v, want lowercased", c.Hashtags)
	}
}

func TestExtractReplyToSelf(t *testing.T) {
	fake := &fakeCompleter{sentiment: "neutral"}
	e := NewExtractor(fake, testProfile(), nil)

	tests := []struct {
		name      string
		inReplyTo string
		want      bool
	}{
		{"reply to agent", "self-123", true},
		{"reply to someone else", "other-456", false},
		{"not a reply", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.Extract(context.Background(), social.Item{
				ID:              "1",
				Text:            "hello",
				InReplyToUserID: tt.inReplyTo,
			})
			if c.IsReplyToSelf != tt.want {
				t.Errorf("IsReplyToSelf = %v, want %v", c.IsReplyToSelf, tt.want)
			}
		})
	}
}

func TestExtractCopiesAuthor(t *testing.T) {
	fake := &fakeCompleter{sentiment: "neutral"}
	e := NewExtractor(fake, testProfile(), nil)

	c := e.Extract(context.Background(), social.Item{
		ID:              "1",
		Text:            "hello",
		AuthorID:        "a1",
		AuthorFollowers: 4200,
		AuthorVerified:  true,
	})

	if c.Author.ID != "a1" || c.Author.Followers != 4200 || !c.Author.Verified {
		t.Errorf("Author = %+v", c.Author)
	}
}

func TestParseSentiment(t *testing.T) {
	tests := []struct {
		in   string
		want Sentiment
	}{
		{"positive", SentimentPositive},
		{"  Negative \n", SentimentNegative},
		{"NEUTRAL", SentimentNeutral},
		{"unknown", SentimentUnknown},
		{"meh", SentimentUnknown},
		{"", SentimentUnknown},
	}

	for _, tt := range tests {
		if got := ParseSentiment(tt.in); got != tt.want {
			t.Errorf("ParseSentiment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
