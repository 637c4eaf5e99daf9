// Package respond generates reply text for a content item in the persona's
// voice. Generation is delegated to a completion provider; on failure the
// generator falls back to the persona's own example posts.
package respond

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/abelbrown/engage/internal/analyze"
	"github.com/abelbrown/engage/internal/brain"
	"github.com/abelbrown/engage/internal/logging"
	"github.com/abelbrown/engage/internal/persona"
)

// MaxReplyLength is the hard cap on reply text, in runes
const MaxReplyLength = 280

// truncationMarker terminates replies that were cut at the length cap
const truncationMarker = "..."

// maxPromptExamples is how many persona example posts are embedded in the
// generation prompt
const maxPromptExamples = 3

// Generator produces reply text from an analysis context
type Generator struct {
	completer brain.Provider
	profile   *persona.Profile

	// intn picks the fallback example; injectable for tests
	intn func(n int) int
}

// NewGenerator creates a Generator
func NewGenerator(completer brain.Provider, profile *persona.Profile) *Generator {
	return &Generator{
		completer: completer,
		profile:   profile,
		intn:      rand.Intn,
	}
}

// WithPicker overrides the fallback example picker. For tests.
func (g *Generator) WithPicker(intn func(n int) int) *Generator {
	g.intn = intn
	return g
}

// Generate returns reply text for the context, or ok=false when no reply
// should be sent. The result never exceeds MaxReplyLength runes; truncated
// text ends with the truncation marker exactly at the cap.
func (g *Generator) Generate(ctx context.Context, c analyze.Context) (string, bool) {
	relevant := g.matchingExamples(c.Keywords)

	resp, err := g.completer.Generate(ctx, brain.Request{
		UserPrompt:  g.buildPrompt(c, relevant),
		MaxTokens:   100,
		Temperature: 0.7,
		Stop:        []string{"\n", "Response:"},
	})
	if err != nil {
		logging.Warn("Response generation failed, falling back to example posts", "error", err)
		return g.fallback(relevant)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", false
	}
	return Truncate(text), true
}

// buildPrompt embeds the persona, style guidelines, the analysis context,
// and up to three matching example posts in declared order.
func (g *Generator) buildPrompt(c analyze.Context, relevant []string) string {
	if len(relevant) > maxPromptExamples {
		relevant = relevant[:maxPromptExamples]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n\n", g.profile.Name, g.profile.System)
	fmt.Fprintf(&b, "Style guidelines:\n%s\n\n", strings.Join(g.profile.Style.Post, "\n"))
	fmt.Fprintf(&b, "Post context:\n- Keywords: %s\n- Hashtags: %s\n- Sentiment: %s\n- Text: %q\n\n",
		strings.Join(c.Keywords, ", "),
		strings.Join(c.Hashtags, ", "),
		c.Sentiment,
		c.Text,
	)
	if len(relevant) > 0 {
		fmt.Fprintf(&b, "Example posts for reference:\n%s\n\n", strings.Join(relevant, "\n"))
	}
	fmt.Fprintf(&b, "Generate a technical, insightful response (max %d chars) that matches your character's style and expertise.", MaxReplyLength)
	return b.String()
}

// matchingExamples returns persona example posts containing any of the
// context keywords, in the persona's declared order.
func (g *Generator) matchingExamples(keywords []string) []string {
	var matched []string
	for _, post := range g.profile.PostExamples {
		lower := strings.ToLower(post)
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched = append(matched, post)
				break
			}
		}
	}
	return matched
}

// fallback picks a pseudo-random matching example post, or reports that no
// reply should be sent.
func (g *Generator) fallback(relevant []string) (string, bool) {
	if len(relevant) == 0 {
		return "", false
	}
	return Truncate(relevant[g.intn(len(relevant))]), true
}

// Truncate enforces the reply length cap, rune-aware. Text that is cut ends
// with the truncation marker and is exactly MaxReplyLength runes long.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxReplyLength {
		return s
	}
	keep := MaxReplyLength - len([]rune(truncationMarker))
	return string(runes[:keep]) + truncationMarker
}
