package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/abelbrown/engage/internal/analyze"
	"github.com/abelbrown/engage/internal/brain"
	"github.com/abelbrown/engage/internal/config"
	"github.com/abelbrown/engage/internal/engage"
	"github.com/abelbrown/engage/internal/gate"
	"github.com/abelbrown/engage/internal/hook"
	"github.com/abelbrown/engage/internal/logging"
	"github.com/abelbrown/engage/internal/persona"
	"github.com/abelbrown/engage/internal/respond"
	"github.com/abelbrown/engage/internal/score"
	"github.com/abelbrown/engage/internal/social"
	"github.com/abelbrown/engage/internal/store"
)

func main() {
	config.LoadDotEnv()

	if err := logging.Init(); err != nil {
		os.Exit(1)
	}
	defer logging.Close()

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Failed to load configuration", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal("Invalid configuration", "error", err)
	}

	profile := loadPersona(cfg)
	if err := profile.Validate(); err != nil {
		logging.Fatal("Invalid persona profile", "error", err)
	}
	logging.Info("Persona loaded", "name", profile.Name, "handle", profile.Handle)

	completer := buildCompleter(cfg)
	if !completer.Available() {
		logging.Warn("No completion provider available, replies will fall back to example posts")
	}

	client := social.NewClient(
		cfg.Social.Endpoint,
		cfg.Social.BearerToken,
		cfg.Social.RequestsPerMinute,
		cfg.Social.Timeout(),
	).WithIdentity(profile.Handle, profile.Topics)

	// Data directory: ~/.engage/
	homeDir, err := os.UserHomeDir()
	if err != nil {
		logging.Fatal("Failed to get home directory", "error", err)
	}
	dataDir := filepath.Join(homeDir, ".engage")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logging.Fatal("Failed to create data directory", "error", err)
	}

	st, err := store.Open(filepath.Join(dataDir, "engage.db"))
	if err != nil {
		logging.Fatal("Failed to open database", "error", err)
	}
	defer st.Close()

	ctrl := gate.NewController(gate.Policy{
		MaxDailyReplies: cfg.Engagement.MaxDailyReplies,
		Cooldown:        cfg.Engagement.Cooldown(),
	})
	restoreRateState(st, ctrl, cfg)

	extractor := analyze.NewExtractor(completer, profile, cfg.Engagement.TargetKeywords)

	composite := score.NewComposite("relevance").
		Add(&score.KeywordScorer{Targets: cfg.Engagement.TargetKeywords}, cfg.Scoring.KeywordWeight).
		Add(&score.InfluenceScorer{MaxFollowers: cfg.Scoring.InfluenceMaxFollowers}, cfg.Scoring.InfluenceWeight).
		Add(&score.SentimentScorer{}, cfg.Scoring.SentimentWeight).
		Add(&score.EngagementScorer{
			LikeWeight:   cfg.Scoring.LikeWeight,
			RepostWeight: cfg.Scoring.RepostWeight,
			ReplyWeight:  cfg.Scoring.ReplyWeight,
			Divisor:      cfg.Scoring.EngagementDivisor,
		}, cfg.Scoring.EngagementWeight).
		Add(&score.RelationScorer{
			SelfHandle:     profile.Handle,
			TargetHashtags: cfg.Engagement.TargetHashtags,
		}, cfg.Scoring.RelationWeight)

	generator := respond.NewGenerator(completer, profile)

	notifier := hook.NewNotifier(
		cfg.Webhook.Endpoint,
		cfg.Webhook.Method,
		cfg.Webhook.Headers,
		cfg.Webhook.RetryAttempts,
		cfg.Webhook.BaseDelay(),
	)

	loop := engage.NewLoop(
		cfg.Engagement, profile,
		client, client,
		extractor, composite, ctrl, generator, st, notifier,
	)

	notifier.Notify(ctx, profile.Name, "agent_started", nil)
	loop.Start(ctx)

	// Block until SIGINT/SIGTERM
	<-ctx.Done()
	loop.Wait()

	// Stopped notification gets a fresh context; the signal context is done
	notifier.Notify(context.Background(), profile.Name, "agent_stopped", nil)
}

// loadPersona loads the configured persona file, or the built-in default
func loadPersona(cfg *config.Config) *persona.Profile {
	if cfg.PersonaFile == "" {
		return persona.Default()
	}
	profile, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		logging.Fatal("Failed to load persona file", "path", cfg.PersonaFile, "error", err)
	}
	return profile
}

// buildCompleter assembles the provider manager from configured models,
// in priority order.
func buildCompleter(cfg *config.Config) *brain.ProviderManager {
	pm := brain.NewProviderManager()

	m := cfg.Models
	if m.Claude.Enabled && m.Claude.APIKey != "" {
		pm.AddProvider(brain.NewClaudeProvider(m.Claude.APIKey, m.Claude.Model))
	}
	if m.OpenAI.Enabled && m.OpenAI.APIKey != "" {
		pm.AddProvider(brain.NewOpenAIProvider(m.OpenAI.APIKey, m.OpenAI.Model))
	}
	if m.Gemini.Enabled && m.Gemini.APIKey != "" {
		pm.AddProvider(brain.NewGeminiProvider(m.Gemini.APIKey, m.Gemini.Model))
	}
	if m.Ollama.Enabled {
		pm.AddProvider(brain.NewOllamaProvider(m.Ollama.Endpoint, m.Ollama.Model))
	}

	logging.Info("Completion providers configured", "available", pm.ListAvailable())
	return pm
}

// restoreRateState rebuilds today's reply count and recent per-author reply
// times from the engagement history, so a restart cannot bypass the limits.
func restoreRateState(st *store.Store, ctrl *gate.Controller, cfg *config.Config) {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	count, err := st.CountSince(dayStart)
	if err != nil {
		logging.Warn("Failed to restore daily reply count", "error", err)
		return
	}

	lastReplies, err := st.LastReplyTimes(now.Add(-cfg.Engagement.Cooldown()))
	if err != nil {
		logging.Warn("Failed to restore cooldown state", "error", err)
		lastReplies = nil
	}

	ctrl.Restore(count, lastReplies)
	logging.Info("Rate state restored", "today_count", count, "cooldowns", len(lastReplies))
}
