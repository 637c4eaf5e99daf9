package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config is the persistent agent configuration
type Config struct {
	// AI Models
	Models ModelConfig `json:"models"`

	// Social content API
	Social SocialConfig `json:"social"`

	// Engagement policy (quotas, cooldowns, thresholds)
	Engagement Policy `json:"engagement"`

	// Relevance scoring weights and normalization
	Scoring Scoring `json:"scoring"`

	// Outbound webhook notifications
	Webhook WebhookConfig `json:"webhook"`

	// PersonaFile is the path to the persona profile JSON
	PersonaFile string `json:"persona_file"`
}

// ModelConfig holds AI model settings
type ModelConfig struct {
	Claude ModelSettings `json:"claude"`
	OpenAI ModelSettings `json:"openai"`
	Gemini ModelSettings `json:"gemini"`
	Ollama ModelSettings `json:"ollama"`
}

// ModelSettings for a single AI provider
type ModelSettings struct {
	Enabled  bool   `json:"enabled"`
	APIKey   string `json:"api_key,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // For Ollama or custom endpoints
	Model    string `json:"model,omitempty"`    // Specific model to use
	Priority int    `json:"priority"`           // Lower = higher priority for fallback
}

// SocialConfig holds content-service API settings
type SocialConfig struct {
	Endpoint    string `json:"endpoint"`
	BearerToken string `json:"bearer_token,omitempty"`
	// RequestsPerMinute paces outbound API calls
	RequestsPerMinute int `json:"requests_per_minute"`
	// TimeoutSeconds bounds each search/post call
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Timeout returns the per-call timeout for social API requests
func (s SocialConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Policy holds engagement rate limits and relevance thresholds
type Policy struct {
	MaxDailyReplies int      `json:"max_daily_replies"`
	CooldownMinutes int      `json:"cooldown_minutes"`
	MinRelevance    float64  `json:"min_relevance_score"`
	ReplyDelayMs    int      `json:"reply_delay_ms"`
	TickMinutes     int      `json:"tick_minutes"`
	TargetKeywords  []string `json:"target_keywords"`
	TargetHashtags  []string `json:"target_hashtags"`
	SearchPageSize  int      `json:"search_page_size"`
}

// Cooldown returns the per-author cooldown duration
func (p Policy) Cooldown() time.Duration {
	return time.Duration(p.CooldownMinutes) * time.Minute
}

// ReplyDelay returns the pause between consecutive replies in one sweep
func (p Policy) ReplyDelay() time.Duration {
	return time.Duration(p.ReplyDelayMs) * time.Millisecond
}

// TickInterval returns the time between engagement sweeps
func (p Policy) TickInterval() time.Duration {
	return time.Duration(p.TickMinutes) * time.Minute
}

// Scoring holds the relevance scoring weights and normalization constants.
// The five weights are expected to sum to 1.0; this is a convention, not
// enforced at runtime.
type Scoring struct {
	KeywordWeight    float64 `json:"keyword_weight"`
	InfluenceWeight  float64 `json:"influence_weight"`
	SentimentWeight  float64 `json:"sentiment_weight"`
	EngagementWeight float64 `json:"engagement_weight"`
	RelationWeight   float64 `json:"relation_weight"`

	InfluenceMaxFollowers int     `json:"influence_max_followers"`
	EngagementDivisor     float64 `json:"engagement_divisor"`
	LikeWeight            float64 `json:"like_weight"`
	RepostWeight          float64 `json:"repost_weight"`
	ReplyWeight           float64 `json:"reply_weight"`
}

// WebhookConfig for outbound lifecycle event delivery
type WebhookConfig struct {
	Endpoint      string            `json:"endpoint,omitempty"`
	Method        string            `json:"method,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	RetryAttempts int               `json:"retry_attempts"`
	BaseDelayMs   int               `json:"base_delay_ms"`
}

// BaseDelay returns the first retry delay; attempt n waits n times this
func (w WebhookConfig) BaseDelay() time.Duration {
	return time.Duration(w.BaseDelayMs) * time.Millisecond
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Models: ModelConfig{
			Claude: ModelSettings{
				Enabled:  true,
				Priority: 1,
				Model:    "claude-sonnet-4-5-20250929",
			},
			OpenAI: ModelSettings{
				Enabled:  false,
				Priority: 2,
				Model:    "gpt-5.2",
			},
			Gemini: ModelSettings{
				Enabled:  false,
				Priority: 3,
				Model:    "gemini-3-flash-preview",
			},
			Ollama: ModelSettings{
				Enabled:  false,
				Priority: 4,
				Endpoint: "http://localhost:11434",
				// Model auto-detected from Ollama if not specified
			},
		},
		Social: SocialConfig{
			Endpoint:          "https://api.x.com/2",
			RequestsPerMinute: 30,
			TimeoutSeconds:    30,
		},
		Engagement: Policy{
			MaxDailyReplies: 50,
			CooldownMinutes: 60,
			MinRelevance:    0.65,
			ReplyDelayMs:    3000,
			TickMinutes:     5,
			TargetKeywords:  []string{"blockchain", "crypto", "superchain", "ai", "tech", "innovation"},
			TargetHashtags:  []string{"technews", "airesearch", "ethereum", "buildeth", "web3"},
			SearchPageSize:  100,
		},
		Scoring: Scoring{
			KeywordWeight:         0.4,
			InfluenceWeight:       0.2,
			SentimentWeight:       0.15,
			EngagementWeight:      0.15,
			RelationWeight:        0.1,
			InfluenceMaxFollowers: 1000000,
			EngagementDivisor:     50,
			LikeWeight:            1,
			RepostWeight:          2,
			ReplyWeight:           3,
		},
		Webhook: WebhookConfig{
			Method:        "POST",
			RetryAttempts: 3,
			BaseDelayMs:   1000,
		},
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".engage", "config.json")
}

// LoadDotEnv loads a .env file from the working directory if present.
// A missing file is not an error.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

// Load reads config from disk, or returns defaults.
// Environment variables fill in keys either way.
func Load() (*Config, error) {
	path := ConfigPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			cfg.AutoPopulateFromEnv()
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.AutoPopulateFromEnv()

	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path := ConfigPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for API keys
}

// AutoPopulateFromEnv fills in API keys and endpoints from environment variables
func (c *Config) AutoPopulateFromEnv() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Models.Claude.APIKey = key
		c.Models.Claude.Enabled = true
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Models.OpenAI.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Models.Gemini.APIKey = key
	}
	if key := os.Getenv("SOCIAL_BEARER_TOKEN"); key != "" {
		c.Social.BearerToken = key
	}
	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		c.Webhook.Endpoint = url
	}
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		if c.Webhook.Headers == nil {
			c.Webhook.Headers = make(map[string]string)
		}
		c.Webhook.Headers["Authorization"] = "Bearer " + secret
	}
	if path := os.Getenv("PERSONA_FILE"); path != "" {
		c.PersonaFile = path
	}
}

// Validate checks that the configuration is usable. The agent must not
// start ticking with an invalid configuration.
func (c *Config) Validate() error {
	p := c.Engagement
	if p.MaxDailyReplies <= 0 {
		return fmt.Errorf("engagement: max_daily_replies must be positive, got %d", p.MaxDailyReplies)
	}
	if p.CooldownMinutes <= 0 {
		return fmt.Errorf("engagement: cooldown_minutes must be positive, got %d", p.CooldownMinutes)
	}
	if p.MinRelevance < 0 || p.MinRelevance > 1 {
		return fmt.Errorf("engagement: min_relevance_score must be in [0,1], got %g", p.MinRelevance)
	}
	if p.TickMinutes <= 0 {
		return fmt.Errorf("engagement: tick_minutes must be positive, got %d", p.TickMinutes)
	}
	if p.SearchPageSize <= 0 {
		return fmt.Errorf("engagement: search_page_size must be positive, got %d", p.SearchPageSize)
	}
	if len(p.TargetKeywords) == 0 {
		return fmt.Errorf("engagement: target_keywords must not be empty")
	}

	s := c.Scoring
	weights := []struct {
		name  string
		value float64
	}{
		{"keyword_weight", s.KeywordWeight},
		{"influence_weight", s.InfluenceWeight},
		{"sentiment_weight", s.SentimentWeight},
		{"engagement_weight", s.EngagementWeight},
		{"relation_weight", s.RelationWeight},
	}
	sum := 0.0
	for _, w := range weights {
		if w.value < 0 {
			return fmt.Errorf("scoring: %s must not be negative, got %g", w.name, w.value)
		}
		sum += w.value
	}
	if sum == 0 {
		return fmt.Errorf("scoring: weights must not all be zero")
	}
	if s.InfluenceMaxFollowers <= 1 {
		return fmt.Errorf("scoring: influence_max_followers must be > 1, got %d", s.InfluenceMaxFollowers)
	}
	if s.EngagementDivisor <= 0 {
		return fmt.Errorf("scoring: engagement_divisor must be positive, got %g", s.EngagementDivisor)
	}

	if c.Webhook.Endpoint != "" && c.Webhook.RetryAttempts < 1 {
		return fmt.Errorf("webhook: retry_attempts must be at least 1, got %d", c.Webhook.RetryAttempts)
	}

	return nil
}
