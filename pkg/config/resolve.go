package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/engagebot/internal/llm"
	"github.com/xaenox/engagebot/internal/models"
)

// Built-in action defaults, used when neither the account nor
// automation.action_defaults sets a value.
var builtin = struct {
	minDelay, maxDelay  time.Duration
	maxPerCompetitor    int
	maxRepliesPerKW     int
	maxRetweetsPerKW    int
	maxLikesPerRun      int
	competitorAction    string
	quotePrompt         string
	composeLLM          models.LLMSettings
	threadLLM           models.LLMSettings
	competitorRelevance models.RelevanceFilter
	repliesRelevance    models.RelevanceFilter
	likesRelevance      models.RelevanceFilter
}{
	minDelay:            60 * time.Second,
	maxDelay:            180 * time.Second,
	maxPerCompetitor:    2,
	maxRepliesPerKW:     3,
	maxRetweetsPerKW:    1,
	maxLikesPerRun:      5,
	competitorAction:    string(models.ActionRepost),
	quotePrompt:         "Write an insightful comment to quote this tweet by {user_handle}: '{tweet_text}'. Add relevant hashtags.",
	composeLLM:          models.LLMSettings{MaxTokens: 150, Temperature: floatPtr(0.7)},
	threadLLM:           models.LLMSettings{Provider: llm.ProviderGemini, MaxTokens: 70, Temperature: floatPtr(0.2)},
	competitorRelevance: models.RelevanceFilter{Enabled: true, Min: 0.35},
	repliesRelevance:    models.RelevanceFilter{Enabled: false, Min: 0.35},
	likesRelevance:      models.RelevanceFilter{Enabled: true, Min: 0.3},
}

// first returns the first non-nil value, or def.
func first[T any](def T, vals ...*T) T {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return def
}

func floatPtr(v float64) *float64 { return &v }

// Providers returns the gateway provider configurations in a stable order.
func (c *Config) Providers() []llm.ProviderConfig {
	entry := func(name string, p ProviderConfig) llm.ProviderConfig {
		return llm.ProviderConfig{
			Name:        name,
			APIKey:      p.APIKey,
			Endpoint:    p.Endpoint,
			Deployment:  p.Deployment,
			APIVersion:  p.APIVersion,
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
		}
	}
	return []llm.ProviderConfig{
		entry(llm.ProviderAzure, c.LLM.Azure),
		entry(llm.ProviderOpenAI, c.LLM.OpenAI),
		entry(llm.ProviderGemini, c.LLM.Gemini),
	}
}

// ResolvePolicies builds one immutable policy per configured account.
// Precedence is account action_config, then automation settings, then
// built-in defaults. Policies are not validated here; an invalid policy
// fails only its own account run.
func (c *Config) ResolvePolicies() ([]models.AccountPolicy, error) {
	seen := make(map[string]bool, len(c.Accounts))
	policies := make([]models.AccountPolicy, 0, len(c.Accounts))
	for i, acct := range c.Accounts {
		id := strings.TrimSpace(acct.AccountID)
		if id == "" {
			return nil, fmt.Errorf("account #%d has no account_id", i)
		}
		if seen[strings.ToLower(id)] {
			return nil, fmt.Errorf("duplicate account_id %q", id)
		}
		seen[strings.ToLower(id)] = true
		policies = append(policies, c.resolve(acct))
	}
	return policies, nil
}

func (c *Config) resolve(acct AccountConfig) models.AccountPolicy {
	a := acct.Actions
	if a == nil {
		a = &ActionConfig{}
	}
	g := &c.Automation.ActionDefaults
	d := &c.Automation.Decision
	an := &c.Automation.Analysis

	likeKeywords := a.LikeKeywords
	if len(likeKeywords) == 0 {
		likeKeywords = g.LikeKeywords
	}

	return models.AccountPolicy{
		AccountID: strings.TrimSpace(acct.AccountID),
		Active:    first(true, acct.Active),
		Keywords:  acct.Keywords,

		Competitor: models.CompetitorFeature{
			Enabled:       first(true, a.EnableCompetitor, g.EnableCompetitor),
			Profiles:      acct.CompetitorProfiles,
			MaxPerProfile: first(builtin.maxPerCompetitor, a.MaxPerCompetitor, g.MaxPerCompetitor),
			MediaOnly:     first(false, a.CompetitorMediaOnly, g.CompetitorMediaOnly),
			MinLikes:      first(0, a.MinLikes, g.MinLikes),
			MinRetweets:   first(0, a.MinRetweets, g.MinRetweets),
			DefaultAction: models.ActionKind(first(builtin.competitorAction, a.CompetitorAction, g.CompetitorAction)),
			QuotePrompt:   first(builtin.quotePrompt, a.QuotePrompt, g.QuotePrompt),
			Relevance:     relevance(builtin.competitorRelevance, a.RelevanceCompetitor, g.RelevanceCompetitor, an.Competitor),
		},
		Replies: models.ReplyFeature{
			Enabled:       first(true, a.EnableReplies, g.EnableReplies),
			MaxPerKeyword: first(builtin.maxRepliesPerKW, a.MaxRepliesPerKW, g.MaxRepliesPerKW),
			MaxAge:        first(0, a.ReplyMaxAge, g.ReplyMaxAge),
			Relevance:     relevance(builtin.repliesRelevance, a.RelevanceReplies, g.RelevanceReplies, an.Replies),
		},
		Retweets: models.RetweetFeature{
			Enabled:       first(false, a.EnableRetweets, g.EnableRetweets),
			MaxPerKeyword: first(builtin.maxRetweetsPerKW, a.MaxRetweetsPerKW, g.MaxRetweetsPerKW),
			Relevance:     relevance(builtin.likesRelevance, a.RelevanceRetweets, g.RelevanceRetweets, an.Retweets),
		},
		Likes: models.LikeFeature{
			Enabled:   first(true, a.EnableLikes, g.EnableLikes),
			Keywords:  likeKeywords,
			MaxPerRun: first(builtin.maxLikesPerRun, a.MaxLikesPerRun, g.MaxLikesPerRun),
			Relevance: relevance(builtin.likesRelevance, a.RelevanceLikes, g.RelevanceLikes, an.Likes),
		},

		Pacing: models.Pacing{
			MinDelay: first(builtin.minDelay, a.MinDelay, g.MinDelay),
			MaxDelay: first(builtin.maxDelay, a.MaxDelay, g.MaxDelay),
		},
		Thresholds: models.Thresholds{
			QuoteMin:   first(models.DefaultThresholds.QuoteMin, a.DecisionQuoteMin, g.DecisionQuoteMin, d.Thresholds.QuoteMin),
			RetweetMin: first(models.DefaultThresholds.RetweetMin, a.DecisionRetweetMin, g.DecisionRetweetMin, d.Thresholds.RetweetMin),
			RepostMin:  first(models.DefaultThresholds.RepostMin, a.DecisionRepostMin, g.DecisionRepostMin, d.Thresholds.RepostMin),
		},
		DecisionEnabled: first(false, a.EnableDecision, g.EnableDecision, d.Enabled),
		UseSentiment:    first(true, a.UseSentiment, g.UseSentiment, d.UseSentiment),
		ThreadAnalysis:  first(true, a.EnableThreadAnalysis, g.EnableThreadAnalysis),
		AvoidOwnPosts:   first(true, a.AvoidOwnPosts, g.AvoidOwnPosts),

		PostLLM:     llmSettings(builtin.composeLLM, g.PostLLM, a.PostLLM, acct.LLMOverride),
		ReplyLLM:    llmSettings(builtin.composeLLM, g.ReplyLLM, a.ReplyLLM, acct.LLMOverride),
		ThreadLLM:   llmSettings(builtin.threadLLM, g.ThreadLLM, a.ThreadLLM, acct.LLMOverride),
		AnalysisLLM: llmSettings(models.LLMSettings{}, g.AnalysisLLM, a.AnalysisLLM),

		CookiesFile: acct.CookiesFile,
		Proxy:       acct.Proxy,
	}
}

// relevance resolves a filter field by field, highest precedence first.
func relevance(def models.RelevanceFilter, layers ...RelevanceConfig) models.RelevanceFilter {
	enabled := make([]*bool, len(layers))
	mins := make([]*float64, len(layers))
	for i, l := range layers {
		enabled[i], mins[i] = l.Enabled, l.Min
	}
	return models.RelevanceFilter{
		Enabled: first(def.Enabled, enabled...),
		Min:     first(def.Min, mins...),
	}
}

// llmSettings layers the given settings over def, lowest precedence first.
// Empty fields never clear a lower layer.
func llmSettings(def models.LLMSettings, layers ...*LLMSettingsConfig) models.LLMSettings {
	out := def
	for _, l := range layers {
		if l == nil {
			continue
		}
		if l.Provider != "" {
			out.Provider = l.Provider
		}
		if l.Model != "" {
			out.Model = l.Model
		}
		if l.MaxTokens != 0 {
			out.MaxTokens = l.MaxTokens
		}
		if l.Temperature != nil {
			out.Temperature = l.Temperature
		}
	}
	return out
}
