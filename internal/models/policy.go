package models

import "time"

// LLMSettings selects a provider and generation parameters for one purpose
// (posting, replying, thread analysis, structured analysis).
type LLMSettings struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" validate:"gte=0"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Thresholds are the relevance cutoffs used to map a decision to an action.
type Thresholds struct {
	QuoteMin   float64 `json:"quote_min" validate:"gte=0,lte=1"`
	RetweetMin float64 `json:"retweet_min" validate:"gte=0,lte=1"`
	RepostMin  float64 `json:"repost_min" validate:"gte=0,lte=1"`
}

// DefaultThresholds are used when neither the account nor the global settings set a cutoff.
var DefaultThresholds = Thresholds{QuoteMin: 0.75, RetweetMin: 0.5, RepostMin: 0.35}

// RelevanceFilter drops candidates whose heuristic relevance is below Min.
type RelevanceFilter struct {
	Enabled bool    `json:"enabled"`
	Min     float64 `json:"min" validate:"gte=0,lte=1"`
}

// Pacing bounds the jittered sleep after every successful action.
type Pacing struct {
	MinDelay time.Duration `json:"min_delay" validate:"gte=0"`
	MaxDelay time.Duration `json:"max_delay" validate:"gtefield=MinDelay"`
}

// CompetitorFeature harvests competitor profiles and acts on their posts.
type CompetitorFeature struct {
	Enabled       bool            `json:"enabled"`
	Profiles      []string        `json:"profiles" validate:"dive,url"`
	MaxPerProfile int             `json:"max_per_profile" validate:"gte=0"`
	MediaOnly     bool            `json:"media_only"`
	MinLikes      int             `json:"min_likes" validate:"gte=0"`
	MinRetweets   int             `json:"min_retweets" validate:"gte=0"`
	DefaultAction ActionKind      `json:"default_action" validate:"omitempty,oneof=like repost retweet quote_tweet"`
	QuotePrompt   string          `json:"quote_prompt"`
	Relevance     RelevanceFilter `json:"relevance"`
}

// ReplyFeature replies to posts found through keyword searches.
type ReplyFeature struct {
	Enabled       bool            `json:"enabled"`
	MaxPerKeyword int             `json:"max_per_keyword" validate:"gte=0"`
	MaxAge        time.Duration   `json:"max_age" validate:"gte=0"`
	Relevance     RelevanceFilter `json:"relevance"`
}

// RetweetFeature retweets posts found through keyword searches.
type RetweetFeature struct {
	Enabled       bool            `json:"enabled"`
	MaxPerKeyword int             `json:"max_per_keyword" validate:"gte=0"`
	Relevance     RelevanceFilter `json:"relevance"`
}

// LikeFeature likes posts found through keyword searches.
type LikeFeature struct {
	Enabled   bool            `json:"enabled"`
	Keywords  []string        `json:"keywords"`
	MaxPerRun int             `json:"max_per_run" validate:"gte=0"`
	Relevance RelevanceFilter `json:"relevance"`
}

// AccountPolicy is the fully resolved configuration of one identity. It is
// assembled once at load time and never modified during a run.
type AccountPolicy struct {
	AccountID string   `json:"account_id" validate:"required"`
	Active    bool     `json:"active"`
	Keywords  []string `json:"keywords"`

	Competitor CompetitorFeature `json:"competitor"`
	Replies    ReplyFeature      `json:"replies"`
	Retweets   RetweetFeature    `json:"retweets"`
	Likes      LikeFeature       `json:"likes"`

	Pacing          Pacing     `json:"pacing"`
	Thresholds      Thresholds `json:"thresholds"`
	DecisionEnabled bool       `json:"decision_enabled"`
	UseSentiment    bool       `json:"use_sentiment"`
	ThreadAnalysis  bool       `json:"thread_analysis"`
	AvoidOwnPosts   bool       `json:"avoid_own_posts"`

	PostLLM     LLMSettings `json:"post_llm"`
	ReplyLLM    LLMSettings `json:"reply_llm"`
	ThreadLLM   LLMSettings `json:"thread_llm"`
	AnalysisLLM LLMSettings `json:"analysis_llm"`

	CookiesFile string `json:"cookies_file,omitempty"`
	Proxy       string `json:"proxy,omitempty" validate:"omitempty,url"`
}

// LikeKeywords falls back to the target keywords when no like-specific list is configured.
func (p *AccountPolicy) LikeKeywords() []string {
	if len(p.Likes.Keywords) > 0 {
		return p.Likes.Keywords
	}
	return p.Keywords
}
