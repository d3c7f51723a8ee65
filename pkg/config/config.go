package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xaenox/engagebot/internal/models"
)

var validate = models.NewValidator("mapstructure")

type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	Automation AutomationConfig `mapstructure:"automation"`
	Harvest    HarvestConfig    `mapstructure:"harvest"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Accounts   []AccountConfig  `mapstructure:"accounts"`
}

type ProviderConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	Endpoint    string   `mapstructure:"endpoint"`
	Deployment  string   `mapstructure:"deployment"`
	APIVersion  string   `mapstructure:"api_version"`
	Model       string   `mapstructure:"model"`
	MaxTokens   int      `mapstructure:"max_tokens"`
	Temperature *float64 `mapstructure:"temperature"`
}

type LLMConfig struct {
	Order             []string       `mapstructure:"order" validate:"dive,oneof=azure openai gemini"`
	DefaultMaxTokens  int            `mapstructure:"default_max_tokens"`
	StructuredRetries int            `mapstructure:"structured_retries"`
	AnalysisMaxTokens int            `mapstructure:"analysis_max_tokens"`
	BreakerFailures   uint32         `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration  `mapstructure:"breaker_timeout"`
	OpenAI            ProviderConfig `mapstructure:"openai"`
	Azure             ProviderConfig `mapstructure:"azure"`
	Gemini            ProviderConfig `mapstructure:"gemini"`
}

type AutomationConfig struct {
	Concurrency    int            `mapstructure:"concurrency" validate:"gte=0"`
	ActionDefaults ActionConfig   `mapstructure:"action_defaults"`
	Decision       DecisionConfig `mapstructure:"decision"`
	Analysis       AnalysisConfig `mapstructure:"analysis"`
}

type DecisionConfig struct {
	Enabled      *bool            `mapstructure:"enabled"`
	UseSentiment *bool            `mapstructure:"use_sentiment"`
	Thresholds   ThresholdsConfig `mapstructure:"thresholds"`
}

type ThresholdsConfig struct {
	QuoteMin   *float64 `mapstructure:"quote_min"`
	RetweetMin *float64 `mapstructure:"retweet_min"`
	RepostMin  *float64 `mapstructure:"repost_min"`
}

// AnalysisConfig holds the global relevance filters per feature.
type AnalysisConfig struct {
	Competitor RelevanceConfig `mapstructure:"competitor"`
	Replies    RelevanceConfig `mapstructure:"replies"`
	Retweets   RelevanceConfig `mapstructure:"retweets"`
	Likes      RelevanceConfig `mapstructure:"likes"`
}

type RelevanceConfig struct {
	Enabled *bool    `mapstructure:"enabled"`
	Min     *float64 `mapstructure:"min"`
}

type LLMSettingsConfig struct {
	Provider    string   `mapstructure:"provider"`
	Model       string   `mapstructure:"model"`
	MaxTokens   int      `mapstructure:"max_tokens"`
	Temperature *float64 `mapstructure:"temperature"`
}

// ActionConfig is used both as the global action defaults and as a
// per-account override. Nil fields are unset.
type ActionConfig struct {
	MinDelay *time.Duration `mapstructure:"min_delay"`
	MaxDelay *time.Duration `mapstructure:"max_delay"`

	EnableCompetitor    *bool   `mapstructure:"enable_competitor_reposts"`
	MaxPerCompetitor    *int    `mapstructure:"max_posts_per_competitor"`
	CompetitorMediaOnly *bool   `mapstructure:"repost_only_with_media"`
	MinLikes            *int    `mapstructure:"min_likes_for_repost"`
	MinRetweets         *int    `mapstructure:"min_retweets_for_repost"`
	CompetitorAction    *string `mapstructure:"competitor_interaction"`
	QuotePrompt         *string `mapstructure:"quote_prompt"`

	EnableReplies    *bool          `mapstructure:"enable_keyword_replies"`
	MaxRepliesPerKW  *int           `mapstructure:"max_replies_per_keyword"`
	ReplyMaxAge      *time.Duration `mapstructure:"reply_max_age"`
	AvoidOwnPosts    *bool          `mapstructure:"avoid_own_posts"`
	EnableRetweets   *bool          `mapstructure:"enable_keyword_retweets"`
	MaxRetweetsPerKW *int           `mapstructure:"max_retweets_per_keyword"`
	EnableLikes      *bool          `mapstructure:"enable_likes"`
	MaxLikesPerRun   *int           `mapstructure:"max_likes_per_run"`
	LikeKeywords     []string       `mapstructure:"like_keywords"`

	EnableThreadAnalysis *bool `mapstructure:"enable_thread_analysis"`
	EnableDecision       *bool `mapstructure:"enable_engagement_decision"`
	UseSentiment         *bool `mapstructure:"use_sentiment"`

	DecisionQuoteMin   *float64 `mapstructure:"decision_quote_min"`
	DecisionRetweetMin *float64 `mapstructure:"decision_retweet_min"`
	DecisionRepostMin  *float64 `mapstructure:"decision_repost_min"`

	RelevanceCompetitor RelevanceConfig `mapstructure:"relevance_competitor"`
	RelevanceReplies    RelevanceConfig `mapstructure:"relevance_replies"`
	RelevanceRetweets   RelevanceConfig `mapstructure:"relevance_retweets"`
	RelevanceLikes      RelevanceConfig `mapstructure:"relevance_likes"`

	PostLLM     *LLMSettingsConfig `mapstructure:"llm_for_post"`
	ReplyLLM    *LLMSettingsConfig `mapstructure:"llm_for_reply"`
	ThreadLLM   *LLMSettingsConfig `mapstructure:"llm_for_thread_analysis"`
	AnalysisLLM *LLMSettingsConfig `mapstructure:"llm_for_analysis"`
}

type AccountConfig struct {
	AccountID          string             `mapstructure:"account_id"`
	Active             *bool              `mapstructure:"active"`
	CookiesFile        string             `mapstructure:"cookies_file"`
	Proxy              string             `mapstructure:"proxy"`
	Keywords           []string           `mapstructure:"target_keywords"`
	CompetitorProfiles []string           `mapstructure:"competitor_profiles"`
	LLMOverride        *LLMSettingsConfig `mapstructure:"llm_settings_override"`
	Actions            *ActionConfig      `mapstructure:"action_config"`
}

type HarvestConfig struct {
	MaxStallScrolls int           `mapstructure:"max_stall_scrolls"`
	ScrollDelay     time.Duration `mapstructure:"scroll_delay"`
}

type LedgerConfig struct {
	// Backend is one of csv, postgres or memory.
	Backend   string `mapstructure:"backend" validate:"oneof=csv postgres memory"`
	Path      string `mapstructure:"path" validate:"required_if=Backend csv"`
	Retention string `mapstructure:"retention"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type MetricsConfig struct {
	EventsDir  string `mapstructure:"events_dir"`
	ListenAddr string `mapstructure:"listen_addr"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type BrowserConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Bin               string        `mapstructure:"bin"`
	Headless          bool          `mapstructure:"headless"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout"`
	ScrollSettle      time.Duration `mapstructure:"scroll_settle"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.order", []string{"azure", "openai", "gemini"})
	v.SetDefault("llm.default_max_tokens", 250)
	v.SetDefault("llm.structured_retries", 2)
	v.SetDefault("llm.analysis_max_tokens", 120)
	v.SetDefault("llm.breaker_failures", 5)
	v.SetDefault("llm.breaker_timeout", time.Minute)
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.azure.api_version", "2024-02-01")
	v.SetDefault("llm.gemini.model", "gemini-1.5-flash")

	v.SetDefault("harvest.max_stall_scrolls", 5)
	v.SetDefault("harvest.scroll_delay", 1500*time.Millisecond)

	v.SetDefault("ledger.backend", "csv")
	v.SetDefault("ledger.path", "data/processed_actions.csv")
	v.SetDefault("ledger.retention", "day")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("metrics.events_dir", "data/metrics")

	v.SetDefault("browser.base_url", "https://x.com")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.action_timeout", 20*time.Second)
	v.SetDefault("browser.scroll_settle", 2*time.Second)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Enable environment variable support
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if chatID := v.GetInt64("TELEGRAM_CHAT_ID"); chatID != 0 {
		config.Telegram.ChatID = chatID
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.OpenAI.APIKey = apiKey
	}
	if apiKey := v.GetString("AZURE_OPENAI_API_KEY"); apiKey != "" {
		config.LLM.Azure.APIKey = apiKey
	}
	if endpoint := v.GetString("AZURE_OPENAI_ENDPOINT"); endpoint != "" {
		config.LLM.Azure.Endpoint = endpoint
	}
	if deployment := v.GetString("AZURE_OPENAI_DEPLOYMENT"); deployment != "" {
		config.LLM.Azure.Deployment = deployment
	}
	if apiKey := v.GetString("GEMINI_API_KEY"); apiKey != "" {
		config.LLM.Gemini.APIKey = apiKey
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the process-wide settings. Account policies are
// validated per run.
func (c *Config) Validate() error {
	for _, s := range []any{c.LLM, c.Automation, c.Ledger, c.Metrics} {
		if err := validate.Struct(s); err != nil {
			return fmt.Errorf("invalid configuration: %w", models.FormatValidationError(err))
		}
	}
	return nil
}
