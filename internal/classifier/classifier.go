package classifier

import (
	"context"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/llm"
	"github.com/xaenox/engagebot/internal/models"
)

// Generator is the part of the text generation gateway the engine needs.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Result, error)
	GenerateStructured(ctx context.Context, req llm.StructuredRequest) (map[string]any, error)
}

type Options struct {
	// StructuredRetries is the number of extra attempts for the structured tier.
	StructuredRetries int
	// AnalysisMaxTokens is used when the policy's analysis settings do not set one.
	AnalysisMaxTokens int
}

// Engine decides which action to take on a candidate.
type Engine struct {
	gen    Generator
	opts   Options
	logger *zap.Logger
}

func NewEngine(gen Generator, opts Options, logger *zap.Logger) *Engine {
	if opts.StructuredRetries < 0 {
		opts.StructuredRetries = 0
	}
	if opts.AnalysisMaxTokens <= 0 {
		opts.AnalysisMaxTokens = 120
	}
	return &Engine{gen: gen, opts: opts, logger: logger}
}

// analysis is the decoded structured-tier answer.
type analysis struct {
	Relevance         float64  `mapstructure:"relevance"`
	Sentiment         string   `mapstructure:"sentiment"`
	RecommendedAction *string  `mapstructure:"recommended_action"`
	Confidence        float64  `mapstructure:"confidence"`
	IsThread          bool     `mapstructure:"is_thread"`
	Topics            []string `mapstructure:"topics"`
}

// Decide produces a decision for c. The structured tier is tried first when
// decision support is enabled; the heuristic tier covers everything else.
func (e *Engine) Decide(ctx context.Context, c *models.Candidate, p *models.AccountPolicy) models.DecisionResult {
	if p.DecisionEnabled {
		if res, ok := e.decideStructured(ctx, c, p); ok {
			return res
		}
	}
	return e.decideHeuristic(ctx, c, p)
}

func (e *Engine) decideStructured(ctx context.Context, c *models.Candidate, p *models.AccountPolicy) (models.DecisionResult, bool) {
	if e.gen == nil || c.Text == "" {
		return models.DecisionResult{}, false
	}
	log := e.logger.With(zap.String("account_id", p.AccountID), zap.String("candidate_id", c.ID))

	params := llm.Params{Model: p.AnalysisLLM.Model, MaxTokens: p.AnalysisLLM.MaxTokens, Temperature: floatPtr(0.2)}
	if params.MaxTokens == 0 {
		params.MaxTokens = e.opts.AnalysisMaxTokens
	}
	obj, err := e.gen.GenerateStructured(ctx, llm.StructuredRequest{
		Instruction: analysisInstruction(c.Text, p.Keywords),
		Schema:      analysisSchema(),
		Provider:    p.AnalysisLLM.Provider,
		Params:      params,
		MaxRetries:  e.opts.StructuredRetries,
		JSONMode:    true,
	})
	if err != nil {
		log.Warn("Structured analysis failed, using heuristics", zap.Error(err))
		return models.DecisionResult{}, false
	}

	var a analysis
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &a,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return models.DecisionResult{}, false
	}
	if err := dec.Decode(obj); err != nil {
		log.Warn("Failed to decode structured analysis", zap.Error(err), zap.Any("analysis", obj))
		return models.DecisionResult{}, false
	}
	if a.RecommendedAction == nil {
		log.Warn("Structured analysis has no recommended action, using heuristics")
		return models.DecisionResult{}, false
	}

	res := models.DecisionResult{
		Relevance:  clamp01(a.Relevance),
		Sentiment:  models.ParseSentiment(strings.ToLower(a.Sentiment)),
		Confidence: clamp01(a.Confidence),
		Topics:     a.Topics,
		IsThread:   a.IsThread,
		Tier:       models.TierStructured,
	}
	if res.Relevance < p.Thresholds.RepostMin {
		res.Action = models.ActionLike
		return res, true
	}
	action, ok := models.ParseActionKind(strings.ToLower(strings.TrimSpace(*a.RecommendedAction)))
	if !ok {
		log.Warn("Structured analysis recommended an unknown action, using heuristics",
			zap.String("action", *a.RecommendedAction))
		return models.DecisionResult{}, false
	}
	res.Action = action
	return res, true
}

func (e *Engine) decideHeuristic(ctx context.Context, c *models.Candidate, p *models.AccountPolicy) models.DecisionResult {
	res := models.DecisionResult{
		Relevance: e.ScoreRelevance(ctx, c, p.Keywords, p),
		Sentiment: models.SentimentNeutral,
		IsThread:  c.IsThreadCandidate,
		Tier:      models.TierHeuristic,
	}
	if p.UseSentiment {
		res.Sentiment = e.ClassifySentiment(ctx, c, p)
	}
	res.Action = ActionFor(res.Relevance, res.Sentiment, p.Thresholds)
	return res
}

// ScoreRelevance returns the keyword-overlap relevance of c. When the policy
// names an analysis provider the model is asked for a score first and the
// overlap is used only if the answer is not a number in [0,1].
func (e *Engine) ScoreRelevance(ctx context.Context, c *models.Candidate, keywords []string, p *models.AccountPolicy) float64 {
	base := Relevance(c.Text, keywords)
	if e.gen == nil || p.AnalysisLLM.Provider == "" || len(keywords) == 0 || c.Text == "" {
		return base
	}
	res, err := e.gen.Generate(ctx, llm.Request{
		Prompt:   relevancePrompt(c.Text, keywords),
		Provider: p.AnalysisLLM.Provider,
		Params:   llm.Params{Model: p.AnalysisLLM.Model, MaxTokens: 8, Temperature: floatPtr(0)},
	})
	if err != nil {
		return base
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(res.Text), 64)
	if err != nil || v < 0 || v > 1 {
		return base
	}
	return v
}

// ClassifySentiment is the lexical sentiment of c, refined by the analysis
// provider when the policy names one.
func (e *Engine) ClassifySentiment(ctx context.Context, c *models.Candidate, p *models.AccountPolicy) models.Sentiment {
	base := LexicalSentiment(c.Text)
	if e.gen == nil || p.AnalysisLLM.Provider == "" || c.Text == "" {
		return base
	}
	res, err := e.gen.Generate(ctx, llm.Request{
		Prompt:   sentimentPrompt(c.Text),
		Provider: p.AnalysisLLM.Provider,
		Params:   llm.Params{Model: p.AnalysisLLM.Model, MaxTokens: 3, Temperature: floatPtr(0)},
	})
	if err != nil {
		return base
	}
	switch s := models.Sentiment(strings.ToLower(strings.TrimSpace(res.Text))); s {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
		return s
	}
	return base
}

// ConfirmThread asks the model whether a flagged candidate is part of a
// thread and records the answer on c. Only "true" confirms; anything else,
// including no answer, means not a thread.
func (e *Engine) ConfirmThread(ctx context.Context, c *models.Candidate, p *models.AccountPolicy) bool {
	if !c.IsThreadCandidate || !p.ThreadAnalysis || e.gen == nil || c.Text == "" {
		return false
	}
	log := e.logger.With(zap.String("account_id", p.AccountID), zap.String("candidate_id", c.ID))

	res, err := e.gen.Generate(ctx, llm.Request{
		Prompt:   threadPrompt(c.Text),
		Provider: p.ThreadLLM.Provider,
		Params:   llm.Params{Model: p.ThreadLLM.Model, MaxTokens: p.ThreadLLM.MaxTokens, Temperature: p.ThreadLLM.Temperature},
	})
	if err != nil {
		log.Warn("No answer for thread analysis, assuming not a thread", zap.Error(err))
		return false
	}

	switch answer := strings.ToLower(strings.TrimSpace(res.Text)); answer {
	case "true":
		c.IsConfirmedThread = true
	case "false":
	default:
		log.Warn("Thread analysis returned a non-boolean answer, assuming not a thread",
			zap.String("answer", answer))
	}
	return c.IsConfirmedThread
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}

func floatPtr(v float64) *float64 { return &v }
