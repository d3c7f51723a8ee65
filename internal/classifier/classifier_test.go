package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/llm"
	"github.com/xaenox/engagebot/internal/models"
)

type fakeGenerator struct {
	text       string
	textErr    error
	structured map[string]any
	structErr  error

	requests   []llm.Request
	structReqs []llm.StructuredRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (llm.Result, error) {
	f.requests = append(f.requests, req)
	if f.textErr != nil {
		return llm.Result{}, f.textErr
	}
	return llm.Result{Text: f.text, Provider: "fake"}, nil
}

func (f *fakeGenerator) GenerateStructured(_ context.Context, req llm.StructuredRequest) (map[string]any, error) {
	f.structReqs = append(f.structReqs, req)
	return f.structured, f.structErr
}

func policy() *models.AccountPolicy {
	return &models.AccountPolicy{
		AccountID:       "acct1",
		Keywords:        []string{"golang", "rust", "cache", "database", "kernel"},
		Thresholds:      models.DefaultThresholds,
		DecisionEnabled: true,
		UseSentiment:    true,
	}
}

func TestDecide_StructuredQuote(t *testing.T) {
	gen := &fakeGenerator{structured: map[string]any{
		"relevance": 0.8, "sentiment": "positive", "recommended_action": "quote_tweet", "confidence": 0.9,
		"topics": []any{"go"},
	}}
	e := NewEngine(gen, Options{StructuredRetries: 2}, zap.NewNop())

	res := e.Decide(context.Background(), &models.Candidate{ID: "1", Text: "golang is great"}, policy())
	assert.Equal(t, models.ActionQuoteTweet, res.Action)
	assert.Equal(t, models.TierStructured, res.Tier)
	assert.Equal(t, models.SentimentPositive, res.Sentiment)
	assert.Equal(t, []string{"go"}, res.Topics)

	require.Len(t, gen.structReqs, 1)
	assert.Equal(t, 2, gen.structReqs[0].MaxRetries)
	assert.True(t, gen.structReqs[0].JSONMode)
	assert.Equal(t, 120, gen.structReqs[0].Params.MaxTokens)
}

func TestDecide_HeuristicQuote(t *testing.T) {
	p := policy()
	p.DecisionEnabled = false
	e := NewEngine(nil, Options{}, zap.NewNop())

	// Four of five keywords: relevance 0.8, "great" makes it positive.
	c := &models.Candidate{ID: "2", Text: "great notes on golang, rust, cache and database design"}
	res := e.Decide(context.Background(), c, p)
	assert.InDelta(t, 0.8, res.Relevance, 1e-9)
	assert.Equal(t, models.SentimentPositive, res.Sentiment)
	assert.Equal(t, models.ActionQuoteTweet, res.Action)
	assert.Equal(t, models.TierHeuristic, res.Tier)
}

func TestDecide_LowRelevanceIsLike(t *testing.T) {
	for _, s := range []string{"positive", "neutral", "negative"} {
		gen := &fakeGenerator{structured: map[string]any{
			"relevance": 0.2, "sentiment": s, "recommended_action": "quote_tweet", "confidence": 1,
		}}
		res := NewEngine(gen, Options{}, zap.NewNop()).Decide(context.Background(), &models.Candidate{ID: "3", Text: "x"}, policy())
		assert.Equal(t, models.ActionLike, res.Action, s)
		assert.Equal(t, models.TierStructured, res.Tier)

		assert.Equal(t, models.ActionLike, ActionFor(0.2, models.Sentiment(s), models.DefaultThresholds), s)
	}
}

func TestDecide_FallsBackToHeuristics(t *testing.T) {
	cases := map[string]*fakeGenerator{
		"no response":     {structErr: llm.ErrNoResponse},
		"bad output":      {structErr: &llm.ExtractError{Err: llm.ErrNoJSON}},
		"missing action":  {structured: map[string]any{"relevance": 0.9, "sentiment": "positive"}},
		"unknown action":  {structured: map[string]any{"relevance": 0.9, "sentiment": "positive", "recommended_action": "follow"}},
		"undecodable map": {structured: map[string]any{"relevance": map[string]any{"score": "high"}, "recommended_action": "like"}},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			res := NewEngine(gen, Options{}, zap.NewNop()).Decide(context.Background(),
				&models.Candidate{ID: "4", Text: "nothing relevant here"}, policy())
			assert.Equal(t, models.TierHeuristic, res.Tier)
			assert.Equal(t, models.ActionLike, res.Action)
		})
	}
}

func TestDecide_WeaklyTypedAnalysis(t *testing.T) {
	gen := &fakeGenerator{structured: map[string]any{
		"relevance": "0.6", "sentiment": "Neutral", "recommended_action": "Retweet", "confidence": "0.7",
	}}
	res := NewEngine(gen, Options{}, zap.NewNop()).Decide(context.Background(), &models.Candidate{ID: "5", Text: "t"}, policy())
	assert.Equal(t, models.ActionRetweet, res.Action)
	assert.Equal(t, models.SentimentNeutral, res.Sentiment)
	assert.InDelta(t, 0.6, res.Relevance, 1e-9)
}

func TestActionFor_Monotonic(t *testing.T) {
	th := models.DefaultThresholds
	for _, s := range []models.Sentiment{models.SentimentPositive, models.SentimentNeutral} {
		prev := -1
		for i := 0; i <= 100; i++ {
			strength := ActionFor(float64(i)/100, s, th).Strength()
			assert.GreaterOrEqual(t, strength, prev, "relevance %.2f sentiment %s", float64(i)/100, s)
			prev = strength
		}
	}
}

func TestActionFor_NegativeGate(t *testing.T) {
	assert.Equal(t, models.ActionRepost, ActionFor(0.9, models.SentimentNegative, models.DefaultThresholds))
	assert.Equal(t, models.ActionRetweet, ActionFor(0.6, models.SentimentNeutral, models.DefaultThresholds))
	assert.Equal(t, models.ActionRepost, ActionFor(0.35, models.SentimentPositive, models.DefaultThresholds))
}

func TestRelevanceAndSentiment(t *testing.T) {
	assert.Equal(t, 0.5, Relevance("anything", nil))
	assert.Equal(t, 0.0, Relevance("", []string{"go"}))
	assert.Equal(t, 1.0, Relevance("Go and GOLANG", []string{"go", "golang"}))
	assert.Equal(t, 0.5, Relevance("rust only", []string{"rust", "zig"}))

	assert.Equal(t, models.SentimentPositive, LexicalSentiment("This is AMAZING"))
	assert.Equal(t, models.SentimentNegative, LexicalSentiment("awful latency"))
	assert.Equal(t, models.SentimentNeutral, LexicalSentiment("release notes"))
}

func TestScoreRelevance_ModelRefinement(t *testing.T) {
	p := policy()
	p.AnalysisLLM = models.LLMSettings{Provider: "openai"}
	c := &models.Candidate{ID: "6", Text: "golang tips"}

	gen := &fakeGenerator{text: " 0.9 "}
	e := NewEngine(gen, Options{}, zap.NewNop())
	assert.Equal(t, 0.9, e.ScoreRelevance(context.Background(), c, p.Keywords, p))
	assert.Equal(t, "openai", gen.requests[0].Provider)
	assert.Equal(t, 8, gen.requests[0].Params.MaxTokens)

	gen.text = "very relevant"
	assert.InDelta(t, 0.2, e.ScoreRelevance(context.Background(), c, p.Keywords, p), 1e-9)

	gen.text = "negative"
	assert.Equal(t, models.SentimentNegative, e.ClassifySentiment(context.Background(), c, p))
	gen.text = "meh"
	assert.Equal(t, models.SentimentNeutral, e.ClassifySentiment(context.Background(), c, p))
}

func TestConfirmThread(t *testing.T) {
	p := policy()
	p.ThreadAnalysis = true
	p.ThreadLLM = models.LLMSettings{Provider: "gemini", MaxTokens: 70, Temperature: floatPtr(0.2)}

	cases := []struct {
		answer string
		err    error
		want   bool
	}{
		{answer: "true", want: true},
		{answer: " TRUE\n", want: true},
		{answer: "false", want: false},
		{answer: "yes", want: false},
		{answer: "probably true", want: false},
		{err: errors.New("down"), want: false},
	}
	for _, tc := range cases {
		gen := &fakeGenerator{text: tc.answer, textErr: tc.err}
		c := &models.Candidate{ID: "7", Text: "1/3 why caches matter", IsThreadCandidate: true}
		got := NewEngine(gen, Options{}, zap.NewNop()).ConfirmThread(context.Background(), c, p)
		assert.Equal(t, tc.want, got, "answer %q", tc.answer)
		assert.Equal(t, tc.want, c.IsConfirmedThread)
		require.Len(t, gen.requests, 1)
		assert.Equal(t, "gemini", gen.requests[0].Provider)
		assert.Equal(t, 70, gen.requests[0].Params.MaxTokens)
	}
}

func TestConfirmThread_NotFlagged(t *testing.T) {
	gen := &fakeGenerator{text: "true"}
	e := NewEngine(gen, Options{}, zap.NewNop())
	p := policy()
	p.ThreadAnalysis = true

	assert.False(t, e.ConfirmThread(context.Background(), &models.Candidate{ID: "8", Text: "plain"}, p))
	p.ThreadAnalysis = false
	assert.False(t, e.ConfirmThread(context.Background(), &models.Candidate{ID: "9", Text: "🧵", IsThreadCandidate: true}, p))
	assert.Empty(t, gen.requests)
}
