package classifier

import (
	"strings"

	"github.com/xaenox/engagebot/internal/models"
)

var (
	positiveWords = []string{"great", "good", "love", "amazing", "awesome", "excited"}
	negativeWords = []string{"bad", "terrible", "hate", "awful", "angry", "worse"}
)

// Relevance is the keyword-overlap score: the share of keywords found in the
// text, capped at 1. With no keywords every post scores 0.5.
func Relevance(text string, keywords []string) float64 {
	if text == "" {
		return 0
	}
	if len(keywords) == 0 {
		return 0.5
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			hits++
		}
	}
	return min(float64(hits)/float64(len(keywords)), 1)
}

// LexicalSentiment looks the text up in small positive and negative word lists.
// Positive wins when both match.
func LexicalSentiment(text string) models.Sentiment {
	lower := strings.ToLower(text)
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			return models.SentimentPositive
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			return models.SentimentNegative
		}
	}
	return models.SentimentNeutral
}

// ActionFor maps a relevance score and sentiment onto an action. Quote and
// retweet need a positive or neutral sentiment; repost and like do not.
func ActionFor(relevance float64, sentiment models.Sentiment, th models.Thresholds) models.ActionKind {
	agreeable := sentiment == models.SentimentPositive || sentiment == models.SentimentNeutral
	switch {
	case relevance >= th.QuoteMin && agreeable:
		return models.ActionQuoteTweet
	case relevance >= th.RetweetMin && agreeable:
		return models.ActionRetweet
	case relevance >= th.RepostMin:
		return models.ActionRepost
	default:
		return models.ActionLike
	}
}
