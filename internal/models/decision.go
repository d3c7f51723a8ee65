package models

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment normalizes a label; unknown labels map to neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNegative:
		return Sentiment(s)
	default:
		return SentimentNeutral
	}
}

// Tier records which decision strategy produced a result.
type Tier string

const (
	TierStructured Tier = "structured"
	TierHeuristic  Tier = "heuristic"
)

// DecisionResult is produced fresh for every candidate and never persisted
// beyond the ledger key.
type DecisionResult struct {
	Relevance  float64    `json:"relevance"`
	Sentiment  Sentiment  `json:"sentiment"`
	Action     ActionKind `json:"recommended_action"`
	Confidence float64    `json:"confidence"`
	Topics     []string   `json:"topics,omitempty"`
	IsThread   bool       `json:"is_thread"`
	Tier       Tier       `json:"tier"`
}
