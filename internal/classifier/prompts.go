package classifier

import (
	"fmt"
	"strings"
)

func threadPrompt(text string) string {
	return fmt.Sprintf(`Analyze the following tweet text to determine if it is part of a thread or a standalone tweet.
A tweet is part of a thread if it explicitly indicates continuation (e.g., "(1/n)", "thread below", "🧵"), or if its content strongly implies it's one piece of a multi-part discussion.
Consider common thread indicators.

Tweet text:
"%s"

Based on this text, is this tweet likely part of a thread?
Respond with only "true" or "false".
`, text)
}

func relevancePrompt(text string, keywords []string) string {
	return fmt.Sprintf(`Rate from 0.0 to 1.0 how relevant the tweet is to these keywords.
Tweet: %s
Keywords: %s
Only return a number between 0.0 and 1.0.`, text, strings.ToLower(strings.Join(keywords, ", ")))
}

func sentimentPrompt(text string) string {
	return fmt.Sprintf(`Classify the sentiment of the tweet as 'positive', 'neutral', or 'negative'. Only return one of those words.
Tweet: %s
`, text)
}

func analysisInstruction(text string, keywords []string) string {
	return fmt.Sprintf(`Analyze the tweet for relevance to the given keywords, sentiment, and recommend an action for engagement.
Tweet: %s
Keywords: %s`, text, strings.Join(keywords, ", "))
}

func analysisSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"relevance":          map[string]any{"type": "number"},
			"sentiment":          map[string]any{"type": "string", "enum": []string{"positive", "neutral", "negative"}},
			"recommended_action": map[string]any{"type": "string", "enum": []string{"quote_tweet", "retweet", "repost", "like"}},
			"confidence":         map[string]any{"type": "number"},
			"is_thread":          map[string]any{"type": "boolean"},
			"topics":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"relevance", "sentiment", "recommended_action", "confidence"},
	}
}
