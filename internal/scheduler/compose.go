package scheduler

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xaenox/engagebot/internal/llm"
	"github.com/xaenox/engagebot/internal/models"
)

const maxReplyChars = 270

// DefaultQuotePrompt is used when a policy has no quote template.
const DefaultQuotePrompt = "Write an insightful comment to quote this tweet by {user_handle}: '{tweet_text}'. Add relevant hashtags."

func repostPrompt(c *models.Candidate) string {
	if c.IsConfirmedThread {
		return fmt.Sprintf("This tweet is part of a thread. Rewrite its essence engagingly: '%s' by %s.", c.Text, c.HandleOrDefault())
	}
	return fmt.Sprintf("Rewrite this tweet in an engaging way: '%s' by %s.", c.Text, c.HandleOrDefault())
}

func quotePrompt(template string, c *models.Candidate) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultQuotePrompt
	}
	return strings.NewReplacer(
		"{user_handle}", c.HandleOrDefault(),
		"{tweet_text}", c.Text,
	).Replace(template)
}

func replyPrompt(c *models.Candidate) string {
	threadNote := "This is a standalone tweet."
	if c.IsConfirmedThread {
		threadNote = "This tweet is part of a thread."
	}
	handle := c.AuthorHandle
	if handle == "" {
		handle = "user"
	}
	return fmt.Sprintf("Write a concise, natural reply under %d characters. %s "+
		"Avoid hashtags, links, and emojis unless essential. One short paragraph.\n\n"+
		"Original tweet by @%s:\n\"%s\"\n\nYour reply:", maxReplyChars, threadNote, handle, c.Text)
}

// capText cuts s to at most n runes and trims trailing space.
func capText(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimRight(string([]rune(s)[:n]), " \t\n")
}

func (s *Scheduler) generate(ctx context.Context, settings models.LLMSettings, prompt string) (string, error) {
	res, err := s.gen.Generate(ctx, llm.Request{
		Prompt:   prompt,
		Provider: settings.Provider,
		Params: llm.Params{
			Model:       settings.Model,
			MaxTokens:   settings.MaxTokens,
			Temperature: settings.Temperature,
		},
	})
	if err != nil {
		return "", err
	}
	text := strings.Trim(strings.TrimSpace(res.Text), `"`)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}
