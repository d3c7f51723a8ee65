package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/engagebot/internal/models"
	"github.com/xaenox/engagebot/internal/scheduler"
)

// Sender is the part of tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts a run summary to a Telegram chat.
type Notifier struct {
	api    Sender
	chatID int64
	logger *zap.Logger
}

func New(token string, chatID int64, logger *zap.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return NewWithSender(api, chatID, logger), nil
}

func NewWithSender(api Sender, chatID int64, logger *zap.Logger) *Notifier {
	return &Notifier{api: api, chatID: chatID, logger: logger}
}

// Report sends one MarkdownV2 message describing every outcome.
func (n *Notifier) Report(ctx context.Context, outcomes []scheduler.Outcome, elapsed time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, FormatReport(outcomes, elapsed))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("Failed to send run report",
			zap.Error(err),
			zap.Int64("chat_id", n.chatID))
		return fmt.Errorf("send run report: %w", err)
	}
	n.logger.Info("Run report sent", zap.Int64("chat_id", n.chatID), zap.Int("accounts", len(outcomes)))
	return nil
}

var statusIcon = map[string]string{
	"success": "✅",
	"error":   "⚠️",
	"skipped": "⏸",
}

// FormatReport renders outcomes as MarkdownV2.
func FormatReport(outcomes []scheduler.Outcome, elapsed time.Duration) string {
	var b strings.Builder
	counts := map[string]int{}
	for _, o := range outcomes {
		counts[o.Status()]++
	}

	fmt.Fprintf(&b, "*Engagement run finished* in %s\n", escapeMarkdown(elapsed.Round(time.Second).String()))
	fmt.Fprintf(&b, "%s\n\n", escapeMarkdown(fmt.Sprintf("%d success, %d error, %d skipped",
		counts["success"], counts["error"], counts["skipped"])))

	for _, o := range outcomes {
		status := o.Status()
		fmt.Fprintf(&b, "%s *%s*", statusIcon[status], escapeMarkdown(o.AccountID))
		switch status {
		case "skipped":
			b.WriteString(" inactive\n")
			continue
		case "error":
			fmt.Fprintf(&b, " _%s_", escapeMarkdown(o.Err.Error()))
		}
		b.WriteString("\n")

		if actions := formatActions(o.Actions); actions != "" {
			fmt.Fprintf(&b, "%s\n", escapeMarkdown(actions))
		}
		if o.Failures > 0 || o.LedgerErrors > 0 {
			fmt.Fprintf(&b, "%s\n", escapeMarkdown(fmt.Sprintf("failures: %d, ledger errors: %d", o.Failures, o.LedgerErrors)))
		}
	}
	return b.String()
}

func formatActions(actions map[models.ActionKind]int) string {
	kinds := make([]string, 0, len(actions))
	for k, v := range actions {
		if v > 0 {
			kinds = append(kinds, string(k))
		}
	}
	sort.Strings(kinds)

	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s: %d", k, actions[models.ActionKind(k)])
	}
	return strings.Join(parts, ", ")
}

// escapeMarkdown escapes the characters MarkdownV2 reserves.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
