package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/engagebot/internal/models"
	"github.com/xaenox/engagebot/internal/scheduler"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func outcomes() []scheduler.Outcome {
	return []scheduler.Outcome{
		{
			AccountID: "acct_1",
			State:     scheduler.StateFinished,
			Actions:   map[models.ActionKind]int{models.ActionLike: 3, models.ActionQuoteTweet: 1, models.ActionReply: 0},
			Failures:  1,
		},
		{AccountID: "acct2", State: scheduler.StateFinished, Err: errors.New("connect: cookies.json missing")},
		{AccountID: "acct3", State: scheduler.StateSkipped},
	}
}

func TestFormatReport(t *testing.T) {
	got := FormatReport(outcomes(), 93*time.Second)

	assert.Equal(t, "*Engagement run finished* in 1m33s\n"+
		"1 success, 1 error, 1 skipped\n\n"+
		"✅ *acct\\_1*\n"+
		"like: 3, quote\\_tweet: 1\n"+
		"failures: 1, ledger errors: 0\n"+
		"⚠️ *acct2* _connect: cookies\\.json missing_\n"+
		"⏸ *acct3* inactive\n", got)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\*c\(d\)\.e\!`, escapeMarkdown("a_b*c(d).e!"))
	assert.Equal(t, `back\\slash`, escapeMarkdown(`back\slash`))
}

func TestReport_SendsMarkdownMessage(t *testing.T) {
	sender := &fakeSender{}
	n := NewWithSender(sender, 42, zaptest.NewLogger(t))

	require.NoError(t, n.Report(context.Background(), outcomes(), time.Minute))
	require.Len(t, sender.sent, 1)
	msg, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
}

func TestReport_SendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("chat not found")}
	n := NewWithSender(sender, 42, zaptest.NewLogger(t))

	err := n.Report(context.Background(), outcomes(), time.Minute)
	assert.ErrorContains(t, err, "chat not found")
}
