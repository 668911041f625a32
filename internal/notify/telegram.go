package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nikiramandika/alera-sub000/internal/format"
)

// TelegramNotifier delivers reminder notifications to the configured chat,
// with an inline button that records the completion in one tap.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(api *tgbotapi.BotAPI, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{api: api, chatID: chatID}
}

func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	text := "⏰ **" + n.Title + "**"
	if n.Body != "" {
		text += "\n\n" + n.Body
	}

	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(t.chatID, parsed.Text)
	msg.Entities = parsed.Entities

	doneButton := tgbotapi.NewInlineKeyboardButtonData(
		"✅ Done",
		fmt.Sprintf("occ_done:%s:%s", n.SubjectID, n.Time),
	)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(doneButton),
	)

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send notification for job %s: %w", n.JobID, err)
	}
	return nil
}
