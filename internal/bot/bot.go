package bot

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nikiramandika/alera-sub000/internal/ai"
	"github.com/nikiramandika/alera-sub000/internal/bot/handlers"
	"github.com/nikiramandika/alera-sub000/internal/schedule"
)

// Bot is the Telegram presentation surface. It is single-user: updates from
// chats other than the configured one are ignored.
type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *handlers.Handlers
	chatID   int64
}

func New(api *tgbotapi.BotAPI, svc *schedule.Service, aiClient *ai.Client, chatID int64) (*Bot, error) {
	if api == nil {
		return nil, fmt.Errorf("telegram api is required")
	}
	return &Bot{
		api:      api,
		handlers: handlers.New(api, svc, aiClient),
		chatID:   chatID,
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	log.Printf("Authorized on account %s", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		cb := update.CallbackQuery
		// Buttons on messages older than ~48h arrive without the message.
		// Answer the tap so the client stops spinning, nothing else to do.
		if cb.Message == nil {
			if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "This notification has expired")); err != nil {
				log.Printf("Failed to answer stale callback: %v", err)
			}
			return
		}
		if b.allowed(cb.Message.Chat.ID) {
			b.handlers.HandleCallbackQuery(ctx, cb)
		}
		return
	}
	if update.Message == nil {
		return
	}
	if !b.allowed(update.Message.Chat.ID) {
		return
	}

	if update.Message.IsCommand() {
		b.handlers.HandleCommand(ctx, update.Message)
		return
	}
	b.handlers.HandleMessage(ctx, update.Message)
}

func (b *Bot) allowed(chatID int64) bool {
	return b.chatID == 0 || chatID == b.chatID
}
