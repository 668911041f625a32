package handlers

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nikiramandika/alera-sub000/internal/ai"
	"github.com/nikiramandika/alera-sub000/internal/format"
	"github.com/nikiramandika/alera-sub000/internal/schedule"
)

type Handlers struct {
	api *tgbotapi.BotAPI
	svc *schedule.Service
	ai  *ai.Client
}

func New(api *tgbotapi.BotAPI, svc *schedule.Service, aiClient *ai.Client) *Handlers {
	return &Handlers{
		api: api,
		svc: svc,
		ai:  aiClient,
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.handleStart(msg)
	case "help":
		h.handleHelp(msg)
	case "today":
		h.handleToday(ctx, msg)
	case "list":
		h.handleList(ctx, msg)
	case "addmed":
		h.handleAdd(ctx, msg, true)
	case "addhabit":
		h.handleAdd(ctx, msg, false)
	case "asneeded":
		h.handleAddAsNeeded(ctx, msg)
	case "took":
		h.handleTook(ctx, msg)
	case "done":
		h.handleDone(ctx, msg)
	case "history":
		h.handleHistory(ctx, msg)
	case "pause":
		h.handleSetActive(ctx, msg, false)
	case "resume":
		h.handleSetActive(ctx, msg, true)
	case "delete":
		h.handleDelete(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

// HandleMessage routes free text through the AI parser when configured.
func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if h.ai == nil {
		h.sendMessage(msg.Chat.ID, "I only understand commands, see /help")
		return
	}
	h.handleAIMessage(ctx, msg)
}

func (h *Handlers) handleStart(msg *tgbotapi.Message) {
	h.sendMessage(msg.Chat.ID, "👋 Alera keeps track of your medicines and habits and pings you when they are due.\n\nSee /help for commands.")
}

func (h *Handlers) handleHelp(msg *tgbotapi.Message) {
	h.sendMessage(msg.Chat.ID, `**Commands**

/today - today's schedule
/list - all reminders
/addmed <name> <HH:MM[,HH:MM]> [mon,wed,...] [dose] - add a medicine
/addhabit <name> <HH:MM[,HH:MM]> [mon,wed,...] [target] - add a habit
/asneeded <name> [dose] - add an as-needed medicine
/took <n> - log an as-needed dose
/done <n> - mark the n-th pending item done
/history <n> - last week's entries for a reminder
/pause <n> / /resume <n> - pause or resume a reminder
/delete <n> - delete a reminder

Or just tell me in plain words, e.g. "remind me to take aspirin at 8am daily".`)
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(chatID, parsed.Text)
	msg.Entities = parsed.Entities
	if _, err := h.api.Send(msg); err != nil {
		log.Printf("Failed to send message: %v", err)
	}
}

func (h *Handlers) editMessageText(chatID int64, messageID int, text string) {
	parsed := format.ParseMarkdown(text)
	edit := tgbotapi.NewEditMessageText(chatID, messageID, parsed.Text)
	edit.Entities = parsed.Entities
	if _, err := h.api.Request(edit); err != nil {
		log.Printf("Failed to edit message: %v", err)
	}
}
