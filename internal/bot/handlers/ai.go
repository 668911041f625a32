package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nikiramandika/alera-sub000/internal/ai"
	"github.com/nikiramandika/alera-sub000/internal/models"
	"github.com/nikiramandika/alera-sub000/internal/rrule"
)

func (h *Handlers) handleAIMessage(ctx context.Context, msg *tgbotapi.Message) {
	draft, err := h.ai.ParseReminder(ctx, msg.Text)
	if err != nil {
		log.Printf("AI parse failed: %v", err)
		h.sendMessage(msg.Chat.ID, "I could not understand that, try a command from /help")
		return
	}
	if draft.Unclear {
		reply := draft.AIMessage
		if reply == "" {
			reply = "I could not understand that, try a command from /help"
		}
		h.sendMessage(msg.Chat.ID, reply)
		return
	}

	def, err := draftToDefinition(draft)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "That almost worked: "+err.Error())
		return
	}
	if err := h.svc.CreateDefinition(ctx, def); err != nil {
		h.sendMessage(msg.Chat.ID, "Could not save the reminder: "+err.Error())
		return
	}

	reply := fmt.Sprintf("✅ **%s** saved: %s", def.Name, rrule.Describe(def.Frequency))
	if len(def.TimesOfDay) > 0 {
		reply += " at " + strings.Join(def.TimesOfDay, ", ")
	}
	if draft.AIMessage != "" {
		reply += "\n\n" + draft.AIMessage
	}
	h.sendMessage(msg.Chat.ID, reply)
}

func draftToDefinition(draft *ai.ReminderDraft) (*models.ReminderDefinition, error) {
	def := &models.ReminderDefinition{
		Kind:       models.Kind(draft.Kind),
		Name:       draft.Name,
		DoseLabel:  draft.DoseLabel,
		TimesOfDay: draft.Times,
		IsActive:   true,
	}

	switch draft.Frequency {
	case "daily":
		def.Frequency = models.Frequency{Type: models.FrequencyDaily}
	case "interval":
		var days []time.Weekday
		for _, d := range draft.DaysOfWeek {
			if d < 0 || d > 6 {
				return nil, fmt.Errorf("weekday %d is out of range", d)
			}
			days = append(days, time.Weekday(d))
		}
		def.Frequency = models.Frequency{Type: models.FrequencyInterval, DaysOfWeek: days}
	case "as_needed":
		def.Frequency = models.Frequency{Type: models.FrequencyAsNeeded}
		def.TimesOfDay = nil
	default:
		return nil, fmt.Errorf("unknown frequency %q", draft.Frequency)
	}

	if draft.StartDate != "" {
		start, err := time.ParseInLocation("2006-01-02", draft.StartDate, time.Local)
		if err != nil {
			return nil, fmt.Errorf("bad start date %q", draft.StartDate)
		}
		def.StartDate = start
	}
	if draft.EndDate != "" {
		end, err := time.ParseInLocation("2006-01-02", draft.EndDate, time.Local)
		if err != nil {
			return nil, fmt.Errorf("bad end date %q", draft.EndDate)
		}
		def.EndDate = &end
	}
	return def, nil
}
