package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nikiramandika/alera-sub000/internal/models"
	"github.com/nikiramandika/alera-sub000/internal/rrule"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekdays(s string) ([]time.Weekday, bool) {
	var days []time.Weekday
	for _, part := range strings.Split(strings.ToLower(s), ",") {
		wd, ok := weekdayNames[strings.TrimSpace(part)]
		if !ok {
			return nil, false
		}
		days = append(days, wd)
	}
	return days, len(days) > 0
}

func parseTimes(s string) ([]string, bool) {
	var times []string
	for _, part := range strings.Split(s, ",") {
		clock := strings.TrimSpace(part)
		if _, _, err := models.ParseClock(clock); err != nil {
			return nil, false
		}
		times = append(times, clock)
	}
	return times, len(times) > 0
}

func (h *Handlers) handleAdd(ctx context.Context, msg *tgbotapi.Message, medicine bool) {
	usage := "Usage: /addhabit <name> <HH:MM[,HH:MM]> [mon,wed,...] [target]"
	kind := models.KindHabit
	if medicine {
		usage = "Usage: /addmed <name> <HH:MM[,HH:MM]> [mon,wed,...] [dose]"
		kind = models.KindMedicine
	}

	fields := strings.Fields(msg.CommandArguments())
	if len(fields) < 2 {
		h.sendMessage(msg.Chat.ID, usage)
		return
	}

	name := fields[0]
	times, ok := parseTimes(fields[1])
	if !ok {
		h.sendMessage(msg.Chat.ID, "Bad time list, use HH:MM like 08:00,20:00")
		return
	}

	freq := models.Frequency{Type: models.FrequencyDaily}
	rest := fields[2:]
	if len(rest) > 0 {
		if days, ok := parseWeekdays(rest[0]); ok {
			freq = models.Frequency{Type: models.FrequencyInterval, DaysOfWeek: days}
			rest = rest[1:]
		}
	}

	def := &models.ReminderDefinition{
		Kind:       kind,
		Name:       name,
		DoseLabel:  strings.Join(rest, " "),
		Frequency:  freq,
		TimesOfDay: times,
		IsActive:   true,
	}
	if err := h.svc.CreateDefinition(ctx, def); err != nil {
		h.sendMessage(msg.Chat.ID, "Could not save the reminder: "+err.Error())
		return
	}

	h.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ **%s** saved: %s at %s",
		def.Name, rrule.Describe(def.Frequency), strings.Join(def.TimesOfDay, ", ")))
}

func (h *Handlers) handleAddAsNeeded(ctx context.Context, msg *tgbotapi.Message) {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		h.sendMessage(msg.Chat.ID, "Usage: /asneeded <name> [dose]")
		return
	}

	def := &models.ReminderDefinition{
		Kind:      models.KindMedicine,
		Name:      fields[0],
		DoseLabel: strings.Join(fields[1:], " "),
		Frequency: models.Frequency{Type: models.FrequencyAsNeeded},
		IsActive:  true,
	}
	if err := h.svc.CreateDefinition(ctx, def); err != nil {
		h.sendMessage(msg.Chat.ID, "Could not save the reminder: "+err.Error())
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ **%s** saved as needed, log doses with /took", def.Name))
}

func (h *Handlers) handleList(ctx context.Context, msg *tgbotapi.Message) {
	defs, err := h.svc.ListDefinitions(ctx, nil)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Could not load your reminders, try again later")
		return
	}
	if len(defs) == 0 {
		h.sendMessage(msg.Chat.ID, "No reminders yet, add one with /addmed or /addhabit")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Your reminders**\n\n")
	for i, def := range defs {
		status := "▶️"
		if !def.IsActive {
			status = "⏸"
		}
		icon := "💊"
		if def.Kind == models.KindHabit {
			icon = "🔁"
		}
		sb.WriteString(fmt.Sprintf("%s %d. %s **%s**", status, i+1, icon, def.Name))
		if def.DoseLabel != "" {
			sb.WriteString(" (" + def.DoseLabel + ")")
		}
		sb.WriteString("\n   " + rrule.Describe(def.Frequency))
		if len(def.TimesOfDay) > 0 {
			sb.WriteString(" at " + strings.Join(def.TimesOfDay, ", "))
		}
		sb.WriteString("\n\n")
	}
	h.sendMessage(msg.Chat.ID, sb.String())
}

// definitionByIndex resolves the 1-based index shown by /list.
func (h *Handlers) definitionByIndex(ctx context.Context, arg string) (*models.ReminderDefinition, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 {
		return nil, fmt.Errorf("give the number shown by /list")
	}
	defs, err := h.svc.ListDefinitions(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not load your reminders")
	}
	if n > len(defs) {
		return nil, fmt.Errorf("there is no reminder %d", n)
	}
	return defs[n-1], nil
}

func (h *Handlers) handleSetActive(ctx context.Context, msg *tgbotapi.Message, active bool) {
	def, err := h.definitionByIndex(ctx, msg.CommandArguments())
	if err != nil {
		h.sendMessage(msg.Chat.ID, err.Error())
		return
	}
	if err := h.svc.SetActive(ctx, def.ID, active); err != nil {
		h.sendMessage(msg.Chat.ID, "Could not update the reminder, try again later")
		return
	}
	verb := "paused"
	if active {
		verb = "resumed"
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("**%s** %s", def.Name, verb))
}

func (h *Handlers) handleDelete(ctx context.Context, msg *tgbotapi.Message) {
	def, err := h.definitionByIndex(ctx, msg.CommandArguments())
	if err != nil {
		h.sendMessage(msg.Chat.ID, err.Error())
		return
	}
	if err := h.svc.DeleteDefinition(ctx, def.ID); err != nil {
		h.sendMessage(msg.Chat.ID, "Could not delete the reminder, try again later")
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("🗑 **%s** deleted", def.Name))
}
