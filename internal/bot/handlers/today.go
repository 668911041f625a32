package handlers

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nikiramandika/alera-sub000/internal/models"
)

func (h *Handlers) handleToday(ctx context.Context, msg *tgbotapi.Message) {
	text, _, err := h.buildToday(ctx)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Could not load today's schedule, try again later")
		return
	}
	h.sendMessage(msg.Chat.ID, text)
}

// buildToday renders the day view and returns the pending occurrences in
// display order, which is the numbering /done resolves against.
func (h *Handlers) buildToday(ctx context.Context) (string, []models.Occurrence, error) {
	now := time.Now()
	sched, err := h.svc.OccurrencesForDate(ctx, now)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var pending []models.Occurrence
	sb.WriteString("📅 **Today** " + sched.Date.Format("Mon, Jan 2") + "\n")

	writeItem := func(prefix string, occ models.Occurrence) {
		pending = append(pending, occ)
		sb.WriteString(fmt.Sprintf("%s %d. %s **%s**", prefix, len(pending), occ.Time, occ.Name))
		if occ.DoseLabel != "" {
			sb.WriteString(" (" + occ.DoseLabel + ")")
		}
		sb.WriteString("\n")
	}

	if len(sched.Overdue) > 0 {
		sb.WriteString("\n**Overdue**\n")
		for _, occ := range sched.Overdue {
			writeItem("🔴", occ)
		}
	}
	if len(sched.DueSoon) > 0 {
		sb.WriteString("\n**Due now**\n")
		for _, occ := range sched.DueSoon {
			writeItem("🟡", occ)
		}
	}
	if len(sched.Scheduled) > 0 {
		sb.WriteString("\n**Later**\n")
		times := make([]string, 0, len(sched.Scheduled))
		for clock := range sched.Scheduled {
			times = append(times, clock)
		}
		sort.Strings(times)
		for _, clock := range times {
			for _, occ := range sched.Scheduled[clock] {
				writeItem("⚪️", occ)
			}
		}
	}
	if len(sched.Completed) > 0 {
		sb.WriteString("\n**Done**\n")
		for _, occ := range sched.Completed {
			sb.WriteString(fmt.Sprintf("✅ %s %s\n", occ.Time, occ.Name))
		}
	}
	if len(pending) == 0 && len(sched.Completed) == 0 {
		sb.WriteString("\nNothing scheduled today 🎉")
	} else if len(pending) > 0 {
		sb.WriteString("\nMark items done with /done <n>")
	}

	return sb.String(), pending, nil
}

func (h *Handlers) handleDone(ctx context.Context, msg *tgbotapi.Message) {
	n, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
	if err != nil || n < 1 {
		h.sendMessage(msg.Chat.ID, "Usage: /done <n> with the number from /today")
		return
	}
	_, pending, err := h.buildToday(ctx)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Could not load today's schedule, try again later")
		return
	}
	if n > len(pending) {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("There is no pending item %d", n))
		return
	}

	occ := pending[n-1]
	if err := h.svc.CompleteOccurrence(ctx, occ.SubjectID, occ.Date, occ.Time, completionFor(occ.Kind)); err != nil {
		h.sendMessage(msg.Chat.ID, "Could not record that, try again later")
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ **%s** (%s) recorded", occ.Name, occ.Time))
}

func (h *Handlers) handleTook(ctx context.Context, msg *tgbotapi.Message) {
	def, err := h.definitionByIndex(ctx, msg.CommandArguments())
	if err != nil {
		h.sendMessage(msg.Chat.ID, err.Error())
		return
	}
	if !def.IsAsNeeded() {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("**%s** is scheduled, mark it with /done instead", def.Name))
		return
	}
	if err := h.svc.CompleteOccurrence(ctx, def.ID, time.Now(), "", models.CompletionTaken); err != nil {
		h.sendMessage(msg.Chat.ID, "Could not record that, try again later")
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("💊 **%s** dose logged", def.Name))
}

func (h *Handlers) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	def, err := h.definitionByIndex(ctx, msg.CommandArguments())
	if err != nil {
		h.sendMessage(msg.Chat.ID, err.Error())
		return
	}

	to := time.Now()
	from := to.AddDate(0, 0, -6)
	recs, err := h.svc.CompletionHistory(ctx, def.ID, from, to)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Could not load the history, try again later")
		return
	}
	if len(recs) == 0 {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("No entries for **%s** in the last week", def.Name))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📖 **%s**, last 7 days\n\n", def.Name))
	for _, rec := range recs {
		sb.WriteString(rec.ScheduledDate.Format("Mon Jan 2"))
		if rec.ScheduledTime != "" {
			sb.WriteString(" " + rec.ScheduledTime)
		}
		switch rec.Status {
		case models.CompletionMissed:
			sb.WriteString(" ❌ missed")
		default:
			sb.WriteString(" ✅ " + string(rec.Status))
		}
		sb.WriteString("\n")
	}
	h.sendMessage(msg.Chat.ID, sb.String())
}

// HandleCallbackQuery records a completion from the inline "Done" button on
// a fired notification.
func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	answer := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(answer); err != nil {
		log.Printf("Failed to answer callback: %v", err)
	}

	parts := strings.Split(callback.Data, ":")
	if len(parts) != 3 || parts[0] != "occ_done" {
		return
	}
	subjectID, clock := parts[1], parts[2]

	def, err := h.svc.GetDefinition(ctx, subjectID)
	if err != nil || def == nil {
		h.editMessageText(callback.Message.Chat.ID, callback.Message.MessageID, "This reminder no longer exists")
		return
	}

	// Optimistic mark first so an immediately following /today already
	// shows the item as done.
	h.svc.MarkCompletedOptimistically(models.OverlayKey(subjectID, clock))
	if err := h.svc.CompleteOccurrence(ctx, subjectID, time.Now(), clock, completionFor(def.Kind)); err != nil {
		log.Printf("Failed to record completion for %s: %v", subjectID, err)
		return
	}

	h.editMessageText(callback.Message.Chat.ID, callback.Message.MessageID,
		fmt.Sprintf("✅ **%s** (%s) done", def.Name, clock))
}

func completionFor(kind models.Kind) models.CompletionStatus {
	if kind == models.KindMedicine {
		return models.CompletionTaken
	}
	return models.CompletionCompleted
}
