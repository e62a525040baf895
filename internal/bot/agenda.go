package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remindcal/internal/calendar"
	"remindcal/internal/model"
	"remindcal/internal/store"
)

// SendDailyAgendas pushes today's agenda to every known user. Driven by the
// interval scheduler in main.
func (b *Bot) SendDailyAgendas(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	now := time.Now().In(b.location())
	for _, user := range users {
		reminders, err := b.todaysReminders(ctx, user.UID, now)
		if err != nil {
			log.Printf("[warn] agenda for user %d: %v", user.ID, err)
			continue
		}
		if len(reminders) == 0 {
			continue
		}
		msg := tgbotapi.NewMessage(user.TelegramID, formatAgenda(reminders, now))
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := b.api.Send(msg); err != nil {
			log.Printf("[warn] send agenda to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) sendAgenda(ctx context.Context, st *userState, chatID int64) error {
	now := time.Now().In(b.location())
	reminders, err := b.todaysReminders(ctx, st.user.UID, now)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Couldn't build the agenda: %s", escape(err.Error())))
	}
	if len(reminders) == 0 {
		return b.sendText(chatID, "🌤 Nothing scheduled for today.")
	}
	return b.sendText(chatID, formatAgenda(reminders, now))
}

func (b *Bot) todaysReminders(ctx context.Context, uid string, now time.Time) ([]model.Reminder, error) {
	docs, err := b.docs.List(ctx, store.CollectionPath(uid), store.FieldDate)
	if err != nil {
		return nil, err
	}
	var today []model.Reminder
	for _, doc := range docs {
		r := store.DecodeReminder(doc, now.Location())
		if calendar.SameDay(r.Date, now) {
			today = append(today, r)
		}
	}
	return today, nil
}

func formatAgenda(reminders []model.Reminder, now time.Time) string {
	var builder strings.Builder
	builder.WriteString("📋 <b>Today's agenda</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("Monday, January 2")))

	for _, r := range reminders {
		icon := "🔔"
		if r.Past(now) {
			icon = "✔️"
		}
		builder.WriteString(fmt.Sprintf("%s %s — <b>%s</b>", icon, r.Date.Format(timeFormat), escape(strings.TrimSpace(r.Title))))
		if r.Description != "" {
			builder.WriteString(fmt.Sprintf("\n   📝 %s", escape(strings.TrimSpace(r.Description))))
		}
		builder.WriteByte('\n')
	}

	return strings.TrimSpace(builder.String())
}
