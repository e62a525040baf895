package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remindcal/internal/calendar"
	"remindcal/internal/model"
)

var weekdayHeader = []string{"Su", "Mo", "Tu", "We", "Th", "Fr", "Sa"}

func (b *Bot) sendCalendar(st *userState, chatID int64) error {
	text, markup := b.renderCalendar(st)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) editCalendar(st *userState, chatID int64, messageID int) error {
	text, markup := b.renderCalendar(st)
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	edit.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(edit)
	return err
}

// renderCalendar builds the month header and the day-grid keyboard. Each
// cell derives its today/selected/reminder-count decoration on the fly;
// nothing about the grid is stored.
func (b *Bot) renderCalendar(st *userState) (string, tgbotapi.InlineKeyboardMarkup) {
	now := time.Now().In(b.location())
	reminders := st.store.Reminders()

	text := fmt.Sprintf("📅 <b>%s</b>", st.viewing.Format("January 2006"))
	if err := st.store.Err(); err != nil {
		text += "\n⚠️ Live updates are failing; showing the last known data. Reopen /calendar to retry."
	}

	var rows [][]tgbotapi.InlineKeyboardButton

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️", cbNavPrefix+"-1"),
		tgbotapi.NewInlineKeyboardButtonData(st.viewing.Format("Jan 2006"), cbNoop),
		tgbotapi.NewInlineKeyboardButtonData("▶️", cbNavPrefix+"1"),
	))

	var header []tgbotapi.InlineKeyboardButton
	for _, wd := range weekdayHeader {
		header = append(header, tgbotapi.NewInlineKeyboardButtonData(wd, cbNoop))
	}
	rows = append(rows, header)

	grid := calendar.MonthGrid(st.viewing.Year(), st.viewing.Month(), b.location())
	for week := 0; week < len(grid)/7; week++ {
		var row []tgbotapi.InlineKeyboardButton
		for col := 0; col < 7; col++ {
			day := grid[week*7+col]
			if day.IsZero() {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", cbNoop))
				continue
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				dayLabel(day, st.selected, now, reminders),
				cbDayPrefix+day.Format(dayFormat),
			))
		}
		rows = append(rows, row)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➕ Add on "+st.selected.Format("Jan 2"), cbAdd),
	))

	return text, tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// dayLabel decorates a cell: 「d」 for today, ·d· for the selected day, a
// trailing dot when the day has reminders.
func dayLabel(day, selected, now time.Time, reminders []model.Reminder) string {
	label := strconv.Itoa(day.Day())
	if calendar.CountOn(reminders, day) > 0 {
		label += "•"
	}
	switch {
	case calendar.IsToday(day, now):
		label = "「" + label + "」"
	case calendar.SameDay(day, selected):
		label = "·" + label + "·"
	}
	return label
}

// sendDayList shows the selected day's reminders with edit/delete buttons.
func (b *Bot) sendDayList(st *userState, chatID int64) error {
	now := time.Now().In(b.location())
	reminders := st.store.RemindersOn(st.selected)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🗓 <b>%s</b>\n", st.selected.Format("Monday, January 2, 2006")))
	if err := st.store.Err(); err != nil {
		builder.WriteString("⚠️ Live updates are failing; this is the last known data.\n")
	}

	if len(reminders) == 0 {
		builder.WriteString("\nNo reminders for this date. Tap below to add one.")
	} else {
		builder.WriteString(fmt.Sprintf("%d reminder(s)\n\n", len(reminders)))
		for _, r := range reminders {
			icon := "🔔"
			if r.Past(now) {
				icon = "🕰"
			}
			builder.WriteString(fmt.Sprintf("%s <b>%s</b> — %s", icon, escape(r.Title), r.Date.Format(timeFormat)))
			if r.Past(now) {
				builder.WriteString(" <i>(past)</i>")
			}
			if r.Description != "" {
				builder.WriteString(fmt.Sprintf("\n   📝 %s", escape(r.Description)))
			}
			builder.WriteByte('\n')
		}
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, r := range reminders {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ "+shortTitle(r.Title, 20), cbEditPrefix+r.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", cbDeletePrefix+r.ID),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➕ Add reminder", cbAdd),
	))

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err := b.api.Send(msg)
	return err
}

func shortTitle(title string, maxLen int) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-1]) + "…"
}
