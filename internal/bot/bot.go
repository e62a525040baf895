package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"remindcal/internal/apperr"
	"remindcal/internal/auth"
	"remindcal/internal/calendar"
	"remindcal/internal/config"
	"remindcal/internal/controller"
	"remindcal/internal/docstore"
	"remindcal/internal/model"
	"remindcal/internal/notify"
	"remindcal/internal/repository"
	"remindcal/internal/store"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageDate
	stageTime
)

const (
	cbNavPrefix    = "nav:"
	cbDayPrefix    = "day:"
	cbEditPrefix   = "edit:"
	cbDeletePrefix = "delete:"
	cbAdd          = "add"
	cbNoop         = "noop"
)

const (
	btnSkip         = "⏭️ Skip"
	btnConfirm      = "✅ Confirm"
	btnCancel       = "↩️ Cancel"
	menuCalendar    = "📅 Calendar"
	menuNewReminder = "➕ New reminder"
	menuReminders   = "📋 Reminders"
	menuHelp        = "ℹ️ Help"

	dayFormat  = "2006-01-02"
	timeFormat = "15:04"
)

type conversationState struct {
	stage     conversationStage
	editingID string
	input     controller.Input
}

// userState is one user's view session: identity, live reminder cache,
// controller and the calendar cursor.
type userState struct {
	user     *model.User
	session  *auth.Memory
	store    *store.ReminderStore
	ctrl     *controller.ReminderController
	viewing  time.Time // first day of the displayed month
	selected time.Time

	conversation  *conversationState
	pendingDelete string // reminder id awaiting confirmation, empty when none
}

// Bot aggregates the Telegram API with the reminder pipeline.
type Bot struct {
	api      *tgbotapi.BotAPI
	userRepo *repository.UserRepository
	docs     docstore.Store
	notifier notify.Service
	config   *config.Config

	mu     sync.Mutex
	states map[int64]*userState
}

func New(token string, userRepo *repository.UserRepository, docs docstore.Store, notifier notify.Service, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:      api,
		userRepo: userRepo,
		docs:     docs,
		notifier: notifier,
		config:   cfg,
		states:   make(map[int64]*userState),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

// DeliverNotification sends a fired reminder notification to its chat. Wired
// into the notification service as its sender.
func (b *Bot) DeliverNotification(p notify.Payload) {
	text := fmt.Sprintf("<b>%s</b>\n%s", escape(p.Title), escape(p.Body))
	msg := tgbotapi.NewMessage(p.ChatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("[warn] deliver notification: %v", err)
	}
}

// RestoreBindings reschedules notifications for every known user's future
// reminders. Run once at startup, before polling.
func (b *Bot) RestoreBindings(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, user := range users {
		st := b.buildState(&user)
		if err := st.ctrl.Restore(ctx); err != nil {
			log.Printf("[warn] restore bindings for user %d: %v", user.ID, err)
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	st, err := b.state(ctx, msg.From)
	if err != nil {
		return err
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, st, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, st, msg); handled {
		return err
	}

	if st.pendingDelete != "" {
		return b.handleDeleteConfirmation(ctx, st, msg)
	}

	if st.conversation != nil {
		return b.handleConversation(ctx, st, msg)
	}

	return b.sendText(msg.Chat.ID, "I didn't catch that. Use /remind to add a reminder or /help for the commands.")
}

func (b *Bot) handleCommand(ctx context.Context, st *userState, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(st, msg)
	case "help":
		return b.handleHelp(msg)
	case "calendar":
		return b.sendCalendar(st, msg.Chat.ID)
	case "remind":
		return b.startConversation(st, msg.Chat.ID, "")
	case "reminders":
		return b.sendDayList(st, msg.Chat.ID)
	case "agenda":
		return b.sendAgenda(ctx, st, msg.Chat.ID)
	case "signout":
		return b.handleSignOut(st, msg)
	case "cancel":
		st.conversation = nil
		st.pendingDelete = ""
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(st *userState, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I keep your calendar reminders and ping you when they fire.</b>\n\nCommands:\n"+
			"• /calendar — browse the month grid\n"+
			"• /remind — add a reminder\n"+
			"• /reminders — reminders on the selected day\n"+
			"• /agenda — today's agenda\n"+
			"• /cancel — abort the current input\n"+
			"• /help — hints",
		escape(name),
	)

	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Hints</b>\n" +
		"• /calendar — month view; tap a day to select it, ◀️/▶️ to change month\n" +
		"• /remind — add a reminder step by step (title, description, date, time)\n" +
		"• /reminders — list the selected day, edit or delete from the buttons\n" +
		"• /agenda — everything scheduled for today\n" +
		"• /signout — forget this session and clear cached data\n" +
		"• /cancel — abort the current input\n\n" +
		"Past reminders stay listed and editable, they are just flagged."
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleSignOut(st *userState, msg *tgbotapi.Message) error {
	st.session.SignOut()
	st.store.Cancel()
	b.mu.Lock()
	delete(b.states, st.user.TelegramID)
	b.mu.Unlock()
	return b.sendText(msg.Chat.ID, "👋 Signed out. Send /start to begin again.")
}

func (b *Bot) handleMenuAlias(ctx context.Context, st *userState, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuCalendar:
		return true, b.sendCalendar(st, msg.Chat.ID)
	case menuNewReminder:
		return true, b.startConversation(st, msg.Chat.ID, "")
	case menuReminders:
		return true, b.sendDayList(st, msg.Chat.ID)
	case menuHelp:
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil || cb.Message == nil {
		return nil
	}
	// Acknowledge so the client stops its spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("[warn] answer callback: %v", err)
	}

	st, err := b.state(ctx, cb.From)
	if err != nil {
		return err
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	switch {
	case data == cbNoop:
		return nil
	case data == cbAdd:
		return b.startConversation(st, chatID, "")
	case strings.HasPrefix(data, cbNavPrefix):
		delta := 1
		if strings.TrimPrefix(data, cbNavPrefix) == "-1" {
			delta = -1
		}
		st.viewing = calendar.NavigateMonth(st.viewing, delta)
		return b.editCalendar(st, chatID, cb.Message.MessageID)
	case strings.HasPrefix(data, cbDayPrefix):
		day, err := time.ParseInLocation(dayFormat, strings.TrimPrefix(data, cbDayPrefix), b.location())
		if err != nil {
			return nil
		}
		st.selected = day
		return b.sendDayList(st, chatID)
	case strings.HasPrefix(data, cbEditPrefix):
		return b.startConversation(st, chatID, strings.TrimPrefix(data, cbEditPrefix))
	case strings.HasPrefix(data, cbDeletePrefix):
		return b.askDeleteConfirmation(st, chatID, strings.TrimPrefix(data, cbDeletePrefix))
	default:
		return nil
	}
}

// askDeleteConfirmation is the mandatory gate before Remove: nothing is
// deleted until the user answers the confirm keyboard.
func (b *Bot) askDeleteConfirmation(st *userState, chatID int64, reminderID string) error {
	title := "this reminder"
	for _, r := range st.store.Reminders() {
		if r.ID == reminderID {
			title = fmt.Sprintf("“%s”", r.Title)
			break
		}
	}
	st.pendingDelete = reminderID
	text := fmt.Sprintf("🗑 Delete %s?", escape(title))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleDeleteConfirmation(ctx context.Context, st *userState, msg *tgbotapi.Message) error {
	reminderID := st.pendingDelete
	text := strings.TrimSpace(msg.Text)
	switch text {
	case btnConfirm:
		st.pendingDelete = ""
		if reminderID == "" {
			// Stale confirmation after a reset: no-op.
			return b.sendMenu(msg.Chat.ID)
		}
		err := st.ctrl.Remove(ctx, reminderID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			return b.sendText(msg.Chat.ID, "That reminder was already gone. Refreshing from the latest data.")
		case errors.Is(err, apperr.ErrBusy):
			st.pendingDelete = reminderID
			return b.sendText(msg.Chat.ID, "Still working on the previous action, try again in a moment.")
		case err != nil:
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Failed to delete: %s", escape(err.Error())))
		}
		return b.sendText(msg.Chat.ID, "✅ Reminder deleted and its notification cancelled.")
	case btnCancel:
		st.pendingDelete = ""
		return b.sendMenu(msg.Chat.ID)
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Tap Confirm or Cancel.", confirmKeyboard())
	}
}

// startConversation begins the add or edit dialog. For edits the current
// values become the skip defaults.
func (b *Bot) startConversation(st *userState, chatID int64, editingID string) error {
	convo := &conversationState{stage: stageTitle, editingID: editingID}

	defaultDay := st.selected
	if defaultDay.IsZero() {
		defaultDay = time.Now().In(b.location())
	}
	convo.input.Date = time.Date(defaultDay.Year(), defaultDay.Month(), defaultDay.Day(), 0, 0, 0, 0, b.location())
	convo.input.Time = time.Date(0, 1, 1, 12, 0, 0, 0, b.location())

	prompt := "🆕 New reminder.\n<b>Step 1:</b> what should I call it?"
	if editingID != "" {
		found := false
		for _, r := range st.store.Reminders() {
			if r.ID == editingID {
				convo.input.Title = r.Title
				convo.input.Description = r.Description
				convo.input.Date = r.Date
				convo.input.Time = r.Date
				found = true
				break
			}
		}
		if !found {
			return b.sendText(chatID, "That reminder no longer exists. It may have been deleted on another device.")
		}
		prompt = fmt.Sprintf("✏️ Editing “%s”.\n<b>Step 1:</b> new title? (Skip keeps it.)", escape(convo.input.Title))
	}

	st.conversation = convo
	return b.sendWithReplyMarkup(chatID, prompt, skipKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, st *userState, msg *tgbotapi.Message) error {
	convo := st.conversation
	if convo == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch convo.stage {
	case stageTitle:
		if !isSkip(text) {
			convo.input.Title = text
		} else if convo.editingID == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "A title is required — nothing to skip yet.", skipKeyboard())
		}
		convo.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or Skip).", skipKeyboard())
	case stageDescription:
		if !isSkip(text) {
			convo.input.Description = text
		}
		convo.stage = stageDate
		return b.sendWithReplyMarkup(msg.Chat.ID,
			fmt.Sprintf("📆 Which day? Format <code>%s</code> (Skip keeps %s).",
				dayFormat, convo.input.Date.Format(dayFormat)),
			skipKeyboard())
	case stageDate:
		if !isSkip(text) {
			parsed, err := time.ParseInLocation(dayFormat, text, b.location())
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID,
					fmt.Sprintf("I can't read that date. Use <code>%s</code> or Skip.", dayFormat), skipKeyboard())
			}
			convo.input.Date = parsed
		}
		convo.stage = stageTime
		return b.sendWithReplyMarkup(msg.Chat.ID,
			fmt.Sprintf("⏰ What time? Format <code>%s</code> (Skip keeps %s).",
				timeFormat, convo.input.Time.Format(timeFormat)),
			skipKeyboard())
	case stageTime:
		if !isSkip(text) {
			parsed, err := time.ParseInLocation(timeFormat, text, b.location())
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID,
					fmt.Sprintf("I can't read that time. Use <code>%s</code> or Skip.", timeFormat), skipKeyboard())
			}
			convo.input.Time = parsed
		}
		return b.finishSave(ctx, st, msg.Chat.ID)
	default:
		st.conversation = nil
		return b.sendText(msg.Chat.ID, "Dialog reset. Try again with /remind.")
	}
}

func (b *Bot) finishSave(ctx context.Context, st *userState, chatID int64) error {
	convo := st.conversation
	res, err := st.ctrl.Save(ctx, convo.input, convo.editingID)

	if err != nil {
		// The entered data stays in the conversation; nothing is lost.
		if ve, ok := apperr.IsValidation(err); ok {
			switch ve.Field {
			case apperr.FieldTitle:
				convo.stage = stageTitle
				return b.sendWithReplyMarkup(chatID, "The title can't be empty. What should I call it?", skipKeyboard())
			case apperr.FieldDate:
				convo.stage = stageDate
				return b.sendWithReplyMarkup(chatID,
					fmt.Sprintf("⚠️ That moment is already in the past. Pick a future day (<code>%s</code>).", dayFormat),
					skipKeyboard())
			default:
				convo.stage = stageDescription
				return b.sendWithReplyMarkup(chatID, fmt.Sprintf("⚠️ %s. Try again.", escape(ve.Reason)), skipKeyboard())
			}
		}
		switch {
		case errors.Is(err, apperr.ErrBusy):
			return b.sendText(chatID, "The previous save is still running; this one was ignored.")
		case errors.Is(err, apperr.ErrNotFound):
			st.conversation = nil
			return b.sendText(chatID, "That reminder no longer exists, so there was nothing to update.")
		default:
			convo.stage = stageTime
			return b.sendText(chatID, fmt.Sprintf("Couldn't save: %s\nSend the time again to retry.", escape(err.Error())))
		}
	}

	st.conversation = nil

	var summary strings.Builder
	if convo.editingID != "" {
		summary.WriteString("✅ <b>Reminder updated</b>\n")
	} else {
		summary.WriteString("✅ <b>Reminder saved</b>\n")
	}
	summary.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(res.Reminder.Title)))
	if res.Reminder.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(res.Reminder.Description)))
	}
	summary.WriteString(fmt.Sprintf("• <b>When:</b> %s\n", res.Reminder.Date.Format("Monday, January 2 at 15:04")))
	if res.Warning != nil {
		summary.WriteString("\n⚠️ Saved, but I couldn't schedule the notification — it won't ping you on its own.")
	}

	reply := tgbotapi.NewMessage(chatID, strings.TrimSpace(summary.String()))
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyMarkup = mainMenuKeyboard()
	_, err = b.api.Send(reply)
	return err
}

// state returns (building if needed) the per-user session state.
func (b *Bot) state(ctx context.Context, from *tgbotapi.User) (*userState, error) {
	b.mu.Lock()
	if st, ok := b.states[from.ID]; ok {
		b.mu.Unlock()
		return st, nil
	}
	b.mu.Unlock()

	user, err := b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	st := b.buildState(user)
	st.store.Subscribe(st.session)

	b.mu.Lock()
	b.states[from.ID] = st
	b.mu.Unlock()
	return st, nil
}

// buildState wires the reminder pipeline for one user without subscribing.
func (b *Bot) buildState(user *model.User) *userState {
	session := auth.NewMemory(user.UID)
	cache := store.NewReminderStore(b.docs, b.location())
	scheduler := notify.NewScheduler(b.notifier, user.TelegramID)
	ctrl := controller.New(b.docs, scheduler, cache, session)

	now := time.Now().In(b.location())
	return &userState{
		user:     user,
		session:  session,
		store:    cache,
		ctrl:     ctrl,
		viewing:  time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, b.location()),
		selected: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, b.location()),
	}
}

func (b *Bot) location() *time.Location {
	if b.config != nil && b.config.Timezone != nil {
		return b.config.Timezone
	}
	return time.Local
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenu(chatID int64) error {
	return b.sendText(chatID, "What next?")
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
	)
	kb.OneTimeKeyboard = true
	return kb
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuCalendar),
			tgbotapi.NewKeyboardButton(menuNewReminder),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuReminders),
			tgbotapi.NewKeyboardButton(menuHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func isSkip(text string) bool {
	return text == btnSkip || strings.EqualFold(text, "skip") || text == "-"
}

func escape(s string) string {
	return html.EscapeString(s)
}
