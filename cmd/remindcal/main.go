package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remindcal/internal/bot"
	"remindcal/internal/config"
	"remindcal/internal/docstore"
	"remindcal/internal/notify"
	"remindcal/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	docs, err := docstore.Open(db)
	if err != nil {
		log.Fatalf("docstore: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	notifier := notify.NewCronService(cfg.Timezone, nil)

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, docs, notifier, &cfg)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}
	notifier.SetSender(telegramBot.DeliverNotification)

	// Pending notifications don't survive a restart; rebind them before
	// anything else fires.
	if err := telegramBot.RestoreBindings(ctx); err != nil {
		log.Printf("restore bindings: %v", err)
	}

	if cfg.AgendaInterval > 0 {
		if _, err := notifier.ScheduleInterval(cfg.AgendaInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDailyAgendas(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("agenda: %v", err)
			}
		}); err != nil {
			log.Fatalf("schedule agenda: %v", err)
		}
	}
	notifier.Start()
	defer notifier.Stop()

	log.Println("Reminder calendar bot started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
