package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nikiramandika/alera-sub000/internal/ai"
	"github.com/nikiramandika/alera-sub000/internal/bot"
	"github.com/nikiramandika/alera-sub000/internal/config"
	"github.com/nikiramandika/alera-sub000/internal/database"
	"github.com/nikiramandika/alera-sub000/internal/dispatch"
	"github.com/nikiramandika/alera-sub000/internal/notify"
	"github.com/nikiramandika/alera-sub000/internal/overlay"
	"github.com/nikiramandika/alera-sub000/internal/repository"
	"github.com/nikiramandika/alera-sub000/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURI == "" {
		log.Fatal("DATABASE_URI is required")
	}
	if cfg.TelegramToken == "" {
		log.Fatal("TELEGRAM_TOKEN is required")
	}
	if cfg.TelegramChatID == 0 {
		log.Fatal("TELEGRAM_CHAT_ID is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	var aiClient *ai.Client
	if cfg.AIAPIKey != "" {
		aiClient = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		log.Printf("AI client initialized (model: %s)", cfg.AIModel)
	} else {
		log.Println("AI client not configured, natural language entry disabled")
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatalf("Failed to create Telegram API: %v", err)
	}

	reminderRepo := repository.NewReminderRepository(db)
	completionRepo := repository.NewCompletionRepository(db)
	jobRepo := repository.NewJobRepository(db)

	ov := overlay.New(overlay.DefaultTTL)
	alarms := dispatch.NewTimerAlarms()
	notifier := notify.NewTelegramNotifier(api, cfg.TelegramChatID)

	dispatcher := dispatch.New(jobRepo, alarms, notifier, dispatch.SystemClock, dispatch.Config{
		ForegroundSweep: cfg.ForegroundSweep,
		BackgroundSweep: cfg.BackgroundSweep,
	})
	alarms.Bind(dispatcher.HandleAlarm)

	svc := schedule.NewService(reminderRepo, completionRepo, ov, dispatcher)

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	// Catch up with definition edits that happened while the process was
	// down; armed alarms did not survive the restart either way.
	if err := svc.ResyncJobs(ctx); err != nil {
		log.Printf("Failed to resync notification jobs: %v", err)
	}

	b, err := bot.New(api, svc, aiClient, cfg.TelegramChatID)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	log.Println("Starting bot...")
	if err := b.Start(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Bot error: %v", err)
	}
}
