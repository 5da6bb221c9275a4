package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pathakanu/medremind/internal/bot"
	"github.com/pathakanu/medremind/internal/config"
	myopenai "github.com/pathakanu/medremind/internal/openai"
	"github.com/pathakanu/medremind/internal/store"
	"github.com/pathakanu/medremind/internal/twilio"
)

func main() {
	logger := log.New(os.Stdout, "[medremind] ", log.LstdFlags|log.Lshortfile)
	cfg := config.Load()

	for _, dir := range []string{cfg.DataDir, cfg.BackupDir, cfg.AudioDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatalf("create directory %s: %v", dir, err)
		}
	}

	reminders := store.NewReminderStore(cfg.DataDir, cfg.BackupDir, cfg.LocalTimezone, logger)
	records := store.NewRecordStore(cfg.DataDir, cfg.BackupDir, cfg.LocalTimezone, logger)
	openAIClient := myopenai.New(cfg.OpenAIAPIKey)
	twilioClient := twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber)

	reminderBot := bot.New(cfg, reminders, records, openAIClient, twilioClient, logger)

	// Initial cleanup before the loop starts.
	reminderBot.RunRetentionSweep(time.Now().In(cfg.LocalTimezone))

	if err := reminderBot.StartScheduler(); err != nil {
		logger.Fatalf("scheduler start: %v", err)
	}

	http.Handle("/twilio/webhook", reminderBot.Handler())
	http.Handle("/audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(cfg.AudioDir))))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: nil,
	}

	go func() {
		logger.Printf("server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(server, reminderBot, logger)
}

func waitForShutdown(server *http.Server, reminderBot *bot.Bot, logger *log.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}
	reminderBot.StopScheduler()
}
