package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pathakanu/medremind/internal/model"
	myopenai "github.com/pathakanu/medremind/internal/openai"
)

const (
	tickSchedule = "* * * * *"
	tickWindow   = 60 * time.Second

	// Weekly retention sweep gate: Monday during the 01:00 hour. The sweep is
	// idempotent, so firing on every tick inside that hour is harmless.
	retentionDay  = time.Monday
	retentionHour = 1
)

// StartScheduler registers the per-minute reminder tick and starts the loop.
func (b *Bot) StartScheduler() error {
	if _, err := b.cron.AddFunc(tickSchedule, b.tick); err != nil {
		return err
	}
	b.cron.Start()
	return nil
}

// StopScheduler stops the cron scheduler gracefully.
func (b *Bot) StopScheduler() {
	ctx := b.cron.Stop()
	<-ctx.Done()
}

// tick runs one scan/deliver/prune cycle. Any failure is contained so the
// next tick always runs.
func (b *Bot) tick() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("scheduler: tick panic: %v", r)
		}
	}()

	b.tickAt(time.Now().In(b.cfg.LocalTimezone))
}

func (b *Bot) tickAt(now time.Time) {
	due, err := b.reminders.Sweep(now, tickWindow)
	if err != nil {
		b.logger.Printf("scheduler: %v", err)
	}
	for _, reminder := range due {
		b.deliver(reminder)
	}

	if shouldRunRetention(now) {
		b.RunRetentionSweep(now)
	}
}

func shouldRunRetention(now time.Time) bool {
	return now.Weekday() == retentionDay && now.Hour() == retentionHour
}

// RunRetentionSweep drops reminders whose trigger passed more than the
// configured retention window ago. Also invoked once at startup.
func (b *Bot) RunRetentionSweep(now time.Time) {
	maxAge := time.Duration(b.cfg.RetentionDays) * 24 * time.Hour
	removed, err := b.reminders.PruneExpired(now, maxAge)
	if err != nil {
		b.logger.Printf("scheduler: retention sweep: %v", err)
		return
	}
	if removed > 0 {
		b.logger.Printf("scheduler: retention sweep removed %d reminders", removed)
	}
}

// deliver sends one due reminder, best effort. A failure is logged and never
// blocks the remaining due reminders.
func (b *Bot) deliver(reminder model.Reminder) {
	text := "Reminder: " + reminder.Message

	if mediaURL := b.voiceNoteURL(text); mediaURL != "" {
		err := b.messenger.SendWhatsAppMedia(reminder.ChatID, text, mediaURL)
		if err == nil {
			return
		}
		b.logger.Printf("scheduler: send voice reminder to %s: %v", reminder.ChatID, err)
	}

	if err := b.messenger.SendWhatsAppMessage(reminder.ChatID, text); err != nil {
		b.logger.Printf("scheduler: send reminder to %s: %v", reminder.ChatID, err)
	}
}

// voiceNoteURL synthesizes the reminder as speech, saves it under the audio
// directory, and returns its public URL. Any failure degrades to a text-only
// reminder.
func (b *Bot) voiceNoteURL(text string) string {
	if b.cfg.PublicBaseURL == "" || b.cfg.AudioDir == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	audio, err := b.analyzer.Synthesize(ctx, text)
	if err != nil {
		if !errors.Is(err, myopenai.ErrClientNotInitialised) {
			b.logger.Printf("scheduler: synthesize voice note: %v", err)
		}
		return ""
	}

	name := fmt.Sprintf("reminder_%s.mp3", uuid.NewString())
	if err := os.WriteFile(filepath.Join(b.cfg.AudioDir, name), audio, 0o644); err != nil {
		b.logger.Printf("scheduler: write voice note: %v", err)
		return ""
	}
	return strings.TrimRight(b.cfg.PublicBaseURL, "/") + "/audio/" + name
}
