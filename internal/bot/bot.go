// Package bot coordinates prescription ingestion, reminder scheduling, and
// the Twilio WhatsApp webhook.
package bot

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/pathakanu/medremind/internal/config"
	"github.com/pathakanu/medremind/internal/model"
	"github.com/pathakanu/medremind/internal/store"
)

// Analyzer is the language-model collaborator: extraction, summarization,
// OCR, and speech.
type Analyzer interface {
	ExtractMedicines(ctx context.Context, text string) (model.Prescription, error)
	SummarizeRecord(ctx context.Context, text string) (model.RecordSummary, error)
	OCRText(ctx context.Context, image []byte) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Messenger is the WhatsApp transport collaborator.
type Messenger interface {
	SendWhatsAppMessage(to, body string) error
	SendWhatsAppMedia(to, body, mediaURL string) error
	DownloadMedia(ctx context.Context, url string) ([]byte, error)
}

// Bot coordinates the stores, the model collaborators, and the scheduler.
type Bot struct {
	cfg       *config.Config
	reminders *store.ReminderStore
	records   *store.RecordStore
	analyzer  Analyzer
	messenger Messenger
	cron      *cron.Cron
	state     *sessionStore
	logger    *log.Logger
}

// New creates a fully configured Bot instance.
func New(cfg *config.Config, reminders *store.ReminderStore, records *store.RecordStore, analyzer Analyzer, messenger Messenger, logger *log.Logger) *Bot {
	c := cron.New(
		cron.WithLocation(cfg.LocalTimezone),
		// A tick must finish scanning, delivering, and pruning before the
		// next one starts.
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &Bot{
		cfg:       cfg,
		reminders: reminders,
		records:   records,
		analyzer:  analyzer,
		messenger: messenger,
		cron:      c,
		state:     newSessionStore(),
		logger:    logger,
	}
}

// Handler returns the HTTP handler for incoming Twilio messages.
func (b *Bot) Handler() http.HandlerFunc {
	return b.handleIncomingMessage
}

// handleIncomingMessage processes Twilio webhook POST requests.
func (b *Bot) handleIncomingMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		b.logger.Printf("webhook: parse error: %v", err)
		b.respond(w, "Sorry, I couldn't understand that request.")
		return
	}

	from := r.FormValue("From")
	body := strings.TrimSpace(r.FormValue("Body"))
	if from == "" {
		b.respond(w, "I need a message to work with. Please try again.")
		return
	}
	chatID := sanitizeWhatsAppNumber(from)

	numMedia, _ := strconv.Atoi(r.FormValue("NumMedia"))
	if numMedia > 0 {
		b.handleMedia(w, r, chatID, body)
		return
	}
	if body == "" {
		b.respond(w, "I need a message to work with. Please try again.")
		return
	}

	if b.state.HasPendingRemoval(chatID) {
		b.handleRemovalSelection(w, chatID, body)
		return
	}

	lower := strings.ToLower(body)
	switch {
	case isGreeting(lower):
		b.respond(w, welcomeResponse())
	case isListRequest(lower):
		b.respond(w, b.formatSchedules(chatID))
	case isRecordsRequest(lower):
		b.respond(w, b.formatRecords(chatID)...)
	case isRemoveRequest(lower):
		b.startRemoval(w, chatID)
	case looksLikePrescription(lower):
		_, reply := b.IngestText(r.Context(), chatID, body)
		b.respond(w, reply)
	default:
		b.respond(w, helpResponse())
	}
}

// handleMedia routes an inbound photo: a prescription-looking caption goes
// through the prescription pipeline, anything else is stored as a medical
// record.
func (b *Bot) handleMedia(w http.ResponseWriter, r *http.Request, chatID, caption string) {
	mediaURL := r.FormValue("MediaUrl0")
	if mediaURL == "" {
		b.respond(w, "I couldn't access that file. Please send it again.")
		return
	}

	image, err := b.messenger.DownloadMedia(r.Context(), mediaURL)
	if err != nil {
		b.logger.Printf("webhook: download media: %v", err)
		b.respond(w, "I couldn't download that file. Please try again.")
		return
	}

	lowerCaption := strings.ToLower(caption)
	if strings.Contains(lowerCaption, "prescription") || strings.Contains(lowerCaption, "medicine") {
		_, reply := b.IngestImage(r.Context(), chatID, image)
		b.respond(w, reply)
		return
	}

	fileName := mediaFileName(mediaURL, r.FormValue("MediaContentType0"))
	_, reply := b.IngestRecord(r.Context(), chatID, fileName, image)
	b.respond(w, reply)
}

// mediaFileName derives a stable file name from the Twilio media URL, whose
// last segment is the media SID. Re-forwarding the same upload therefore hits
// the duplicate check instead of storing a second copy.
func mediaFileName(mediaURL, contentType string) string {
	base := path.Base(mediaURL)
	if contentType == "image/png" {
		return base + ".png"
	}
	return base + ".jpg"
}

func (b *Bot) startRemoval(w http.ResponseWriter, chatID string) {
	schedules := b.reminders.ListForUser(chatID)
	if len(schedules) == 0 {
		b.respond(w, "You don't have any active medication reminders.")
		return
	}

	names := make([]string, len(schedules))
	var sb strings.Builder
	sb.WriteString("Your active medications:\n\n")
	for i, s := range schedules {
		names[i] = s.Medicine
		sb.WriteString(fmt.Sprintf("%d. %s (%s) - Times: %s\n", i+1, s.Medicine, s.Dosage, strings.Join(s.Times, ", ")))
	}
	sb.WriteString("\nReply with a number to remove that medication.")

	b.state.SetPendingRemoval(chatID, names)
	b.respond(w, sb.String())
}

func (b *Bot) handleRemovalSelection(w http.ResponseWriter, chatID, body string) {
	names, ok := b.state.PopPendingRemoval(chatID)
	if !ok {
		b.respond(w, "I lost track of that selection. Send 'remove' to start again.")
		return
	}

	index, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil || index < 1 || index > len(names) {
		b.state.SetPendingRemoval(chatID, names)
		b.respond(w, "Please reply with one of the listed numbers.")
		return
	}

	medicine := names[index-1]
	removed, err := b.reminders.RemoveMedicine(chatID, medicine)
	if err != nil {
		b.logger.Printf("remove medicine: %v", err)
		b.respond(w, "Failed to remove the reminders. Please try again.")
		return
	}
	if !removed {
		b.respond(w, fmt.Sprintf("No active reminders found for %s.", medicine))
		return
	}
	b.respond(w, fmt.Sprintf("Removed all reminders for %s.", medicine))
}

// formatSchedules renders the user's tracked medicines grouped with their
// daily times.
func (b *Bot) formatSchedules(chatID string) string {
	schedules := b.reminders.ListForUser(chatID)
	if len(schedules) == 0 {
		return "You are not tracking any medicines yet. Send me a prescription to get started!"
	}

	var sb strings.Builder
	sb.WriteString("Your medication schedule:\n")
	for _, s := range schedules {
		sb.WriteString(fmt.Sprintf("- %s (%s) at %s\n", s.Medicine, s.Dosage, strings.Join(s.Times, ", ")))
	}
	return sb.String()
}

// maxMessageLength keeps individual WhatsApp messages comfortably under the
// transport limit when a record listing grows long.
const maxMessageLength = 1500

// formatRecords renders the user's stored medical reports, split into
// multiple messages when the listing grows long.
func (b *Bot) formatRecords(chatID string) []string {
	reports := b.records.ListForUser(chatID)
	if len(reports) == 0 {
		return []string{"You don't have any medical records stored yet. Send me a photo of a report to add one."}
	}

	var sections []string
	for _, report := range reports {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("File: %s\n", report.FileName))
		sb.WriteString(fmt.Sprintf("Uploaded: %s\n", report.UploadTime.Format(model.TimeLayout)))
		details := report.Details
		sb.WriteString(fmt.Sprintf("Type: %s\n", fallback(details.Type, "Unspecified")))
		if details.Date != "" {
			sb.WriteString(fmt.Sprintf("Report date: %s\n", details.Date))
		}
		if len(details.KeyFindings) > 0 {
			sb.WriteString("Key findings:\n")
			for _, finding := range details.KeyFindings {
				sb.WriteString("- " + finding + "\n")
			}
		}
		if details.Summary != "" {
			sb.WriteString("Summary: " + details.Summary + "\n")
		}
		sections = append(sections, sb.String())
	}

	var messages []string
	current := "Your medical records:\n\n"
	for _, section := range sections {
		if len(current)+len(section) > maxMessageLength && current != "" {
			messages = append(messages, strings.TrimRight(current, "\n"))
			current = ""
		}
		current += section + "\n"
	}
	if strings.TrimSpace(current) != "" {
		messages = append(messages, strings.TrimRight(current, "\n"))
	}
	return messages
}

// respond writes a TwiML reply. Multiple messages become separate WhatsApp
// messages.
func (b *Bot) respond(w http.ResponseWriter, messages ...string) {
	twiml := struct {
		XMLName  xml.Name `xml:"Response"`
		Messages []string `xml:"Message"`
	}{
		Messages: messages,
	}

	w.Header().Set("Content-Type", "application/xml")
	if err := xml.NewEncoder(w).Encode(twiml); err != nil {
		b.logger.Printf("twilio response encode: %v", err)
	}
}

func isGreeting(body string) bool {
	switch body {
	case "hi", "hello", "hey", "start", "help":
		return true
	}
	return false
}

func isListRequest(body string) bool {
	return body == "list" || body == "medicines" ||
		strings.Contains(body, "list medicines") ||
		strings.Contains(body, "my medicines") ||
		strings.Contains(body, "show medicines")
}

func isRecordsRequest(body string) bool {
	return body == "records" ||
		strings.Contains(body, "medical records") ||
		strings.Contains(body, "view records") ||
		strings.Contains(body, "my records")
}

func isRemoveRequest(body string) bool {
	return body == "remove" ||
		strings.Contains(body, "remove medicine") ||
		strings.Contains(body, "remove reminder")
}

var prescriptionKeywords = []string{"mg", "tablet", "capsule", "twice", "daily", "bd", "tid", "qid"}

// looksLikePrescription reports whether free text plausibly contains medicine
// details worth extracting.
func looksLikePrescription(body string) bool {
	for _, keyword := range prescriptionKeywords {
		if strings.Contains(body, keyword) {
			return true
		}
	}
	return false
}

func sanitizeWhatsAppNumber(from string) string {
	// Twilio prepends whatsapp: to the number.
	return strings.TrimPrefix(from, "whatsapp:")
}

func fallback(primary, secondary string) string {
	if strings.TrimSpace(primary) == "" {
		return secondary
	}
	return primary
}

func welcomeResponse() string {
	return "Welcome to MedRemind, your personal medication assistant!\n\n" +
		"I can help you:\n" +
		"- Set medication reminders from prescriptions\n" +
		"- Store and summarize medical records\n" +
		"- Never miss a dose again\n\n" +
		"Send a prescription as text or photo to get started, or say:\n" +
		"- 'list' to see your medicines\n" +
		"- 'records' to see your medical records\n" +
		"- 'remove' to stop tracking a medicine"
}

func helpResponse() string {
	return "I'm not sure what you're sending. You can:\n" +
		"- Send a prescription as text or photo\n" +
		"- Send a medical report photo to store it\n" +
		"- Say 'list', 'records', or 'remove'\n" +
		"- Say 'help' for more detail"
}

// sessionStore tracks which users are mid-way through a removal selection.
// Only this short-lived menu state lives in memory; everything durable is in
// the file stores.
type sessionStore struct {
	mu      sync.RWMutex
	pending map[string][]string
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		pending: make(map[string][]string),
	}
}

func (s *sessionStore) SetPendingRemoval(chatID string, medicines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[chatID] = medicines
}

func (s *sessionStore) PopPendingRemoval(chatID string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	medicines, ok := s.pending[chatID]
	if !ok {
		return nil, false
	}
	delete(s.pending, chatID)
	return medicines, true
}

func (s *sessionStore) HasPendingRemoval(chatID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[chatID]
	return ok
}
