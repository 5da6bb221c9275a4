package bot

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pathakanu/medremind/internal/model"
	"github.com/pathakanu/medremind/internal/schedule"
)

// minPrescriptionLength rejects inputs too short to be a real prescription.
const minPrescriptionLength = 10

// IngestText runs prescription text through extraction and installs the
// derived reminders. The returned string is the user-facing reply.
func (b *Bot) IngestText(ctx context.Context, chatID, text string) (bool, string) {
	text = strings.TrimSpace(text)
	if len(text) < minPrescriptionLength {
		return false, "Prescription text is too short. Please provide more details."
	}
	return b.ingest(ctx, chatID, text)
}

// IngestImage OCRs a prescription photo and feeds the text through the same
// pipeline as IngestText.
func (b *Bot) IngestImage(ctx context.Context, chatID string, image []byte) (bool, string) {
	text, err := b.analyzer.OCRText(ctx, image)
	if err != nil {
		b.logger.Printf("ingest: ocr: %v", err)
		return false, "I couldn't process the image. Please try again with a clearer photo."
	}
	text = strings.TrimSpace(text)
	if len(text) < minPrescriptionLength {
		return false, "I couldn't read text from the image. Please send a clearer photo."
	}

	ok, reply := b.ingest(ctx, chatID, text)
	if ok {
		reply = "Extracted prescription text:\n\n" + truncate(text, 1000) + "\n\n" + reply
	}
	return ok, reply
}

// ingest is the shared pipeline tail: extract medicines, resolve slots, and
// replace each medicine's reminder group.
func (b *Bot) ingest(ctx context.Context, chatID, text string) (bool, string) {
	prescription, err := b.analyzer.ExtractMedicines(ctx, text)
	if err != nil {
		b.logger.Printf("ingest: extract medicines: %v", err)
	}
	if len(prescription.Medicines) == 0 {
		return false, noMedicinesResponse()
	}

	now := time.Now().In(b.cfg.LocalTimezone)
	var lines []string
	for _, medicine := range prescription.Medicines {
		name := strings.TrimSpace(medicine.Name)
		if name == "" {
			// A nameless entry is skipped without failing the batch.
			continue
		}
		medicine = medicine.WithDefaults()

		slots := schedule.Resolve(medicine.Frequency)
		reminders := make([]model.Reminder, 0, len(slots))
		for _, slot := range slots {
			reminders = append(reminders, model.Reminder{
				ChatID:    chatID,
				Medicine:  name,
				Dosage:    medicine.Dosage,
				Message:   fmt.Sprintf("Take %s %s", name, medicine.Dosage),
				Time:      model.NewTimestamp(slot.At(now)),
				CreatedAt: model.NewTimestamp(now),
			})
		}

		if err := b.reminders.ReplaceForMedicine(chatID, name, reminders); err != nil {
			b.logger.Printf("ingest: replace reminders for %s: %v", name, err)
			return false, "Failed to set reminders. Please try again. No reminders were changed."
		}
		lines = append(lines, fmt.Sprintf("- %s (%s) - %s", name, medicine.Dosage, capitalize(strings.ToLower(medicine.Frequency))))
	}

	if len(lines) == 0 {
		return false, noMedicinesResponse()
	}

	reply := "Prescription processed successfully!\n\n" +
		"Medicines detected:\n" + strings.Join(lines, "\n") + "\n\n" +
		"Reminders have been set. You'll receive a message at each dose time."
	if notes := strings.TrimSpace(prescription.Notes); notes != "" {
		reply += "\n\nDoctor's notes:\n" + notes
	}
	return true, reply
}

// IngestRecord OCRs and summarizes a medical report photo and stores it under
// the user's history.
func (b *Bot) IngestRecord(ctx context.Context, chatID, fileName string, image []byte) (bool, string) {
	text, err := b.analyzer.OCRText(ctx, image)
	if err != nil {
		b.logger.Printf("record: ocr: %v", err)
		return false, "I couldn't process the document. Please try again."
	}
	if strings.TrimSpace(text) == "" {
		return false, "No text detected in the image. Please upload a clearer document."
	}

	summary, err := b.analyzer.SummarizeRecord(ctx, text)
	if err != nil {
		b.logger.Printf("record: summarize: %v", err)
		summary = model.RecordSummary{
			Type:    "Medical Record",
			Summary: "Could not analyze this document automatically. Please consult your doctor.",
		}
	}

	added, err := b.records.AddReport(chatID, fileName, summary)
	if err != nil {
		b.logger.Printf("record: add report: %v", err)
		return false, "Failed to save the medical record. Please try again."
	}
	if !added {
		return false, "That document is already in your records."
	}
	return true, formatUploadedRecord(summary)
}

func formatUploadedRecord(summary model.RecordSummary) string {
	var sb strings.Builder
	sb.WriteString("Medical record uploaded successfully!\n\n")
	sb.WriteString("Type: " + fallback(summary.Type, "Unknown") + "\n")
	if summary.Date != "" {
		sb.WriteString("Date: " + summary.Date + "\n")
	}
	if len(summary.KeyFindings) > 0 {
		sb.WriteString("\nKey findings:\n")
		for _, finding := range summary.KeyFindings {
			sb.WriteString("- " + finding + "\n")
		}
	}
	if len(summary.Diagnosis) > 0 {
		sb.WriteString("\nDiagnosis:\n")
		for _, diagnosis := range summary.Diagnosis {
			sb.WriteString("- " + diagnosis + "\n")
		}
	}
	if len(summary.Recommendations) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, recommendation := range summary.Recommendations {
			sb.WriteString("- " + recommendation + "\n")
		}
	}
	sb.WriteString("\nSummary: " + fallback(summary.Summary, "No summary available"))
	return sb.String()
}

func noMedicinesResponse() string {
	return "No medicines detected in the prescription. Please ensure:\n" +
		"- The text is clear and complete\n" +
		"- Medicine names are visible\n" +
		"- Or send the prescription as text if the photo isn't clear"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// truncate cuts s to at most max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
