// Package openai wraps the OpenAI SDK behind the collaborator operations the
// bot needs: prescription extraction, document summarization, OCR, and voice
// synthesis.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/pathakanu/medremind/internal/model"
)

// Client wraps the OpenAI SDK and provides utility helpers.
type Client struct {
	apiKey string
	client *openai.Client
	model  openai.ChatModel
}

// ErrClientNotInitialised is returned when attempting to call the API without a configured client.
var ErrClientNotInitialised = errors.New("openai client not initialised")

// New returns an OpenAI client when apiKey is provided, otherwise the client
// operates in a degraded mode where every call reports ErrClientNotInitialised.
func New(apiKey string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		apiKey: apiKey,
		client: &client,
		model:  openai.ChatModelGPT4oMini,
	}
}

const extractionPrompt = `Extract structured medical information from this prescription text. Provide details in JSON format with the following structure:
{
  "medicines": [
    {"name": "", "dosage": "", "frequency": ""}
  ],
  "notes": ""
}

Rules:
1. If frequency is not clear, assume "twice daily"
2. If dosage is not clear, assume "1 tablet"
3. Return an empty array if no medicines are found

Prescription Text:
`

// ExtractMedicines turns free-form prescription text into structured medicine
// entries. Unusable model output is an error; the caller treats any failure as
// "no medicines found".
func (c *Client) ExtractMedicines(ctx context.Context, text string) (model.Prescription, error) {
	if len(strings.TrimSpace(text)) < 5 {
		return model.Prescription{}, fmt.Errorf("prescription text too short")
	}
	if c.client == nil {
		return model.Prescription{}, ErrClientNotInitialised
	}

	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String("You extract structured data from medical prescriptions. Reply with JSON only."),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(extractionPrompt + text),
					},
				},
			},
		},
		Temperature:         openai.Float(0.1),
		MaxCompletionTokens: openai.Int(600),
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return model.Prescription{}, err
	}
	if len(resp.Choices) == 0 {
		return model.Prescription{}, fmt.Errorf("no completion received")
	}

	var prescription model.Prescription
	if err := unmarshalModelJSON(resp.Choices[0].Message.Content, &prescription); err != nil {
		return model.Prescription{}, fmt.Errorf("parse extraction response: %w", err)
	}
	return prescription, nil
}

const summaryPrompt = `Analyze this medical document thoroughly and provide a detailed summary. Structure the response as JSON with these fields:
{
  "type": "Report type (e.g., Blood Test, X-Ray)",
  "date": "Report date if available",
  "patient_info": "Brief patient info if present",
  "key_findings": ["List of important findings"],
  "diagnosis": ["List of diagnoses if any"],
  "recommendations": ["List of recommendations"],
  "summary": "Concise overall summary"
}

Document Text:
`

// SummarizeRecord produces a structured summary of a medical document. When
// the model answers with unusable JSON the raw text is preserved as a plain
// summary instead of failing the upload.
func (c *Client) SummarizeRecord(ctx context.Context, text string) (model.RecordSummary, error) {
	if strings.TrimSpace(text) == "" {
		return model.RecordSummary{}, fmt.Errorf("document text cannot be empty")
	}
	if c.client == nil {
		return model.RecordSummary{}, ErrClientNotInitialised
	}

	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(summaryPrompt + truncate(text, 10000)),
					},
				},
			},
		},
		Temperature:         openai.Float(0.2),
		MaxCompletionTokens: openai.Int(800),
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return model.RecordSummary{}, err
	}
	if len(resp.Choices) == 0 {
		return model.RecordSummary{}, fmt.Errorf("no completion received")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	var summary model.RecordSummary
	if err := unmarshalModelJSON(raw, &summary); err != nil {
		return model.RecordSummary{
			Type:    "Medical Record",
			Summary: truncate(raw, 500),
		}, nil
	}
	if strings.TrimSpace(summary.Type) == "" {
		summary.Type = "Medical Record"
	}
	return summary, nil
}

// OCRText transcribes the text visible in an image via a vision completion.
func (c *Client) OCRText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("image is empty")
	}
	if c.client == nil {
		return "", ErrClientNotInitialised
	}

	mimeType := http.DetectContentType(image)
	if mimeType != "image/jpeg" && mimeType != "image/png" {
		return "", fmt.Errorf("unsupported image format %s", mimeType)
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							{
								OfText: &openai.ChatCompletionContentPartTextParam{
									Text: "Transcribe every piece of text visible in this image. Return only the transcribed text, nothing else.",
								},
							},
							{
								OfImageURL: &openai.ChatCompletionContentPartImageParam{
									ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
										URL: dataURL,
									},
								},
							},
						},
					},
				},
			},
		},
		MaxCompletionTokens: openai.Int(1500),
	}

	ctx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion received")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Synthesize renders text as spoken MP3 audio.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if c.client == nil {
		return nil, ErrClientNotInitialised
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelTTS1,
		Voice:          openai.AudioSpeechNewParamsVoiceAlloy,
		Input:          text,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	return audio, nil
}

// unmarshalModelJSON decodes model output that may arrive fenced, prefixed
// with prose, or slightly malformed.
func unmarshalModelJSON(content string, v any) error {
	trimmed := stripCodeFences(content)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return fmt.Errorf("repair model JSON: %w", err)
	}
	return json.Unmarshal([]byte(repaired), v)
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
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
	return s[:cut]
}
