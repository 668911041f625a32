package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// ReminderDraft is the structured form of a free-text reminder request,
// e.g. "remind me to take aspirin at 8am and 8pm on weekdays".
type ReminderDraft struct {
	Kind       string   `json:"kind"`      // "medicine" or "habit"
	Name       string   `json:"name"`      // what to take or do
	DoseLabel  string   `json:"dose_label"`
	Frequency  string   `json:"frequency"`    // "daily", "interval" or "as_needed"
	DaysOfWeek []int    `json:"days_of_week"` // 0=Sunday .. 6=Saturday, for "interval"
	Times      []string `json:"times"`        // HH:MM, 24-hour
	StartDate  string   `json:"start_date"`   // YYYY-MM-DD, empty means today
	EndDate    string   `json:"end_date"`     // YYYY-MM-DD, empty means open-ended
	Confidence float64  `json:"confidence"`
	AIMessage  string   `json:"ai_message"` // friendly reply, or the question when unclear
	Unclear    bool     `json:"unclear"`    // true when the request cannot be parsed
}

const systemPromptTemplate = `You parse natural-language medication and habit reminder requests into a structured draft.

Current time: %s

Rules:
1. kind is "medicine" for anything taken (pills, drops, injections), "habit" for anything done (exercise, reading, water).
2. frequency: "daily" when no weekdays are named, "interval" with days_of_week when specific weekdays are named, "as_needed" only for medicines explicitly taken on demand.
3. times must be 24-hour HH:MM. Resolve phrases like "morning" to 08:00, "noon" to 12:00, "evening" to 20:00.
4. Resolve relative dates ("from tomorrow", "until Friday") against the current time into YYYY-MM-DD.
5. If the request is not a reminder, or lacks a name or any usable time for a timed frequency, set unclear=true and put a short follow-up question in ai_message.`

func systemPrompt() string {
	return fmt.Sprintf(systemPromptTemplate, time.Now().Format("2006-01-02 15:04 (Monday)"))
}

var draftSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"kind": {"type": "string", "enum": ["medicine", "habit"]},
		"name": {"type": "string"},
		"dose_label": {"type": "string"},
		"frequency": {"type": "string", "enum": ["daily", "interval", "as_needed"]},
		"days_of_week": {"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 6}},
		"times": {"type": "array", "items": {"type": "string", "pattern": "^\\d{2}:\\d{2}$"}},
		"start_date": {"type": "string"},
		"end_date": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"ai_message": {"type": "string"},
		"unclear": {"type": "boolean"}
	},
	"required": ["kind", "name", "frequency", "confidence", "unclear"],
	"additionalProperties": false
}`)

// ParseReminder turns a free-text message into a reminder draft.
func (c *Client) ParseReminder(ctx context.Context, userMessage string) (*ReminderDraft, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMessage,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "reminder_draft",
				Schema: draftSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	draft := &ReminderDraft{}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), draft); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return draft, nil
}
