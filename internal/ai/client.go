// Package ai consults a chat-completion model for advisory features
// such as swap suggestions, schedule warnings, an assistant chat and
// slot title generation.  The model's output is never authoritative:
// callers degrade to empty results when the service is unavailable or
// returns something unparseable.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "llama-3.3-70b-versatile"
)

// Client talks to a Groq (OpenAI-compatible) chat completion endpoint.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	hc      *http.Client
	logger  *zap.Logger
}

// NewClient builds a Client.  An empty apiKey yields a disabled client:
// every call returns empty advisory results without touching the network.
func NewClient(apiKey, model, baseURL string, logger *zap.Logger) *Client {
	if model == "" {
		model = defaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 20 * time.Second},
		logger:  logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// SlotSummary is the slice of slot data exposed to the model.
type SlotSummary struct {
	ID        uint64
	Title     string
	StartsAt  time.Time
	EndsAt    time.Time
	OwnerName string
}

// SlotSuggestion is one proposed pairing between the caller's slot and
// another user's slot, with the model's reasoning.
type SlotSuggestion struct {
	TargetSlotID       string  `json:"target_slot_id"`
	MySlotID           string  `json:"my_slot_id"`
	Reason             string  `json:"reason"`
	CompatibilityScore float64 `json:"compatibility_score"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends a single-user-message completion request and returns
// the raw content of the first choice.
func (c *Client) complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	return c.completeMessages(ctx, []chatMessage{{Role: "user", Content: prompt}}, temperature, maxTokens)
}

func (c *Client) completeMessages(ctx context.Context, msgs []chatMessage, temperature float64, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion: unexpected status %d", resp.StatusCode)
	}
	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", nil
	}
	return cr.Choices[0].Message.Content, nil
}

// extractJSONArray pulls the first JSON array out of a model response
// that may be wrapped in prose or code fences.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func formatSlotLine(i int, s SlotSummary, withOwner bool) string {
	if withOwner {
		return fmt.Sprintf("%d. ID: %d, %s by %s (%s - %s)", i+1, s.ID, s.Title, s.OwnerName,
			s.StartsAt.Format(time.RFC1123), s.EndsAt.Format(time.RFC1123))
	}
	return fmt.Sprintf("%d. ID: %d, %s (%s - %s)", i+1, s.ID, s.Title,
		s.StartsAt.Format(time.RFC1123), s.EndsAt.Format(time.RFC1123))
}

// SwapSuggestions asks the model for up to three swap pairings between
// the caller's swappable slots and other users' offerings.  It returns
// an empty slice when disabled or when the response cannot be parsed.
func (c *Client) SwapSuggestions(ctx context.Context, mine, available []SlotSummary) ([]SlotSuggestion, error) {
	if !c.Enabled() || len(mine) == 0 || len(available) == 0 {
		return []SlotSuggestion{}, nil
	}
	var b strings.Builder
	b.WriteString("You are a scheduling assistant. Analyze these time slots and suggest optimal swaps.\n\n")
	b.WriteString("My slots offered for swapping:\n")
	for i, s := range mine {
		b.WriteString(formatSlotLine(i, s, false) + "\n")
	}
	b.WriteString("\nOther users' available slots:\n")
	for i, s := range available {
		b.WriteString(formatSlotLine(i, s, true) + "\n")
	}
	b.WriteString(`
Suggest up to 3 best swap matches considering duration, time of day and weekday/weekend patterns.
Return ONLY a JSON array with this exact format (no other text):
[{"target_slot_id": "id", "my_slot_id": "id", "reason": "brief reason", "compatibility_score": 0.85}]`)

	content, err := c.complete(ctx, b.String(), 0.3, 1024)
	if err != nil {
		return nil, err
	}
	raw := extractJSONArray(content)
	if raw == "" {
		return []SlotSuggestion{}, nil
	}
	var out []SlotSuggestion
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		c.logger.Warn("ai: unparseable suggestion payload", zap.Error(err))
		return []SlotSuggestion{}, nil
	}
	return out, nil
}

const chatSystemPrompt = `You are a helpful scheduling assistant for a slot swapping platform.
Help users optimize their schedules, find swap opportunities, and answer questions about their calendar.

You have access to:
1. The user's current schedule (all their slots)
2. Slots other users currently offer for swapping

When suggesting swaps:
- Consider time conflicts and preferences
- Explain why a swap would be beneficial
- Be specific about slot details

Be friendly, concise, and actionable. Format responses clearly with bullet points when listing multiple items.`

// Chat answers a free-form question about the caller's schedule.  The
// user's own slots and the current swap offerings are folded into the
// prompt as context.  A disabled client returns an empty reply.
func (c *Client) Chat(ctx context.Context, message string, mine, offered []SlotSummary) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("Current time: " + time.Now().UTC().Format(time.RFC1123) + "\n\nMy schedule:\n")
	if len(mine) == 0 {
		b.WriteString("(empty)\n")
	}
	for i, s := range mine {
		b.WriteString(formatSlotLine(i, s, false) + "\n")
	}
	b.WriteString("\nSlots other users offer for swapping:\n")
	if len(offered) == 0 {
		b.WriteString("(none at the moment)\n")
	}
	for i, s := range offered {
		b.WriteString(formatSlotLine(i, s, true) + "\n")
	}
	b.WriteString("\nUser question: " + message)

	reply, err := c.completeMessages(ctx, []chatMessage{
		{Role: "system", Content: chatSystemPrompt},
		{Role: "user", Content: b.String()},
	}, 0.7, 1024)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// SuggestTitle asks the model for a short slot title fitting the given
// time range and optional free-text hint.  It falls back to a generic
// title when disabled or when the model returns nothing usable.
func (c *Client) SuggestTitle(ctx context.Context, startsAt, endsAt time.Time, hint string) (string, error) {
	const fallback = "New Slot"
	if !c.Enabled() {
		return fallback, nil
	}
	var b strings.Builder
	b.WriteString("Generate a concise, professional title for a calendar slot:\n")
	fmt.Fprintf(&b, "Time: %s - %s\n", startsAt.Format(time.RFC1123), endsAt.Format(time.RFC1123))
	if hint != "" {
		b.WriteString("Context: " + hint + "\n")
	}
	b.WriteString("\nReturn ONLY the title (max 50 characters), no quotes or extra text.")

	content, err := c.complete(ctx, b.String(), 0.7, 50)
	if err != nil {
		return "", err
	}
	if title := cleanTitle(content); title != "" {
		return title, nil
	}
	return fallback, nil
}

// cleanTitle reduces a model reply to a usable single-line title.  It
// takes the first line that is not blank or a code fence, strips
// surrounding quotes and backticks, and caps the length.
func cleanTitle(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.Trim(line, "`\"' ")
		if len(line) > 80 {
			line = strings.TrimSpace(line[:80])
		}
		return line
	}
	return ""
}

// ScheduleWarnings asks the model to flag overlaps, missing breaks and
// off-hours entries in a user's schedule.  Advisory only: the swap
// engine never consults it.
func (c *Client) ScheduleWarnings(ctx context.Context, slots []SlotSummary) ([]string, error) {
	if !c.Enabled() || len(slots) == 0 {
		return []string{}, nil
	}
	var b strings.Builder
	b.WriteString("Analyze this schedule for potential conflicts or issues:\n\n")
	for i, s := range slots {
		b.WriteString(formatSlotLine(i, s, false) + "\n")
	}
	b.WriteString(`
Identify overlapping entries, back-to-back meetings without breaks, entries outside
typical work hours, and long entries that might need splitting.
Return a JSON array of warning strings: ["warning 1", "warning 2"]`)

	content, err := c.complete(ctx, b.String(), 0.2, 512)
	if err != nil {
		return nil, err
	}
	raw := extractJSONArray(content)
	if raw == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		c.logger.Warn("ai: unparseable analysis payload", zap.Error(err))
		return []string{}, nil
	}
	return out, nil
}
