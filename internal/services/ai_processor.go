package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"table_waiter/internal/models"
	"table_waiter/pkg/openai"

	"github.com/sirupsen/logrus"
)

// ChatCompleter is the function-calling service the generative detector talks to.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatRequest) (*openai.ChatResponse, error)
}

type GenerativeOutcome int

const (
	OutcomeFailed GenerativeOutcome = iota
	OutcomeText
	OutcomeAction
)

func (o GenerativeOutcome) String() string {
	switch o {
	case OutcomeText:
		return "text"
	case OutcomeAction:
		return "action"
	}
	return "failed"
}

// GenerativeResult is the explicit outcome of one generative call. Err is only
// set for OutcomeFailed and is informational.
type GenerativeResult struct {
	Outcome    GenerativeOutcome
	Candidate  *Candidate
	Text       string
	Confidence float64
	Err        error
}

var errGenerativeDisabled = errors.New("generative detector is disabled")

const closureConfidence = 0.95

var (
	hedgingPhrases = []string{"maybe", "perhaps", "not sure", "i think", "might", "possibly", "if you want", "could be", "i guess"}
	closurePhrases = []string{"thank", "bye", "goodbye", "enjoy", "have a great", "have a nice", "you're welcome", "you are welcome", "anytime"}
)

const systemPrompt = `You are a friendly waiter taking orders at a restaurant table.
Call one of the provided functions only when the diner clearly asks to change their order,
confirm it, cancel it, asks for a recommendation, or when you must ask a clarifying question.
For small talk or questions about the menu, answer in plain text without calling a function.
Only use item names that appear on the menu below.`

type GenerativeDetector struct {
	client ChatCompleter
	cfg    DetectionConfig
	log    logrus.FieldLogger
}

func NewGenerativeDetector(client ChatCompleter, cfg DetectionConfig, log logrus.FieldLogger) *GenerativeDetector {
	return &GenerativeDetector{client: client, cfg: cfg, log: log}
}

// Detect asks the generative service for an action. Failures come back as
// OutcomeFailed; the caller decides how to degrade.
func (d *GenerativeDetector) Detect(ctx context.Context, message string, dctx DetectionContext) GenerativeResult {
	if d == nil || d.client == nil {
		return GenerativeResult{Outcome: OutcomeFailed, Err: errGenerativeDisabled}
	}

	if d.cfg.GenerativeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.GenerativeTimeout)
		defer cancel()
	}

	req, err := d.buildRequest(message, dctx)
	if err != nil {
		return GenerativeResult{Outcome: OutcomeFailed, Err: err}
	}

	resp, err := d.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return GenerativeResult{Outcome: OutcomeFailed, Err: fmt.Errorf("generative call: %w", err)}
	}

	text := strings.TrimSpace(resp.Content)
	if len(resp.ToolCalls) == 0 {
		if text == "" {
			return GenerativeResult{Outcome: OutcomeFailed, Err: errors.New("empty generative reply")}
		}
		confidence := d.cfg.NoActionConfidence
		if readsAsClosure(text) {
			confidence = closureConfidence
		}
		return GenerativeResult{Outcome: OutcomeText, Text: text, Confidence: confidence}
	}

	if len(resp.ToolCalls) > 1 {
		d.log.WithField("calls", len(resp.ToolCalls)).Debug("Generative reply has several function calls, using the first")
	}
	payload, completeness, err := parseToolCall(resp.ToolCalls[0].Function, dctx)
	if err != nil {
		return GenerativeResult{Outcome: OutcomeFailed, Text: text, Err: err}
	}

	confidence := d.cfg.GenerativeBaseConfidence + 0.2*completeness
	if hedges(text) {
		confidence -= 0.2
	}
	candidate := newCandidate(payload, confidence, models.ProvenanceGenerative)
	return GenerativeResult{Outcome: OutcomeAction, Candidate: candidate, Text: text, Confidence: candidate.Confidence}
}

type promptMenuItem struct {
	Name        string   `json:"name"`
	Price       string   `json:"price"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	DietaryTags []string `json:"dietary_tags,omitempty"`
}

type promptOrderLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

func (d *GenerativeDetector) buildRequest(message string, dctx DetectionContext) (openai.ChatRequest, error) {
	menu := make([]promptMenuItem, 0, len(dctx.Menu))
	for _, item := range availableItems(dctx.Menu) {
		menu = append(menu, promptMenuItem{
			Name:        item.Name,
			Price:       item.Price.String(),
			Category:    item.Category,
			Description: item.Description,
			DietaryTags: item.DietaryTags,
		})
	}
	menuJSON, err := json.Marshal(menu)
	if err != nil {
		return openai.ChatRequest{}, fmt.Errorf("failed to marshal menu: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nMenu: ")
	sb.Write(menuJSON)
	if dctx.CurrentOrder != nil && len(dctx.CurrentOrder.Items) > 0 {
		lines := make([]promptOrderLine, 0, len(dctx.CurrentOrder.Items))
		for _, line := range dctx.CurrentOrder.Items {
			lines = append(lines, promptOrderLine{Name: line.ItemName, Quantity: line.Quantity, Notes: line.Notes})
		}
		orderJSON, err := json.Marshal(lines)
		if err != nil {
			return openai.ChatRequest{}, fmt.Errorf("failed to marshal current order: %w", err)
		}
		fmt.Fprintf(&sb, "\n\nCurrent order (%s): ", dctx.CurrentOrder.Status)
		sb.Write(orderJSON)
	}

	messages := []openai.Message{{Role: "system", Content: sb.String()}}
	for _, turn := range dctx.History {
		messages = append(messages, openai.Message{Role: string(turn.Role), Content: turn.Text})
	}
	messages = append(messages, openai.Message{Role: "user", Content: message})

	return openai.ChatRequest{
		Messages:    messages,
		Tools:       ActionTools(),
		ToolChoice:  "auto",
		Temperature: 0.1,
		MaxTokens:   500,
	}, nil
}

func readsAsClosure(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range closurePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func hedges(text string) bool {
	lower := " " + strings.ToLower(text) + " "
	for _, p := range hedgingPhrases {
		if strings.Contains(lower, " "+p) {
			return true
		}
	}
	return false
}
