package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cafepentagon/concierge/pkg/logging"
)

// Recognized intents. The classifier clamps anything the model invents down
// to IntentUnknown.
const (
	IntentGreeting       = "greeting"
	IntentGoodbye        = "goodbye"
	IntentFAQ            = "faq"
	IntentMenuBrowse     = "menu_browse"
	IntentOrderPlace     = "order_place"
	IntentReservation    = "reservation"
	IntentEvents         = "events"
	IntentComplaint      = "complaint"
	IntentJobApplication = "job_application"
	IntentHumanAssist    = "human_assistance"
	IntentUnknown        = "unknown"
)

// IntentResult is the classifier's structured verdict for one user message.
type IntentResult struct {
	Intent             string            `json:"intent"`
	Confidence         float64           `json:"confidence"`
	Entities           map[string]string `json:"entities,omitempty"`
	Reasoning          string            `json:"reasoning,omitempty"`
	NeedsClarification bool              `json:"needs_clarification"`
	RequiresSearch     bool              `json:"requires_search"`
}

// IntentClassifier asks an LLM for a structured intent verdict and degrades
// to keyword heuristics when the model is unavailable or returns garbage.
// Classify never returns an error: a turn must always carry an intent.
type IntentClassifier struct {
	llm    LLMClient
	model  string
	logger *logging.Logger
}

func NewIntentClassifier(llm LLMClient, model string, logger *logging.Logger) *IntentClassifier {
	if llm == nil {
		panic("conversation: intent classifier requires an LLM client")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &IntentClassifier{llm: llm, model: model, logger: logger}
}

var validIntents = map[string]bool{
	IntentGreeting:       true,
	IntentGoodbye:        true,
	IntentFAQ:            true,
	IntentMenuBrowse:     true,
	IntentOrderPlace:     true,
	IntentReservation:    true,
	IntentEvents:         true,
	IntentComplaint:      true,
	IntentJobApplication: true,
	IntentHumanAssist:    true,
	IntentUnknown:        true,
}

const classifierSystemPrompt = `You are an intent classifier for a restaurant's customer service assistant.
Classify the user's message into exactly one intent from this list:
greeting, goodbye, faq, menu_browse, order_place, reservation, events, complaint, job_application, human_assistance, unknown.

Respond with ONLY a JSON object, no prose, in this shape:
{"intent": "...", "confidence": 0.0, "entities": {}, "reasoning": "...", "needs_clarification": false, "requires_search": false}

Rules:
- confidence is between 0.0 and 1.0.
- entities maps entity names to string values extracted from the message.
- set needs_clarification when the message is too ambiguous to act on.
- set requires_search when answering would need knowledge-base lookup.`

// Classify returns an intent verdict for message. The recent history gives
// the model conversational context; only the last few turns are included.
func (c *IntentClassifier) Classify(ctx context.Context, message string, history []Message) IntentResult {
	req := LLMRequest{
		Model:       c.model,
		System:      []string{classifierSystemPrompt},
		Messages:    c.buildMessages(message, history),
		MaxTokens:   512,
		Temperature: 0,
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		c.logger.Warn("intent classification failed, using keyword fallback", slog.String("error", err.Error()))
		return c.keywordFallback(message)
	}

	result, err := parseIntentResponse(resp.Text)
	if err != nil {
		c.logger.Warn("unparseable intent response, using keyword fallback", slog.String("error", err.Error()))
		return c.keywordFallback(message)
	}
	return result
}

func (c *IntentClassifier) buildMessages(message string, history []Message) []ChatMessage {
	const contextTurns = 4

	start := 0
	if len(history) > contextTurns {
		start = len(history) - contextTurns
	}

	msgs := make([]ChatMessage, 0, contextTurns+1)
	for _, m := range history[start:] {
		role := ChatRoleUser
		if m.SenderType != SenderUser {
			role = ChatRoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: m.Content})
	}
	return append(msgs, ChatMessage{Role: ChatRoleUser, Content: message})
}

// parseIntentResponse extracts the JSON object between the first '{' and the
// last '}' so that models wrapping their answer in prose or code fences still
// parse.
func parseIntentResponse(text string) (IntentResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return IntentResult{}, fmt.Errorf("conversation: no JSON object in classifier response")
	}

	var result IntentResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return IntentResult{}, fmt.Errorf("conversation: decode classifier response: %w", err)
	}

	if !validIntents[result.Intent] {
		result.Intent = IntentUnknown
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result, nil
}

// keywordFallback produces a coarse verdict without any model call.
func (c *IntentClassifier) keywordFallback(message string) IntentResult {
	lower := strings.ToLower(strings.TrimSpace(message))

	switch {
	case lower == "":
		return IntentResult{Intent: IntentUnknown, Confidence: 0.3, Reasoning: "keyword fallback: empty message"}
	case containsAnyKeyword(lower, "hi", "hello", "hey", "မင်္ဂလာပါ"):
		return IntentResult{Intent: IntentGreeting, Confidence: 0.6, Reasoning: "keyword fallback: greeting"}
	case containsAnyKeyword(lower, "bye", "thanks", "thank you", "ကျေးဇူး"):
		return IntentResult{Intent: IntentGoodbye, Confidence: 0.6, Reasoning: "keyword fallback: goodbye"}
	case containsAnyKeyword(lower, "menu", "price", "dish", "food"):
		return IntentResult{Intent: IntentMenuBrowse, Confidence: 0.5, RequiresSearch: true, Reasoning: "keyword fallback: menu"}
	case containsAnyKeyword(lower, "open", "hour", "where", "location", "wifi", "parking"):
		return IntentResult{Intent: IntentFAQ, Confidence: 0.5, RequiresSearch: true, Reasoning: "keyword fallback: faq"}
	default:
		return IntentResult{Intent: IntentUnknown, Confidence: 0.3, RequiresSearch: true, Reasoning: "keyword fallback: no match"}
	}
}

func containsAnyKeyword(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
