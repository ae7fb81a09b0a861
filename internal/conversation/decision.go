package conversation

import (
	"fmt"
	"strings"
)

// Action is the routing verdict for a turn.
type Action string

const (
	ActionDirectResponse  Action = "direct_response"
	ActionPerformSearch   Action = "perform_search"
	ActionEscalateToHuman Action = "escalate_to_human"
)

// RoutingDecision is the router's output. Reason is a short human-readable
// explanation kept in message metadata for operators.
type RoutingDecision struct {
	Action     Action
	Confidence float64
	Reason     string
}

// RouteInput bundles everything the router consults. Routing is pure: the
// same input always yields the same decision.
type RouteInput struct {
	Message  string
	Patterns Patterns
	Intent   IntentResult
}

// intents that always resolve through knowledge-base search.
var searchIntents = map[string]bool{
	IntentFAQ:            true,
	IntentEvents:         true,
	IntentComplaint:      true,
	IntentJobApplication: true,
}

// intents the bot must not complete on its own.
var humanOnlyIntents = map[string]bool{
	IntentOrderPlace:  true,
	IntentReservation: true,
}

// Route picks the action for one turn by evaluating a fixed rule order.
// Earlier rules win; the final rule is a catch-all so Route always decides.
func Route(in RouteInput) RoutingDecision {
	if strings.TrimSpace(in.Message) == "" {
		return defaultDecision()
	}

	// 1. Explicit requests for a person always escalate.
	if in.Intent.Intent == IntentHumanAssist || in.Patterns.IsEscalationPhrase {
		return RoutingDecision{
			Action:     ActionEscalateToHuman,
			Confidence: 0.95,
			Reason:     "user requested human assistance",
		}
	}

	// 2. The classifier is too unsure to trust any intent.
	if in.Intent.Confidence < 0.30 {
		return RoutingDecision{
			Action:     ActionEscalateToHuman,
			Confidence: 0.80,
			Reason:     "low confidence in intent classification",
		}
	}

	// 3. Ambiguity flagged by the model, or a near-zero unknown.
	if in.Intent.NeedsClarification || (in.Intent.Intent == IntentUnknown && in.Intent.Confidence < 0.10) {
		return RoutingDecision{
			Action:     ActionEscalateToHuman,
			Confidence: 0.70,
			Reason:     "ambiguous query",
		}
	}

	// 4. Social pleasantries answer directly without search.
	if in.Patterns.IsGreeting || in.Patterns.IsGoodbye ||
		in.Intent.Intent == IntentGreeting || in.Intent.Intent == IntentGoodbye {
		return RoutingDecision{
			Action:     ActionDirectResponse,
			Confidence: 0.90,
			Reason:     "social interaction",
		}
	}

	// 5. Knowledge questions go through retrieval.
	if in.Intent.RequiresSearch {
		return RoutingDecision{
			Action:     ActionPerformSearch,
			Confidence: 0.85,
			Reason:     "query requires knowledge search",
		}
	}
	if searchIntents[in.Intent.Intent] {
		return RoutingDecision{
			Action:     ActionPerformSearch,
			Confidence: 0.80,
			Reason:     "intent resolved via knowledge search",
		}
	}

	// 6. Transactions stay with staff.
	if humanOnlyIntents[in.Intent.Intent] {
		return RoutingDecision{
			Action:     ActionEscalateToHuman,
			Confidence: 0.90,
			Reason:     fmt.Sprintf("%s requires human assistance", in.Intent.Intent),
		}
	}

	// 7. Default.
	return defaultDecision()
}

func defaultDecision() RoutingDecision {
	return RoutingDecision{
		Action:     ActionPerformSearch,
		Confidence: 0.50,
		Reason:     "unknown intent, defaulting to search",
	}
}
