package conversation

import "testing"

func TestRouteRuleOrder(t *testing.T) {
	cases := []struct {
		name       string
		in         RouteInput
		wantAction Action
		wantConf   float64
		wantReason string
	}{
		{
			name: "explicit human request wins over everything",
			in: RouteInput{
				Message:  "human please, what's on the menu",
				Patterns: Patterns{IsEscalationPhrase: true, IsGreeting: true},
				Intent:   IntentResult{Intent: IntentMenuBrowse, Confidence: 0.99, RequiresSearch: true},
			},
			wantAction: ActionEscalateToHuman,
			wantConf:   0.95,
			wantReason: "user requested human assistance",
		},
		{
			name: "human assistance intent escalates",
			in: RouteInput{
				Message: "I want to talk with your manager",
				Intent:  IntentResult{Intent: IntentHumanAssist, Confidence: 0.9},
			},
			wantAction: ActionEscalateToHuman,
			wantConf:   0.95,
			wantReason: "user requested human assistance",
		},
		{
			name: "low confidence escalates",
			in: RouteInput{
				Message: "asdf qwerty",
				Intent:  IntentResult{Intent: IntentFAQ, Confidence: 0.2},
			},
			wantAction: ActionEscalateToHuman,
			wantConf:   0.80,
			wantReason: "low confidence in intent classification",
		},
		{
			name: "needs clarification escalates",
			in: RouteInput{
				Message: "it",
				Intent:  IntentResult{Intent: IntentFAQ, Confidence: 0.5, NeedsClarification: true},
			},
			wantAction: ActionEscalateToHuman,
			wantConf:   0.70,
			wantReason: "ambiguous query",
		},
		{
			name: "greeting answers directly",
			in: RouteInput{
				Message:  "good morning",
				Patterns: Patterns{IsGreeting: true},
				Intent:   IntentResult{Intent: IntentGreeting, Confidence: 0.95},
			},
			wantAction: ActionDirectResponse,
			wantConf:   0.90,
			wantReason: "social interaction",
		},
		{
			name: "requires_search flag routes to search",
			in: RouteInput{
				Message: "do you have vegan options",
				Intent:  IntentResult{Intent: IntentMenuBrowse, Confidence: 0.9, RequiresSearch: true},
			},
			wantAction: ActionPerformSearch,
			wantConf:   0.85,
			wantReason: "query requires knowledge search",
		},
		{
			name: "search intent without flag still searches",
			in: RouteInput{
				Message: "any events this weekend",
				Intent:  IntentResult{Intent: IntentEvents, Confidence: 0.85},
			},
			wantAction: ActionPerformSearch,
			wantConf:   0.80,
			wantReason: "intent resolved via knowledge search",
		},
		{
			name: "reservation escalates",
			in: RouteInput{
				Message: "book a table for 4 tonight",
				Intent:  IntentResult{Intent: IntentReservation, Confidence: 0.95},
			},
			wantAction: ActionEscalateToHuman,
			wantConf:   0.90,
			wantReason: "reservation requires human assistance",
		},
		{
			name: "order escalates",
			in: RouteInput{
				Message: "I want to order two mohinga",
				Intent:  IntentResult{Intent: IntentOrderPlace, Confidence: 0.95},
			},
			wantAction: ActionEscalateToHuman,
			wantConf:   0.90,
			wantReason: "order_place requires human assistance",
		},
		{
			name: "unknown with decent confidence defaults to search",
			in: RouteInput{
				Message: "tell me about the building",
				Intent:  IntentResult{Intent: IntentUnknown, Confidence: 0.6},
			},
			wantAction: ActionPerformSearch,
			wantConf:   0.50,
			wantReason: "unknown intent, defaulting to search",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Route(tc.in)
			if got.Action != tc.wantAction {
				t.Fatalf("action = %q, want %q", got.Action, tc.wantAction)
			}
			if got.Confidence != tc.wantConf {
				t.Fatalf("confidence = %v, want %v", got.Confidence, tc.wantConf)
			}
			if got.Reason != tc.wantReason {
				t.Fatalf("reason = %q, want %q", got.Reason, tc.wantReason)
			}
		})
	}
}

func TestRouteEmptyMessageUsesDefault(t *testing.T) {
	// An empty message carries a low-confidence intent, but the default rule
	// applies before low-confidence escalation is considered.
	got := Route(RouteInput{
		Message: "   ",
		Intent:  IntentResult{Intent: IntentUnknown, Confidence: 0.0},
	})
	if got.Action != ActionPerformSearch {
		t.Fatalf("action = %q, want perform_search", got.Action)
	}
	if got.Confidence != 0.50 {
		t.Fatalf("confidence = %v, want 0.50", got.Confidence)
	}
}

func TestRouteIsDeterministic(t *testing.T) {
	in := RouteInput{
		Message: "where are you located",
		Intent:  IntentResult{Intent: IntentFAQ, Confidence: 0.8, RequiresSearch: true},
	}
	first := Route(in)
	for i := 0; i < 10; i++ {
		if got := Route(in); got != first {
			t.Fatalf("Route not deterministic: %+v vs %+v", got, first)
		}
	}
}
