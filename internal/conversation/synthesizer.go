package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cafepentagon/concierge/pkg/logging"
)

// Canned replies used when no generated answer is possible. Keyed by language.
var escalationTemplates = map[string]string{
	LanguageEnglish: "The responsible staff will be here and assist to you. could you wait a moment",
	LanguageBurmese: "တာဝန်ရှိ ဝန်ထမ်းတစ်ယောက် လာပြီး ကူညီပေးပါလိမ့်မယ်..၊ ခဏစောင့်ပေးပါ ခင်ဗျာ..",
}

var noDataTemplates = map[string]string{
	LanguageEnglish: "I'm sorry, I don't have specific information about that. Please call +959979732781 for detailed assistance. Thank you for your understanding.",
	LanguageBurmese: "ဒီအကြောင်းအရာနဲ့ ပတ်သက်ပြီး သေချာ မသိရှိလို့ တောင်းပန်ပါတယ်။ အသေးစိတ် အချက်အလက်ကို +959979732781 ကို ဆက်သွယ် မေးမြန်းနိုင်ပါတယ်။",
}

var lockedTemplates = map[string]string{
	LanguageEnglish: "This conversation has been escalated to human assistance. Please wait for a staff member to assist you.",
	LanguageBurmese: "ဒီစကားဝိုင်းကို ဝန်ထမ်းဆီ လွှဲပြောင်းထားပါတယ်။ ဝန်ထမ်းတစ်ယောက် ကူညီပေးမှာ ဖြစ်လို့ ခဏစောင့်ပေးပါ ခင်ဗျာ။",
}

const synthesizerSystemPrompt = `You are the friendly customer assistant of Cafe Pentagon, a restaurant in Yangon.
Answer the user's message naturally and concisely in the same language the user wrote in.
When knowledge-base context is provided, answer ONLY from that context and never invent menu items, prices, or policies.
When no context is provided, keep to pleasantries and general guidance.`

// Synthesizer turns a routed turn into reply text. It never returns an empty
// reply: model failures degrade to canned per-language templates.
type Synthesizer struct {
	llm    LLMClient
	model  string
	logger *logging.Logger
}

func NewSynthesizer(llm LLMClient, model string, logger *logging.Logger) *Synthesizer {
	if llm == nil {
		panic("conversation: synthesizer requires an LLM client")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Synthesizer{llm: llm, model: model, logger: logger}
}

// historyWindow is how many recent turns ride along in the generation prompt.
const historyWindow = 8

// Synthesize produces the reply text for one turn. decision drives which
// path is taken; canned templates back every model-dependent branch.
func (s *Synthesizer) Synthesize(ctx context.Context, message string, state TurnState, history []Message) string {
	switch state.Decision.Action {
	case ActionEscalateToHuman:
		return templateFor(escalationTemplates, state.Language)
	case ActionPerformSearch:
		if state.Relevance == 0 {
			return templateFor(noDataTemplates, state.Language)
		}
	}

	text, err := s.generate(ctx, message, state, history)
	if err != nil {
		s.logger.Warn("response generation failed, using canned fallback",
			slog.String("error", err.Error()),
			slog.String("action", string(state.Decision.Action)))
		return templateFor(noDataTemplates, state.Language)
	}
	return text
}

// LockedNotice is the short-circuit reply sent while a conversation is held
// by a human operator.
func LockedNotice(language string) string {
	return templateFor(lockedTemplates, language)
}

// EscalationNotice is the canned acknowledgement for an escalated turn.
func EscalationNotice(language string) string {
	return templateFor(escalationTemplates, language)
}

func (s *Synthesizer) generate(ctx context.Context, message string, state TurnState, history []Message) (string, error) {
	system := []string{synthesizerSystemPrompt}
	if len(state.Documents) > 0 {
		var b strings.Builder
		b.WriteString("Knowledge-base context:\n")
		for i, doc := range state.Documents {
			fmt.Fprintf(&b, "%d. %s\n", i+1, doc.Content)
		}
		system = append(system, b.String())
	}

	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	msgs := make([]ChatMessage, 0, historyWindow+1)
	for _, m := range history[start:] {
		role := ChatRoleUser
		if m.SenderType != SenderUser {
			role = ChatRoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, ChatMessage{Role: ChatRoleUser, Content: message})

	resp, err := s.llm.Complete(ctx, LLMRequest{
		Model:       s.model,
		System:      system,
		Messages:    msgs,
		MaxTokens:   1024,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", fmt.Errorf("conversation: model returned empty response")
	}
	return resp.Text, nil
}

func templateFor(templates map[string]string, language string) string {
	if text, ok := templates[language]; ok {
		return text
	}
	return templates[LanguageEnglish]
}
