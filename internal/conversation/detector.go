package conversation

import (
	"regexp"
	"strings"
	"unicode"
)

// Patterns is the result of cheap, deterministic pre-classification of an
// inbound message. No external calls are made to produce it.
type Patterns struct {
	Language           string
	IsGreeting         bool
	IsGoodbye          bool
	IsEscalationPhrase bool
}

const (
	LanguageEnglish = "en"
	LanguageBurmese = "my"
)

// PatternDetector detects language, greetings, goodbyes, and escalation
// phrases before any model call is spent on a turn.
type PatternDetector struct {
	defaultLanguage string

	englishGreetings   []*regexp.Regexp
	englishGoodbyes    []*regexp.Regexp
	englishEscalations []*regexp.Regexp

	burmeseGreetings   []string
	burmeseGoodbyes    []string
	burmeseEscalations []string
}

// NewPatternDetector creates a detector. defaultLanguage is returned for
// empty input and text that matches no known script.
func NewPatternDetector(defaultLanguage string) *PatternDetector {
	if defaultLanguage == "" {
		defaultLanguage = LanguageEnglish
	}

	return &PatternDetector{
		defaultLanguage: defaultLanguage,

		englishGreetings: compileAll(
			`\b(hi|hello|hey|good morning|good afternoon|good evening|greetings)\b`,
			`\b(how are you|how's it going|how do you do)\b`,
			`\b(nice to meet you|pleasure to meet you)\b`,
		),
		englishGoodbyes: compileAll(
			`\b(bye|goodbye|see you|see ya|take care|farewell)\b`,
			`\b(thank you|thanks|thank you so much)\b`,
			`\b(that's all|that's it)\b`,
		),
		englishEscalations: compileAll(
			`\b(can i talk to someone|speak to someone|talk to a person|talk to someone)\b`,
			`\b(human|real person|staff member|employee)\b`,
			`\b(i need help|need assistance)\b`,
			`\b(complaint|not working)\b`,
		),

		burmeseGreetings: []string{
			"မင်္ဂလာပါ ခင်ဗျာ", "မင်္ဂလာပါ", "ဟလို", "ဟေး", "ဟယ်လို",
			"ဘယ်လိုလဲ", "ဘယ်လိုရှိလဲ", "ဘယ်လိုနေလဲ",
		},
		burmeseGoodbyes: []string{
			"ကျေးဇူးတင်ပါတယ်", "ကျေးဇူး", "ကျေးဇူးပါ",
			"ပြန်လာမယ်", "သွားပါတယ်", "နှုတ်ဆက်ပါတယ်", "ပြန်တွေ့မယ်",
		},
		burmeseEscalations: []string{
			"လူသားနဲ့ပြောချင်ပါတယ်", "လူသားနဲ့ပြောချင်တယ်",
			"အကူအညီလိုပါတယ်", "အကူအညီလိုတယ်",
			"ပိုကောင်းတဲ့အကူအညီလိုပါတယ်",
		},
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
	}
	return compiled
}

// Detect classifies text. Empty or whitespace-only input yields all-false
// flags and the default language.
func (d *PatternDetector) Detect(text string) Patterns {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Patterns{Language: d.defaultLanguage}
	}

	language := d.DetectLanguage(trimmed)
	result := Patterns{Language: language}

	if language == LanguageBurmese {
		normalized := strings.ToLower(trimmed)
		result.IsGreeting = containsAny(normalized, d.burmeseGreetings)
		result.IsGoodbye = containsAny(normalized, d.burmeseGoodbyes)
		result.IsEscalationPhrase = containsAny(normalized, d.burmeseEscalations)
		return result
	}

	normalized := strings.ToLower(trimmed)
	result.IsGreeting = matchesAny(normalized, d.englishGreetings)
	result.IsGoodbye = matchesAny(normalized, d.englishGoodbyes)
	result.IsEscalationPhrase = matchesAny(normalized, d.englishEscalations)
	return result
}

// DetectLanguage decides the language by script. Burmese is detected by the
// presence of characters in the Myanmar Unicode block; Latin-script text maps
// to English; anything else falls back to the configured default.
func (d *PatternDetector) DetectLanguage(text string) string {
	if containsBurmese(text) {
		return LanguageBurmese
	}
	for _, r := range text {
		if unicode.Is(unicode.Latin, r) {
			return LanguageEnglish
		}
	}
	return d.defaultLanguage
}

// containsBurmese reports whether text contains characters from the Myanmar
// Unicode block (U+1000 to U+109F).
func containsBurmese(text string) bool {
	for _, r := range text {
		if r >= 0x1000 && r <= 0x109F {
			return true
		}
	}
	return false
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
