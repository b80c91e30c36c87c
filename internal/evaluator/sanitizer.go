package evaluator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

// MessageSanitizer guards judge prompts against oversized and adversarial
// conversation content.
type MessageSanitizer struct {
	maxMessageLength int
	maxTotalLength   int
	injectionRe      *regexp.Regexp
}

var injectionPatterns = []string{
	"ignore previous instructions",
	"ignore all previous",
	"disregard previous",
	"forget everything",
	"new instructions:",
	`\[SYSTEM\]`,
	`\[INST\]`,
	`\[/INST\]`,
	"</s>",
	`<\|im_end\|>`,
	`<\|im_start\|>`,
	`<\|endoftext\|>`,
	"<system>",
	"</system>",
	"<assistant>",
	"</assistant>",
	"jailbreak",
	"pretend you are",
}

func NewMessageSanitizer() *MessageSanitizer {
	return &MessageSanitizer{
		maxMessageLength: 4000,
		maxTotalLength:   15000,
		injectionRe:      regexp.MustCompile("(?i)" + strings.Join(injectionPatterns, "|")),
	}
}

// TruncateMessage keeps the head and tail of an overlong message.
func (s *MessageSanitizer) TruncateMessage(content string) string {
	if len(content) <= s.maxMessageLength {
		return content
	}

	keepStart := int(float64(s.maxMessageLength) * 0.6)
	keepEnd := s.maxMessageLength - keepStart - 50

	return headRuneSafe(content, keepStart) +
		"\n\n[... content truncated for length ...]\n\n" +
		tailRuneSafe(content, keepEnd)
}

// headRuneSafe returns at most max bytes from the start of s, never splitting
// a multi-byte rune.
func headRuneSafe(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// tailRuneSafe returns at most max bytes from the end of s, never splitting a
// multi-byte rune.
func tailRuneSafe(s string, max int) string {
	if len(s) <= max {
		return s
	}
	start := len(s) - max
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// SanitizeForEvaluation masks common prompt-injection markers.
func (s *MessageSanitizer) SanitizeForEvaluation(content string) string {
	return s.injectionRe.ReplaceAllString(content, "[SANITIZED]")
}

// PrepareConversationForEval sanitizes and truncates turns, stopping once the
// total length budget is exhausted. The input turns are not modified.
func (s *MessageSanitizer) PrepareConversationForEval(turns []domain.Turn) []domain.Turn {
	sanitized := make([]domain.Turn, 0, len(turns))
	totalLength := 0

	for _, turn := range turns {
		content := s.SanitizeForEvaluation(turn.Content)
		content = s.TruncateMessage(content)

		totalLength += len(content)
		if totalLength > s.maxTotalLength {
			break
		}

		turn.Content = content
		sanitized = append(sanitized, turn)
	}

	return sanitized
}
