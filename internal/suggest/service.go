package suggest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/murmurapp/murmur/internal/logging"
)

// suggestionPrompt asks for three prompts joined by "||" so a single
// completion can be split client-side without structured output support.
const suggestionPrompt = "Create a list of three open-ended and engaging questions formatted as a single string. Each question should be separated by '||'. These questions are for an anonymous social messaging platform and should be suitable for a diverse audience. Avoid personal or sensitive topics, focusing instead on universal themes that encourage friendly interaction. For example, your output should be structured like this: 'What's a hobby you've recently started?||If you could have dinner with any historical figure, who would it be?||What's a simple thing that makes you happy?'. Ensure the questions are intriguing, foster curiosity, and contribute to a positive and welcoming conversational environment."

// fallbackPrompts is served whenever the provider is unavailable. A provider
// failure must never block the composer.
var fallbackPrompts = []string{
	"What's your favorite movie?",
	"Do you have any pets?",
	"What's your dream job?",
	"If you could travel anywhere, where would you go?",
	"What's a book that changed your life?",
	"Do you prefer the mountains or the beach?",
	"What's your go-to comfort food?",
	"What's the most interesting thing you've learned recently?",
	"If you could master any skill instantly, what would it be?",
	"What's a small thing that always makes you smile?",
}

// FallbackPrompts returns a copy of the static fallback prompt list.
func FallbackPrompts() []string {
	out := make([]string, len(fallbackPrompts))
	copy(out, fallbackPrompts)
	return out
}

// Service produces message prompt suggestions.
type Service struct {
	completer Completer
	logger    *logging.Logger
}

func NewService(completer Completer, logger *logging.Logger) *Service {
	return &Service{
		completer: completer,
		logger:    logger,
	}
}

// Suggest returns prompt suggestions and whether they came from the static
// fallback list. Any provider failure - rate limit, transport error,
// unparseable output - degrades to the fallback instead of erroring.
func (s *Service) Suggest(ctx context.Context) (prompts []string, usedFallback bool) {
	text, err := s.completer.Complete(ctx, suggestionPrompt)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			s.logger.Warn("suggestion provider rate limited, serving fallback prompts")
		} else {
			s.logger.Warn("suggestion provider failed, serving fallback prompts", "error", err)
		}
		return FallbackPrompts(), true
	}

	parsed := splitPrompts(text)
	if len(parsed) == 0 {
		s.logger.Warn("suggestion provider returned no usable prompts, serving fallback")
		return FallbackPrompts(), true
	}

	return parsed, false
}

func splitPrompts(text string) []string {
	parts := strings.Split(text, "||")
	prompts := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			prompts = append(prompts, trimmed)
		}
	}
	return prompts
}
