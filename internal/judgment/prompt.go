package judgment

// #region imports
import (
	"fmt"
	"sort"
	"strings"
)

// #endregion

// #region request

// DecisionRequest is the fully templated single-turn request for one
// event classification.
type DecisionRequest struct {
	Prompt string
}

// #endregion request

// #region build

// BuildDecisionRequest templates the flat context record, the advisory
// signals, and the participant's focus categories into a decision
// prompt. Field order is sorted so identical inputs always produce an
// identical request. Empty context is caller fault.
func BuildDecisionRequest(fields map[string]any, signals Signals, focusCategories []string) (DecisionRequest, error) {
	if len(fields) == 0 {
		return DecisionRequest{}, fmt.Errorf("%w: empty context record", ErrInvalidInput)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("You are classifying one video consumption event from a study participant ")
	b.WriteString("as focus-mode viewing or regular viewing. ")
	b.WriteString("Respond with a JSON object with fields category (\"true\" for focus, \"false\" for regular), ")
	b.WriteString("explanation, and explanation_summary. ")
	b.WriteString("Format explanation_summary as: \"Confidence: <percent>% | Key Evidence: <short free text>\".\n\n")

	b.WriteString("Participant focus categories: ")
	b.WriteString(strings.Join(focusCategories, ", "))
	b.WriteString("\n\nEvent context:\n")
	for _, k := range keys {
		v := fields[k]
		if v == nil {
			fmt.Fprintf(&b, "- %s: null\n", k)
			continue
		}
		fmt.Fprintf(&b, "- %s: %v\n", k, v)
	}

	b.WriteString("\nAdvisory signals (strong signals, not rules; you make the final call):\n")
	for _, line := range signalLines(signals) {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	return DecisionRequest{Prompt: b.String()}, nil
}

// signalLines renders the ten signals in a fixed order.
func signalLines(s Signals) []string {
	line := func(name string, v bool) string {
		return fmt.Sprintf("%s: %t", name, v)
	}
	return []string{
		line("a prior entry in this session was labeled focus", s.PriorPositiveLabel),
		line("current category repeats at least twice across the last three entries", s.CategoryRepeated),
		line("category is one of the participant's focus categories", s.CategoryPreferred),
		line("description exceeds 50 words and contains a focus keyword", s.LongDescriptionKeywordHit),
		line("participant is subscribed to this channel", s.Subscribed),
		line("navigation came from a search page", s.FromSearchSurface),
		line("navigation came from a channel page", s.FromChannelSurface),
		line("title contains a focus keyword", s.TitleKeywordHit),
		line("description contains a focus keyword", s.DescriptionKeywordHit),
		line("session already has classified history", s.SessionHasHistory),
	}
}

// #endregion build

// #region query-prompt

// BuildQueryPrompt templates the simple search-query classification
// used by the categorize endpoint.
func BuildQueryPrompt(query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	return "I want you to act as a YouTube query classifier. " +
		"I will provide a YouTube search query and you will respond with one word, " +
		"either 'focus' or 'regular'. A focus mode involves informative, specific " +
		"educational content and research, whereas a regular mode is not merely focused " +
		"on gaining a skill and is more aligning with popular forms of entertainment. " +
		"The search query is: " + query, nil
}

// #endregion query-prompt
