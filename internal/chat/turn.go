package chat

import "strings"

// Conversation roles. The completion API only accepts strictly alternating
// user/model contents, so history is merged before sending.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one utterance in the conversation history.
type Turn struct {
	Role string
	Text string
}

// MergeTurns collapses adjacent turns with the same role into one turn whose
// text is the originals joined by newlines. A strictly alternating history
// comes back unchanged.
func MergeTurns(history []Turn) []Turn {
	if len(history) == 0 {
		return nil
	}
	merged := make([]Turn, 0, len(history))
	for _, t := range history {
		if n := len(merged); n > 0 && merged[n-1].Role == t.Role {
			merged[n-1].Text = merged[n-1].Text + "\n" + t.Text
			continue
		}
		merged = append(merged, t)
	}
	return merged
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag. Models asked for raw JSON wrap it anyway often enough that
// every JSON parse goes through this first.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, "{[") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
