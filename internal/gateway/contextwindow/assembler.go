// Package contextwindow builds the bounded message list sent upstream per
// request: system prompt, optional running summary, and as many trailing
// conversation turns as the token budget allows.
package contextwindow

import "strings"

// Message is a single conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// perMessageOverhead approximates the framing tokens a provider charges
// per message on top of its text.
const perMessageOverhead = 6

// fillerTurns are short acknowledgement-only messages that add no value
// to the context. Matched case-insensitively against the trimmed text.
var fillerTurns = map[string]bool{
	"ok":        true,
	"okay":      true,
	"thanks":    true,
	"thank you": true,
	"got it":    true,
	"sure":      true,
}

// EstimateTokens approximates the token cost of one message as
// ceil(len/4) plus a fixed per-message overhead. A cheap proxy, not a
// tokenizer; downstream budgets are tuned against this exact formula.
func EstimateTokens(text string) int {
	return (len(text)+3)/4 + perMessageOverhead
}

// Params describes one assembly request.
type Params struct {
	SystemPrompt string
	Summary      string
	Messages     []Message
	MaxTokens    int
	MaxTurns     int
}

// Assemble returns the ordered message list for an upstream call.
//
// The system prompt always comes first; a non-empty summary follows as a
// second system entry. Both are included even when they alone exceed the
// budget — only turn appending is budget-gated. Remaining turns are
// filtered of empty and filler messages, capped to the last MaxTurns, and
// appended oldest-first until the next turn would exceed MaxTokens.
func Assemble(p Params) []Message {
	out := []Message{{Role: RoleSystem, Content: p.SystemPrompt}}
	budget := p.MaxTokens - EstimateTokens(p.SystemPrompt)

	if strings.TrimSpace(p.Summary) != "" {
		out = append(out, Message{Role: RoleSystem, Content: p.Summary})
		budget -= EstimateTokens(p.Summary)
	}

	kept := make([]Message, 0, len(p.Messages))
	for _, msg := range p.Messages {
		trimmed := strings.TrimSpace(msg.Content)
		if trimmed == "" {
			continue
		}
		if fillerTurns[strings.ToLower(trimmed)] {
			continue
		}
		kept = append(kept, msg)
	}

	if p.MaxTurns >= 0 && len(kept) > p.MaxTurns {
		kept = kept[len(kept)-p.MaxTurns:]
	}

	for _, msg := range kept {
		cost := EstimateTokens(msg.Content)
		if cost > budget {
			break
		}
		out = append(out, msg)
		budget -= cost
	}

	return out
}
