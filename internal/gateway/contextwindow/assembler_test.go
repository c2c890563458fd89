package contextwindow

import (
	"strings"
	"testing"
)

func turns(contents ...string) []Message {
	msgs := make([]Message, 0, len(contents))
	role := RoleUser
	for _, c := range contents {
		msgs = append(msgs, Message{Role: role, Content: c})
		if role == RoleUser {
			role = RoleAssistant
		} else {
			role = RoleUser
		}
	}
	return msgs
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 6},
		{"abcd", 7},
		{"abcde", 8},
		{strings.Repeat("x", 400), 106},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.text); got != c.want {
			t.Fatalf("EstimateTokens(%d chars) = %d, want %d", len(c.text), got, c.want)
		}
	}
}

func TestSystemPromptAlwaysFirst(t *testing.T) {
	got := Assemble(Params{
		SystemPrompt: "You are a course assistant.",
		Messages:     turns("hello", "hi there"),
		MaxTokens:    1000,
		MaxTurns:     10,
	})

	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].Role != RoleSystem || got[0].Content != "You are a course assistant." {
		t.Fatalf("expected system prompt first, got %+v", got[0])
	}
}

func TestSummaryFollowsSystemPrompt(t *testing.T) {
	got := Assemble(Params{
		SystemPrompt: "system",
		Summary:      "Earlier the student asked about derivatives.",
		Messages:     turns("what about integrals?"),
		MaxTokens:    1000,
		MaxTurns:     10,
	})

	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[1].Role != RoleSystem || got[1].Content != "Earlier the student asked about derivatives." {
		t.Fatalf("expected summary as second system entry, got %+v", got[1])
	}
}

func TestBlankSummaryIsSkipped(t *testing.T) {
	got := Assemble(Params{
		SystemPrompt: "system",
		Summary:      "   ",
		Messages:     turns("question"),
		MaxTokens:    1000,
		MaxTurns:     10,
	})

	if len(got) != 2 {
		t.Fatalf("expected blank summary to be skipped, got %d messages", len(got))
	}
}

func TestFillerTurnsAreFiltered(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "What is chapter 3 about?"},
		{Role: RoleAssistant, Content: "It covers limits."},
		{Role: RoleUser, Content: "ok"},
		{Role: RoleUser, Content: "  Thanks  "},
		{Role: RoleUser, Content: "THANK YOU"},
		{Role: RoleUser, Content: "got it"},
		{Role: RoleUser, Content: ""},
		{Role: RoleUser, Content: "thanks a lot for that"},
	}

	got := Assemble(Params{
		SystemPrompt: "system",
		Messages:     msgs,
		MaxTokens:    10000,
		MaxTurns:     50,
	})

	// system + 2 real turns + the superstring turn.
	if len(got) != 4 {
		t.Fatalf("expected 4 messages after filtering, got %d: %+v", len(got), got)
	}
	if got[3].Content != "thanks a lot for that" {
		t.Fatalf("expected superstring turn retained, got %q", got[3].Content)
	}
}

func TestMaxTurnsKeepsTrailingWindowInOrder(t *testing.T) {
	got := Assemble(Params{
		SystemPrompt: "system",
		Messages:     turns("t1", "t2", "t3", "t4", "t5"),
		MaxTokens:    10000,
		MaxTurns:     3,
	})

	if len(got) != 4 {
		t.Fatalf("expected system + 3 turns, got %d", len(got))
	}
	want := []string{"t3", "t4", "t5"}
	for i, w := range want {
		if got[i+1].Content != w {
			t.Fatalf("turn %d: got %q, want %q", i, got[i+1].Content, w)
		}
	}
}

func TestTokenBudgetIsRespected(t *testing.T) {
	long := strings.Repeat("a", 200) // 56 tokens each
	msgs := turns(long, long, long, long)

	systemCost := EstimateTokens("system")
	maxTokens := systemCost + 120 // room for two turns, not three

	got := Assemble(Params{
		SystemPrompt: "system",
		Messages:     msgs,
		MaxTokens:    maxTokens,
		MaxTurns:     10,
	})

	var turnCost int
	for _, m := range got[1:] {
		turnCost += EstimateTokens(m.Content)
	}
	if turnCost > maxTokens-systemCost {
		t.Fatalf("turn cost %d exceeds remaining budget %d", turnCost, maxTokens-systemCost)
	}
	if len(got) != 3 {
		t.Fatalf("expected system + 2 turns within budget, got %d messages", len(got))
	}
}

func TestOversizedSystemPromptStillIncluded(t *testing.T) {
	got := Assemble(Params{
		SystemPrompt: strings.Repeat("s", 1000),
		Summary:      strings.Repeat("z", 1000),
		Messages:     turns("a question"),
		MaxTokens:    50,
		MaxTurns:     10,
	})

	if len(got) != 2 {
		t.Fatalf("expected exactly system + summary when budget is blown, got %d", len(got))
	}
	if got[0].Role != RoleSystem || got[1].Role != RoleSystem {
		t.Fatal("expected both entries to be system role")
	}
}

func TestDeterministic(t *testing.T) {
	p := Params{
		SystemPrompt: "system",
		Summary:      "summary",
		Messages:     turns("t1", "ok", "t2", "t3"),
		MaxTokens:    500,
		MaxTurns:     2,
	}

	a := Assemble(p)
	b := Assemble(p)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic entry %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}
