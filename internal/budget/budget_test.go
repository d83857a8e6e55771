package budget

import (
	"strings"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

func user(s string) rag.Message { return rag.Message{Role: rag.RoleUser, Content: s} }

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []rag.Message{user("hello world"), user("hello world")}
	// Each message: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2 = 7
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_TrimHistory_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	history := []rag.Message{user("hi"), user("there")}
	got := TrimHistory(100, history, DefaultMaxContextTokens)
	if len(got) != 2 {
		t.Errorf("want 2 history messages, got %d", len(got))
	}
}

func Test_TrimHistory_DropsOldest(t *testing.T) {
	t.Parallel()
	// Each message costs 4 + 1 + 1 = 6 tokens; a budget of 7 fits one.
	history := []rag.Message{user("oldest"), user("newest")}
	got := TrimHistory(0, history, 7)
	if len(got) != 1 {
		t.Fatalf("want 1 history message after trim, got %d", len(got))
	}
	if got[0].Content != "newest" {
		t.Errorf("want newest message retained, got %q", got[0].Content)
	}
}

func Test_TrimHistory_FixedExceedsBudget(t *testing.T) {
	t.Parallel()
	got := TrimHistory(500, []rag.Message{user("a"), user("b")}, 100)
	if len(got) != 0 {
		t.Errorf("want empty history when fixed part exceeds budget, got %d", len(got))
	}
}

func Test_TrimHistory_DisabledBudget(t *testing.T) {
	t.Parallel()
	history := []rag.Message{user(strings.Repeat("x", 10000))}
	if got := TrimHistory(0, history, 0); len(got) != 1 {
		t.Errorf("maxTokens=0 should keep history, got %d", len(got))
	}
}
