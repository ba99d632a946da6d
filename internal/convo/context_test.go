package convo

import (
	"strings"
	"testing"
	"time"

	"chatd/pkg/types"
)

func mkTurn(role types.Role, text string, cost int) types.Turn {
	return types.Turn{Role: role, Text: text, Tokens: cost, Timestamp: time.Now().UTC()}
}

func TestNewManager_RejectsNonPositiveBudget(t *testing.T) {
	if _, err := NewManager(Config{Budget: 0}); !IsBudgetUnsatisfiable(err) {
		t.Fatalf("expected budget error, got %v", err)
	}
}

func TestAppend_InvariantHoldsAfterEveryCall(t *testing.T) {
	m, err := NewManager(Config{Budget: 100, ProtectedTail: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	role := types.RoleUser
	for i := 0; i < 20; i++ {
		if err := m.Append(mkTurn(role, "turn", 15)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if got := m.TotalTokens(); got > 100 {
			t.Fatalf("after append %d: total %d exceeds budget", i, got)
		}
		if role == types.RoleUser {
			role = types.RoleAssistant
		} else {
			role = types.RoleUser
		}
	}
}

func TestAppend_DropsOldestFirst(t *testing.T) {
	m, err := NewManager(Config{Budget: 100, ProtectedTail: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	texts := []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10"}
	for _, txt := range texts {
		if err := m.Append(mkTurn(types.RoleUser, txt, 15)); err != nil {
			t.Fatalf("Append %s: %v", txt, err)
		}
	}
	turns := m.Turns()
	if len(turns) != 6 {
		t.Fatalf("retained %d turns, want 6", len(turns))
	}
	if turns[0].Text != "t5" {
		t.Fatalf("oldest retained = %s, want t5", turns[0].Text)
	}
	if turns[len(turns)-1].Text != "t10" {
		t.Fatalf("newest retained = %s, want t10", turns[len(turns)-1].Text)
	}
	if got := m.Usage().TruncatedTurns; got != 4 {
		t.Fatalf("truncated = %d, want 4", got)
	}
}

func TestAppend_NeverDropsSystemOrProtectedTail(t *testing.T) {
	m, err := NewManager(Config{Budget: 60, ProtectedTail: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Append(mkTurn(types.RoleSystem, "system prompt", 10)); err != nil {
		t.Fatalf("Append system: %v", err)
	}
	for _, txt := range []string{"a", "b", "c", "d", "e"} {
		if err := m.Append(mkTurn(types.RoleUser, txt, 15)); err != nil {
			t.Fatalf("Append %s: %v", txt, err)
		}
	}
	turns := m.Turns()
	if turns[0].Role != types.RoleSystem {
		t.Fatalf("system turn was dropped; first turn role = %s", turns[0].Role)
	}
	// The two most recent turns survive regardless of truncation pressure.
	if turns[len(turns)-1].Text != "e" || turns[len(turns)-2].Text != "d" {
		t.Fatalf("protected tail violated: %+v", turns)
	}
}

func TestAppend_SingleTurnOverBudgetFails(t *testing.T) {
	m, err := NewManager(Config{Budget: 50})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Append(mkTurn(types.RoleUser, "huge", 51)); !IsBudgetUnsatisfiable(err) {
		t.Fatalf("expected budget error, got %v", err)
	}
	if n := len(m.Turns()); n != 0 {
		t.Fatalf("context mutated on rejected append: %d turns", n)
	}
}

func TestAppend_ProtectedTailAloneOverBudgetFails(t *testing.T) {
	m, err := NewManager(Config{Budget: 50, ProtectedTail: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Append(mkTurn(types.RoleUser, "first", 30)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	err = m.Append(mkTurn(types.RoleAssistant, "second", 30))
	if !IsBudgetUnsatisfiable(err) {
		t.Fatalf("expected budget error, got %v", err)
	}
	// The degraded context keeps both turns; the caller chooses what to do.
	if n := len(m.Turns()); n != 2 {
		t.Fatalf("turns = %d, want 2", n)
	}
}

func TestSummarizeAndCompact_StrictlyReducesTotal(t *testing.T) {
	m, err := NewManager(Config{Budget: 10000, ProtectedTail: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	question := "How do I configure the memory limits for a llama server instance? " + strings.Repeat("context ", 30)
	answer := "You set the limits like this: 1. open the config. 2. edit it. " + strings.Repeat("detail ", 50)
	for _, tt := range []types.Turn{
		NewTurn(types.RoleUser, question),
		NewTurn(types.RoleAssistant, answer),
		NewTurn(types.RoleUser, "short follow-up"),
		NewTurn(types.RoleAssistant, "short reply"),
	} {
		if err := m.Append(tt); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	before := m.TotalTokens()
	if !m.SummarizeAndCompact() {
		t.Fatalf("SummarizeAndCompact did nothing")
	}
	after := m.TotalTokens()
	if after >= before {
		t.Fatalf("compact did not reduce total: %d -> %d", before, after)
	}
	built := m.BuildForInference()
	if built[0].Role != types.RoleSystem || !strings.HasPrefix(built[0].Text, "Previous conversation") {
		t.Fatalf("summary turn missing or malformed: %+v", built[0])
	}
	// The protected tail is untouched.
	if built[len(built)-1].Text != "short reply" {
		t.Fatalf("tail turn lost: %+v", built[len(built)-1])
	}
}

func TestPreferSummarize_CompactsBeforeDropping(t *testing.T) {
	m, err := NewManager(Config{Budget: 200, ProtectedTail: 2, PreferSummarize: true})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	long := strings.Repeat("background discussion of the deployment pipeline ", 4)
	for i := 0; i < 4; i++ {
		if err := m.Append(mkTurn(types.RoleUser, long, 60)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if got := m.TotalTokens(); got > 200 {
		t.Fatalf("total %d exceeds budget", got)
	}
	if !m.Usage().Summarized {
		t.Fatalf("expected an active summary, usage = %+v", m.Usage())
	}
}

func TestReplaceTurns_EnforcesBudget(t *testing.T) {
	m, err := NewManager(Config{Budget: 50, ProtectedTail: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	turns := []types.Turn{
		mkTurn(types.RoleUser, "old1", 20),
		mkTurn(types.RoleUser, "old2", 20),
		mkTurn(types.RoleUser, "new1", 20),
		mkTurn(types.RoleUser, "new2", 20),
	}
	if err := m.ReplaceTurns(turns); err != nil {
		t.Fatalf("ReplaceTurns: %v", err)
	}
	if got := m.TotalTokens(); got > 50 {
		t.Fatalf("total %d exceeds budget after replace", got)
	}
	kept := m.Turns()
	if kept[len(kept)-1].Text != "new2" {
		t.Fatalf("newest turn lost after replace: %+v", kept)
	}
}

func TestBuildForInference_ReturnsCopy(t *testing.T) {
	m, err := NewManager(Config{Budget: 100})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Append(mkTurn(types.RoleUser, "hello", 10)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	built := m.BuildForInference()
	built[0].Text = "mutated"
	if m.Turns()[0].Text != "hello" {
		t.Fatalf("BuildForInference leaked internal state")
	}
}

func TestUsage_Percent(t *testing.T) {
	m, err := NewManager(Config{Budget: 200})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Append(mkTurn(types.RoleUser, "x", 50)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	u := m.Usage()
	if u.UsedTokens != 50 || u.Budget != 200 || u.UsagePercent != 25 {
		t.Fatalf("usage = %+v", u)
	}
}
