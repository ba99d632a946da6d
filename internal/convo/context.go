// Package convo maintains one conversation context under a hard token budget.
// Turns are appended, never edited; when the budget is exceeded the manager
// drops the oldest droppable turns and, if that is not enough, compacts
// history into a synthetic summary turn.
package convo

import (
	"sync"
	"time"

	"chatd/internal/token"
	"chatd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultProtectedTail = 2
)

// Config holds the tunables for one context manager.
type Config struct {
	// Budget is the hard token ceiling for the whole context. Required, > 0.
	Budget int
	// ProtectedTail is the number of most recent turns that truncation
	// never drops.
	ProtectedTail int
	// PreferSummarize compacts history into a summary before dropping turns.
	PreferSummarize bool
}

// Manager owns one conversation context. All mutations go through Append
// and ReplaceTurns; the post-condition TotalTokens() <= Budget holds after
// every successful call.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	turns     []types.Turn
	truncated int

	// Active synthetic summary; empty when none.
	summary       string
	summaryTokens int
	summaryAt     time.Time

	// Text of turns removed by truncation, folded into the next summary.
	droppedTexts []string
}

// NewManager constructs a Manager. Budget must be positive.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Budget <= 0 {
		return nil, errBudgetUnsatisfiable{need: 1, budget: cfg.Budget}
	}
	if cfg.ProtectedTail <= 0 {
		cfg.ProtectedTail = defaultProtectedTail
	}
	return &Manager{cfg: cfg}, nil
}

// NewTurn builds a turn for text with its token cost computed once.
func NewTurn(role types.Role, text string) types.Turn {
	return types.Turn{
		Role:      role,
		Text:      text,
		Tokens:    token.Estimate(text) + token.TurnOverhead,
		Timestamp: time.Now().UTC(),
	}
}

// Append adds a turn and re-establishes the budget invariant. If the turn's
// cost is zero it is computed from the text. Fails with a budget error when
// the incoming turn alone exceeds the budget, or when truncation and
// summarization together cannot bring the context back under it; in the
// latter case the incoming turn is kept and the caller decides whether to
// proceed degraded.
func (m *Manager) Append(turn types.Turn) error {
	if turn.Tokens <= 0 {
		turn.Tokens = token.Estimate(turn.Text) + token.TurnOverhead
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if turn.Tokens > m.cfg.Budget {
		return errBudgetUnsatisfiable{need: turn.Tokens, budget: m.cfg.Budget}
	}
	m.turns = append(m.turns, turn)
	return m.enforceLocked()
}

// ReplaceTurns swaps in a full transcript (e.g., loaded from storage) and
// enforces the budget over it.
func (m *Manager) ReplaceTurns(turns []types.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = make([]types.Turn, len(turns))
	copy(m.turns, turns)
	m.truncated = 0
	m.summary = ""
	m.summaryTokens = 0
	m.droppedTexts = nil
	for i := range m.turns {
		if m.turns[i].Tokens <= 0 {
			m.turns[i].Tokens = token.Estimate(m.turns[i].Text) + token.TurnOverhead
		}
	}
	return m.enforceLocked()
}

// BuildForInference returns the ordered turns to send to the backend. An
// active summary is prepended as a synthetic system turn. The returned slice
// is a copy and always fits the budget.
func (m *Manager) BuildForInference() []types.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Turn, 0, len(m.turns)+1)
	if m.summary != "" {
		out = append(out, types.Turn{
			Role:      types.RoleSystem,
			Text:      m.summary,
			Tokens:    m.summaryTokens,
			Timestamp: m.summaryAt,
		})
	}
	return append(out, m.turns...)
}

// Turns returns a copy of the stored turns, excluding any synthetic summary.
func (m *Manager) Turns() []types.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// TotalTokens returns the current estimated context cost including the
// active summary.
func (m *Manager) TotalTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalLocked()
}

// Budget returns the configured token ceiling.
func (m *Manager) Budget() int { return m.cfg.Budget }

// Usage reports occupancy for the status surface.
func (m *Manager) Usage() types.ContextUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.totalLocked()
	return types.ContextUsage{
		UsedTokens:     used,
		Budget:         m.cfg.Budget,
		UsagePercent:   float64(used) / float64(m.cfg.Budget) * 100,
		TruncatedTurns: m.truncated,
		Summarized:     m.summary != "",
	}
}

func (m *Manager) totalLocked() int {
	total := m.summaryTokens
	for i := range m.turns {
		total += m.turns[i].Tokens
	}
	return total
}

// enforceLocked restores TotalTokens <= Budget, preferring summarization
// when configured, then dropping oldest droppable turns, then compacting as
// a last resort.
func (m *Manager) enforceLocked() error {
	if m.totalLocked() <= m.cfg.Budget {
		return nil
	}
	if m.cfg.PreferSummarize {
		m.compactLocked()
		if m.totalLocked() <= m.cfg.Budget {
			return nil
		}
	}
	for m.totalLocked() > m.cfg.Budget {
		i := m.oldestDroppableLocked()
		if i < 0 {
			break
		}
		m.droppedTexts = append(m.droppedTexts, m.turns[i].Text)
		m.turns = append(m.turns[:i], m.turns[i+1:]...)
		m.truncated++
	}
	if m.totalLocked() <= m.cfg.Budget {
		return nil
	}
	// Truncation alone was not enough; summarization may still shrink an
	// oversized summary or fold a remaining droppable block.
	m.compactLocked()
	if m.totalLocked() <= m.cfg.Budget {
		return nil
	}
	return errBudgetUnsatisfiable{need: m.totalLocked(), budget: m.cfg.Budget}
}

// oldestDroppableLocked returns the index of the oldest turn that truncation
// may remove: non-system and outside the protected tail. -1 when none.
func (m *Manager) oldestDroppableLocked() int {
	limit := len(m.turns) - m.cfg.ProtectedTail
	for i := 0; i < limit; i++ {
		if m.turns[i].Role != types.RoleSystem {
			return i
		}
	}
	return -1
}
