package convo

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"chatd/internal/token"
	"chatd/pkg/types"
)

// SummarizeAndCompact replaces the oldest contiguous block of droppable
// turns (plus any previous summary and truncated history) with one synthetic
// summary turn that is strictly cheaper than what it replaces. Returns true
// when the context changed.
func (m *Manager) SummarizeAndCompact() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compactLocked()
}

func (m *Manager) compactLocked() bool {
	start, end := m.compactRangeLocked()
	replaced := m.summaryTokens
	for _, t := range m.turns[start:end] {
		replaced += t.Tokens
	}
	// A summary turn costs at least the template overhead; replacing
	// anything cheaper cannot reduce the total.
	if replaced <= token.TurnOverhead+1 {
		return false
	}
	text := composeSummary(m.droppedTexts, m.turns[start:end], m.truncated)
	text = capToTokens(text, replaced-1-token.TurnOverhead)
	if text == "" {
		return false
	}
	cost := token.Estimate(text) + token.TurnOverhead
	if cost >= replaced {
		return false
	}
	m.truncated += end - start
	m.turns = append(m.turns[:start], m.turns[end:]...)
	m.droppedTexts = nil
	m.summary = text
	m.summaryTokens = cost
	m.summaryAt = time.Now().UTC()
	return true
}

// compactRangeLocked returns the [start,end) bounds of the oldest contiguous
// run of non-system turns outside the protected tail. start == end when no
// such run exists.
func (m *Manager) compactRangeLocked() (int, int) {
	limit := len(m.turns) - m.cfg.ProtectedTail
	start := 0
	for start < limit && m.turns[start].Role == types.RoleSystem {
		start++
	}
	end := start
	for end < limit && m.turns[end].Role != types.RoleSystem {
		end++
	}
	return start, end
}

var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)how (?:do|can|to) (.*?)[?.]`),
	regexp.MustCompile(`(?i)what (?:is|are) (.*?)[?.]`),
	regexp.MustCompile(`(?i)why (?:does|is|are) (.*?)[?.]`),
	regexp.MustCompile(`(?i)explain (.*?)[?.]`),
	regexp.MustCompile(`(?i)tell me about (.*?)[?.]`),
}

var wordRe = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

// composeSummary condenses replaced history into a few bullet points,
// falling back to an exchange count when nothing stands out.
func composeSummary(droppedTexts []string, block []types.Turn, truncated int) string {
	var points []string
	for _, t := range block {
		switch t.Role {
		case types.RoleUser:
			if len(t.Text) > 50 {
				if topic := extractTopic(t.Text); topic != "" {
					points = append(points, "User asked about "+topic)
				}
			}
		case types.RoleAssistant:
			if len(t.Text) > 100 {
				points = append(points, "Assistant explained "+extractKeyInfo(t.Text))
			}
		}
	}
	for _, s := range droppedTexts {
		if len(points) >= 5 {
			break
		}
		if len(s) > 50 && strings.Contains(s, "?") {
			if topic := extractTopic(s); topic != "" {
				points = append(points, "User asked about "+topic)
			}
		}
	}
	if len(points) > 5 {
		points = points[:5]
	}
	if len(points) == 0 {
		exchanges := (len(block)+1)/2 + (truncated+1)/2
		if exchanges == 0 {
			return ""
		}
		return fmt.Sprintf("Previous conversation involved %d exchanges between user and assistant.", exchanges)
	}
	var b strings.Builder
	b.WriteString("Previous conversation summary:")
	for _, p := range points {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	return b.String()
}

// extractTopic pulls a short topic phrase out of a user message.
func extractTopic(text string) string {
	low := strings.ToLower(text)
	for _, re := range questionPatterns {
		if m := re.FindStringSubmatch(low); m != nil {
			topic := strings.TrimSpace(m[1])
			if topic != "" && len(topic) < 50 {
				return topic
			}
		}
	}
	words := wordRe.FindAllString(text, 3)
	if len(words) > 0 {
		return strings.ToLower(strings.Join(words, " "))
	}
	return ""
}

// extractKeyInfo classifies what an assistant response contained.
func extractKeyInfo(text string) string {
	switch {
	case strings.Contains(text, "```"):
		return "code examples"
	case strings.Contains(text, "1.") || strings.Contains(text, "- ") || strings.Contains(text, "* "):
		return "step-by-step information"
	case len(text) > 500:
		return "detailed information"
	default:
		return "information"
	}
}

// capToTokens trims s until its estimated cost fits max. Cutting happens on
// raw bytes; the summary text is generated ASCII.
func capToTokens(s string, max int) string {
	if max <= 0 {
		return ""
	}
	for token.Estimate(s) > max {
		keep := max * 3
		if keep >= len(s) {
			keep = len(s) - 1
		}
		if keep <= 0 {
			return ""
		}
		s = strings.TrimSpace(s[:keep])
	}
	return s
}
