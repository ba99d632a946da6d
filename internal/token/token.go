// Package token estimates token counts for prompt-budget accounting.
// Estimates approximate a subword tokenizer closely enough for stable
// threshold comparisons; they are not billing-accurate.
package token

import (
	"regexp"
	"strings"
)

// unitRe splits text into word-like runs and single punctuation marks,
// mirroring how subword tokenizers break on word boundaries.
var unitRe = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]`)

// TurnOverhead is the fixed per-message cost added by chat templates
// (role markers, separators).
const TurnOverhead = 4

// Estimate returns a deterministic token estimate for text.
// Empty or whitespace-only text costs zero. The character heuristic
// (~4 chars per token, rounded up) is the floor so that control bytes or
// unusual scripts never undercount.
func Estimate(text string) int {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0
	}
	byUnits := len(unitRe.FindAllStringIndex(s, -1))
	byChars := (len(s) + 3) / 4
	if byChars > byUnits {
		return byChars
	}
	return byUnits
}

// EstimateTurns returns the approximate total cost of a message list,
// including the per-turn template overhead.
func EstimateTurns(texts []string) int {
	total := 0
	for _, t := range texts {
		total += Estimate(t) + TurnOverhead
	}
	return total
}
