package session

import (
	"fmt"
	"strings"
)

// BuildSummary produces the structured session block injected above the
// dialogue history in the prompt. Deterministic format, no narrative, no
// transcripts. mastery is the 0-5 baseline for the active concept, or -1
// when unknown.
func BuildSummary(s *State, mastery int, style string) string {
	if s == nil {
		return ""
	}

	trend := "stable"
	switch {
	case s.ConsecutiveStability >= 2:
		trend = "improving"
	case s.ConsecutiveFrustration >= 2:
		trend = "declining"
	}

	concept := s.Concept
	if concept == "" {
		concept = "general"
	}
	if style == "" {
		style = "calm_validation"
	}
	masteryStr := "unknown"
	if mastery >= 0 {
		masteryStr = fmt.Sprintf("%d", mastery)
	}

	lines := []string{
		"[Session State]",
		fmt.Sprintf("Concept: %s | Difficulty: %d/5 | Turn: %d", concept, s.Difficulty, s.TurnCount),
		fmt.Sprintf("Stability trend: %s | Frustration streak: %d | Stability streak: %d",
			trend, s.ConsecutiveFrustration, s.ConsecutiveStability),
		fmt.Sprintf("Reinforcement: %s | Mastery: %s/5", style, masteryStr),
	}
	return strings.Join(lines, "\n")
}
