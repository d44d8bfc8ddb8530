package session

import "github.com/petalvoice/petal/internal/mood"

// Streak length at which persistence saturates.
const maxStreakForPersistence = 5

// Regulation is the derived signal set that strategy and reinforcement
// decisions read. They never see raw session counters directly.
type Regulation struct {
	// Persistence scores: 0 means no streak, 1 means saturated.
	FrustrationPersistence float64
	StabilityPersistence   float64

	// Trend: -1 pure frustration, +1 pure stability, 0 balanced or idle.
	EmotionalTrend float64

	Mood           mood.Mood
	MoodConfidence float64

	TurnCount        int
	Difficulty       int
	DifficultyLocked bool
}

// ComputeRegulation derives a fresh Regulation snapshot. Pure function of the
// session; never cached, never mutated in place.
func ComputeRegulation(s *State) Regulation {
	if s == nil {
		return Regulation{Mood: mood.Neutral}
	}

	frus := float64(s.ConsecutiveFrustration) / maxStreakForPersistence
	if frus > 1 {
		frus = 1
	}
	stab := float64(s.ConsecutiveStability) / maxStreakForPersistence
	if stab > 1 {
		stab = 1
	}

	trend := 0.0
	if total := s.ConsecutiveFrustration + s.ConsecutiveStability; total > 0 {
		trend = float64(s.ConsecutiveStability-s.ConsecutiveFrustration) / float64(total)
	}

	return Regulation{
		FrustrationPersistence: frus,
		StabilityPersistence:   stab,
		EmotionalTrend:         trend,
		Mood:                   s.Mood,
		MoodConfidence:         s.MoodConfidence,
		TurnCount:              s.TurnCount,
		Difficulty:             s.Difficulty,
		DifficultyLocked:       s.DifficultyLockedTurns > 0,
	}
}
