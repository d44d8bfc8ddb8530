// Package session holds the ephemeral per-session interaction state and the
// regulation signals derived from it. State lives in RAM only, expires after
// its TTL, and never stores emotional narrative or full transcripts.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
	"github.com/petalvoice/petal/internal/mood"
)

// State tracks one conversation session. It is owned by the control loop and
// must not be shared across goroutines.
type State struct {
	cfg config.SessionConfig
	log zerolog.Logger
	now func() time.Time

	ID        string
	CreatedAt time.Time

	TurnCount  int
	Concept    string
	Difficulty int

	ConsecutiveFrustration int
	ConsecutiveStability   int

	// Last interaction, truncated for privacy.
	LastUserInput string
	LastResponse  string

	Mood           mood.Mood
	MoodConfidence float64

	DifficultyLockedTurns int
}

// New creates a fresh session at the default difficulty.
func New(cfg config.SessionConfig, log zerolog.Logger) *State {
	return newState(cfg, log, time.Now)
}

func newState(cfg config.SessionConfig, log zerolog.Logger, now func() time.Time) *State {
	return &State{
		cfg:        cfg,
		log:        log.With().Str("component", "session").Logger(),
		now:        now,
		ID:         uuid.NewString()[:8],
		CreatedAt:  now(),
		Difficulty: cfg.DefaultDifficulty,
		Mood:       mood.Neutral,
	}
}

// Expired reports whether the session TTL has elapsed. The boundary is
// inclusive: a session is expired at exactly CreatedAt+TTL. Expiry never
// mutates state; callers replace the session explicitly.
func (s *State) Expired() bool {
	return s.now().Sub(s.CreatedAt) >= s.cfg.TTL
}

// PreDecision is phase 1 of the turn update and must run before the
// difficulty gate and strategy selection. It stores the fresh mood reading,
// ticks down the difficulty lock, and updates the streak counters.
func (s *State) PreDecision(r mood.Reading) {
	s.Mood = r.Mood
	s.MoodConfidence = r.Confidence

	if s.DifficultyLockedTurns > 0 {
		s.DifficultyLockedTurns--
	}

	s.updateStreaks(r)

	s.log.Info().
		Str("mood", string(r.Mood)).
		Float64("confidence", r.Confidence).
		Int("frustration", s.ConsecutiveFrustration).
		Int("stability", s.ConsecutiveStability).
		Msg("pre-decision update")
}

// PostUpdate is phase 2, run after the response is generated: it finalizes
// the turn and stores both texts truncated to the configured cap.
func (s *State) PostUpdate(userInput, response string) {
	s.TurnCount++
	s.LastUserInput = truncate(userInput, s.cfg.MaxStoredText)
	s.LastResponse = truncate(response, s.cfg.MaxStoredText)

	s.log.Info().
		Int("turn", s.TurnCount).
		Int("difficulty", s.Difficulty).
		Bool("locked", s.DifficultyLockedTurns > 0).
		Msg("turn complete")
}

func (s *State) updateStreaks(r mood.Reading) {
	// Low confidence never moves a streak in either direction.
	if r.Confidence < s.cfg.MoodConfidence {
		return
	}

	switch r.Mood {
	case mood.Frustrated, mood.Sad:
		s.ConsecutiveFrustration++
		s.ConsecutiveStability = 0
	case mood.Neutral, mood.Happy:
		s.ConsecutiveStability++
		s.ConsecutiveFrustration = 0
	default:
		// Anxious, quiet, unknown: uncertainty never escalates.
		s.ConsecutiveFrustration = 0
		s.ConsecutiveStability = 0
	}
}

// CanChangeDifficulty reports whether the lock has expired and the mood
// reading is confident enough to act on.
func (s *State) CanChangeDifficulty() bool {
	if s.DifficultyLockedTurns > 0 {
		return false
	}
	return s.MoodConfidence >= s.cfg.MoodConfidence
}

// ShouldDecreaseDifficulty opens after the configured run of consecutive
// frustrated turns.
func (s *State) ShouldDecreaseDifficulty() bool {
	return s.CanChangeDifficulty() && s.ConsecutiveFrustration >= s.cfg.FrustrationTurns
}

// ShouldIncreaseDifficulty opens after the configured run of consecutive
// stable turns.
func (s *State) ShouldIncreaseDifficulty() bool {
	return s.CanChangeDifficulty() && s.ConsecutiveStability >= s.cfg.StabilityTurns
}

// ChangeDifficulty applies a delta clamped to the configured bounds. An
// effective change locks further changes and resets both streaks.
func (s *State) ChangeDifficulty(delta int) {
	old := s.Difficulty
	next := s.Difficulty + delta
	if next < s.cfg.MinDifficulty {
		next = s.cfg.MinDifficulty
	}
	if next > s.cfg.MaxDifficulty {
		next = s.cfg.MaxDifficulty
	}
	s.Difficulty = next

	if s.Difficulty != old {
		s.DifficultyLockedTurns = s.cfg.DifficultyLockTurns
		s.ConsecutiveFrustration = 0
		s.ConsecutiveStability = 0
		s.log.Info().
			Int("from", old).
			Int("to", s.Difficulty).
			Int("locked_turns", s.cfg.DifficultyLockTurns).
			Msg("difficulty changed")
	}
}

func truncate(s string, max int) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
