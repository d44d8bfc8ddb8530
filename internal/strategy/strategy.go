// Package strategy maps a mood reading to the behavioral parameters that
// shape the next response. It adjusts pacing and tone conservatively: a
// low-confidence reading may soften delivery but never changes the task.
package strategy

import (
	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/mood"
)

// Confidence below which only the conservative table applies.
const fullStrategyConfidence = 0.5

// Strategy is the parameter bundle applied between mood detection and
// generation. Immutable once selected.
type Strategy struct {
	// ResponseLengthLimit caps the reply at 1-3 sentences, never 0.
	ResponseLengthLimit int
	// InstructionDepth is 1 simple, 2 normal, 3 detailed.
	InstructionDepth int
	// TTSSpeed is the synthesis pacing scale; lower is slower.
	TTSSpeed float64
	// ReassuranceLevel is 0 none through 3 high.
	ReassuranceLevel int
	// DifficultyModifier nudges the task: -1 easier, 0 unchanged, +1
	// harder. Never below -1.
	DifficultyModifier int
	// PromptAddition is injected into the dialogue context as internal
	// guidance, never spoken aloud.
	PromptAddition string
	Label          string
}

var neutralStrategy = Strategy{
	ResponseLengthLimit: 3,
	InstructionDepth:    2,
	TTSSpeed:            0.9,
	Label:               "neutral",
}

var fullStrategies = map[mood.Mood]Strategy{
	mood.Neutral: neutralStrategy,
	mood.Happy: {
		ResponseLengthLimit: 3,
		InstructionDepth:    2,
		TTSSpeed:            0.9,
		PromptAddition: "The child seems engaged and positive. " +
			"Mirror their energy gently. Encourage them. " +
			"Keep the current task and pace.",
		Label: "happy",
	},
	mood.Frustrated: {
		ResponseLengthLimit: 2,
		InstructionDepth:    1,
		TTSSpeed:            0.8,
		ReassuranceLevel:    2,
		DifficultyModifier:  -1,
		PromptAddition: "The child seems to be finding things difficult. " +
			"Break instructions into smaller, simpler steps. " +
			"Add reassurance: 'You are doing well. Let us take it one step at a time.' " +
			"Do NOT add new tasks. Do NOT increase complexity.",
		Label: "frustrated",
	},
	mood.Anxious: {
		ResponseLengthLimit: 2,
		InstructionDepth:    1,
		TTSSpeed:            0.78,
		ReassuranceLevel:    3,
		PromptAddition: "The child may be feeling uncertain or overwhelmed. " +
			"Use short, predictable sentences. Add a grounding phrase: " +
			"'You are safe. I am right here with you.' " +
			"Do NOT introduce anything new. Keep things simple and familiar.",
		Label: "anxious",
	},
	mood.Sad: {
		ResponseLengthLimit: 2,
		InstructionDepth:    1,
		TTSSpeed:            0.78,
		ReassuranceLevel:    3,
		DifficultyModifier:  -1,
		PromptAddition: "The child seems to need comfort. " +
			"Validate their feeling: 'It is okay to feel that way.' " +
			"Offer an optional pause: 'We can take a break whenever you want.' " +
			"Do NOT push new tasks. Focus on emotional presence.",
		Label: "sad",
	},
	mood.Quiet: {
		ResponseLengthLimit: 2,
		InstructionDepth:    1,
		TTSSpeed:            0.85,
		ReassuranceLevel:    1,
		PromptAddition: "The child is quiet. Do NOT push them to engage. " +
			"Offer gentle re-engagement: 'I am here whenever you want to talk.' " +
			"Keep any task simple. Do NOT escalate.",
		Label: "quiet",
	},
}

// Conservative table for low-confidence readings: tone only, no difficulty
// or instruction-depth changes.
var conservativeStrategies = map[mood.Mood]Strategy{
	mood.Neutral: neutralStrategy,
	mood.Happy: {
		ResponseLengthLimit: 3,
		InstructionDepth:    2,
		TTSSpeed:            0.9,
		PromptAddition:      "Maintain a warm, encouraging tone.",
		Label:               "happy_low_conf",
	},
	mood.Frustrated: {
		ResponseLengthLimit: 3,
		InstructionDepth:    2,
		TTSSpeed:            0.85,
		ReassuranceLevel:    1,
		PromptAddition:      "Use a patient, calm tone. Add light encouragement.",
		Label:               "frustrated_low_conf",
	},
	mood.Anxious: {
		ResponseLengthLimit: 3,
		InstructionDepth:    2,
		TTSSpeed:            0.85,
		ReassuranceLevel:    1,
		PromptAddition:      "Use a calm, steady tone. Keep sentences short.",
		Label:               "anxious_low_conf",
	},
	mood.Sad: {
		ResponseLengthLimit: 3,
		InstructionDepth:    2,
		TTSSpeed:            0.85,
		ReassuranceLevel:    1,
		PromptAddition:      "Be gentle and warm. No pressure.",
		Label:               "sad_low_conf",
	},
	mood.Quiet: {
		ResponseLengthLimit: 2,
		InstructionDepth:    2,
		TTSSpeed:            0.9,
		Label:               "quiet_low_conf",
	},
}

// Selector translates (mood, confidence) into a Strategy. Re-selection is
// idempotent and logs only when the label changes.
type Selector struct {
	log      zerolog.Logger
	previous Strategy
}

// NewSelector builds a selector starting from the neutral strategy.
func NewSelector(log zerolog.Logger) *Selector {
	return &Selector{
		log:      log.With().Str("component", "strategy").Logger(),
		previous: neutralStrategy,
	}
}

// Select returns the strategy for the given reading. Below the confidence
// threshold the conservative table applies; unknown moods fall back to
// neutral.
func (s *Selector) Select(r mood.Reading) Strategy {
	table := fullStrategies
	if r.Confidence < fullStrategyConfidence {
		table = conservativeStrategies
	}

	st, ok := table[r.Mood]
	if !ok {
		st = neutralStrategy
	}

	// The task is never trivialized past one step easier.
	if st.DifficultyModifier < -1 {
		st.DifficultyModifier = -1
		if st.InstructionDepth < 1 {
			st.InstructionDepth = 1
		}
		st.Label += "_clamped"
	}

	if st.Label != s.previous.Label {
		s.log.Info().
			Str("from", s.previous.Label).
			Str("to", st.Label).
			Str("mood", string(r.Mood)).
			Float64("confidence", r.Confidence).
			Msg("strategy change")
	}
	s.previous = st
	return st
}

// Previous returns the last applied strategy.
func (s *Selector) Previous() Strategy { return s.previous }
