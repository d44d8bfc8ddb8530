// Package mood derives a conservative, temporally smoothed emotional estimate
// from each utterance's transcript and prosody. It never acts on a single
// reading and it never escalates on uncertainty.
package mood

// Mood is an emotional category label.
type Mood string

const (
	Neutral    Mood = "neutral"
	Happy      Mood = "happy"
	Sad        Mood = "sad"
	Frustrated Mood = "frustrated"
	Anxious    Mood = "anxious"
	Quiet      Mood = "quiet"
)

// Reading is one (mood, confidence) sample.
type Reading struct {
	Mood       Mood
	Confidence float64
}
