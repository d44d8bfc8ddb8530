package mood

import (
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/audio"
)

// Prosody thresholds.
const (
	LOUD_RMS_THRESHOLD  = 0.15 // above this: high arousal (excited or upset)
	QUIET_RMS_THRESHOLD = 0.02 // below this: withdrawn
	FAST_WORDS_PER_SEC  = 3.0
	SLOW_WORDS_PER_SEC  = 0.8
	SHORT_UTTERANCE_WORDS = 3

	// Speaking-rate readings shorter than this are too noisy to trust.
	MIN_RATE_DURATION = 500 * time.Millisecond
	MAX_WORDS_PER_SEC = 10.0

	smoothingWindow = 3

	textWeight  = 0.6
	audioWeight = 0.4
	// When the text reading itself is barely confident, lean on prosody
	// instead so transcription noise cannot dominate.
	lowTextConfidence = 0.3
	lowTextWeight     = 0.35
	lowAudioWeight    = 0.65

	agreementBoost = 1.3
)

// Estimator combines text and prosody readings, smooths them over a rolling
// window, and decays a held mood back toward neutral on calm input. Owned by
// the control loop; not safe for concurrent use.
type Estimator struct {
	threshold float64
	log       zerolog.Logger

	history []Reading
	current Reading

	prevRate   float64
	hasRate    bool
	neutralRun int
}

// NewEstimator builds an estimator. threshold is the minimum smoothed
// confidence required before the held mood updates.
func NewEstimator(threshold float64, log zerolog.Logger) *Estimator {
	return &Estimator{
		threshold: threshold,
		log:       log.With().Str("component", "mood").Logger(),
		current:   Reading{Mood: Neutral, Confidence: 0},
	}
}

// Analyze processes one utterance and returns the held (smoothed) reading.
func (e *Estimator) Analyze(text string, frames []audio.Frame, duration time.Duration) Reading {
	textR := e.analyzeText(text)
	audioR := e.analyzeAudio(frames, text, textR, duration)
	combined := combine(textR, audioR)

	e.history = append(e.history, combined)
	if len(e.history) > smoothingWindow {
		e.history = e.history[1:]
	}
	smoothed := e.smooth()

	if smoothed.Confidence >= e.threshold {
		if smoothed.Mood != e.current.Mood {
			e.log.Info().
				Str("from", string(e.current.Mood)).
				Str("to", string(smoothed.Mood)).
				Float64("confidence", smoothed.Confidence).
				Msg("mood transition")
		}
		e.current = smoothed
	}

	e.decayOnCalm(combined)

	e.log.Debug().
		Str("current", string(e.current.Mood)).
		Str("raw", string(combined.Mood)).
		Float64("raw_conf", combined.Confidence).
		Str("smoothed", string(smoothed.Mood)).
		Float64("smoothed_conf", smoothed.Confidence).
		Msg("mood reading")

	return e.current
}

// Current returns the held reading without consuming an utterance.
func (e *Estimator) Current() Reading { return e.current }

// decayOnCalm runs the neutral-decay path: two or more consecutive neutral
// combined readings progressively drain a held non-neutral mood until it
// falls below the activation threshold and resets.
func (e *Estimator) decayOnCalm(combined Reading) {
	if combined.Mood != Neutral {
		e.neutralRun = 0
		return
	}
	e.neutralRun++
	if e.neutralRun < 2 || e.current.Mood == Neutral {
		return
	}
	e.current.Confidence *= 0.8
	if e.current.Confidence < e.threshold {
		e.log.Info().Str("from", string(e.current.Mood)).Msg("mood decayed to neutral")
		e.current = Reading{Mood: Neutral, Confidence: 0}
	}
}

func (e *Estimator) analyzeText(text string) Reading {
	norm := normalizeText(text)
	if norm == "" {
		return Reading{Mood: Quiet, Confidence: 0.5}
	}

	words := strings.Fields(norm)
	if len(words) <= SHORT_UTTERANCE_WORDS {
		if len(words) == 1 && positiveShorts[words[0]] {
			return Reading{Mood: Happy, Confidence: 0.3}
		}
		// Pure filler ("um", "uh") is hesitation, not a mood signal.
		if allFiller(words) {
			return Reading{Mood: Quiet, Confidence: 0.4}
		}
		// A short reply can still carry clear negative signal ("stop",
		// "too hard") so check those sets before assuming disengagement.
		for _, m := range []Mood{Frustrated, Anxious, Sad} {
			if keywordScore(norm, moodKeywords[m]) > 0 {
				return Reading{Mood: m, Confidence: 0.4}
			}
		}
		return Reading{Mood: Quiet, Confidence: 0.4}
	}

	best := Neutral
	bestScore := 0.0
	for _, m := range []Mood{Happy, Sad, Frustrated, Anxious} {
		if score := keywordScore(norm, moodKeywords[m]); score > bestScore {
			best, bestScore = m, score
		}
	}
	if bestScore == 0 {
		return Reading{Mood: Neutral, Confidence: 0.5}
	}
	// A couple of keyword hits already mean moderate confidence.
	return Reading{Mood: best, Confidence: math.Min(bestScore*5.0, 1.0)}
}

func (e *Estimator) analyzeAudio(frames []audio.Frame, text string, textR Reading, duration time.Duration) Reading {
	if len(frames) == 0 {
		return Reading{Mood: Neutral, Confidence: 0}
	}

	var sum float64
	var n int
	for _, f := range frames {
		for _, s := range f.Samples {
			sum += float64(s) * float64(s)
			n++
		}
	}
	if n == 0 {
		return Reading{Mood: Neutral, Confidence: 0}
	}
	rms := math.Sqrt(sum / float64(n))

	wordCount := len(strings.Fields(text))
	rate, rateValid := e.speakingRate(wordCount, duration)

	if rms > LOUD_RMS_THRESHOLD {
		// Loud means aroused, not which way; the text reading breaks
		// the tie.
		switch textR.Mood {
		case Happy:
			return Reading{Mood: Happy, Confidence: 0.4}
		case Frustrated:
			return Reading{Mood: Frustrated, Confidence: 0.4}
		default:
			return Reading{Mood: Anxious, Confidence: 0.25}
		}
	}
	if rms < QUIET_RMS_THRESHOLD {
		// Silence alone is not sadness.
		if textR.Mood == Sad || textR.Mood == Frustrated {
			return Reading{Mood: Sad, Confidence: 0.4}
		}
		return Reading{Mood: Quiet, Confidence: 0.3}
	}

	if rateValid {
		if rate > FAST_WORDS_PER_SEC {
			return Reading{Mood: Anxious, Confidence: 0.3}
		}
		if rate < SLOW_WORDS_PER_SEC && wordCount > 0 {
			return Reading{Mood: Sad, Confidence: 0.3}
		}
	}
	return Reading{Mood: Neutral, Confidence: 0.2}
}

// speakingRate computes words/second smoothed against the previous reading.
// Utterances shorter than MIN_RATE_DURATION yield no valid rate.
func (e *Estimator) speakingRate(wordCount int, duration time.Duration) (float64, bool) {
	if duration < MIN_RATE_DURATION || wordCount == 0 {
		return 0, false
	}
	raw := math.Min(float64(wordCount)/duration.Seconds(), MAX_WORDS_PER_SEC)
	if e.hasRate {
		raw = (raw + e.prevRate) / 2
	}
	e.prevRate = raw
	e.hasRate = true
	return raw, true
}

func combine(textR, audioR Reading) Reading {
	tw, aw := textWeight, audioWeight
	if textR.Confidence < lowTextConfidence {
		tw, aw = lowTextWeight, lowAudioWeight
	}

	if textR.Mood == audioR.Mood {
		conf := math.Min((textR.Confidence*tw+audioR.Confidence*aw)*agreementBoost, 1.0)
		return Reading{Mood: textR.Mood, Confidence: conf}
	}

	textWeighted := textR.Confidence * tw
	audioWeighted := audioR.Confidence * aw
	if textWeighted >= audioWeighted {
		return Reading{Mood: textR.Mood, Confidence: textWeighted}
	}
	return Reading{Mood: audioR.Mood, Confidence: audioWeighted}
}

// smooth applies the 2-of-3 majority rule over the rolling window. Without a
// consensus the previous mood is held with confidence decayed by 10%.
func (e *Estimator) smooth() Reading {
	if len(e.history) == 0 {
		return Reading{Mood: Neutral, Confidence: 0}
	}

	counts := map[Mood]int{}
	totals := map[Mood]float64{}
	for _, r := range e.history {
		counts[r.Mood]++
		totals[r.Mood] += r.Confidence
	}

	dominant := e.history[0].Mood
	for m, c := range counts {
		if c > counts[dominant] {
			dominant = m
		}
	}

	required := len(e.history) * 2 / 3
	if required < 1 {
		required = 1
	}
	if counts[dominant] >= required {
		return Reading{Mood: dominant, Confidence: totals[dominant] / float64(counts[dominant])}
	}
	return Reading{Mood: e.current.Mood, Confidence: e.current.Confidence * 0.9}
}
