// Package audio turns raw capture frames into complete utterances.
package audio

import (
	"math"
	"time"
)

// Frame is one capture window of mono PCM samples in [-1, 1].
type Frame struct {
	Samples []float32
	At      time.Time
}

// RMS returns the root-mean-square energy of the frame.
func (f Frame) RMS() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(f.Samples)))
}

// Utterance is a closed segment of consecutive frames containing speech.
type Utterance struct {
	Frames   []Frame
	Duration time.Duration
}

// Samples flattens the utterance into one contiguous sample slice.
func (u Utterance) Samples() []float32 {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	out := make([]float32, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Samples...)
	}
	return out
}
