package audio

import (
	"time"

	"github.com/rs/zerolog"
)

// SegmenterConfig tunes utterance segmentation.
type SegmenterConfig struct {
	// NoiseGateThreshold is the minimum RMS for a frame to count as speech
	// even when the classifier says speech.
	NoiseGateThreshold float64
	// FrameDuration is the nominal length of one frame.
	FrameDuration time.Duration
	// SilenceFrames is how many consecutive non-speech frames close an open
	// utterance.
	SilenceFrames int
}

// Segmenter accumulates frames into utterances. A frame counts as speech only
// when it passes the noise gate and the classifier agrees; a classifier error
// demotes the frame to silence. Not safe for concurrent use; it is owned by
// the control loop.
type Segmenter struct {
	cfg     SegmenterConfig
	vad     Classifier
	log     zerolog.Logger
	locked  bool
	open    bool
	frames  []Frame
	silence int
}

// NewSegmenter builds a segmenter around the given classifier.
func NewSegmenter(cfg SegmenterConfig, vad Classifier, log zerolog.Logger) *Segmenter {
	return &Segmenter{cfg: cfg, vad: vad, log: log.With().Str("component", "segmenter").Logger()}
}

// SetLocked engages or releases the listening lock. While locked every frame
// is dropped, and any partially collected utterance is discarded so the
// agent's own voice never leaks into a segment.
func (s *Segmenter) SetLocked(locked bool) {
	if locked && s.open {
		s.log.Debug().Int("frames", len(s.frames)).Msg("discarding partial utterance on lock")
		s.reset()
	}
	s.locked = locked
}

// Locked reports whether the listening lock is engaged.
func (s *Segmenter) Locked() bool { return s.locked }

// Push feeds one frame. It returns a closed utterance and true when the
// trailing-silence window has elapsed.
func (s *Segmenter) Push(f Frame) (Utterance, bool) {
	if s.locked {
		return Utterance{}, false
	}

	speech := false
	if f.RMS() > s.cfg.NoiseGateThreshold {
		ok, err := s.vad.IsSpeech(f)
		if err != nil {
			s.log.Warn().Err(err).Msg("classifier failed, treating frame as silence")
		} else {
			speech = ok
		}
	}

	if !s.open {
		if !speech {
			return Utterance{}, false
		}
		s.open = true
		s.frames = s.frames[:0]
		s.silence = 0
		s.log.Debug().Msg("utterance opened")
	}

	s.frames = append(s.frames, f)
	if speech {
		s.silence = 0
	} else {
		s.silence++
		if s.silence >= s.cfg.SilenceFrames {
			return s.close(), true
		}
	}
	return Utterance{}, false
}

func (s *Segmenter) close() Utterance {
	frames := make([]Frame, len(s.frames))
	copy(frames, s.frames)
	u := Utterance{
		Frames:   frames,
		Duration: time.Duration(len(frames)) * s.cfg.FrameDuration,
	}
	s.log.Debug().Int("frames", len(frames)).Dur("duration", u.Duration).Msg("utterance closed")
	s.reset()
	return u
}

func (s *Segmenter) reset() {
	s.open = false
	s.frames = s.frames[:0]
	s.silence = 0
	if r, ok := s.vad.(interface{ Reset() }); ok {
		r.Reset()
	}
}
