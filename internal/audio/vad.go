package audio

// Classifier decides whether a frame contains speech. Implementations may
// fail per frame; the segmenter treats a failed frame as silence.
type Classifier interface {
	IsSpeech(Frame) (bool, error)
}

// EnergyVAD is a hysteresis energy detector. It opens at OpenThreshold and
// only closes again below CloseThreshold, so energy hovering around a single
// threshold does not flap between speech and silence.
type EnergyVAD struct {
	OpenThreshold  float64
	CloseThreshold float64
	active         bool
}

// NewEnergyVAD builds a detector with the close threshold at half the open
// threshold.
func NewEnergyVAD(openThreshold float64) *EnergyVAD {
	return &EnergyVAD{
		OpenThreshold:  openThreshold,
		CloseThreshold: openThreshold / 2,
	}
}

// IsSpeech reports whether the frame is inside a speech run.
func (v *EnergyVAD) IsSpeech(f Frame) (bool, error) {
	rms := f.RMS()
	if v.active {
		if rms < v.CloseThreshold {
			v.active = false
		}
	} else {
		if rms >= v.OpenThreshold {
			v.active = true
		}
	}
	return v.active, nil
}

// Reset clears the hysteresis state.
func (v *EnergyVAD) Reset() {
	v.active = false
}
