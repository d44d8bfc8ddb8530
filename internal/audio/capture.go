package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Capture reads little-endian 16-bit mono PCM from an input stream and cuts
// it into fixed-size frames. It bridges an external recorder (arecord, sox,
// a test fixture) to the frame queue.
type Capture struct {
	r         io.Reader
	frameSize int
	log       zerolog.Logger
}

// NewCapture builds a capture reader emitting frames of frameSize samples.
func NewCapture(r io.Reader, frameSize int, log zerolog.Logger) *Capture {
	return &Capture{
		r:         r,
		frameSize: frameSize,
		log:       log.With().Str("component", "capture").Logger(),
	}
}

// Run emits frames until the stream ends. A trailing partial frame is
// discarded. Cancellation is observed between reads; a blocked read ends
// when the underlying stream closes.
func (c *Capture) Run(ctx context.Context, emit func(Frame)) error {
	buf := make([]byte, c.frameSize*2)
	frames := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := io.ReadFull(c.r, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				c.log.Info().Int("frames", frames).Msg("capture stream ended")
				return nil
			}
			return fmt.Errorf("read capture stream: %w", err)
		}

		samples := make([]float32, c.frameSize)
		for i := range samples {
			samples[i] = float32(int16(binary.LittleEndian.Uint16(buf[i*2:]))) / 32768
		}
		emit(Frame{Samples: samples, At: time.Now()})
		frames++
	}
}
