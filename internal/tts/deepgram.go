package tts

import (
	"context"
	"fmt"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
)

const (
	// streamIdleWindow closes an utterance once audio stops arriving; the
	// speak websocket sends no explicit end-of-stream marker.
	streamIdleWindow = 400 * time.Millisecond
	streamDeadline   = 12 * time.Second
)

// CloudEngine is the hosted alternative to the local Engine. It streams
// linear16 PCM from the Deepgram speak websocket into the Sink, honoring the
// same interrupt contract.
type CloudEngine struct {
	playback
	cfg  config.TTSConfig
	log  zerolog.Logger
	sink Sink
}

// NewCloudEngine builds a hosted synthesizer that plays through the given sink.
func NewCloudEngine(cfg config.TTSConfig, sink Sink, log zerolog.Logger) *CloudEngine {
	component := log.With().Str("component", "tts").Str("provider", "deepgram").Logger()
	return &CloudEngine{
		playback: newPlayback(cfg.InterruptCooldown, component),
		cfg:      cfg,
		log:      component,
		sink:     sink,
	}
}

// Speak synthesizes and plays text. It blocks until the audio stream goes
// idle and reports whether playback ran to completion. The speed scale is
// not supported by this backend; pacing comes from the selected voice model.
func (e *CloudEngine) Speak(ctx context.Context, text string, speed float64) (bool, error) {
	if text == "" {
		return true, nil
	}
	if e.cfg.APIKey == "" {
		return false, fmt.Errorf("deepgram: api key missing")
	}

	e.begin()
	defer e.end()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pcm := make(chan []byte, 64)
	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		chunk := make([]byte, len(data))
		copy(chunk, data)
		select {
		case pcm <- chunk:
		case <-sctx.Done():
		}
		return nil
	}}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      e.cfg.Model,
		Encoding:   "linear16",
		SampleRate: e.cfg.SampleRate,
	}
	dg, err := speak.NewWSUsingCallback(sctx, e.cfg.APIKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return false, fmt.Errorf("deepgram: create client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return false, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return false, fmt.Errorf("deepgram: speak: %w", err)
	}
	if err := dg.Flush(); err != nil {
		e.log.Warn().Err(err).Msg("flush failed")
	}

	start := e.now()
	var last time.Time
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case chunk := <-pcm:
			if err := e.sink.WritePCM(chunk); err != nil {
				return false, fmt.Errorf("playback: %w", err)
			}
			last = e.now()
		case <-sctx.Done():
			return false, nil
		case <-ticker.C:
			if e.stopRequested() {
				e.log.Debug().Msg("playback stopped mid-stream")
				return false, nil
			}
			now := e.now()
			if !last.IsZero() && now.Sub(last) > streamIdleWindow {
				return true, nil
			}
			if now.Sub(start) > streamDeadline {
				if last.IsZero() {
					return false, fmt.Errorf("deepgram: no audio before deadline")
				}
				return true, nil
			}
		}
	}
}

type speakCallback struct {
	onBinary func([]byte) error
}

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }

func (s *speakCallback) Binary(msg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(msg)
	}
	return nil
}
