// Package tts speaks text through a local synthesis server with
// interruptible playback. An engine-internal cooldown absorbs repeated
// interrupt triggers so the agent's own playback cannot re-trigger itself.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
)

// Sink consumes synthesized PCM chunks and performs actual playback.
// Implementations should pace delivery at the audio rate.
type Sink interface {
	WritePCM(pcm []byte) error
}

type synthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// Engine streams audio from the synthesis server into a Sink, checking for
// an interrupt between chunks so a wake word stops playback promptly.
type Engine struct {
	playback
	cfg  config.TTSConfig
	log  zerolog.Logger
	http *http.Client
	sink Sink
}

// NewEngine builds an engine that plays through the given sink.
func NewEngine(cfg config.TTSConfig, sink Sink, log zerolog.Logger) *Engine {
	component := log.With().Str("component", "tts").Logger()
	return &Engine{
		playback: newPlayback(cfg.InterruptCooldown, component),
		cfg:      cfg,
		log:      component,
		http:     &http.Client{},
		sink:     sink,
	}
}

// Speak synthesizes and plays text at the given pacing scale. It blocks
// until playback finishes and reports whether it ran to completion (false
// when interrupted).
func (e *Engine) Speak(ctx context.Context, text string, speed float64) (bool, error) {
	if text == "" {
		return true, nil
	}
	if speed <= 0 {
		speed = 0.9
	}

	e.begin()
	defer e.end()

	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: e.cfg.Voice, Speed: speed})
	if err != nil {
		return false, fmt.Errorf("marshal synthesis request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("synthesis server returned status %d", resp.StatusCode)
	}

	buf := make([]byte, 4096)
	for {
		if e.stopRequested() {
			e.log.Debug().Msg("playback stopped mid-stream")
			return false, nil
		}
		if ctx.Err() != nil {
			return false, nil
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := e.sink.WritePCM(chunk); err != nil {
				return false, fmt.Errorf("playback: %w", err)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return !e.stopRequested(), nil
			}
			return false, fmt.Errorf("read synthesis stream: %w", rerr)
		}
	}
}

