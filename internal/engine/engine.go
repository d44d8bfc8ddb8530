// Package engine defines the narrow contracts the core uses to talk to the
// external speech and dialogue services. The core never depends on a
// concrete engine.
package engine

import "context"

// Transcriber converts captured audio to text. The same contract serves full
// utterances and short wake-word-spotting clips. Inaudible input must yield
// an empty string, not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// GenerateRequest carries everything the dialogue engine needs for one
// reply. PromptContext must already place system safety rules ahead of any
// user text; Guidance entries are internal instructions and are never
// spoken.
type GenerateRequest struct {
	SystemPrompt   string
	SessionSummary string
	Guidance       []string
	History        string
	UserText       string
	MaxTokens      int
}

// Dialogue generates a reply as a stream of text chunks. The returned chunk
// channel closes when generation finishes; a terminal failure is delivered
// on the error channel.
type Dialogue interface {
	Generate(ctx context.Context, req GenerateRequest) (<-chan string, <-chan error)
}

// Synthesizer speaks text aloud.
type Synthesizer interface {
	// Speak synthesizes and plays text at the given pacing scale. It
	// blocks until playback finishes or is interrupted and reports
	// whether playback ran to completion.
	Speak(ctx context.Context, text string, speed float64) (completed bool, err error)
	// Interrupt stops playback. It returns false when the engine's
	// internal cooldown suppresses the interrupt.
	Interrupt() bool
	// Speaking reports whether playback is in progress.
	Speaking() bool
}
