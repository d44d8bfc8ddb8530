package tts

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
)

func testCloudEngine(sink Sink) *CloudEngine {
	return NewCloudEngine(config.TTSConfig{
		Provider:          "deepgram",
		Model:             "aura-2-thalia-en",
		SampleRate:        48000,
		InterruptCooldown: time.Second,
	}, sink, zerolog.Nop())
}

func TestCloudSpeak_EmptyTextIsNoOp(t *testing.T) {
	sink := &fakeSink{}
	e := testCloudEngine(sink)
	completed, err := e.Speak(context.Background(), "", 0.9)
	if err != nil || !completed {
		t.Fatalf("empty text must complete silently, got completed=%v err=%v", completed, err)
	}
	if sink.writes != 0 {
		t.Fatalf("no audio expected for empty text")
	}
}

func TestCloudSpeak_MissingKeyErrors(t *testing.T) {
	e := testCloudEngine(&fakeSink{})
	completed, err := e.Speak(context.Background(), "hello", 0.9)
	if err == nil {
		t.Fatalf("expected error with missing key")
	}
	if completed {
		t.Fatalf("missing key must not report completion")
	}
	if e.Speaking() {
		t.Fatalf("speaking flag must clear after failure")
	}
}

func TestCloudInterrupt_SharesCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := testCloudEngine(&fakeSink{})
	e.now = func() time.Time { return now }

	if !e.Interrupt() {
		t.Fatalf("first interrupt must succeed")
	}
	now = now.Add(500 * time.Millisecond)
	if e.Interrupt() {
		t.Fatalf("interrupt within cooldown must be suppressed")
	}
	now = now.Add(600 * time.Millisecond)
	if !e.Interrupt() {
		t.Fatalf("interrupt after cooldown must succeed")
	}
}
