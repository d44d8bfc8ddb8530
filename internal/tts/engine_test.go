package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petalvoice/petal/internal/config"
)

// fakeSink records chunks and can invoke a callback per write, which tests
// use to trigger interrupts at a deterministic point in the stream.
type fakeSink struct {
	mu      sync.Mutex
	writes  int
	bytes   int
	onWrite func(write int)
}

func (f *fakeSink) WritePCM(pcm []byte) error {
	f.mu.Lock()
	f.writes++
	n := f.writes
	f.bytes += len(pcm)
	cb := f.onWrite
	f.mu.Unlock()
	if cb != nil {
		cb(n)
	}
	return nil
}

func synthServer(t *testing.T, chunks int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatalf("response writer must support flushing")
		}
		payload := make([]byte, 4096)
		for i := 0; i < chunks; i++ {
			if _, err := w.Write(payload); err != nil {
				return
			}
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
}

func testEngine(url string, sink Sink) *Engine {
	return NewEngine(config.TTSConfig{
		URL:               url,
		Voice:             "test-voice",
		InterruptCooldown: time.Second,
	}, sink, zerolog.Nop())
}

func TestSpeak_CompletesAndDeliversAudio(t *testing.T) {
	srv := synthServer(t, 5)
	defer srv.Close()

	sink := &fakeSink{}
	e := testEngine(srv.URL, sink)

	completed, err := e.Speak(context.Background(), "hello there", 0.9)
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if !completed {
		t.Fatalf("expected completed playback")
	}
	if sink.bytes != 5*4096 {
		t.Fatalf("expected %d bytes delivered, got %d", 5*4096, sink.bytes)
	}
	if e.Speaking() {
		t.Fatalf("speaking flag must clear after playback")
	}
}

func TestSpeak_EmptyTextIsNoOp(t *testing.T) {
	sink := &fakeSink{}
	e := testEngine("http://127.0.0.1:1/synth", sink)
	completed, err := e.Speak(context.Background(), "", 0.9)
	if err != nil || !completed {
		t.Fatalf("empty text must complete silently, got completed=%v err=%v", completed, err)
	}
	if sink.writes != 0 {
		t.Fatalf("no audio expected for empty text")
	}
}

func TestSpeak_InterruptStopsMidStream(t *testing.T) {
	srv := synthServer(t, 50)
	defer srv.Close()

	sink := &fakeSink{}
	e := testEngine(srv.URL, sink)
	sink.onWrite = func(write int) {
		if write == 2 {
			if !e.Interrupt() {
				t.Errorf("first interrupt must not be suppressed")
			}
		}
	}

	completed, err := e.Speak(context.Background(), "a long story about a garden", 0.8)
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if completed {
		t.Fatalf("expected interrupted playback")
	}
	if sink.writes >= 50 {
		t.Fatalf("expected early stop, got %d writes", sink.writes)
	}
}

func TestInterrupt_CooldownSuppresses(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := testEngine("http://127.0.0.1:1/synth", &fakeSink{})
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

func TestSpeak_ServerErrorReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := testEngine(srv.URL, &fakeSink{})
	completed, err := e.Speak(context.Background(), "hello", 0.9)
	if err == nil {
		t.Fatalf("expected error from failing synthesis server")
	}
	if completed {
		t.Fatalf("failed synthesis must not report completion")
	}
}
