package controller

import (
	"context"
	"testing"
	"time"

	"github.com/petalvoice/petal/internal/audio"
)

func frameAt(v float32) audio.Frame {
	return audio.Frame{Samples: []float32{v, v, v, v}}
}

func TestFrameQueue_DropsOldestOnOverflow(t *testing.T) {
	q := NewFrameQueue(3)
	for i := 1; i <= 4; i++ {
		q.Push(frameAt(float32(i)))
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 queued frames, got %d", q.Len())
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped frame, got %d", q.Dropped())
	}
	f, ok := q.TryPop()
	if !ok || f.Samples[0] != 2 {
		t.Fatalf("expected oldest surviving frame 2, got %v ok=%v", f.Samples, ok)
	}
}

func TestFrameQueue_SnapshotDoesNotConsume(t *testing.T) {
	q := NewFrameQueue(8)
	q.Push(frameAt(1))
	q.Push(frameAt(2))

	snap := q.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected snapshot of 2, got %d", len(snap))
	}
	if q.Len() != 2 {
		t.Fatalf("snapshot must not consume frames, queue has %d", q.Len())
	}
}

func TestFrameQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewFrameQueue(8)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(frameAt(7))
	}()

	f, ok := q.Pop(context.Background())
	if !ok || f.Samples[0] != 7 {
		t.Fatalf("expected pushed frame, got %v ok=%v", f.Samples, ok)
	}
}

func TestFrameQueue_PopReturnsOnCancel(t *testing.T) {
	q := NewFrameQueue(8)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	if _, ok := q.Pop(ctx); ok {
		t.Fatalf("expected cancelled pop to report no frame")
	}
}

func TestFrameQueue_Flush(t *testing.T) {
	q := NewFrameQueue(8)
	q.Push(frameAt(1))
	q.Push(frameAt(2))
	if n := q.Flush(); n != 2 {
		t.Fatalf("expected 2 flushed, got %d", n)
	}
	if q.Len() != 0 {
		t.Fatalf("queue must be empty after flush")
	}
}
