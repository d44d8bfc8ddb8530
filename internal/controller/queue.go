package controller

import (
	"context"
	"sync"

	"github.com/petalvoice/petal/internal/audio"
)

// FrameQueue is the bounded buffer between the capture task and the control
// loop. When full it drops the oldest frame: utterances are re-derived from
// live speech, so stale audio is worth less than fresh audio.
type FrameQueue struct {
	mu      sync.Mutex
	frames  []audio.Frame
	cap     int
	dropped int

	notify chan struct{}
}

// NewFrameQueue builds a queue holding at most capacity frames.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{cap: capacity, notify: make(chan struct{}, 1)}
}

// Push enqueues one frame, evicting the oldest when the queue is full.
// Safe to call from the capture goroutine.
func (q *FrameQueue) Push(f audio.Frame) {
	q.mu.Lock()
	if len(q.frames) >= q.cap {
		q.frames = q.frames[1:]
		q.dropped++
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until a frame is available or ctx is done.
func (q *FrameQueue) Pop(ctx context.Context) (audio.Frame, bool) {
	for {
		if f, ok := q.TryPop(); ok {
			return f, true
		}
		select {
		case <-ctx.Done():
			return audio.Frame{}, false
		case <-q.notify:
		}
	}
}

// TryPop returns the next frame without blocking.
func (q *FrameQueue) TryPop() (audio.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return audio.Frame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// Snapshot copies the queued frames without consuming them.
func (q *FrameQueue) Snapshot() []audio.Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]audio.Frame, len(q.frames))
	copy(out, q.frames)
	return out
}

// Flush discards all queued frames and returns how many were dropped.
func (q *FrameQueue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	q.frames = nil
	return n
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped returns the total number of frames evicted by overflow.
func (q *FrameQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
